// Package lane provides the bounded FIFO queue that feeds one engine.
package lane

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/vadiminshakov/txlanes/internal/domain"
)

var (
	// ErrFull is returned by Offer when every slot is taken.
	ErrFull = errors.New("lane buffer full")
	// ErrClosed is returned when enqueueing after Close.
	ErrClosed = errors.New("lane buffer closed")
)

// Buffer is a bounded FIFO of transactions for a single lane.
// Offer, Push and Close must all be called from the same producer goroutine;
// Records belongs to the consumer.
type Buffer struct {
	ch        chan domain.Transaction
	closed    atomic.Bool
	closeOnce sync.Once
	stalls    atomic.Uint64
}

// NewBuffer allocates a buffer with the given capacity.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = 1
	}

	return &Buffer{ch: make(chan domain.Transaction, capacity)}
}

// Offer enqueues tx without blocking.
func (b *Buffer) Offer(tx domain.Transaction) error {
	if b.closed.Load() {
		return ErrClosed
	}

	select {
	case b.ch <- tx:
		return nil
	default:
		return ErrFull
	}
}

// Push enqueues tx, suspending while the buffer is full until a slot frees up
// or ctx is done. Records are never dropped or reordered.
func (b *Buffer) Push(ctx context.Context, tx domain.Transaction) error {
	err := b.Offer(tx)
	if !errors.Is(err, ErrFull) {
		return err
	}

	b.stalls.Add(1)

	select {
	case b.ch <- tx:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close signals end of stream. Records already enqueued stay readable. Safe to call more than once.
func (b *Buffer) Close() {
	b.closeOnce.Do(func() {
		b.closed.Store(true)
		close(b.ch)
	})
}

// Records yields transactions in enqueue order until the buffer is closed and empty.
func (b *Buffer) Records() <-chan domain.Transaction {
	return b.ch
}

// Stalls returns how many pushes had to wait for free space.
func (b *Buffer) Stalls() uint64 {
	return b.stalls.Load()
}

func (b *Buffer) queued() int {
	return len(b.ch)
}

func (b *Buffer) capacity() int {
	return cap(b.ch)
}
