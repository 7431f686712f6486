// Package engine applies a lane's transactions to the accounts that lane owns.
package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/vadiminshakov/txlanes/internal/domain"
	"github.com/vadiminshakov/txlanes/internal/services/lane"
)

// Result is what an engine hands to the aggregator once its lane is drained.
// Ownership of Accounts moves with it; the engine never touches them again.
type Result struct {
	Lane      int
	Accounts  map[domain.ClientID]*domain.Account
	Processed uint64
	Applied   uint64
	Stalls    uint64
}

// Engine exclusively owns the accounts of the clients routed to one lane.
// No other goroutine touches its account map.
type Engine struct {
	id       int
	buffer   *lane.Buffer
	accounts map[domain.ClientID]*domain.Account
	logger   *zap.Logger

	processed uint64
	applied   uint64
}

// New creates an engine consuming the given lane buffer.
func New(id int, buffer *lane.Buffer, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Engine{
		id:       id,
		buffer:   buffer,
		accounts: make(map[domain.ClientID]*domain.Account),
		logger:   logger.With(zap.Int("lane", id)),
	}
}

// Run consumes the lane in order until it is closed and empty, then returns
// every account it owns. If ctx is canceled first the remaining records are
// discarded and ctx.Err() is returned.
func (e *Engine) Run(ctx context.Context) (Result, error) {
	records := e.buffer.Records()

	for {
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case tx, ok := <-records:
			if !ok {
				res := e.result()
				e.logger.Debug("lane drained",
					zap.Uint64("processed", res.Processed),
					zap.Uint64("applied", res.Applied),
					zap.Uint64("stalls", res.Stalls),
					zap.Int("accounts", len(res.Accounts)))
				return res, nil
			}
			e.Apply(tx)
		}
	}
}

// Apply routes tx to its account, creating the account on first reference.
func (e *Engine) Apply(tx domain.Transaction) bool {
	e.processed++

	acc, ok := e.accounts[tx.Client]
	if !ok {
		acc = domain.NewAccount(tx.Client)
		e.accounts[tx.Client] = acc
	}

	if !acc.Apply(tx) {
		return false
	}
	e.applied++

	return true
}

func (e *Engine) result() Result {
	accounts := e.accounts
	e.accounts = make(map[domain.ClientID]*domain.Account)

	return Result{
		Lane:      e.id,
		Accounts:  accounts,
		Processed: e.processed,
		Applied:   e.applied,
		Stalls:    e.buffer.Stalls(),
	}
}
