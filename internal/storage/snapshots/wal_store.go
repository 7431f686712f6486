// Package snapshots journals final client states into a write-ahead log.
package snapshots

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/gowal"

	"github.com/vadiminshakov/txlanes/internal/domain"
)

const (
	segmentLimit = 1000
	maxSegments  = 100
	keyPrefix    = "client_state_"
)

// Entry is one journaled client state.
type Entry struct {
	RunID     string          `json:"run_id"`
	Client    domain.ClientID `json:"client"`
	Available decimal.Decimal `json:"available"`
	Held      decimal.Decimal `json:"held"`
	Total     decimal.Decimal `json:"total"`
	Locked    bool            `json:"locked"`
}

// WALStore appends final client states to a WAL. It is an export only;
// nothing in the pipeline reads it back.
type WALStore struct {
	wal *gowal.Wal
	mu  sync.RWMutex
}

// NewWALStore opens (or creates) a WAL under dir.
func NewWALStore(dir string) (*WALStore, error) {
	if dir == "" {
		return nil, errors.New("journal dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create journal dir")
	}

	wal, err := gowal.NewWAL(gowal.Config{
		Dir:              dir,
		Prefix:           "state_",
		SegmentThreshold: segmentLimit,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "init client state WAL")
	}

	return &WALStore{wal: wal}, nil
}

// Save appends the state under the given run id.
func (s *WALStore) Save(runID string, state domain.ClientState) error {
	if s == nil || s.wal == nil {
		return errors.New("client state store is not initialized")
	}
	if runID == "" {
		return errors.New("run id is required")
	}

	payload, err := json.Marshal(Entry{
		RunID:     runID,
		Client:    state.Client,
		Available: state.Available,
		Held:      state.Held,
		Total:     state.Total(),
		Locked:    state.Locked,
	})
	if err != nil {
		return errors.Wrap(err, "marshal client state")
	}

	key := fmt.Sprintf("%s%s_%d", keyPrefix, runID, state.Client)

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Write(s.wal.CurrentIndex()+1, key, payload)
}

// SaveAll appends every state under the given run id.
func (s *WALStore) SaveAll(runID string, states []domain.ClientState) error {
	for _, state := range states {
		if err := s.Save(runID, state); err != nil {
			return errors.Wrapf(err, "journal client %d", state.Client)
		}
	}
	return nil
}

// Entries returns every journaled state still retained by the WAL. It is the
// read side of the journal for tools that consume an exported run.
func (s *WALStore) Entries() ([]Entry, error) {
	if s == nil || s.wal == nil {
		return nil, errors.New("client state store is not initialized")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	current := s.wal.CurrentIndex()
	entries := make([]Entry, 0, current)
	for idx := uint64(1); idx <= current; idx++ {
		key, payload, ok := s.wal.Get(idx)
		if !ok || !strings.HasPrefix(key, keyPrefix) {
			continue
		}

		var e Entry
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, errors.Wrap(err, "decode client state")
		}
		entries = append(entries, e)
	}

	return entries, nil
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	if s == nil || s.wal == nil {
		return errors.New("client state store is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}
