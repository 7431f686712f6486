// Package aggregator merges the per-lane results into the final client states.
package aggregator

import (
	"context"

	"github.com/pkg/errors"

	"github.com/vadiminshakov/txlanes/internal/domain"
	"github.com/vadiminshakov/txlanes/internal/services/engine"
)

var (
	// ErrDuplicateClient means two lanes reported the same client, which the
	// partitioner makes impossible.
	ErrDuplicateClient = errors.New("client reported by more than one lane")
	ErrUnexpectedLane  = errors.New("result from unknown or already reported lane")
)

// LaneStats describes the work one lane did.
type LaneStats struct {
	Lane      int
	Accounts  int
	Processed uint64
	Applied   uint64
	Stalls    uint64
}

// Summary is the merged output of all lanes.
type Summary struct {
	States []domain.ClientState
	Lanes  []LaneStats
}

// Records returns the total number of records consumed across lanes.
func (s Summary) Records() uint64 {
	var n uint64
	for _, l := range s.Lanes {
		n += l.Processed
	}
	return n
}

// Stalls returns the total number of backpressure stalls across lanes.
func (s Summary) Stalls() uint64 {
	var n uint64
	for _, l := range s.Lanes {
		n += l.Stalls
	}
	return n
}

// Aggregator receives exactly one result per lane over a channel and merges them.
// Engines only send; Collect is the single reader.
type Aggregator struct {
	lanes   int
	results chan engine.Result
}

// New creates an aggregator expecting one result from each of the given lanes.
func New(lanes int) *Aggregator {
	if lanes < 1 {
		lanes = 1
	}

	return &Aggregator{
		lanes:   lanes,
		results: make(chan engine.Result, lanes),
	}
}

// Submit hands a finished lane result to the collector. It never blocks
// as long as each lane submits at most once.
func (a *Aggregator) Submit(res engine.Result) {
	a.results <- res
}

// Collect waits for every lane to report, then converts every account into
// its final state. Order of the returned states is unspecified.
func (a *Aggregator) Collect(ctx context.Context) (Summary, error) {
	var (
		seen   = make(map[int]struct{}, a.lanes)
		owners = make(map[domain.ClientID]int)
		sum    = Summary{Lanes: make([]LaneStats, 0, a.lanes)}
	)

	for len(seen) < a.lanes {
		var res engine.Result
		select {
		case <-ctx.Done():
			return Summary{}, ctx.Err()
		case res = <-a.results:
		}

		if _, dup := seen[res.Lane]; dup || res.Lane < 0 || res.Lane >= a.lanes {
			return Summary{}, errors.Wrapf(ErrUnexpectedLane, "lane %d", res.Lane)
		}
		seen[res.Lane] = struct{}{}

		for id, acc := range res.Accounts {
			if prev, dup := owners[id]; dup {
				return Summary{}, errors.Wrapf(ErrDuplicateClient, "client %d on lanes %d and %d", id, prev, res.Lane)
			}
			owners[id] = res.Lane
			sum.States = append(sum.States, acc.Snapshot())
		}

		sum.Lanes = append(sum.Lanes, LaneStats{
			Lane:      res.Lane,
			Accounts:  len(res.Accounts),
			Processed: res.Processed,
			Applied:   res.Applied,
			Stalls:    res.Stalls,
		})
	}

	return sum, nil
}
