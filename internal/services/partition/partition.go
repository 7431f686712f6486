// Package partition routes transactions to worker lanes by client id.
package partition

import (
	"github.com/pkg/errors"

	"github.com/vadiminshakov/txlanes/internal/domain"
)

// ErrInvalidLanes is returned for a non-positive lane count.
var ErrInvalidLanes = errors.New("lane count must be positive")

// Partitioner maps a client id to a lane with client mod N.
// All records of one client always land on the same lane.
type Partitioner struct {
	lanes int
}

// New creates a partitioner over n lanes.
func New(n int) (Partitioner, error) {
	if n <= 0 {
		return Partitioner{}, errors.Wrapf(ErrInvalidLanes, "got %d", n)
	}

	return Partitioner{lanes: n}, nil
}

// Lane returns the lane index in [0, Lanes()) for the client.
func (p Partitioner) Lane(client domain.ClientID) int {
	return int(client) % p.lanes
}

// Lanes returns the configured lane count.
func (p Partitioner) Lanes() int {
	return p.lanes
}
