// Package sink renders final client states.
package sink

import (
	"encoding/csv"
	"io"
	"slices"
	"strconv"

	"github.com/pkg/errors"

	"github.com/vadiminshakov/txlanes/internal/domain"
)

const fractionDigits = 4

var header = []string{"client", "available", "held", "total", "locked"}

// WriteCSV writes one row per client. With sorted set, rows are ordered by client id.
func WriteCSV(w io.Writer, states []domain.ClientState, sorted bool) error {
	if sorted {
		states = slices.Clone(states)
		slices.SortFunc(states, func(a, b domain.ClientState) int {
			return int(a.Client) - int(b.Client)
		})
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return errors.Wrap(err, "write header")
	}

	row := make([]string, len(header))
	for _, s := range states {
		row[0] = strconv.FormatUint(uint64(s.Client), 10)
		row[1] = s.Available.StringFixed(fractionDigits)
		row[2] = s.Held.StringFixed(fractionDigits)
		row[3] = s.Total().StringFixed(fractionDigits)
		row[4] = strconv.FormatBool(s.Locked)

		if err := cw.Write(row); err != nil {
			return errors.Wrapf(err, "write client %d", s.Client)
		}
	}

	cw.Flush()

	return errors.Wrap(cw.Error(), "flush output")
}
