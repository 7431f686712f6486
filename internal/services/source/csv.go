// Package source decodes the transaction input stream.
package source

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/txlanes/internal/domain"
)

const (
	columnType   = "type"
	columnClient = "client"
	columnTx     = "tx"
	columnAmount = "amount"
)

var (
	ErrMissingColumn = errors.New("missing required column")
	ErrEmptyInput    = errors.New("input has no header row")
)

// CSV reads transactions from a delimited-text stream with a header row.
// Columns may appear in any order; every field is whitespace-trimmed.
type CSV struct {
	r      *csv.Reader
	closer io.Closer

	typeIdx, clientIdx, txIdx int
	// amountIdx is -1 when the stream has no amount column.
	amountIdx int
}

// Open opens the file at path and returns a reader over it together with its size in bytes.
func Open(path string) (*CSV, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, errors.Wrap(err, "open input")
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, errors.Wrap(err, "stat input")
	}

	src, err := NewCSV(f)
	if err != nil {
		_ = f.Close()
		return nil, 0, err
	}
	src.closer = f

	return src, info.Size(), nil
}

// NewCSV reads the header row from r and prepares the column mapping.
func NewCSV(r io.Reader) (*CSV, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyInput
		}
		return nil, errors.Wrap(err, "read header")
	}

	src := &CSV{r: cr, typeIdx: -1, clientIdx: -1, txIdx: -1, amountIdx: -1}
	for i, name := range header {
		switch strings.TrimSpace(name) {
		case columnType:
			src.typeIdx = i
		case columnClient:
			src.clientIdx = i
		case columnTx:
			src.txIdx = i
		case columnAmount:
			src.amountIdx = i
		}
	}

	for name, idx := range map[string]int{columnType: src.typeIdx, columnClient: src.clientIdx, columnTx: src.txIdx} {
		if idx < 0 {
			return nil, errors.Wrapf(ErrMissingColumn, "%q", name)
		}
	}

	return src, nil
}

// Next decodes the next record. It returns io.EOF once the stream is exhausted.
func (s *CSV) Next() (domain.Transaction, error) {
	record, err := s.r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return domain.Transaction{}, io.EOF
		}
		return domain.Transaction{}, errors.Wrap(err, "read record")
	}

	line, _ := s.r.FieldPos(0)

	client, err := strconv.ParseUint(field(record, s.clientIdx), 10, 16)
	if err != nil {
		return domain.Transaction{}, errors.Wrapf(err, "line %d: parse client", line)
	}

	tx, err := strconv.ParseUint(field(record, s.txIdx), 10, 32)
	if err != nil {
		return domain.Transaction{}, errors.Wrapf(err, "line %d: parse tx", line)
	}

	amount := decimal.Zero
	if raw := field(record, s.amountIdx); raw != "" {
		amount, err = decimal.NewFromString(raw)
		if err != nil {
			return domain.Transaction{}, errors.Wrapf(err, "line %d: parse amount", line)
		}
	}

	return domain.Transaction{
		Kind:   domain.ParseKind(field(record, s.typeIdx)),
		Client: domain.ClientID(client),
		Tx:     domain.TxID(tx),
		Amount: amount,
	}, nil
}

// Close releases the underlying file, if any.
func (s *CSV) Close() error {
	if s == nil || s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// field returns the trimmed value at idx, or "" if the row is too short.
func field(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}
