package internal

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vadiminshakov/txlanes/config"
	"github.com/vadiminshakov/txlanes/internal/domain"
	"github.com/vadiminshakov/txlanes/internal/services/aggregator"
	"github.com/vadiminshakov/txlanes/internal/services/engine"
	"github.com/vadiminshakov/txlanes/internal/services/lane"
	"github.com/vadiminshakov/txlanes/internal/services/partition"
)

// Source yields decoded transactions and returns io.EOF when exhausted.
type Source interface {
	Next() (domain.Transaction, error)
}

// Journal receives the final states of a successful run.
type Journal interface {
	SaveAll(runID string, states []domain.ClientState) error
}

// Report describes a finished run.
type Report struct {
	RunID      string
	Lanes      int
	Capacity   int
	InputBytes int64
	Records    uint64
	Stalls     uint64
	Duration   time.Duration
	States     []domain.ClientState
	LaneStats  []aggregator.LaneStats
}

// Option configures a Processor.
type Option func(*Processor)

// WithJournal makes the processor append final states to j after each run.
func WithJournal(j Journal) Option {
	return func(p *Processor) {
		p.journal = j
	}
}

// Processor runs the sharded pipeline: one producer feeding N engines through bounded lanes.
type Processor struct {
	conf        config.Config
	partitioner partition.Partitioner
	logger      *zap.Logger
	journal     Journal
}

// NewProcessor creates a processor for the given configuration.
func NewProcessor(conf config.Config, logger *zap.Logger, opts ...Option) (*Processor, error) {
	part, err := partition.New(conf.Lanes)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create partitioner")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Processor{
		conf:        conf,
		partitioner: part,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(p)
	}

	return p, nil
}

// Run drains src through the lanes and returns the merged client states.
// inputBytes sizes the lane buffers. A decode error aborts the run; lanes are
// always closed so no engine is left waiting on a stopped producer.
func (p *Processor) Run(ctx context.Context, src Source, inputBytes int64) (Report, error) {
	started := time.Now()
	runID := uuid.NewString()
	lanes := p.partitioner.Lanes()
	capacity := lane.Capacity(inputBytes, lanes, p.conf.Buffer)
	logger := p.logger.With(zap.String("run_id", runID))

	logger.Info("starting run",
		zap.Int("lanes", lanes),
		zap.Int("lane_capacity", capacity),
		zap.Int64("input_bytes", inputBytes))

	buffers := make([]*lane.Buffer, lanes)
	for i := range buffers {
		buffers[i] = lane.NewBuffer(capacity)
	}

	agg := aggregator.New(lanes)
	g, gctx := errgroup.WithContext(ctx)

	for i, buf := range buffers {
		eng := engine.New(i, buf, logger)
		g.Go(func() error {
			res, err := eng.Run(gctx)
			if err != nil {
				return errors.Wrapf(err, "lane %d", i)
			}
			agg.Submit(res)
			return nil
		})
	}

	g.Go(func() error {
		return p.produce(gctx, src, buffers)
	})

	var summary aggregator.Summary
	g.Go(func() error {
		var err error
		summary, err = agg.Collect(gctx)
		return errors.Wrap(err, "aggregate lanes")
	})

	if err := g.Wait(); err != nil {
		return Report{}, err
	}

	if p.journal != nil {
		if err := p.journal.SaveAll(runID, summary.States); err != nil {
			return Report{}, errors.Wrap(err, "journal client states")
		}
	}

	report := Report{
		RunID:      runID,
		Lanes:      lanes,
		Capacity:   capacity,
		InputBytes: inputBytes,
		Records:    summary.Records(),
		Stalls:     summary.Stalls(),
		Duration:   time.Since(started),
		States:     summary.States,
		LaneStats:  summary.Lanes,
	}

	logger.Info("run finished",
		zap.Uint64("records", report.Records),
		zap.Uint64("stalls", report.Stalls),
		zap.Int("clients", len(report.States)),
		zap.Duration("duration", report.Duration))

	return report, nil
}

// produce reads src and routes every record to its client's lane.
// All lanes are closed on return, whether src ended or failed.
func (p *Processor) produce(ctx context.Context, src Source, buffers []*lane.Buffer) error {
	defer func() {
		for _, buf := range buffers {
			buf.Close()
		}
	}()

	for {
		tx, err := src.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "decode input")
		}

		idx := p.partitioner.Lane(tx.Client)
		if err := buffers[idx].Push(ctx, tx); err != nil {
			return errors.Wrapf(err, "enqueue to lane %d", idx)
		}
	}
}
