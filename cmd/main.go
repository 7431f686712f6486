// Command txlanes replays a CSV log of client transactions and prints the
// final balance of every client account as CSV on stdout.
//
// Usage:
//
//	txlanes transactions.csv > accounts.csv
//	txlanes -config txlanes.yaml -lanes 16 transactions.csv
//
// Records are sharded by client id across worker lanes, so per-client order
// is preserved while clients are processed in parallel.
package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/txlanes/config"
	"github.com/vadiminshakov/txlanes/internal"
	"github.com/vadiminshakov/txlanes/internal/logging"
	"github.com/vadiminshakov/txlanes/internal/services/sink"
	"github.com/vadiminshakov/txlanes/internal/services/source"
	"github.com/vadiminshakov/txlanes/internal/storage/snapshots"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := run(ctx, os.Args[1:], os.Stdout)
	if err != nil {
		log.SetFlags(0)
		if errors.Is(err, config.ErrUsage) {
			log.Println(config.Usage)
		}
		stop()
		log.Fatalf("txlanes: %v", err)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	conf, err := config.Parse(args)
	if err != nil {
		return err
	}

	logger, err := logging.New(conf.LogLevel)
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	src, size, err := source.Open(conf.InputPath)
	if err != nil {
		return err
	}
	defer src.Close()

	var opts []internal.Option
	if conf.JournalDir != "" {
		store, err := snapshots.NewWALStore(conf.JournalDir)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := store.Close(); cerr != nil {
				logger.Warn("failed to close journal", zap.Error(cerr))
			}
		}()
		opts = append(opts, internal.WithJournal(store))
	}

	proc, err := internal.NewProcessor(conf, logger, opts...)
	if err != nil {
		return err
	}

	report, err := proc.Run(ctx, src, size)
	if err != nil {
		return err
	}

	if err := sink.WriteCSV(stdout, report.States, conf.Sorted); err != nil {
		return errors.Wrap(err, "render output")
	}

	return nil
}
