package main

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/autom8ter/machine/v4"
	"github.com/spf13/cobra"

	"github.com/autom8ter/pagestream/errors"
	"github.com/autom8ter/pagestream/internal/fake"
)

// maxConcurrency is the most batches seed runs at once
const maxConcurrency = 100

func seedCmd(configPath *string) *cobra.Command {
	var (
		kind        string
		count       int
		batchSize   int
		concurrency int
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "write fake documents to the configured collection",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := LoadConfig(*configPath)
			if err != nil {
				return err
			}
			created, err := seed(cmd.Context(), cfg, kind, count, batchSize, concurrency)
			if err != nil {
				return err
			}
			fmt.Printf("created %v %s in %s\n", created, kind, cfg.Query.Path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&kind, "kind", "k", "trips", "kind of documents to create (trips, addresses)")
	cmd.Flags().IntVarP(&count, "count", "n", 100, "number of documents to create")
	cmd.Flags().IntVar(&batchSize, "batch-size", 50, "number of documents written per batch")
	cmd.Flags().IntVar(&concurrency, "concurrency", 10, "number of concurrent batches")
	return cmd
}

// seed writes count generated documents in batches, running up to concurrency batches at once.
// Once a batch fails no further batches are started
func seed(ctx context.Context, cfg *Config, kind string, count, batchSize, concurrency int) (int64, error) {
	generate, ok := fake.Generator(kind)
	if !ok {
		return 0, errors.New(errors.Validation, "unknown document kind: %s", kind)
	}
	if concurrency <= 0 || concurrency > maxConcurrency {
		return 0, errors.New(errors.Validation, "concurrency must be between 1 and %v", maxConcurrency)
	}
	if batchSize <= 0 {
		return 0, errors.New(errors.Validation, "batch size must be greater than zero")
	}
	logger, err := cfg.Logger()
	if err != nil {
		return 0, err
	}
	e, s, err := cfg.Open(logger, nil)
	if err != nil {
		return 0, err
	}
	defer s.Close()
	if err := e.Init(ctx, cfg.Query.Path, cfg.Query.SortField, cfg.QueryOpts()...); err != nil {
		return 0, err
	}
	var (
		created int64
		failed  int32
		m       = machine.New(machine.WithThrottledRoutines(concurrency))
	)
	for start := 0; start < count; start += batchSize {
		start := start
		end := start + batchSize
		if end > count {
			end = count
		}
		m.Go(ctx, func(ctx context.Context) error {
			if atomic.LoadInt32(&failed) == 1 {
				return nil
			}
			values := make([]any, 0, end-start)
			for i := start; i < end; i++ {
				values = append(values, generate(i))
			}
			ids, err := e.CreateAll(ctx, values)
			if err != nil {
				atomic.StoreInt32(&failed, 1)
				return err
			}
			atomic.AddInt64(&created, int64(len(ids)))
			return nil
		})
	}
	err = m.Wait()
	return atomic.LoadInt64(&created), err
}
