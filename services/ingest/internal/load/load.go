// Package load drains a batch scanner into the store, isolating per-batch
// failures so one bad batch never aborts a multi-hour run.
package load

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync/atomic"
	"time"
)

// BatchScanner is the pull side of a source parser: Scan advances to the
// next bounded batch, Batch returns it, and Err reports the structural
// error (if any) once Scan has returned false.
type BatchScanner[T any] interface {
	Scan() bool
	Batch() []T
	Err() error
}

// UpsertFunc applies one batch as a single unit of work and returns the
// number of rows actually affected. It must be idempotent on the record's
// natural key: re-running the same batch must not duplicate rows.
type UpsertFunc[T any] func(ctx context.Context, batch []T) (int, error)

// Result summarises one load run.
type Result struct {
	Source        string
	Total         int
	Loaded        int
	Skipped       int
	FailedBatches int
	Duration      time.Duration
	Errors        []string
}

// Run applies every batch from src through upsert. A batch that fails is
// recorded and skipped; the run continues. The returned error is only the
// scanner's structural error — per-batch failures live in Result.Errors.
//
// Cancellation is cooperative and checked at batch boundaries. Run listens
// for the interrupt signal while active: the first interrupt finishes the
// in-flight batch and stops; a second one restores the default handler and
// re-raises, terminating the process. The signal registration is released
// on every exit path.
func Run[T any](ctx context.Context, src BatchScanner[T], upsert UpsertFunc[T], source string) (Result, error) {
	res := Result{Source: source}
	start := time.Now()

	var stop atomic.Bool
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt)
	done := make(chan struct{})
	defer func() {
		signal.Stop(sigCh)
		close(done)
	}()

	go func() {
		for {
			select {
			case <-done:
				return
			case <-sigCh:
				if stop.Swap(true) {
					// Second interrupt: hand the signal back to the runtime
					// default and re-deliver it.
					signal.Stop(sigCh)
					if p, err := os.FindProcess(os.Getpid()); err == nil {
						_ = p.Signal(os.Interrupt)
					}
					return
				}
				log.Printf("interrupt received: finishing current batch, source=%s", source)
			}
		}
	}()

	batchNum := 0
	for src.Scan() {
		if stop.Load() || ctx.Err() != nil {
			log.Printf("shutdown requested: stopping after batch %d, source=%s", batchNum, source)
			break
		}

		batchNum++
		batch := src.Batch()
		res.Total += len(batch)

		loaded, err := upsert(ctx, batch)
		if err != nil {
			res.FailedBatches++
			msg := fmt.Sprintf("batch %d: %v", batchNum, err)
			res.Errors = append(res.Errors, msg)
			log.Printf("batch failed: source=%s batch=%d err=%v", source, batchNum, err)
			continue
		}

		res.Loaded += loaded
		res.Skipped += len(batch) - loaded
	}

	res.Duration = time.Since(start)

	if err := src.Err(); err != nil {
		return res, err
	}

	log.Printf("load complete: source=%s total=%d loaded=%d skipped=%d failed_batches=%d duration=%s",
		source, res.Total, res.Loaded, res.Skipped, res.FailedBatches, res.Duration.Round(time.Millisecond))
	return res, nil
}
