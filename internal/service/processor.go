package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/otavio/clientsync/internal/domain"
	"github.com/otavio/clientsync/internal/logger"
	"github.com/otavio/clientsync/internal/upstream"
)

// RecordOutcome reports what processing one record did.
type RecordOutcome struct {
	Created bool
	Updated bool
}

// ProcessFunc maps one upstream record into the tenant's customer store.
type ProcessFunc func(ctx context.Context, record upstream.ExternalClient) (RecordOutcome, error)

// BatchResult aggregates the outcomes of one processing run.
type BatchResult struct {
	Processed    int
	Created      int
	Updated      int
	Errors       int
	ErrorDetails []domain.ErrorDetail

	// LimitReached is set when a plan-limit breach stopped the run. Records
	// already in flight in the same chunk still finish and are counted; no
	// further chunk starts.
	LimitReached bool
}

// BatchProcessor splits a record set into bounded chunks and processes each
// chunk with chunk-sized concurrency. One record's failure never aborts the
// chunk or the run.
type BatchProcessor struct {
	chunkSize  int
	chunkPause time.Duration
	logger     *logger.Logger
}

// NewBatchProcessor creates a new batch processor.
// Parameters:
//   - chunkSize: records processed concurrently per chunk; <=0 defaults to 10.
//   - chunkPause: pause between chunks to bound database contention.
//   - log: logger for per-record failure diagnostics.
// Returns:
//   - *BatchProcessor: initialized processor.
func NewBatchProcessor(chunkSize int, chunkPause time.Duration, log *logger.Logger) *BatchProcessor {
	if chunkSize <= 0 {
		chunkSize = 10
	}
	return &BatchProcessor{
		chunkSize:  chunkSize,
		chunkPause: chunkPause,
		logger:     log,
	}
}

type recordResult struct {
	outcome RecordOutcome
	err     error
}

// ProcessAll processes every record in consecutive chunks, waiting for the
// whole chunk before starting the next one, and publishes processed count,
// percentage and ETA through the sink after each chunk.
func (p *BatchProcessor) ProcessAll(ctx context.Context, records []upstream.ExternalClient, fn ProcessFunc, sink ProgressSink) (*BatchResult, error) {
	total := len(records)
	result := &BatchResult{}
	start := time.Now()

	for offset := 0; offset < total; offset += p.chunkSize {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		end := offset + p.chunkSize
		if end > total {
			end = total
		}
		chunk := records[offset:end]

		outcomes := make([]recordResult, len(chunk))
		var wg sync.WaitGroup
		for i := range chunk {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				defer func() {
					if r := recover(); r != nil {
						outcomes[i].err = fmt.Errorf("unexpected failure: %v", r)
					}
				}()
				outcome, err := fn(ctx, chunk[i])
				outcomes[i] = recordResult{outcome: outcome, err: err}
			}(i)
		}
		wg.Wait()

		stop := false
		for i, r := range outcomes {
			result.Processed++
			switch {
			case r.err != nil:
				result.Errors++
				result.ErrorDetails = append(result.ErrorDetails, domain.ErrorDetail{
					Record: chunk[i].Label(),
					Reason: r.err.Error(),
				})
				p.logger.WithError(r.err).WithField("record", chunk[i].Label()).Warn("Record processing failed")
				if errors.Is(r.err, domain.ErrPlanLimitExceeded) {
					// Every later record would hit the same limit
					stop = true
				}
			case r.outcome.Created:
				result.Created++
			case r.outcome.Updated:
				result.Updated++
			}
		}

		if sink != nil {
			percent := float64(result.Processed) / float64(total) * 100
			update := ProgressUpdate{
				Processed: ptrInt(result.Processed),
				Created:   ptrInt(result.Created),
				Updated:   ptrInt(result.Updated),
				Errors:    ptrInt(result.Errors),
				Percent:   ptrFloat(percent),
			}
			if result.Processed > 0 {
				elapsed := time.Since(start)
				remaining := total - result.Processed
				eta := int(float64(remaining) * elapsed.Seconds() / float64(result.Processed))
				update.ETASeconds = ptrInt(eta)
			}
			sink.Publish(ctx, update)
		}

		if stop {
			result.LimitReached = true
			break
		}

		// Throttle between chunks, not a correctness requirement
		if end < total && p.chunkPause > 0 {
			timer := time.NewTimer(p.chunkPause)
			select {
			case <-ctx.Done():
				timer.Stop()
				return result, ctx.Err()
			case <-timer.C:
			}
		}
	}

	return result, nil
}
