package reconcile

import (
	"context"
	"fmt"
	"time"

	"catalogsync/internal/logger"
	"catalogsync/internal/metrics"
)

// Writer applies a write operation to a list in bounded chunks, retrying each chunk
// with linear backoff and carrying on past chunks that keep failing.
type Writer struct {
	ChunkSize   int
	MaxAttempts int
	// Backoff is multiplied by the attempt number before each retry.
	Backoff time.Duration
	// Pause is slept between chunks whatever their outcome.
	Pause  time.Duration
	Logger *logger.Logger

	progress func(done, total int)
	sleep    func(ctx context.Context, d time.Duration) error
}

// BatchReport aggregates chunk outcomes. Succeeded+Failed always equals the input length.
type BatchReport struct {
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}

func (w Writer) withProgress(fn func(done, total int)) Writer {
	w.progress = fn
	return w
}

func (w Writer) normalized() Writer {
	if w.ChunkSize <= 0 {
		w.ChunkSize = 50
	}
	if w.MaxAttempts <= 0 {
		w.MaxAttempts = 1
	}
	if w.Logger == nil {
		w.Logger = logger.NewNop()
	}
	if w.sleep == nil {
		w.sleep = sleepContext
	}
	return w
}

// ApplyChunked runs op over items chunk by chunk. label names the phase in error messages.
// Cancelling ctx stops the run between chunks or during a backoff; everything not yet
// written is counted as failed.
func ApplyChunked[T any](ctx context.Context, w Writer, label string, items []T, op func(ctx context.Context, chunk []T) error) BatchReport {
	w = w.normalized()
	var report BatchReport
	total := len(items)

	for index, start := 0, 0; start < total; index, start = index+1, start+w.ChunkSize {
		end := start + w.ChunkSize
		if end > total {
			end = total
		}

		if err := ctx.Err(); err != nil {
			report.fail(total-start, fmt.Sprintf("%s: cancelled before chunk %d (items %d-%d): %v", label, index+1, start+1, total, err))
			break
		}

		if index > 0 {
			if err := w.sleep(ctx, w.Pause); err != nil {
				report.fail(total-start, fmt.Sprintf("%s: cancelled before chunk %d (items %d-%d): %v", label, index+1, start+1, total, err))
				break
			}
		}

		err := attemptChunk(ctx, w, label, index, items[start:end], op)
		if err != nil {
			metrics.ChunkFailuresTotal.Inc()
			w.Logger.Error("%s chunk %d (items %d-%d) failed: %v", label, index+1, start+1, end, err)
			report.fail(end-start, fmt.Sprintf("%s chunk %d (items %d-%d): %v", label, index+1, start+1, end, err))
		} else {
			report.Succeeded += end - start
		}

		if w.progress != nil {
			w.progress(end, total)
		}
	}

	return report
}

// attemptChunk tries one chunk up to MaxAttempts times and returns the last error.
func attemptChunk[T any](ctx context.Context, w Writer, label string, index int, chunk []T, op func(context.Context, []T) error) error {
	var err error
	for attempt := 1; attempt <= w.MaxAttempts; attempt++ {
		if err = op(ctx, chunk); err == nil {
			return nil
		}
		if attempt == w.MaxAttempts {
			break
		}

		metrics.ChunkRetriesTotal.Inc()
		w.Logger.Warn("%s chunk %d attempt %d/%d failed, retrying: %v", label, index+1, attempt, w.MaxAttempts, err)
		if serr := w.sleep(ctx, time.Duration(attempt)*w.Backoff); serr != nil {
			return fmt.Errorf("%w (retry cancelled: %v)", err, serr)
		}
	}
	if w.MaxAttempts > 1 {
		return fmt.Errorf("after %d attempts: %w", w.MaxAttempts, err)
	}
	return err
}

func (r *BatchReport) fail(n int, msg string) {
	r.Failed += n
	r.Errors = append(r.Errors, msg)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
