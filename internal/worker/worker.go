package worker

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"

	"catalogsync/internal/config"
	"catalogsync/internal/events"
	"catalogsync/internal/logger"
	"catalogsync/internal/worker/processors"
)

// MessageReader is the subset of *kafka.Reader the worker uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// defaultMaxAttempts bounds how often one message is processed before it is committed anyway.
const defaultMaxAttempts = 3

type Worker struct {
	logger      *logger.Logger
	reader      MessageReader
	processor   *processors.EventProcessor
	retryDelay  time.Duration
	maxAttempts int
}

func New(cfg *config.Config, runner processors.Runner, publisher events.Publisher, logger *logger.Logger) *Worker {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers(),
		GroupID:        "catalogsync-worker",
		Topic:          cfg.KafkaSyncRequestTopic,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		CommitInterval: 0,
	})

	return NewWithReader(reader, runner, publisher, logger)
}

// NewWithReader builds a worker around an existing reader.
func NewWithReader(reader MessageReader, runner processors.Runner, publisher events.Publisher, logger *logger.Logger) *Worker {
	return &Worker{
		logger:      logger,
		reader:      reader,
		processor:   processors.NewEventProcessor(runner, publisher, logger),
		retryDelay:  5 * time.Second,
		maxAttempts: defaultMaxAttempts,
	}
}

// Start consumes sync requests until ctx is cancelled. A message is committed once it was
// processed. One that keeps failing is tried maxAttempts times, then reported as a
// failed run and committed so the messages behind it are not blocked.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("Worker started, listening for sync requests...")

	for {
		message, err := w.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				w.logger.Info("Worker stopped")
				return
			}
			w.logger.Error("Failed to read message: %v", err)
			if !w.wait(ctx) {
				return
			}
			continue
		}

		w.logger.Debug("Received message: %s", string(message.Value))

		for attempt := 1; ; attempt++ {
			err := w.processor.Process(ctx, message.Value)
			if err == nil {
				break
			}
			w.logger.Error("Failed to process message at offset %d (attempt %d/%d): %v", message.Offset, attempt, w.maxAttempts, err)
			if attempt >= w.maxAttempts {
				w.processor.Abandon(ctx, message.Value, err)
				break
			}
			if !w.wait(ctx) {
				return
			}
		}

		if err := w.reader.CommitMessages(ctx, message); err != nil {
			w.logger.Error("Failed to commit offset %d: %v", message.Offset, err)
		}
	}
}

func (w *Worker) wait(ctx context.Context) bool {
	t := time.NewTimer(w.retryDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")
	if err := w.reader.Close(); err != nil {
		w.logger.Error("Failed to close reader: %v", err)
	}
}
