package processors

import (
	"context"
	"errors"
	"fmt"
	"time"

	"catalogsync/internal/events"
	"catalogsync/internal/logger"
	"catalogsync/internal/reconcile"
	"catalogsync/internal/runlock"
	"catalogsync/internal/services/syncrun"
)

// Runner executes one sync operation for a project.
type Runner interface {
	Run(ctx context.Context, projectID string, op reconcile.Operation) (interface{}, error)
}

type EventProcessor struct {
	runner    Runner
	publisher events.Publisher
	logger    *logger.Logger
}

func NewEventProcessor(runner Runner, publisher events.Publisher, logger *logger.Logger) *EventProcessor {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &EventProcessor{
		runner:    runner,
		publisher: publisher,
		logger:    logger,
	}
}

// Process runs the operation a sync request asks for. A request that can never succeed
// (bad payload, unknown project) is dropped with an error log and no error is returned,
// so the consumer commits past it. Requests hitting a busy scope are dropped too: the
// run in flight already covers them.
func (ep *EventProcessor) Process(ctx context.Context, value []byte) error {
	req, err := events.DecodeSyncRequest(value)
	if err != nil {
		ep.logger.Error("Dropping invalid sync request: %v", err)
		return nil
	}

	ep.logger.Debug("Processing sync request %s: %s for project %s", req.ID, req.Operation, req.ProjectID)

	_, err = ep.runner.Run(ctx, req.ProjectID, req.Operation)
	switch {
	case err == nil:
		ep.logger.Info("Sync request %s processed", req.ID)
		return nil
	case errors.Is(err, runlock.ErrLocked):
		ep.logger.Info("Sync request %s skipped: project %s is already syncing", req.ID, req.ProjectID)
		return nil
	case errors.Is(err, syncrun.ErrProjectNotFound), errors.Is(err, syncrun.ErrUnknownOperation):
		ep.logger.Error("Dropping sync request %s: %v", req.ID, err)
		return nil
	}
	return fmt.Errorf("sync request %s: %w", req.ID, err)
}

// Abandon gives up on a request that kept failing and announces it as a failed run.
func (ep *EventProcessor) Abandon(ctx context.Context, value []byte, cause error) {
	req, err := events.DecodeSyncRequest(value)
	if err != nil {
		return
	}

	ep.logger.Error("Giving up on sync request %s for project %s: %v", req.ID, req.ProjectID, cause)

	now := time.Now().UTC()
	ev := &events.SyncEvent{
		ProjectID:  req.ProjectID,
		Operation:  req.Operation,
		Success:    false,
		Message:    cause.Error(),
		StartedAt:  now,
		FinishedAt: now,
	}
	if err := ep.publisher.PublishSyncEvent(ctx, ev); err != nil {
		ep.logger.Warn("Failed to publish abandoned sync request %s: %v", req.ID, err)
	}
}
