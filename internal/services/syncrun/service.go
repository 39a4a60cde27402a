// Package syncrun runs reconciliation operations on behalf of stored projects.
package syncrun

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"catalogsync/internal/connectors/woocommerce"
	"catalogsync/internal/events"
	"catalogsync/internal/logger"
	"catalogsync/internal/metrics"
	"catalogsync/internal/mirror"
	"catalogsync/internal/models"
	"catalogsync/internal/reconcile"
	"catalogsync/internal/runlock"
)

var (
	ErrUnknownOperation = errors.New("syncrun: unknown operation")
	ErrProjectNotFound  = errors.New("syncrun: project not found")
)

// FetcherFactory builds the remote catalog client for one project.
type FetcherFactory func(p *models.Project) (reconcile.CatalogFetcher, error)

type Options struct {
	// DefaultTable is used for projects that do not name their own products table.
	DefaultTable string
	Engine       reconcile.Options
	LockTTL      time.Duration
	WooPageDelay time.Duration
	WooTimeout   time.Duration
	// NewFetcher overrides the WooCommerce client, mostly for tests.
	NewFetcher FetcherFactory
}

type Service struct {
	db         *gorm.DB
	store      mirror.Store
	locker     runlock.Locker
	publisher  events.Publisher
	logger     *logger.Logger
	opts       Options
	newFetcher FetcherFactory
}

// tableEnsurer is implemented by stores that can create a project's table on demand.
type tableEnsurer interface {
	EnsureTable(ctx context.Context, scope models.Scope) error
}

func NewService(db *gorm.DB, store mirror.Store, locker runlock.Locker, publisher events.Publisher, log *logger.Logger, opts Options) *Service {
	if opts.DefaultTable == "" {
		opts.DefaultTable = "products"
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 30 * time.Minute
	}
	if locker == nil {
		locker = runlock.NewMemoryLocker()
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if log == nil {
		log = logger.NewNop()
	}

	s := &Service{
		db:        db,
		store:     store,
		locker:    locker,
		publisher: publisher,
		logger:    log,
		opts:      opts,
	}
	s.newFetcher = opts.NewFetcher
	if s.newFetcher == nil {
		s.newFetcher = s.wooFetcher
	}
	return s
}

func (s *Service) wooFetcher(p *models.Project) (reconcile.CatalogFetcher, error) {
	client, err := woocommerce.NewClient(woocommerce.Options{
		StoreURL:       p.StoreURL,
		ConsumerKey:    p.ConsumerKey,
		ConsumerSecret: p.ConsumerSecret,
		PageDelay:      s.opts.WooPageDelay,
		Timeout:        s.opts.WooTimeout,
	}, s.logger.With("project", p.ID))
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Project loads a stored project.
func (s *Service) Project(ctx context.Context, id string) (*models.Project, error) {
	var p models.Project
	if err := s.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("load project %s: %w", id, err)
	}
	return &p, nil
}

// Scope resolves the mirror slice of a project, creating its table when the store can.
func (s *Service) Scope(ctx context.Context, p *models.Project) (models.Scope, error) {
	scope := p.Scope(s.opts.DefaultTable)
	if e, ok := s.store.(tableEnsurer); ok {
		if err := e.EnsureTable(ctx, scope); err != nil {
			return scope, err
		}
	}
	return scope, nil
}

// Store exposes the mirror for the review endpoints.
func (s *Service) Store() mirror.Store {
	return s.store
}

func (s *Service) engine(p *models.Project) (*reconcile.Engine, error) {
	fetcher, err := s.newFetcher(p)
	if err != nil {
		return nil, fmt.Errorf("create catalog client: %w", err)
	}
	return reconcile.NewEngine(fetcher, s.store, s.logger.With("project", p.ID), s.opts.Engine), nil
}

// Run executes one operation against a project while holding its scope lock. Concurrent
// runs for the same scope fail with runlock.ErrLocked.
func (s *Service) Run(ctx context.Context, projectID string, op reconcile.Operation) (interface{}, error) {
	if !op.Valid() || op == reconcile.OpBulkUpload {
		return nil, ErrUnknownOperation
	}

	return s.withProject(ctx, projectID, op, func(ctx context.Context, engine *reconcile.Engine, scope models.Scope) (interface{}, error) {
		switch op {
		case reconcile.OpCheck:
			return engine.CheckOnly(ctx, scope)
		case reconcile.OpSyncMissing:
			return engine.SyncMissing(ctx, scope)
		case reconcile.OpStockOnly:
			return engine.UpdateStockOnly(ctx, scope)
		case reconcile.OpAllFields:
			return engine.UpdateAllFields(ctx, scope)
		case reconcile.OpComprehensive:
			return engine.ComprehensiveSync(ctx, scope)
		}
		return nil, ErrUnknownOperation
	})
}

// BulkUpload stores already normalized records for a project under its scope lock.
func (s *Service) BulkUpload(ctx context.Context, projectID string, rows []models.Product) (*reconcile.BulkUploadResult, error) {
	res, err := s.withProject(ctx, projectID, reconcile.OpBulkUpload, func(ctx context.Context, engine *reconcile.Engine, scope models.Scope) (interface{}, error) {
		return engine.BulkUpload(ctx, scope, rows)
	})
	if err != nil {
		return nil, err
	}
	return res.(*reconcile.BulkUploadResult), nil
}

// Enqueue hands a run to the worker through Kafka instead of running it inline.
func (s *Service) Enqueue(ctx context.Context, projectID string, op reconcile.Operation, requestedBy string) (*events.SyncRequest, error) {
	if !op.Valid() || op == reconcile.OpBulkUpload {
		return nil, ErrUnknownOperation
	}
	if _, err := s.Project(ctx, projectID); err != nil {
		return nil, err
	}

	req := events.NewSyncRequest(projectID, op, requestedBy)
	if err := s.publisher.PublishSyncRequest(ctx, req); err != nil {
		return nil, err
	}
	s.logger.Info("Queued %s for project %s (request %s)", op, projectID, req.ID)
	return req, nil
}

type runFunc func(ctx context.Context, engine *reconcile.Engine, scope models.Scope) (interface{}, error)

func (s *Service) withProject(ctx context.Context, projectID string, op reconcile.Operation, run runFunc) (interface{}, error) {
	project, err := s.Project(ctx, projectID)
	if err != nil {
		return nil, err
	}
	scope, err := s.Scope(ctx, project)
	if err != nil {
		return nil, err
	}

	lease, err := s.locker.Acquire(ctx, scope.String(), s.opts.LockTTL)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := lease.Release(context.Background()); err != nil {
			s.logger.Warn("Failed to release lock for %s: %v", scope, err)
		}
	}()
	stopRenewal := runlock.KeepAlive(ctx, lease, s.opts.LockTTL, func(err error) {
		s.logger.Error("Lost lock for %s while running %s: %v", scope, op, err)
	})
	defer stopRenewal()

	engine, err := s.engine(project)
	if err != nil {
		return nil, err
	}

	writes := op != reconcile.OpCheck
	if writes {
		s.setStatus(ctx, project.ID, models.ProjectStatusSyncing)
	}

	metrics.SyncRunsInFlight.Inc()
	started := time.Now()
	s.logger.Info("Starting %s for project %s (%s)", op, project.ID, scope)

	result, runErr := run(ctx, engine, scope)

	metrics.SyncRunsInFlight.Dec()
	success, message := outcome(result, runErr)
	metrics.RecordRun(string(op), success, time.Since(started).Seconds())
	s.logger.Info("Finished %s for project %s in %s: %s", op, project.ID, time.Since(started).Round(time.Millisecond), message)

	if writes {
		s.finish(project.ID, success, message)
	}

	ev := &events.SyncEvent{
		ProjectID:  project.ID,
		Operation:  op,
		Success:    success,
		Message:    message,
		Result:     result,
		StartedAt:  started.UTC(),
		FinishedAt: time.Now().UTC(),
	}
	if err := s.publisher.PublishSyncEvent(context.Background(), ev); err != nil {
		s.logger.Warn("Failed to publish sync event for project %s: %v", project.ID, err)
	}

	if runErr != nil {
		return nil, runErr
	}
	return result, nil
}

func (s *Service) setStatus(ctx context.Context, projectID string, status models.ProjectStatus) {
	err := s.db.WithContext(ctx).Model(&models.Project{}).Where("id = ?", projectID).
		Update("status", status).Error
	if err != nil {
		s.logger.Warn("Failed to set status of project %s: %v", projectID, err)
	}
}

// finish records the outcome even when the run's context was cancelled.
func (s *Service) finish(projectID string, success bool, message string) {
	status := models.ProjectStatusActive
	if !success {
		status = models.ProjectStatusError
	}
	now := time.Now().UTC()

	err := s.db.Model(&models.Project{}).Where("id = ?", projectID).Updates(map[string]interface{}{
		"status":           status,
		"last_sync_at":     now,
		"last_sync_status": message,
	}).Error
	if err != nil {
		s.logger.Warn("Failed to record sync outcome of project %s: %v", projectID, err)
	}
}

// outcome summarizes any engine result as success flag and message.
func outcome(result interface{}, err error) (bool, string) {
	if err != nil {
		return false, err.Error()
	}
	switch r := result.(type) {
	case *reconcile.CheckReport:
		return true, fmt.Sprintf("%d of %d remote products missing locally", r.MissingCount, r.RemoteCount)
	case *reconcile.SyncReport:
		return len(r.Errors) == 0, fmt.Sprintf("Added %d of %d missing products", r.NewlyAdded, r.MissingProducts)
	case *reconcile.StockUpdateResult:
		return r.Success, r.Message
	case *reconcile.FieldUpdateResult:
		return r.Success, r.Message
	case *reconcile.ComprehensiveSyncResult:
		return r.Success, r.Message
	case *reconcile.BulkUploadResult:
		return r.Success, r.Message
	}
	return false, "no result"
}
