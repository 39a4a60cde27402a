package syncrun

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalogsync/internal/connectors/woocommerce"
	"catalogsync/internal/database"
	"catalogsync/internal/events"
	"catalogsync/internal/logger"
	"catalogsync/internal/mirror"
	"catalogsync/internal/models"
	"catalogsync/internal/reconcile"
	"catalogsync/internal/runlock"
)

type staticFetcher struct {
	products []woocommerce.Product
	err      error
}

func (f staticFetcher) FetchAll(ctx context.Context) ([]woocommerce.Product, error) {
	return f.products, f.err
}

type recordingPublisher struct {
	mu       sync.Mutex
	requests []*events.SyncRequest
	events   []*events.SyncEvent
}

func (p *recordingPublisher) PublishSyncRequest(ctx context.Context, req *events.SyncRequest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	return nil
}

func (p *recordingPublisher) PublishSyncEvent(ctx context.Context, ev *events.SyncEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

type fixture struct {
	service   *Service
	db        *database.Database
	locker    *runlock.MemoryLocker
	publisher *recordingPublisher
	fetcher   *staticFetcher
	project   *models.Project
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db, err := database.New("sqlite://:memory:", database.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := &fixture{
		db:        db,
		locker:    runlock.NewMemoryLocker(),
		publisher: &recordingPublisher{},
		fetcher: &staticFetcher{products: []woocommerce.Product{
			{ID: 1, Name: "A", RegularPrice: "100.000"},
			{ID: 2, Name: "B", RegularPrice: "200.000"},
		}},
	}
	f.service = NewService(db.DB, mirror.NewGormStore(db.DB), f.locker, f.publisher, logger.NewNop(), Options{
		Engine: reconcile.Options{MaxAttempts: 1},
		NewFetcher: func(p *models.Project) (reconcile.CatalogFetcher, error) {
			return f.fetcher, nil
		},
	})

	f.project = &models.Project{Name: "Shop", StoreURL: "https://shop.example"}
	require.NoError(t, db.DB.Create(f.project).Error)
	return f
}

func (f *fixture) reload(t *testing.T) *models.Project {
	t.Helper()
	p, err := f.service.Project(context.Background(), f.project.ID)
	require.NoError(t, err)
	return p
}

func TestRun_SyncMissingRecordsOutcome(t *testing.T) {
	f := setup(t)

	res, err := f.service.Run(context.Background(), f.project.ID, reconcile.OpSyncMissing)
	require.NoError(t, err)

	report := res.(*reconcile.SyncReport)
	assert.Equal(t, 2, report.NewlyAdded)

	p := f.reload(t)
	assert.Equal(t, models.ProjectStatusActive, p.Status)
	require.NotNil(t, p.LastSyncAt)
	assert.Equal(t, "Added 2 of 2 missing products", p.LastSyncStatus)

	require.Len(t, f.publisher.events, 1)
	ev := f.publisher.events[0]
	assert.Equal(t, reconcile.OpSyncMissing, ev.Operation)
	assert.True(t, ev.Success)
	assert.Equal(t, f.project.ID, ev.ProjectID)
}

func TestRun_CheckDoesNotTouchProject(t *testing.T) {
	f := setup(t)

	res, err := f.service.Run(context.Background(), f.project.ID, reconcile.OpCheck)
	require.NoError(t, err)
	assert.Equal(t, 2, res.(*reconcile.CheckReport).MissingCount)

	p := f.reload(t)
	assert.Nil(t, p.LastSyncAt)
	assert.Equal(t, models.ProjectStatusActive, p.Status)
}

func TestRun_FailedRunMarksProject(t *testing.T) {
	f := setup(t)
	f.fetcher.err = errors.New("fetch page 1: 401")

	res, err := f.service.Run(context.Background(), f.project.ID, reconcile.OpComprehensive)
	require.NoError(t, err)
	assert.False(t, res.(*reconcile.ComprehensiveSyncResult).Success)

	p := f.reload(t)
	assert.Equal(t, models.ProjectStatusError, p.Status)
	assert.False(t, f.publisher.events[0].Success)
}

func TestRun_SerializesPerScope(t *testing.T) {
	f := setup(t)
	scope := f.project.Scope("products")

	lease, err := f.locker.Acquire(context.Background(), scope.String(), time.Minute)
	require.NoError(t, err)

	_, err = f.service.Run(context.Background(), f.project.ID, reconcile.OpComprehensive)
	assert.ErrorIs(t, err, runlock.ErrLocked)
	assert.Empty(t, f.publisher.events)

	require.NoError(t, lease.Release(context.Background()))
	_, err = f.service.Run(context.Background(), f.project.ID, reconcile.OpComprehensive)
	require.NoError(t, err)

	_, err = f.locker.Acquire(context.Background(), scope.String(), time.Minute)
	assert.NoError(t, err, "lock is released after the run")
}

func TestRun_Errors(t *testing.T) {
	f := setup(t)

	_, err := f.service.Run(context.Background(), f.project.ID, reconcile.Operation("reindex"))
	assert.ErrorIs(t, err, ErrUnknownOperation)

	_, err = f.service.Run(context.Background(), f.project.ID, reconcile.OpBulkUpload)
	assert.ErrorIs(t, err, ErrUnknownOperation)

	_, err = f.service.Run(context.Background(), "missing", reconcile.OpCheck)
	assert.ErrorIs(t, err, ErrProjectNotFound)
}

func TestBulkUpload(t *testing.T) {
	f := setup(t)

	res, err := f.service.BulkUpload(context.Background(), f.project.ID, []models.Product{
		{ExternalID: "10", Title: "Uploaded"},
		{Title: "No id"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Uploaded)

	keys, err := f.service.Store().ListKeys(context.Background(), f.project.Scope("products"))
	require.NoError(t, err)
	assert.Len(t, keys, 2)
}

func TestEnqueue(t *testing.T) {
	f := setup(t)

	req, err := f.service.Enqueue(context.Background(), f.project.ID, reconcile.OpStockOnly, "api")
	require.NoError(t, err)
	assert.Equal(t, events.TypeSyncRequested, req.Type)
	require.Len(t, f.publisher.requests, 1)
	assert.Equal(t, f.project.ID, f.publisher.requests[0].ProjectID)

	_, err = f.service.Enqueue(context.Background(), "missing", reconcile.OpStockOnly, "api")
	assert.ErrorIs(t, err, ErrProjectNotFound)
}

func TestEnqueueWithoutBroker(t *testing.T) {
	f := setup(t)
	svc := NewService(f.db.DB, f.service.Store(), nil, nil, nil, Options{})

	_, err := svc.Enqueue(context.Background(), f.project.ID, reconcile.OpCheck, "api")
	assert.ErrorIs(t, err, events.ErrNoBroker)
}

// slowFetcher signals when a run has started and holds it until released.
type slowFetcher struct {
	started chan struct{}
	release chan struct{}
}

func (f slowFetcher) FetchAll(ctx context.Context) ([]woocommerce.Product, error) {
	close(f.started)
	<-f.release
	return nil, nil
}

func TestRun_LockRenewedDuringLongRun(t *testing.T) {
	f := setup(t)
	ttl := 60 * time.Millisecond
	slow := slowFetcher{started: make(chan struct{}), release: make(chan struct{})}
	service := NewService(f.db.DB, mirror.NewGormStore(f.db.DB), f.locker, f.publisher, logger.NewNop(), Options{
		LockTTL: ttl,
		NewFetcher: func(p *models.Project) (reconcile.CatalogFetcher, error) {
			return slow, nil
		},
	})

	done := make(chan error, 1)
	go func() {
		_, err := service.Run(context.Background(), f.project.ID, reconcile.OpCheck)
		done <- err
	}()

	<-slow.started
	time.Sleep(4 * ttl)

	scope := f.project.Scope("products")
	_, err := f.locker.Acquire(context.Background(), scope.String(), ttl)
	assert.ErrorIs(t, err, runlock.ErrLocked, "run outliving its TTL still holds the scope")

	close(slow.release)
	require.NoError(t, <-done)

	lease, err := f.locker.Acquire(context.Background(), scope.String(), ttl)
	require.NoError(t, err, "lock is released after the run")
	require.NoError(t, lease.Release(context.Background()))
}
