// Package scheduler runs periodic comprehensive syncs for projects with a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"catalogsync/internal/logger"
	"catalogsync/internal/models"
	"catalogsync/internal/reconcile"
	"catalogsync/internal/runlock"
)

// Runner is the part of the sync service the scheduler needs.
type Runner interface {
	Run(ctx context.Context, projectID string, op reconcile.Operation) (interface{}, error)
}

type entry struct {
	spec string
	id   cron.EntryID
}

type Scheduler struct {
	db         *gorm.DB
	runner     Runner
	cron       *cron.Cron
	logger     *logger.Logger
	runTimeout time.Duration

	mu      sync.Mutex
	entries map[string]entry
}

func New(db *gorm.DB, runner Runner, logger *logger.Logger) *Scheduler {
	return &Scheduler{
		db:         db,
		runner:     runner,
		cron:       cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger:     logger,
		runTimeout: 2 * time.Hour,
		entries:    make(map[string]entry),
	}
}

// Start loads the schedules, picks up schedule changes every five minutes and starts the cron.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.Reload(ctx); err != nil {
		return err
	}

	_, err := s.cron.AddFunc("@every 5m", func() {
		if err := s.Reload(context.Background()); err != nil {
			s.logger.Error("Failed to reload sync schedules: %v", err)
		}
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("Scheduler started with %d scheduled projects", s.Len())
	return nil
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("Scheduler stopped")
}

// Len is the number of scheduled projects.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Reload syncs cron entries with the projects table. Inactive projects and projects
// without a schedule are unscheduled; invalid expressions are logged and skipped.
func (s *Scheduler) Reload(ctx context.Context) error {
	var projects []models.Project
	err := s.db.WithContext(ctx).
		Where("sync_schedule <> '' AND status <> ?", models.ProjectStatusInactive).
		Find(&projects).Error
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := make(map[string]string, len(projects))
	for _, p := range projects {
		wanted[p.ID] = p.SyncSchedule
	}

	for id, e := range s.entries {
		if spec, ok := wanted[id]; !ok || spec != e.spec {
			s.cron.Remove(e.id)
			delete(s.entries, id)
		}
	}

	for id, spec := range wanted {
		if _, ok := s.entries[id]; ok {
			continue
		}
		projectID := id
		entryID, err := s.cron.AddFunc(spec, func() { s.runProject(projectID) })
		if err != nil {
			s.logger.Warn("Invalid sync schedule %q for project %s: %v", spec, id, err)
			continue
		}
		s.entries[id] = entry{spec: spec, id: entryID}
		s.logger.Debug("Scheduled project %s at %q", id, spec)
	}

	return nil
}

func (s *Scheduler) runProject(projectID string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.runTimeout)
	defer cancel()

	s.logger.Info("Scheduled comprehensive sync for project %s", projectID)
	_, err := s.runner.Run(ctx, projectID, reconcile.OpComprehensive)
	switch {
	case errors.Is(err, runlock.ErrLocked):
		s.logger.Info("Skipped scheduled sync for project %s: a run is already in progress", projectID)
	case err != nil:
		s.logger.Error("Scheduled sync for project %s failed: %v", projectID, err)
	}
}
