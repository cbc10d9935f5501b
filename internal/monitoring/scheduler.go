package monitoring

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/isdelr/warbler/internal/models"
	"github.com/isdelr/warbler/internal/services"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Scheduler runs periodic housekeeping jobs on cron specs.
type Scheduler struct {
	cron      *cron.Cron
	eventSvc  services.EventServiceProvider
	retention time.Duration
	now       func() time.Time
	done      chan struct{}
	stopOnce  sync.Once
}

// NewScheduler creates a scheduler that prunes events older than retention
// on pruneSpec (standard cron syntax or a descriptor such as "@daily").
func NewScheduler(eventSvc services.EventServiceProvider, retention time.Duration, pruneSpec string) (*Scheduler, error) {
	s := &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(cronLogger{}),
			cron.SkipIfStillRunning(cronLogger{}),
		)),
		eventSvc:  eventSvc,
		retention: retention,
		now:       time.Now,
		done:      make(chan struct{}),
	}
	if _, err := s.cron.AddFunc(pruneSpec, s.pruneEvents); err != nil {
		return nil, fmt.Errorf("invalid prune schedule %q: %w", pruneSpec, err)
	}
	return s, nil
}

// Every registers an additional job.
func (s *Scheduler) Every(spec, name string, job func()) error {
	_, err := s.cron.AddFunc(spec, func() {
		log.Debug().Str("job", name).Msg("Scheduler: Running job")
		job()
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q for job %s: %w", spec, name, err)
	}
	return nil
}

// ScheduleBackups snapshots the database on spec and keeps the newest keep
// backups.
func (s *Scheduler) ScheduleBackups(spec string, backups services.BackupServiceProvider, keep int) error {
	return s.Every(spec, "database.backup", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		backup, err := backups.CreateBackup(ctx, "Scheduled Backup")
		if err != nil {
			log.Error().Err(err).Msg("Scheduler: Failed to create backup")
			if err := s.eventSvc.CreateEvent(ctx, "backup.create.fail", models.LevelError,
				fmt.Sprintf("Scheduled backup failed: %v", err), nil); err != nil {
				log.Warn().Err(err).Msg("Scheduler: Failed to record backup failure")
			}
			return
		}
		log.Info().Str("path", backup.Path).Int64("size", backup.Size).Msg("Scheduler: Backup created")

		if removed, err := backups.PruneBackups(ctx, keep); err != nil {
			log.Error().Err(err).Msg("Scheduler: Failed to prune backups")
		} else if removed > 0 {
			log.Info().Int("removed", removed).Msg("Scheduler: Pruned old backups")
		}
	})
}

// Run starts the cron loop and blocks until Stop is called.
func (s *Scheduler) Run() {
	log.Info().Msg("Starting background scheduler...")
	s.cron.Start()

	// Run once immediately on start
	s.pruneEvents()

	<-s.done
	log.Info().Msg("Stopping background scheduler.")
	<-s.cron.Stop().Done()
}

// Stop halts the scheduler. It is safe to call more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.done) })
}

func (s *Scheduler) pruneEvents() {
	if s.retention <= 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cutoff := s.now().Add(-s.retention)
	n, err := s.eventSvc.PruneEvents(ctx, cutoff)
	if err != nil {
		log.Error().Err(err).Msg("Scheduler: Failed to prune events")
		return
	}
	EventsPruned.Add(float64(n))
	if n == 0 {
		return
	}
	log.Info().Int64("removed", n).Time("before", cutoff).Msg("Scheduler: Pruned old events")
	msg := fmt.Sprintf("Pruned %d events older than %s.", n, s.retention)
	if err := s.eventSvc.CreateEvent(ctx, "system.prune", models.LevelInfo, msg, nil); err != nil {
		log.Warn().Err(err).Msg("Scheduler: Failed to record prune event")
	}
}

// cronLogger routes robfig/cron's logging through zerolog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
