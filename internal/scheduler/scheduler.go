package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler runs housekeeping on cron specs with a seconds field,
// e.g. "0 * * * * *" for every minute.
type Scheduler struct {
	cron    *cron.Cron
	logger  *zap.Logger
	baseCtx context.Context
}

func New(logger *zap.Logger, baseCtx context.Context) *Scheduler {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &Scheduler{
		cron:    cron.New(cron.WithSeconds()),
		logger:  logger,
		baseCtx: baseCtx,
	}
}

// Add schedules job under name. An empty spec leaves the job disabled.
func (s *Scheduler) Add(name, spec string, job func(context.Context) error) error {
	if spec == "" {
		s.logger.Info("Scheduled job disabled", zap.String("job", name))
		return nil
	}
	if _, err := s.cron.AddFunc(spec, func() { s.run(name, job) }); err != nil {
		return fmt.Errorf("schedule %s (%q): %w", name, spec, err)
	}
	return nil
}

func (s *Scheduler) run(name string, job func(context.Context) error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Scheduled job panicked", zap.String("job", name), zap.Any("panic", r))
		}
	}()

	if err := job(s.baseCtx); err != nil {
		s.logger.Error("Scheduled job failed", zap.String("job", name), zap.Error(err))
		return
	}
	s.logger.Debug("Scheduled job finished", zap.String("job", name), zap.Duration("took", time.Since(start)))
}

// Len is the number of scheduled entries.
func (s *Scheduler) Len() int { return len(s.cron.Entries()) }

func (s *Scheduler) Start() {
	s.logger.Info("Scheduler started", zap.Int("jobs", s.Len()))
	s.cron.Start()
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Scheduler stopped")
}
