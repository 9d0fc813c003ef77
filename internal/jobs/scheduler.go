package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"picturecoupon/internal/queue"
)

// CleanupSpec runs the orphan sweep daily at 03:00 (cron with seconds).
const CleanupSpec = "0 0 3 * * *"

type enqueuer interface {
	Enqueue(ctx context.Context, values map[string]any) error
}

type Scheduler struct {
	cron  *cron.Cron
	queue enqueuer
	log   zerolog.Logger
}

func NewScheduler(tasks enqueuer, log zerolog.Logger) *Scheduler {
	c := cron.New(cron.WithSeconds())
	return &Scheduler{
		cron:  c,
		queue: tasks,
		log:   log,
	}
}

func (s *Scheduler) Start() error {
	if s.queue == nil {
		return nil
	}

	if _, err := s.cron.AddFunc(CleanupSpec, s.enqueueCleanup); err != nil {
		return err
	}

	s.cron.Start()
	return nil
}

// Stop halts the cron and waits up to five seconds for running jobs.
func (s *Scheduler) Stop() {
	select {
	case <-s.cron.Stop().Done():
	case <-time.After(5 * time.Second):
		s.log.Warn().Msg("scheduler stop timed out")
	}
}

func (s *Scheduler) enqueueCleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.queue.Enqueue(ctx, map[string]any{
		"type": queue.TaskCleanup,
	}); err != nil {
		s.log.Error().Err(err).Msg("enqueue cleanup failed")
		return
	}
	s.log.Info().Msg("cleanup enqueued")
}
