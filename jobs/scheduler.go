package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"conductor/consul"
)

// Sweep is a periodic task the scheduler runs while it holds
// leadership.
type Sweep struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler runs recurring sweeps (stuck-job recovery, in-flight CI
// and store polling) on exactly one instance, elected through a
// Consul lock.
type Scheduler struct {
	consul *consul.Client
	key    string
	sweeps []Sweep
	log    zerolog.Logger
}

func NewScheduler(c *consul.Client, key string, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		consul: c,
		key:    key,
		log:    log.With().Str("component", "scheduler").Logger(),
	}
}

func (s *Scheduler) Add(sweep Sweep) {
	s.sweeps = append(s.sweeps, sweep)
}

// Run campaigns for leadership and runs the sweeps while leader. On
// losing the lock it drops back to campaigning.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		lock, err := s.consul.NewLock(s.key)
		if err != nil {
			return err
		}
		lost, err := lock.Acquire(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log.Warn().Err(err).Msg("lock acquire failed, retrying")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(5 * time.Second):
			}
			continue
		}

		s.log.Info().Msg("became scheduler leader")
		s.lead(ctx, lost)
		lock.Release()
		s.log.Info().Msg("lost scheduler leadership")
	}
}

func (s *Scheduler) lead(ctx context.Context, lost <-chan struct{}) {
	leadCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-lost
		cancel()
	}()

	done := make(chan struct{})
	for _, sweep := range s.sweeps {
		go s.runSweep(leadCtx, sweep)
	}
	go func() {
		<-leadCtx.Done()
		close(done)
	}()
	<-done
}

func (s *Scheduler) runSweep(ctx context.Context, sweep Sweep) {
	ticker := time.NewTicker(sweep.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if err := sweep.Run(ctx); err != nil {
			s.log.Error().Err(err).Str("sweep", sweep.Name).Msg("sweep failed")
		}
	}
}
