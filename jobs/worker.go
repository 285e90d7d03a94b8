package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Handler executes one claimed job. Returning a RetryableError
// reschedules; any other error fails the job once attempts run out.
type Handler func(ctx context.Context, job *Job) error

type Worker struct {
	queue    *Queue
	handlers map[string]Handler
	backoff  Backoff
	poll     time.Duration
	count    int
	log      zerolog.Logger
}

func NewWorker(queue *Queue, count int, backoff Backoff, log zerolog.Logger) *Worker {
	if count <= 0 {
		count = 4
	}
	if backoff == nil {
		backoff = ExponentialBackoff(5*time.Second, 10*time.Minute)
	}
	return &Worker{
		queue:    queue,
		handlers: make(map[string]Handler),
		backoff:  backoff,
		poll:     time.Second,
		count:    count,
		log:      log.With().Str("component", "worker").Logger(),
	}
}

func (w *Worker) Register(name string, h Handler) {
	w.handlers[name] = h
}

// Run claims and executes jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < w.count; i++ {
		g.Go(func() error { return w.loop(ctx) })
	}
	return g.Wait()
}

func (w *Worker) loop(ctx context.Context) error {
	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		for {
			job, err := w.queue.Claim(ctx)
			if err != nil {
				w.log.Error().Err(err).Msg("claim failed")
				break
			}
			if job == nil {
				break
			}
			w.execute(ctx, job)
		}
	}
}

func (w *Worker) execute(ctx context.Context, job *Job) {
	log := w.log.With().Str("job", job.Name).Str("id", job.ID).Int("attempt", job.Attempts).Logger()

	h, ok := w.handlers[job.Name]
	if !ok {
		w.queue.MarkFailed(ctx, job.ID, fmt.Sprintf("no handler for %q", job.Name))
		log.Error().Msg("unknown job")
		return
	}

	err := h(ctx, job)
	switch {
	case err == nil:
		if err := w.queue.MarkDone(ctx, job.ID); err != nil {
			log.Error().Err(err).Msg("mark done failed")
		}
	case IsRetryable(err) && job.Attempts < job.MaxAttempts:
		delay := w.backoff(job.Attempts)
		log.Warn().Err(err).Dur("retry_in", delay).Msg("job retrying")
		if err := w.queue.Reschedule(ctx, job.ID, delay, err.Error()); err != nil {
			log.Error().Err(err).Msg("reschedule failed")
		}
	default:
		log.Error().Err(err).Msg("job failed")
		if err := w.queue.MarkFailed(ctx, job.ID, err.Error()); err != nil {
			log.Error().Err(err).Msg("mark failed failed")
		}
	}
}
