package coordinator

import (
	"context"
	"fmt"
	"time"

	"conductor/jobs"
	"conductor/model"
)

// handler adapts a coordinator operation into a job handler: a
// retryable Result error becomes a retryable job error so the queue
// re-schedules with backoff, everything else fails the job.
func handler[T any](op func(ctx context.Context, id string) Result[T]) jobs.Handler {
	return func(ctx context.Context, job *jobs.Job) error {
		id, ok := job.Args[model.ArgID]
		if !ok {
			return fmt.Errorf("job %s carries no entity id", job.Name)
		}
		res := op(ctx, id)
		if res.Err == nil {
			return nil
		}
		if res.Err.Retryable {
			return jobs.Retryable(res.Err)
		}
		return res.Err
	}
}

// RegisterJobHandlers wires every background job onto its coordinator
// operation.
func (c *Coordinator) RegisterJobHandlers(w *jobs.Worker) {
	w.Register(model.JobCITrigger, handler(c.TriggerCI))
	w.Register(model.JobCIPoll, handler(c.PollCI))
	w.Register(model.JobFindBuild, handler(c.LocateBuild))
	w.Register(model.JobStartDeployment, handler(c.StartFirstDeployment))
	w.Register(model.JobDeploymentUpload, handler(c.UploadDeployment))
	w.Register(model.JobReleaseFinalize, handler(c.FinalizeRelease))
	w.Register(model.JobSubmissionPrepare, handler(c.PrepareSubmission))
	w.Register(model.JobSubmissionPoll, handler(c.PollSubmission))
	w.Register(model.JobRolloutSync, handler(c.SyncRollout))
	w.Register(model.JobQueueApply, handler(func(ctx context.Context, id string) Result[*model.BuildQueue] {
		return c.ApplyBuildQueue(ctx, id, true)
	}))
}

// RegisterSweeps installs the leader-only recurring work: crash
// recovery for stuck jobs and re-driving entities whose poll jobs were
// lost.
func (c *Coordinator) RegisterSweeps(s *jobs.Scheduler, visibilityTimeout time.Duration) {
	s.Add(jobs.Sweep{
		Name:     "requeue_stuck_jobs",
		Interval: time.Minute,
		Run: func(ctx context.Context) error {
			n, err := c.queue.RequeueStuck(ctx, visibilityTimeout)
			if err != nil {
				return err
			}
			if n > 0 {
				c.log.Warn().Int64("count", n).Msg("requeued stuck jobs")
			}
			return nil
		},
	})
	s.Add(jobs.Sweep{
		Name:     "poll_inflight_ci",
		Interval: 2 * time.Minute,
		Run: func(ctx context.Context) error {
			runs, err := c.db.InFlightStepRuns(ctx)
			if err != nil {
				return err
			}
			for _, run := range runs {
				if time.Since(run.UpdatedAt) < 2*time.Minute {
					continue // a scheduled poll is still covering it
				}
				if err := c.queue.Enqueue(ctx, model.JobCIPoll, map[string]string{model.ArgID: run.ID}, 0); err != nil {
					return err
				}
			}
			return nil
		},
	})
	s.Add(jobs.Sweep{
		Name:     "poll_open_submissions",
		Interval: 5 * time.Minute,
		Run: func(ctx context.Context) error {
			subs, err := c.db.SubmissionsInReview(ctx)
			if err != nil {
				return err
			}
			for _, sub := range subs {
				if err := c.queue.Enqueue(ctx, model.JobSubmissionPoll, map[string]string{model.ArgID: sub.ID}, 0); err != nil {
					return err
				}
			}
			return nil
		},
	})
	s.Add(jobs.Sweep{
		Name:     "sync_live_rollouts",
		Interval: 15 * time.Minute,
		Run: func(ctx context.Context) error {
			rollouts, err := c.db.SyncableRollouts(ctx)
			if err != nil {
				return err
			}
			for _, r := range rollouts {
				if err := c.queue.Enqueue(ctx, model.JobRolloutSync, map[string]string{model.ArgID: r.ID}, 0); err != nil {
					return err
				}
			}
			return nil
		},
	})
}
