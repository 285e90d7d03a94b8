package coordinator

import (
	"context"
	"time"

	"github.com/google/uuid"

	"conductor/model"
)

// CommitPayload is the normalized shape webhook ingestion hands the
// engine. Vendor wire formats never reach this layer.
type CommitPayload struct {
	Hash      string
	Author    string
	Message   string
	Branch    string
	Timestamp time.Time
}

// IngestCommit routes a pushed commit to the release tracking its
// branch. With commit batching enabled the commit lands in the active
// build queue; otherwise it triggers the pipeline immediately. A push
// to a branch no live release tracks is ignored.
func (c *Coordinator) IngestCommit(ctx context.Context, p CommitPayload) Result[*model.Commit] {
	rel, err := c.db.FindReleaseByBranch(ctx, p.Branch)
	if cerr := classify(err, "find release by branch"); cerr != nil {
		return Fail[*model.Commit](cerr)
	}
	if rel == nil || rel.Status != model.ReleaseOnTrack {
		return Ok[*model.Commit](nil)
	}
	train, err := c.db.GetTrain(ctx, rel.TrainID)
	if cerr := classify(err, "load train"); cerr != nil {
		return Fail[*model.Commit](cerr)
	}

	commit := &model.Commit{
		ID:        uuid.New().String(),
		ReleaseID: rel.ID,
		Hash:      p.Hash,
		Author:    p.Author,
		Message:   p.Message,
		Branch:    p.Branch,
		Timestamp: p.Timestamp,
	}

	if !train.BuildQueueEnabled {
		if err := c.db.InsertCommit(ctx, commit); err != nil {
			return Fail[*model.Commit](WrapErr(CodeInternal, err, "persist commit"))
		}
		now := c.now()
		if err := c.db.MarkCommitApplied(ctx, commit.ID); err != nil {
			return Fail[*model.Commit](WrapErr(CodeInternal, err, "mark commit applied"))
		}
		commit.AppliedAt = &now
		if cerr := c.triggerStepRuns(ctx, rel, commit.ID); cerr != nil {
			return Fail[*model.Commit](cerr)
		}
		return Ok(commit)
	}

	queue, err := c.db.ActiveBuildQueue(ctx, rel.ID)
	if cerr := classify(err, "find active build queue"); cerr != nil {
		return Fail[*model.Commit](cerr)
	}
	if queue == nil {
		var cerr *Error
		queue, cerr = c.openBuildQueue(ctx, train, rel.ID)
		if cerr != nil {
			return Fail[*model.Commit](cerr)
		}
	}
	commit.BuildQueueID = &queue.ID
	if err := c.db.InsertCommit(ctx, commit); err != nil {
		return Fail[*model.Commit](WrapErr(CodeInternal, err, "persist commit"))
	}

	count, err := c.db.CountQueueCommits(ctx, queue.ID)
	if cerr := classify(err, "count queue commits"); cerr != nil {
		return Fail[*model.Commit](cerr)
	}
	if queue.ShouldApply(count, train.BuildQueueSize) {
		if res := c.ApplyBuildQueue(ctx, queue.ID, false); res.Err != nil {
			return Fail[*model.Commit](res.Err)
		}
	}
	return Ok(commit)
}

// openBuildQueue creates the release's next active batching window and
// schedules the force-apply that guarantees no commit waits past the
// train's configured window.
func (c *Coordinator) openBuildQueue(ctx context.Context, train *model.Train, releaseID string) (*model.BuildQueue, *Error) {
	queue := &model.BuildQueue{
		ID:        uuid.New().String(),
		ReleaseID: releaseID,
		Active:    true,
		CreatedAt: c.now(),
	}
	if err := c.db.InsertBuildQueue(ctx, queue); err != nil {
		return nil, WrapErr(CodeInternal, err, "persist build queue")
	}
	wait := train.BuildQueueWait
	if wait <= 0 {
		wait = time.Hour
	}
	if err := c.queue.Enqueue(ctx, model.JobQueueApply, map[string]string{model.ArgID: queue.ID}, wait); err != nil {
		return nil, WrapErr(CodeInternal, err, "schedule queue apply")
	}
	return queue, nil
}

// ApplyBuildQueue drains a batching window: deactivate the queue,
// trigger the pipeline for its newest commit, and open the next window.
// force applies below threshold (the scheduled kickoff path); without
// force the threshold is re-checked under the row lock. Applying an
// already-applied queue is a no-op.
func (c *Coordinator) ApplyBuildQueue(ctx context.Context, queueID string, force bool) Result[*model.BuildQueue] {
	queue, err := c.db.GetBuildQueue(ctx, queueID)
	if cerr := classify(err, "load build queue"); cerr != nil {
		return Fail[*model.BuildQueue](cerr)
	}
	count, err := c.db.CountQueueCommits(ctx, queueID)
	if cerr := classify(err, "count queue commits"); cerr != nil {
		return Fail[*model.BuildQueue](cerr)
	}
	if count == 0 {
		// An empty window never applies, it just keeps waiting.
		if force {
			if err := c.queue.Enqueue(ctx, model.JobQueueApply, map[string]string{model.ArgID: queueID}, time.Hour); err != nil {
				return Fail[*model.BuildQueue](WrapErr(CodeInternal, err, "reschedule queue apply"))
			}
		}
		return Ok(queue)
	}

	rel, err := c.db.GetRelease(ctx, queue.ReleaseID)
	if cerr := classify(err, "load release"); cerr != nil {
		return Fail[*model.BuildQueue](cerr)
	}
	train, err := c.db.GetTrain(ctx, rel.TrainID)
	if cerr := classify(err, "load train"); cerr != nil {
		return Fail[*model.BuildQueue](cerr)
	}

	var applied *model.BuildQueue
	effects, err := c.db.TransitionBuildQueue(ctx, queueID, func(q *model.BuildQueue) ([]model.Effect, error) {
		if !q.Active {
			return nil, nil // concurrent writer already applied it
		}
		if !force && !q.ShouldApply(count, train.BuildQueueSize) {
			return nil, nil
		}
		effs, err := q.Apply(c.now())
		applied = q
		return effs, err
	})
	if cerr := classify(err, "apply build queue"); cerr != nil {
		return Fail[*model.BuildQueue](cerr)
	}
	c.applyEffects(ctx, effects)
	if applied == nil {
		return Ok(queue)
	}

	commits, err := c.db.QueueCommits(ctx, queueID)
	if cerr := classify(err, "list queue commits"); cerr != nil {
		return Fail[*model.BuildQueue](cerr)
	}
	for _, commit := range commits {
		if err := c.db.MarkCommitApplied(ctx, commit.ID); err != nil {
			return Fail[*model.BuildQueue](WrapErr(CodeInternal, err, "mark commit applied"))
		}
	}
	if len(commits) > 0 {
		// Build the newest commit of the batch; it is what the platform
		// must ship, and what LatestCommit reports once applied.
		head := commits[len(commits)-1]
		if cerr := c.triggerStepRuns(ctx, rel, head.ID); cerr != nil {
			return Fail[*model.BuildQueue](cerr)
		}
	}

	// The release immediately opens the next batching window.
	if rel.Status == model.ReleaseOnTrack {
		if _, cerr := c.openBuildQueue(ctx, train, rel.ID); cerr != nil {
			return Fail[*model.BuildQueue](cerr)
		}
	}
	return Ok(applied)
}
