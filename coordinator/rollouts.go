package coordinator

import (
	"context"

	"github.com/google/uuid"

	"conductor/model"
	"conductor/provider"
)

// StartRollout opens a staged rollout for an approved submission and
// immediately advances to the first configured percentage.
func (c *Coordinator) StartRollout(ctx context.Context, submissionID string, stages []float64) Result[*model.StoreRollout] {
	sub, err := c.db.GetSubmission(ctx, submissionID)
	if cerr := classify(err, "load submission"); cerr != nil {
		return Fail[*model.StoreRollout](cerr)
	}
	if sub.Status != model.SubmissionApproved {
		return Fail[*model.StoreRollout](Errf(CodeValidation, "submission %s is %s, not approved", submissionID, sub.Status))
	}

	rollout, err := model.NewStoreRollout(uuid.New().String(), sub, stages, c.now())
	if err != nil {
		return Fail[*model.StoreRollout](WrapErr(CodeValidation, err, "invalid rollout config"))
	}
	if err := c.db.InsertRollout(ctx, rollout); err != nil {
		return Fail[*model.StoreRollout](WrapErr(CodeInternal, err, "persist rollout"))
	}

	res := c.transitionRollout(ctx, rollout.ID, func(r *model.StoreRollout) ([]model.Effect, error) {
		return r.Start()
	})
	if res.Err != nil {
		return res
	}
	return c.AdvanceRollout(ctx, rollout.ID)
}

// AdvanceRollout moves the rollout one stage up. The provider
// round-trip happens inside the row lock: local stage state only moves
// after the store accepted the new percentage, and two concurrent
// advances serialize into exactly one stage change.
func (c *Coordinator) AdvanceRollout(ctx context.Context, rolloutID string) Result[*model.StoreRollout] {
	rollout, err := c.db.GetRollout(ctx, rolloutID)
	if cerr := classify(err, "load rollout"); cerr != nil {
		return Fail[*model.StoreRollout](cerr)
	}
	sub, err := c.db.GetSubmission(ctx, rollout.SubmissionID)
	if cerr := classify(err, "load submission"); cerr != nil {
		return Fail[*model.StoreRollout](cerr)
	}
	dist, cerr := c.distributor(rollout.Provider)
	if cerr != nil {
		return Fail[*model.StoreRollout](cerr)
	}

	// Pin the stage observed before taking the lock: a racing advance
	// that commits first makes this call a no-op instead of stacking a
	// second stage change on top.
	expected := rollout.CurrentStage
	res := c.transitionRollout(ctx, rolloutID, func(r *model.StoreRollout) ([]model.Effect, error) {
		if r.CurrentStage != expected {
			return nil, nil // concurrent advance already took this stage
		}
		if !r.MayAdvance() {
			return nil, nil
		}
		pct, ok := r.NextPercentage()
		if !ok {
			return nil, nil
		}
		if err := dist.RolloutRelease(ctx, sub.Channel, sub.BuildNumber, sub.Version, pct); err != nil {
			return r.FailAdvance(err.Error())
		}
		return r.AdvanceStage(c.now())
	})
	if res.Err != nil {
		return res
	}
	if res.Value != nil && (res.Value.Status == model.RolloutCompleted || res.Value.Status == model.RolloutFullyReleased) {
		if cerr := c.releaseSubmittedDeployment(ctx, sub.DeploymentRunID); cerr != nil {
			return Fail[*model.StoreRollout](cerr)
		}
	}
	return res
}

// RetryRolloutAdvance clears a failed stage change and advances again.
func (c *Coordinator) RetryRolloutAdvance(ctx context.Context, rolloutID string) Result[*model.StoreRollout] {
	res := c.transitionRollout(ctx, rolloutID, func(r *model.StoreRollout) ([]model.Effect, error) {
		return r.RetryAdvance()
	})
	if res.Err != nil {
		return res
	}
	return c.AdvanceRollout(ctx, rolloutID)
}

// PauseRollout suspends a live rollout on providers that support it.
func (c *Coordinator) PauseRollout(ctx context.Context, rolloutID string) Result[*model.StoreRollout] {
	rollout, sub, dist, cerr := c.rolloutContext(ctx, rolloutID)
	if cerr != nil {
		return Fail[*model.StoreRollout](cerr)
	}
	if !rollout.MayPause() {
		return Fail[*model.StoreRollout](Errf(CodeInvalidTransition, "rollout cannot pause from %s on %s", rollout.Status, rollout.Provider))
	}
	return c.transitionRollout(ctx, rolloutID, func(r *model.StoreRollout) ([]model.Effect, error) {
		if !r.MayPause() {
			return nil, nil
		}
		if err := dist.HaltRelease(ctx, sub.Channel, sub.BuildNumber, sub.Version); err != nil {
			return nil, err
		}
		return r.Pause()
	})
}

// ResumeRollout reinstates a paused rollout at its current percentage.
func (c *Coordinator) ResumeRollout(ctx context.Context, rolloutID string) Result[*model.StoreRollout] {
	rollout, sub, dist, cerr := c.rolloutContext(ctx, rolloutID)
	if cerr != nil {
		return Fail[*model.StoreRollout](cerr)
	}
	return c.transitionRollout(ctx, rolloutID, func(r *model.StoreRollout) ([]model.Effect, error) {
		if !r.MayResume() {
			return nil, nil
		}
		if err := dist.RolloutRelease(ctx, sub.Channel, sub.BuildNumber, sub.Version, rollout.LastRolloutPercentage); err != nil {
			return nil, err
		}
		return r.Resume()
	})
}

// HaltRollout stops distribution permanently for this submission.
func (c *Coordinator) HaltRollout(ctx context.Context, rolloutID string) Result[*model.StoreRollout] {
	_, sub, dist, cerr := c.rolloutContext(ctx, rolloutID)
	if cerr != nil {
		return Fail[*model.StoreRollout](cerr)
	}
	return c.transitionRollout(ctx, rolloutID, func(r *model.StoreRollout) ([]model.Effect, error) {
		if !r.MayHalt() {
			return nil, nil
		}
		if err := dist.HaltRelease(ctx, sub.Channel, sub.BuildNumber, sub.Version); err != nil {
			return nil, err
		}
		return r.Halt()
	})
}

// ReleaseRolloutFully jumps straight to 100% and completes the
// deployment chain.
func (c *Coordinator) ReleaseRolloutFully(ctx context.Context, rolloutID string) Result[*model.StoreRollout] {
	_, sub, dist, cerr := c.rolloutContext(ctx, rolloutID)
	if cerr != nil {
		return Fail[*model.StoreRollout](cerr)
	}
	res := c.transitionRollout(ctx, rolloutID, func(r *model.StoreRollout) ([]model.Effect, error) {
		if !r.MayReleaseFully() {
			return nil, nil
		}
		if err := dist.CompleteRelease(ctx, sub.Channel, sub.BuildNumber, sub.Version); err != nil {
			return nil, err
		}
		return r.ReleaseFully(c.now())
	})
	if res.Err != nil {
		return res
	}
	if res.Value != nil && res.Value.Status == model.RolloutFullyReleased {
		if cerr := c.releaseSubmittedDeployment(ctx, sub.DeploymentRunID); cerr != nil {
			return Fail[*model.StoreRollout](cerr)
		}
	}
	return res
}

// SyncRollout reconciles local rollout state with what the store
// reports, handling out-of-band changes made by a human or the store
// itself. Only providers that expose authoritative state support it.
func (c *Coordinator) SyncRollout(ctx context.Context, rolloutID string) Result[*model.StoreRollout] {
	rollout, sub, dist, cerr := c.rolloutContext(ctx, rolloutID)
	if cerr != nil {
		return Fail[*model.StoreRollout](cerr)
	}
	if !rollout.Provider.Syncable() {
		return Fail[*model.StoreRollout](Errf(CodeValidation, "%s rollouts cannot sync from the store", rollout.Provider))
	}

	res := c.transitionRollout(ctx, rolloutID, func(r *model.StoreRollout) ([]model.Effect, error) {
		return r.BeginSync()
	})
	if res.Err != nil {
		return res
	}

	info, err := dist.FindRelease(ctx, sub.BuildNumber)
	if err != nil {
		// Resolve back to where we were; the store gave no answer.
		pre := model.RolloutStatus(res.Value.PreSyncStatus)
		fallback := c.transitionRollout(ctx, rolloutID, func(r *model.StoreRollout) ([]model.Effect, error) {
			return r.ResolveSync(pre, r.LastRolloutPercentage, c.now())
		})
		if fallback.Err != nil {
			return fallback
		}
		return Fail[*model.StoreRollout](ProviderErr(err, "fetch store rollout state"))
	}

	resolved := rolloutStatusFromStore(info.Status, model.RolloutStatus(res.Value.PreSyncStatus))
	return c.transitionRollout(ctx, rolloutID, func(r *model.StoreRollout) ([]model.Effect, error) {
		return r.ResolveSync(resolved, info.UserFraction, c.now())
	})
}

// rolloutStatusFromStore maps the store's view onto a rollout status,
// falling back to the pre-sync status when the store reports a state
// the engine has no stricter knowledge about.
func rolloutStatusFromStore(s provider.ReleaseStatus, pre model.RolloutStatus) model.RolloutStatus {
	switch s {
	case provider.ReleaseHalted:
		return model.RolloutHalted
	case provider.ReleasePaused:
		return model.RolloutPaused
	case provider.ReleaseFullyLive:
		return model.RolloutFullyReleased
	case provider.ReleaseLive:
		return model.RolloutStarted
	default:
		return pre
	}
}

func (c *Coordinator) rolloutContext(ctx context.Context, rolloutID string) (*model.StoreRollout, *model.StoreSubmission, provider.StoreDistributor, *Error) {
	rollout, err := c.db.GetRollout(ctx, rolloutID)
	if cerr := classify(err, "load rollout"); cerr != nil {
		return nil, nil, nil, cerr
	}
	sub, err := c.db.GetSubmission(ctx, rollout.SubmissionID)
	if cerr := classify(err, "load submission"); cerr != nil {
		return nil, nil, nil, cerr
	}
	dist, cerr := c.distributor(rollout.Provider)
	if cerr != nil {
		return nil, nil, nil, cerr
	}
	return rollout, sub, dist, nil
}

func (c *Coordinator) transitionRollout(ctx context.Context, id string, fn func(*model.StoreRollout) ([]model.Effect, error)) Result[*model.StoreRollout] {
	var out *model.StoreRollout
	effects, err := c.db.TransitionRollout(ctx, id, func(r *model.StoreRollout) ([]model.Effect, error) {
		effs, err := fn(r)
		out = r
		return effs, err
	})
	if cerr := classify(err, "transition rollout"); cerr != nil {
		return Fail[*model.StoreRollout](cerr)
	}
	c.applyEffects(ctx, effects)
	return Ok(out)
}
