package coordinator

import (
	"context"
	"errors"

	"conductor/model"
	"conductor/provider"
)

// PrepareSubmission runs the store-side preparation for a created
// submission and moves it along: reviewed providers get submitted for
// review, unreviewed ones are approved as soon as preparation lands.
func (c *Coordinator) PrepareSubmission(ctx context.Context, submissionID string) Result[*model.StoreSubmission] {
	sub, err := c.db.GetSubmission(ctx, submissionID)
	if cerr := classify(err, "load submission"); cerr != nil {
		return Fail[*model.StoreSubmission](cerr)
	}
	if sub.Status != model.SubmissionCreated {
		return Ok(sub)
	}
	dist, cerr := c.distributor(sub.Provider)
	if cerr != nil {
		return Fail[*model.StoreSubmission](cerr)
	}

	res := c.transitionSubmission(ctx, submissionID, func(s *model.StoreSubmission) ([]model.Effect, error) {
		if !s.MayStartPrepare() {
			return nil, nil
		}
		return s.StartPrepare()
	})
	if res.Err != nil {
		return res
	}

	info, err := dist.PrepareRelease(ctx, sub.Channel, sub.BuildNumber, sub.Version)
	if err != nil {
		if errors.Is(err, provider.ErrNotYetAvailable) {
			return Fail[*model.StoreSubmission](ProviderErr(err, "store still preparing"))
		}
		return c.failSubmission(ctx, submissionID, model.FailureUnknown, err.Error())
	}

	res = c.transitionSubmission(ctx, submissionID, func(s *model.StoreSubmission) ([]model.Effect, error) {
		return s.MarkPrepared(string(info.Status), c.now())
	})
	if res.Err != nil {
		return res
	}

	if !sub.Provider.Reviewed() {
		// No review phase: the prepared build is immediately live-able.
		res = c.transitionSubmission(ctx, submissionID, func(s *model.StoreSubmission) ([]model.Effect, error) {
			return s.Approve(string(info.Status), c.now())
		})
		if res.Err != nil {
			return res
		}
		if cerr := c.submissionApproved(ctx, submissionID); cerr != nil {
			return Fail[*model.StoreSubmission](cerr)
		}
		return res
	}

	info, err = dist.SubmitRelease(ctx, sub.Channel, sub.BuildNumber, sub.Version)
	if err != nil {
		if errors.Is(err, provider.ErrNotYetAvailable) {
			return Fail[*model.StoreSubmission](ProviderErr(err, "store not ready for submission"))
		}
		return c.failSubmission(ctx, submissionID, model.FailureInvalidBinary, err.Error())
	}
	return c.transitionSubmission(ctx, submissionID, func(s *model.StoreSubmission) ([]model.Effect, error) {
		return s.Submit(c.now())
	})
}

// PollSubmission reconciles an in-review submission against the store.
// A still-pending review re-schedules the poll; terminal store answers
// move the state machine. Terminal local state makes this a no-op.
func (c *Coordinator) PollSubmission(ctx context.Context, submissionID string) Result[*model.StoreSubmission] {
	sub, err := c.db.GetSubmission(ctx, submissionID)
	if cerr := classify(err, "load submission"); cerr != nil {
		return Fail[*model.StoreSubmission](cerr)
	}
	if sub.Terminal() {
		return Ok(sub)
	}
	dist, cerr := c.distributor(sub.Provider)
	if cerr != nil {
		return Fail[*model.StoreSubmission](cerr)
	}

	info, err := dist.FindRelease(ctx, sub.BuildNumber)
	if err != nil {
		if errors.Is(err, provider.ErrNotYetAvailable) || errors.Is(err, provider.ErrNotFound) {
			return Fail[*model.StoreSubmission](ProviderErr(err, "review still pending"))
		}
		return Fail[*model.StoreSubmission](ProviderErr(err, "find store release"))
	}

	switch info.Status {
	case provider.ReleaseApproved, provider.ReleaseLive, provider.ReleaseFullyLive:
		res := c.transitionSubmission(ctx, submissionID, func(s *model.StoreSubmission) ([]model.Effect, error) {
			if s.Terminal() {
				return nil, nil
			}
			return s.Approve(string(info.Status), c.now())
		})
		if res.Err != nil {
			return res
		}
		if cerr := c.submissionApproved(ctx, submissionID); cerr != nil {
			return Fail[*model.StoreSubmission](cerr)
		}
		return res
	case provider.ReleaseRejected:
		reason := info.FailureReason
		if reason == "" {
			reason = model.FailureReviewRejected
		}
		return c.transitionSubmission(ctx, submissionID, func(s *model.StoreSubmission) ([]model.Effect, error) {
			if s.Terminal() {
				return nil, nil
			}
			return s.Reject(string(info.Status), reason, c.now())
		})
	default:
		// Still in review; the retryable signal re-schedules us.
		return Fail[*model.StoreSubmission](ProviderErr(provider.ErrNotYetAvailable, "review in progress"))
	}
}

// RetrySubmission restarts a failed submission from scratch. Operator
// action after the failure reason has been addressed.
func (c *Coordinator) RetrySubmission(ctx context.Context, submissionID string) Result[*model.StoreSubmission] {
	return c.transitionSubmission(ctx, submissionID, func(s *model.StoreSubmission) ([]model.Effect, error) {
		return s.Retry()
	})
}

// submissionApproved continues the deployment: staged store channels
// open a rollout, everything else goes fully live at once.
func (c *Coordinator) submissionApproved(ctx context.Context, submissionID string) *Error {
	sub, err := c.db.GetSubmission(ctx, submissionID)
	if cerr := classify(err, "load submission"); cerr != nil {
		return cerr
	}
	drun, err := c.db.GetDeploymentRun(ctx, sub.DeploymentRunID)
	if cerr := classify(err, "load deployment run"); cerr != nil {
		return cerr
	}
	_, step, _, _, _, cerr := c.stepRunContext(ctx, drun.StepRunID)
	if cerr != nil {
		return cerr
	}
	d := step.DeploymentByID(drun.DeploymentID)
	if d == nil {
		return Errf(CodeInternal, "deployment %s not on step %s", drun.DeploymentID, step.ID)
	}

	if d.StagedRollout() {
		res := c.StartRollout(ctx, submissionID, d.RolloutStages)
		return res.Err
	}

	dist, cerr := c.distributor(sub.Provider)
	if cerr != nil {
		return cerr
	}
	if err := dist.CompleteRelease(ctx, sub.Channel, sub.BuildNumber, sub.Version); err != nil {
		return ProviderErr(err, "complete store release")
	}
	return c.releaseSubmittedDeployment(ctx, sub.DeploymentRunID)
}

// releaseSubmittedDeployment marks the store deployment run released
// and continues the deployment chain.
func (c *Coordinator) releaseSubmittedDeployment(ctx context.Context, deploymentRunID string) *Error {
	res := c.transitionDeploymentRun(ctx, deploymentRunID, func(dr *model.DeploymentRun) ([]model.Effect, error) {
		if !dr.MayRelease() {
			return nil, nil
		}
		return dr.Release(c.now())
	})
	if res.Err != nil {
		return res.Err
	}
	return c.deploymentReleased(ctx, deploymentRunID)
}

func (c *Coordinator) failSubmission(ctx context.Context, submissionID, reason, detail string) Result[*model.StoreSubmission] {
	c.log.Error().Str("submission", submissionID).Str("reason", reason).Str("detail", detail).Msg("submission failed")
	return c.transitionSubmission(ctx, submissionID, func(s *model.StoreSubmission) ([]model.Effect, error) {
		if s.Terminal() {
			return nil, nil
		}
		return s.Fail(reason)
	})
}

func (c *Coordinator) transitionSubmission(ctx context.Context, id string, fn func(*model.StoreSubmission) ([]model.Effect, error)) Result[*model.StoreSubmission] {
	var out *model.StoreSubmission
	effects, err := c.db.TransitionSubmission(ctx, id, func(s *model.StoreSubmission) ([]model.Effect, error) {
		effs, err := fn(s)
		out = s
		return effs, err
	})
	if cerr := classify(err, "transition submission"); cerr != nil {
		return Fail[*model.StoreSubmission](cerr)
	}
	c.applyEffects(ctx, effects)
	return Ok(out)
}
