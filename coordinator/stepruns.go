package coordinator

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"conductor/model"
	"conductor/provider"
)

// triggerStepRuns creates a pipeline run for the first step of every
// on-track platform run against the given commit. A (step, commit)
// pair that already has a run is left alone.
func (c *Coordinator) triggerStepRuns(ctx context.Context, rel *model.Release, commitID string) *Error {
	runs, err := c.db.ListPlatformRuns(ctx, rel.ID)
	if cerr := classify(err, "list platform runs"); cerr != nil {
		return cerr
	}
	for _, run := range runs {
		if run.Status != model.PlatformRunOnTrack {
			continue
		}
		if run.ProdStarted {
			// The platform already shipped to production; this commit
			// goes out as a fix on top of the shipped version.
			if cerr := c.bumpPlatformForFix(ctx, rel, &run); cerr != nil {
				return cerr
			}
		}
		steps, err := c.db.ListSteps(ctx, rel.TrainID, run.Platform)
		if cerr := classify(err, "list steps"); cerr != nil {
			return cerr
		}
		if len(steps) == 0 {
			continue
		}
		if cerr := c.startStepRun(ctx, &run, steps[0], commitID); cerr != nil {
			return cerr
		}
	}
	return nil
}

// bumpPlatformForFix diverges the platform run onto the next fix
// version. The release's own version follows the highest platform
// version, which is how a hotfix release becomes visible.
func (c *Coordinator) bumpPlatformForFix(ctx context.Context, rel *model.Release, run *model.ReleasePlatformRun) *Error {
	train, err := c.db.GetTrain(ctx, rel.TrainID)
	if cerr := classify(err, "load train"); cerr != nil {
		return cerr
	}
	next, err := train.NextFixVersion(run.ReleaseVersion)
	if err != nil {
		return WrapErr(CodeInternal, err, "compute fix version")
	}

	effects, terr := c.db.TransitionPlatformRun(ctx, run.ID, func(p *model.ReleasePlatformRun) ([]model.Effect, error) {
		if p.ReleaseVersion != run.ReleaseVersion {
			return nil, nil // a concurrent commit already bumped it
		}
		if err := p.BumpVersion(next); err != nil {
			return nil, err
		}
		return []model.Effect{
			model.Stamp(model.EntityPlatformRun, p.ID, "version_bumped", model.SeverityNotice,
				string(p.Platform)+" moved to fix version "+next),
		}, nil
	})
	if cerr := classify(terr, "bump platform version"); cerr != nil {
		return cerr
	}
	c.applyEffects(ctx, effects)
	run.ReleaseVersion = next

	_, terr = c.db.TransitionRelease(ctx, rel.ID, func(r *model.Release) ([]model.Effect, error) {
		cur, err := model.ParseVersion(r.Version)
		if err != nil {
			return nil, err
		}
		bumped, err := model.ParseVersion(next)
		if err != nil {
			return nil, err
		}
		if cur.Less(bumped) {
			r.Version = next
		}
		return nil, nil
	})
	if cerr := classify(terr, "record release fix version"); cerr != nil {
		return cerr
	}
	return nil
}

// startStepRun creates and triggers a run of one step for one commit,
// skipping quietly when the pair already ran.
func (c *Coordinator) startStepRun(ctx context.Context, run *model.ReleasePlatformRun, step model.Step, commitID string) *Error {
	existing, err := c.db.ListStepRuns(ctx, run.ID)
	if cerr := classify(err, "list step runs"); cerr != nil {
		return cerr
	}
	for _, sr := range existing {
		if sr.StepID == step.ID && sr.CommitID == commitID {
			return nil
		}
	}

	now := c.now()
	sr := &model.StepRun{
		ID:            uuid.New().String(),
		PlatformRunID: run.ID,
		StepID:        step.ID,
		CommitID:      commitID,
		Status:        model.StepRunOnTrack,
		ScheduledAt:   now,
		UpdatedAt:     now,
	}
	if err := c.db.InsertStepRun(ctx, sr); err != nil {
		return WrapErr(CodeInternal, err, "persist step run")
	}
	if err := c.queue.Enqueue(ctx, model.JobCITrigger, map[string]string{model.ArgID: sr.ID}, 0); err != nil {
		return WrapErr(CodeInternal, err, "schedule CI trigger")
	}
	c.log.Info().Str("step_run", sr.ID).Str("step", step.Name).Str("commit", commitID).Msg("step run scheduled")
	return nil
}

// stepRunContext loads the ownership chain a step-run job needs.
func (c *Coordinator) stepRunContext(ctx context.Context, stepRunID string) (*model.StepRun, *model.Step, *model.ReleasePlatformRun, *model.Release, *model.Train, *Error) {
	run, err := c.db.GetStepRun(ctx, stepRunID)
	if cerr := classify(err, "load step run"); cerr != nil {
		return nil, nil, nil, nil, nil, cerr
	}
	step, err := c.db.GetStep(ctx, run.StepID)
	if cerr := classify(err, "load step"); cerr != nil {
		return nil, nil, nil, nil, nil, cerr
	}
	pr, err := c.db.GetPlatformRun(ctx, run.PlatformRunID)
	if cerr := classify(err, "load platform run"); cerr != nil {
		return nil, nil, nil, nil, nil, cerr
	}
	rel, err := c.db.GetRelease(ctx, pr.ReleaseID)
	if cerr := classify(err, "load release"); cerr != nil {
		return nil, nil, nil, nil, nil, cerr
	}
	train, err := c.db.GetTrain(ctx, rel.TrainID)
	if cerr := classify(err, "load train"); cerr != nil {
		return nil, nil, nil, nil, nil, cerr
	}
	return run, step, pr, rel, train, nil
}

// TriggerCI dispatches the step's workflow on the train's CI provider.
// Provider failures never escape: transient ones come back retryable
// for the job layer, a missing workflow marks the run unavailable.
func (c *Coordinator) TriggerCI(ctx context.Context, stepRunID string) Result[*model.StepRun] {
	run, step, pr, rel, train, cerr := c.stepRunContext(ctx, stepRunID)
	if cerr != nil {
		return Fail[*model.StepRun](cerr)
	}
	if run.Status != model.StepRunOnTrack {
		return Ok(run) // already triggered by a concurrent writer
	}
	ci, cerr := c.ci(train.CIProvider)
	if cerr != nil {
		return Fail[*model.StepRun](cerr)
	}
	commit, err := c.db.GetCommit(ctx, run.CommitID)
	if cerr := classify(err, "load commit"); cerr != nil {
		return Fail[*model.StepRun](cerr)
	}

	inputs := map[string]string{
		"version_name": pr.ReleaseVersion,
		"build_number": fmt.Sprintf("%d", c.now().Unix()),
	}
	wf, err := ci.TriggerWorkflowRun(ctx, step.CIWorkflow, rel.BranchName, inputs, commit.Hash)
	if err != nil {
		if errors.Is(err, provider.ErrNotFound) {
			return c.transitionStepRun(ctx, stepRunID, func(s *model.StepRun) ([]model.Effect, error) {
				return s.CIUnavailable("workflow " + step.CIWorkflow + " not found")
			})
		}
		return Fail[*model.StepRun](ProviderErr(err, "trigger workflow"))
	}

	return c.transitionStepRun(ctx, stepRunID, func(s *model.StepRun) ([]model.Effect, error) {
		if s.Status != model.StepRunOnTrack {
			return nil, nil // lost the race, drop the duplicate trigger
		}
		return s.TriggerCI(wf.Ref, wf.Link, wf.Number)
	})
}

// PollCI checks an in-flight workflow and applies the observed status.
// Invoked by the scheduled poll job; the webhook path lands in the
// same applyCIStatus.
func (c *Coordinator) PollCI(ctx context.Context, stepRunID string) Result[*model.StepRun] {
	run, _, _, _, train, cerr := c.stepRunContext(ctx, stepRunID)
	if cerr != nil {
		return Fail[*model.StepRun](cerr)
	}
	if !run.InFlightCI() {
		return Ok(run)
	}
	ci, cerr := c.ci(train.CIProvider)
	if cerr != nil {
		return Fail[*model.StepRun](cerr)
	}
	wf, err := ci.GetWorkflowRun(ctx, run.CIRef)
	if err != nil {
		return Fail[*model.StepRun](ProviderErr(err, "get workflow run"))
	}
	return c.applyCIStatus(ctx, run.ID, wf.Status)
}

// UpdateCIStatus routes a normalized CI webhook onto the step run
// tracking the workflow. Unknown refs are ignored; CI systems redeliver.
func (c *Coordinator) UpdateCIStatus(ctx context.Context, ciRef string, status provider.WorkflowRunStatus) Result[*model.StepRun] {
	run, err := c.db.FindStepRunByCIRef(ctx, ciRef)
	if cerr := classify(err, "find step run by CI ref"); cerr != nil {
		return Fail[*model.StepRun](cerr)
	}
	if run == nil {
		return Ok[*model.StepRun](nil)
	}
	return c.applyCIStatus(ctx, run.ID, status)
}

func (c *Coordinator) applyCIStatus(ctx context.Context, stepRunID string, status provider.WorkflowRunStatus) Result[*model.StepRun] {
	return c.transitionStepRun(ctx, stepRunID, func(s *model.StepRun) ([]model.Effect, error) {
		switch status {
		case provider.WorkflowPending:
			if s.InFlightCI() {
				// Not started yet, come back.
				return []model.Effect{model.EnqueueIn(pollInterval, model.JobCIPoll, map[string]string{model.ArgID: s.ID})}, nil
			}
			return nil, nil
		case provider.WorkflowStarted:
			if s.Status == model.StepRunCIStarted {
				// Still running, keep polling.
				return []model.Effect{model.EnqueueIn(pollInterval, model.JobCIPoll, map[string]string{model.ArgID: s.ID})}, nil
			}
			return s.CIStart()
		case provider.WorkflowSucceeded:
			if s.Status == model.StepRunCITriggered {
				// Webhook outran the start poll; pass through started.
				if _, err := s.CIStart(); err != nil {
					return nil, err
				}
			}
			return s.FinishCI()
		case provider.WorkflowFailed:
			return s.CIFail()
		case provider.WorkflowHalted:
			return s.CIHalt()
		case provider.WorkflowUnavailable:
			return s.CIUnavailable("reported by CI")
		}
		return nil, nil
	})
}

// LocateBuild resolves the finished workflow's output into a usable
// build: store-channel steps wait for the build to surface in the
// store, everything else pulls the CI artifact and persists it.
func (c *Coordinator) LocateBuild(ctx context.Context, stepRunID string) Result[*model.StepRun] {
	run, step, pr, _, train, cerr := c.stepRunContext(ctx, stepRunID)
	if cerr != nil {
		return Fail[*model.StepRun](cerr)
	}
	if run.Status != model.StepRunBuildReady && run.Status != model.StepRunBuildNotFound {
		return Ok(run)
	}
	first := step.FirstDeployment()
	if first == nil {
		return Fail[*model.StepRun](Errf(CodeValidation, "step %s has no deployments", step.Name))
	}

	if first.Integration == model.IntegrationPlayStore || first.Integration == model.IntegrationAppStore {
		dist, cerr := c.distributor(model.SubmissionProvider(first.Integration))
		if cerr != nil {
			return Fail[*model.StepRun](cerr)
		}
		info, err := dist.FindRelease(ctx, run.BuildNumber)
		switch {
		case errors.Is(err, provider.ErrNotFound), errors.Is(err, provider.ErrNotYetAvailable):
			return c.transitionStepRun(ctx, stepRunID, func(s *model.StepRun) ([]model.Effect, error) {
				return s.BuildNotFound()
			})
		case err != nil:
			return Fail[*model.StepRun](ProviderErr(err, "find build in store"))
		}
		return c.transitionStepRun(ctx, stepRunID, func(s *model.StepRun) ([]model.Effect, error) {
			return s.BuildFound(info.BuildNumber, info.Version)
		})
	}

	ci, cerr := c.ci(train.CIProvider)
	if cerr != nil {
		return Fail[*model.StepRun](cerr)
	}
	wf, err := ci.GetWorkflowRun(ctx, run.CIRef)
	if err != nil {
		return Fail[*model.StepRun](ProviderErr(err, "get workflow run"))
	}
	if wf.ArtifactURL == "" {
		return c.transitionStepRun(ctx, stepRunID, func(s *model.StepRun) ([]model.Effect, error) {
			return s.BuildNotFound()
		})
	}

	artifactURL := wf.ArtifactURL
	if c.artifacts != nil {
		body, err := ci.GetArtifact(ctx, wf.ArtifactURL)
		if err != nil {
			return Fail[*model.StepRun](ProviderErr(err, "fetch artifact"))
		}
		defer body.Close()
		stored, err := c.artifacts.Put(ctx, train.AppID, string(pr.Platform), run.BuildNumber, body, -1)
		if err != nil {
			return Fail[*model.StepRun](ProviderErr(err, "persist artifact"))
		}
		artifactURL = stored
	}
	return c.transitionStepRun(ctx, stepRunID, func(s *model.StepRun) ([]model.Effect, error) {
		return s.BuildAvailable(artifactURL)
	})
}

// RetryStepRun resets a failed run and re-triggers CI. Operator action.
func (c *Coordinator) RetryStepRun(ctx context.Context, stepRunID string) Result[*model.StepRun] {
	return c.transitionStepRun(ctx, stepRunID, func(s *model.StepRun) ([]model.Effect, error) {
		return s.Retry()
	})
}

// transitionStepRun is the shared lock-transition-apply wrapper for
// step runs.
func (c *Coordinator) transitionStepRun(ctx context.Context, id string, fn func(*model.StepRun) ([]model.Effect, error)) Result[*model.StepRun] {
	var out *model.StepRun
	effects, err := c.db.TransitionStepRun(ctx, id, func(s *model.StepRun) ([]model.Effect, error) {
		effs, err := fn(s)
		out = s
		return effs, err
	})
	if cerr := classify(err, "transition step run"); cerr != nil {
		return Fail[*model.StepRun](cerr)
	}
	c.applyEffects(ctx, effects)
	return Ok(out)
}
