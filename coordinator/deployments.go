package coordinator

import (
	"context"

	"github.com/google/uuid"

	"conductor/model"
)

// StartFirstDeployment begins the step's deployment sequence once a
// build is in hand. Invoked by the job the build lookup enqueues.
func (c *Coordinator) StartFirstDeployment(ctx context.Context, stepRunID string) Result[*model.DeploymentRun] {
	run, step, _, _, _, cerr := c.stepRunContext(ctx, stepRunID)
	if cerr != nil {
		return Fail[*model.DeploymentRun](cerr)
	}
	if run.Status != model.StepRunBuildFoundInStore && run.Status != model.StepRunBuildAvailable {
		return Ok[*model.DeploymentRun](nil)
	}
	first := step.FirstDeployment()
	if first == nil {
		return Fail[*model.DeploymentRun](Errf(CodeValidation, "step %s has no deployments", step.Name))
	}

	res := c.transitionStepRun(ctx, stepRunID, func(s *model.StepRun) ([]model.Effect, error) {
		return s.StartDeployment()
	})
	if res.Err != nil {
		return Fail[*model.DeploymentRun](res.Err)
	}
	return c.startDeploymentRun(ctx, stepRunID, *first)
}

// startDeploymentRun creates a run for one deployment channel and puts
// it in motion.
func (c *Coordinator) startDeploymentRun(ctx context.Context, stepRunID string, d model.Deployment) Result[*model.DeploymentRun] {
	drun := &model.DeploymentRun{
		ID:           uuid.New().String(),
		StepRunID:    stepRunID,
		DeploymentID: d.ID,
		Status:       model.DeploymentRunCreated,
		ScheduledAt:  c.now(),
	}
	if err := c.db.InsertDeploymentRun(ctx, drun); err != nil {
		return Fail[*model.DeploymentRun](WrapErr(CodeInternal, err, "persist deployment run"))
	}
	return c.transitionDeploymentRun(ctx, drun.ID, func(dr *model.DeploymentRun) ([]model.Effect, error) {
		return dr.Start()
	})
}

// UploadDeployment pushes the build into the deployment's channel.
// Store channels open a submission and hand off to the review flow;
// internal channels complete immediately, the artifact is already
// persisted.
func (c *Coordinator) UploadDeployment(ctx context.Context, deploymentRunID string) Result[*model.DeploymentRun] {
	drun, err := c.db.GetDeploymentRun(ctx, deploymentRunID)
	if cerr := classify(err, "load deployment run"); cerr != nil {
		return Fail[*model.DeploymentRun](cerr)
	}
	if drun.Status != model.DeploymentRunStarted {
		return Ok(drun)
	}
	run, step, pr, _, _, cerr := c.stepRunContext(ctx, drun.StepRunID)
	if cerr != nil {
		return Fail[*model.DeploymentRun](cerr)
	}
	d := step.DeploymentByID(drun.DeploymentID)
	if d == nil {
		return Fail[*model.DeploymentRun](Errf(CodeInternal, "deployment %s not on step %s", drun.DeploymentID, step.ID))
	}

	if d.StoreChannel() {
		res := c.transitionDeploymentRun(ctx, deploymentRunID, func(dr *model.DeploymentRun) ([]model.Effect, error) {
			return dr.Upload()
		})
		if res.Err != nil {
			return res
		}
		if step.Kind == model.StepRelease && !pr.ProdStarted {
			if cerr := c.markProdStarted(ctx, pr.ID); cerr != nil {
				return Fail[*model.DeploymentRun](cerr)
			}
		}
		sub := &model.StoreSubmission{
			ID:              uuid.New().String(),
			PlatformRunID:   pr.ID,
			DeploymentRunID: deploymentRunID,
			Provider:        model.SubmissionProvider(d.Integration),
			Channel:         d.Channel,
			BuildNumber:     run.BuildNumber,
			Version:         pr.ReleaseVersion,
			Status:          model.SubmissionCreated,
		}
		if err := c.db.InsertSubmission(ctx, sub); err != nil {
			return Fail[*model.DeploymentRun](WrapErr(CodeInternal, err, "persist submission"))
		}
		if err := c.queue.Enqueue(ctx, model.JobSubmissionPrepare, map[string]string{model.ArgID: sub.ID}, 0); err != nil {
			return Fail[*model.DeploymentRun](WrapErr(CodeInternal, err, "schedule submission prepare"))
		}
		return res
	}

	res := c.transitionDeploymentRun(ctx, deploymentRunID, func(dr *model.DeploymentRun) ([]model.Effect, error) {
		if _, err := dr.Upload(); err != nil {
			return nil, err
		}
		return dr.Release(c.now())
	})
	if res.Err != nil {
		return res
	}
	if cerr := c.deploymentReleased(ctx, deploymentRunID); cerr != nil {
		return Fail[*model.DeploymentRun](cerr)
	}
	return res
}

// markProdStarted records that production delivery began for the
// platform, the point after which its version diverges onto fix
// releases instead of following the train.
func (c *Coordinator) markProdStarted(ctx context.Context, platformRunID string) *Error {
	effects, err := c.db.TransitionPlatformRun(ctx, platformRunID, func(p *model.ReleasePlatformRun) ([]model.Effect, error) {
		if p.ProdStarted {
			return nil, nil
		}
		p.ProdStarted = true
		return []model.Effect{
			model.Stamp(model.EntityPlatformRun, p.ID, "production_started", model.SeverityNotice,
				string(p.Platform)+" production delivery started"),
		}, nil
	})
	if cerr := classify(err, "mark production started"); cerr != nil {
		return cerr
	}
	c.applyEffects(ctx, effects)
	return nil
}

// deploymentReleased advances the sequence after a channel went live:
// the next numbered deployment starts, or, when this was the last one,
// the step run finishes and the platform chain is checked.
func (c *Coordinator) deploymentReleased(ctx context.Context, deploymentRunID string) *Error {
	drun, err := c.db.GetDeploymentRun(ctx, deploymentRunID)
	if cerr := classify(err, "load deployment run"); cerr != nil {
		return cerr
	}
	run, step, _, _, _, cerr := c.stepRunContext(ctx, drun.StepRunID)
	if cerr != nil {
		return cerr
	}
	d := step.DeploymentByID(drun.DeploymentID)
	if d == nil {
		return Errf(CodeInternal, "deployment %s not on step %s", drun.DeploymentID, step.ID)
	}

	if next := step.NextDeployment(d.Number); next != nil {
		res := c.startDeploymentRun(ctx, run.ID, *next)
		return res.Err
	}

	runs, err := c.db.ListDeploymentRuns(ctx, run.ID)
	if cerr := classify(err, "list deployment runs"); cerr != nil {
		return cerr
	}
	if !model.FinishedDeployments(*step, runs) {
		return nil
	}
	res := c.transitionStepRun(ctx, run.ID, func(s *model.StepRun) ([]model.Effect, error) {
		if !s.MayFinish() {
			return nil, nil
		}
		return s.Finish()
	})
	if res.Err != nil {
		return res.Err
	}
	return c.stepRunFinished(ctx, run.ID)
}

// stepRunFinished moves the platform forward: trigger the next step
// for the same commit, or finish the platform run when every step has
// succeeded for the release's latest applied commit.
func (c *Coordinator) stepRunFinished(ctx context.Context, stepRunID string) *Error {
	run, _, pr, rel, _, cerr := c.stepRunContext(ctx, stepRunID)
	if cerr != nil {
		return cerr
	}
	steps, err := c.db.ListSteps(ctx, rel.TrainID, pr.Platform)
	if cerr := classify(err, "list steps"); cerr != nil {
		return cerr
	}
	stepRuns, err := c.db.ListStepRuns(ctx, pr.ID)
	if cerr := classify(err, "list step runs"); cerr != nil {
		return cerr
	}

	latest, err := c.db.LatestCommit(ctx, rel.ID)
	if cerr := classify(err, "latest commit"); cerr != nil {
		return cerr
	}
	if latest != nil && model.FinishedSteps(steps, stepRuns, latest.ID) {
		effects, err := c.db.TransitionPlatformRun(ctx, pr.ID, func(p *model.ReleasePlatformRun) ([]model.Effect, error) {
			if !p.MayFinish() {
				return nil, nil
			}
			return p.Finish(c.now())
		})
		if cerr := classify(err, "finish platform run"); cerr != nil {
			return cerr
		}
		c.applyEffects(ctx, effects)
		return c.checkReleaseFinalize(ctx, rel.ID)
	}

	next := model.NextStep(steps, stepRuns)
	if next == nil {
		return nil
	}
	if !model.StepStartable(pr, *next, steps, stepRuns) {
		return nil
	}
	return c.startStepRun(ctx, pr, *next, run.CommitID)
}

// FailDeployment forces a deployment run into its terminal failure
// state. Operator action for channels stuck outside the engine.
func (c *Coordinator) FailDeployment(ctx context.Context, deploymentRunID, reason string) Result[*model.DeploymentRun] {
	return c.transitionDeploymentRun(ctx, deploymentRunID, func(dr *model.DeploymentRun) ([]model.Effect, error) {
		return dr.Fail(reason)
	})
}

func (c *Coordinator) transitionDeploymentRun(ctx context.Context, id string, fn func(*model.DeploymentRun) ([]model.Effect, error)) Result[*model.DeploymentRun] {
	var out *model.DeploymentRun
	effects, err := c.db.TransitionDeploymentRun(ctx, id, func(dr *model.DeploymentRun) ([]model.Effect, error) {
		effs, err := fn(dr)
		out = dr
		return effs, err
	})
	if cerr := classify(err, "transition deployment run"); cerr != nil {
		return Fail[*model.DeploymentRun](cerr)
	}
	c.applyEffects(ctx, effects)
	return Ok(out)
}
