package coordinator

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"conductor/model"
)

// codeNames label platform runs for humans; versions stay the
// authority.
var codeNames = []string{
	"basalt", "cobalt", "garnet", "jasper", "obsidian", "onyx",
	"opal", "pumice", "quartz", "topaz",
}

// StartRelease kicks off a release on a train: computes the next
// version, creates the release with one platform run per configured
// platform, opens the build queue when the train batches commits, and
// puts everything on track.
func (c *Coordinator) StartRelease(ctx context.Context, trainID string, majorBump, upcoming bool) Result[*model.Release] {
	train, err := c.db.GetTrain(ctx, trainID)
	if cerr := classify(err, "load train"); cerr != nil {
		return Fail[*model.Release](cerr)
	}
	if train.Status != model.TrainActive {
		return Fail[*model.Release](Errf(CodeValidation, "train %s is %s, not active", train.Name, train.Status))
	}

	active, err := c.db.ActiveRelease(ctx, trainID)
	if cerr := classify(err, "check active release"); cerr != nil {
		return Fail[*model.Release](cerr)
	}
	if active != nil && !upcoming {
		return Fail[*model.Release](Errf(CodeConflict, "release %s is still %s on this train", active.Version, active.Status))
	}
	if upcoming {
		if active == nil {
			return Fail[*model.Release](Errf(CodeValidation, "an upcoming release needs a pending release to follow"))
		}
		pending, err := c.db.UpcomingRelease(ctx, trainID)
		if cerr := classify(err, "check upcoming release"); cerr != nil {
			return Fail[*model.Release](cerr)
		}
		if pending != nil {
			return Fail[*model.Release](Errf(CodeConflict, "an upcoming release already exists"))
		}
	}

	version, err := train.NextVersion(majorBump)
	if err != nil {
		return Fail[*model.Release](WrapErr(CodeInternal, err, "compute next version"))
	}
	return c.createRelease(ctx, train, version, upcoming)
}

// StartHotfix cuts a patch release from the last finished platform
// run's version, not the train's nominal version, so a shipped build
// can be fixed while the next regular release is underway.
func (c *Coordinator) StartHotfix(ctx context.Context, trainID string, platform model.Platform) Result[*model.Release] {
	train, err := c.db.GetTrain(ctx, trainID)
	if cerr := classify(err, "load train"); cerr != nil {
		return Fail[*model.Release](cerr)
	}
	last, err := c.db.LastFinishedPlatformRun(ctx, trainID, platform)
	if cerr := classify(err, "find last finished platform run"); cerr != nil {
		return Fail[*model.Release](cerr)
	}
	if last == nil {
		return Fail[*model.Release](Errf(CodeValidation, "no finished %s release to fix", platform))
	}
	version, err := train.NextFixVersion(last.ReleaseVersion)
	if err != nil {
		return Fail[*model.Release](WrapErr(CodeInternal, err, "compute hotfix version"))
	}
	return c.createRelease(ctx, train, version, false)
}

func (c *Coordinator) createRelease(ctx context.Context, train *model.Train, version string, upcoming bool) Result[*model.Release] {
	platforms, err := c.trainPlatforms(ctx, train.ID)
	if err != nil {
		return Fail[*model.Release](WrapErr(CodeInternal, err, "load train steps"))
	}
	if len(platforms) == 0 {
		return Fail[*model.Release](Errf(CodeValidation, "train %s has no platform steps configured", train.Name))
	}

	now := c.now()
	rel := &model.Release{
		ID:              uuid.New().String(),
		TrainID:         train.ID,
		BranchName:      train.ReleaseBranch(version),
		Status:          model.ReleaseCreated,
		OriginalVersion: version,
		Version:         version,
		Upcoming:        upcoming,
		ScheduledAt:     now,
	}
	if err := c.db.InsertRelease(ctx, rel); err != nil {
		return Fail[*model.Release](WrapErr(CodeInternal, err, "persist release"))
	}

	i := 0
	for platform := range platforms {
		run := &model.ReleasePlatformRun{
			ID:             uuid.New().String(),
			ReleaseID:      rel.ID,
			Platform:       platform,
			CodeName:       fmt.Sprintf("%s-%s", codeNames[i%len(codeNames)], platform),
			ReleaseVersion: version,
			Status:         model.PlatformRunCreated,
			ScheduledAt:    now,
		}
		i++
		if err := c.db.InsertPlatformRun(ctx, run); err != nil {
			return Fail[*model.Release](WrapErr(CodeInternal, err, "persist platform run"))
		}
	}

	if upcoming {
		// Parked until the pending release clears the train.
		return Ok(rel)
	}
	return c.putOnTrack(ctx, train, rel.ID)
}

// putOnTrack starts the release and fans the start out to every
// platform run, then opens the first build queue when the train
// batches commits.
func (c *Coordinator) putOnTrack(ctx context.Context, train *model.Train, releaseID string) Result[*model.Release] {
	var rel *model.Release
	effects, err := c.db.TransitionRelease(ctx, releaseID, func(r *model.Release) ([]model.Effect, error) {
		effs, err := r.Start()
		r.Upcoming = false
		rel = r
		return effs, err
	})
	if cerr := classify(err, "start release"); cerr != nil {
		return Fail[*model.Release](cerr)
	}
	c.applyEffects(ctx, effects)

	runs, err := c.db.ListPlatformRuns(ctx, releaseID)
	if err != nil {
		return Fail[*model.Release](WrapErr(CodeInternal, err, "list platform runs"))
	}
	for _, run := range runs {
		effects, err := c.db.TransitionPlatformRun(ctx, run.ID, func(p *model.ReleasePlatformRun) ([]model.Effect, error) {
			return p.Start()
		})
		if cerr := classify(err, "start platform run"); cerr != nil {
			return Fail[*model.Release](cerr)
		}
		c.applyEffects(ctx, effects)
	}

	if train.BuildQueueEnabled {
		if _, cerr := c.openBuildQueue(ctx, train, releaseID); cerr != nil {
			return Fail[*model.Release](cerr)
		}
	}

	c.log.Info().Str("release", releaseID).Str("version", rel.Version).Msg("release on track")
	return Ok(rel)
}

// StopRelease force-stops a pending release and all of its platform
// runs. Only legal before the post-release phase.
func (c *Coordinator) StopRelease(ctx context.Context, releaseID string) Result[*model.Release] {
	var rel *model.Release
	effects, err := c.db.TransitionRelease(ctx, releaseID, func(r *model.Release) ([]model.Effect, error) {
		effs, err := r.Stop(c.now())
		rel = r
		return effs, err
	})
	if cerr := classify(err, "stop release"); cerr != nil {
		return Fail[*model.Release](cerr)
	}
	c.applyEffects(ctx, effects)

	runs, err := c.db.ListPlatformRuns(ctx, releaseID)
	if err != nil {
		return Fail[*model.Release](WrapErr(CodeInternal, err, "list platform runs"))
	}
	for _, run := range runs {
		effects, err := c.db.TransitionPlatformRun(ctx, run.ID, func(p *model.ReleasePlatformRun) ([]model.Effect, error) {
			if !p.MayStop() {
				return nil, nil // already terminal
			}
			return p.Stop(c.now())
		})
		if cerr := classify(err, "stop platform run"); cerr != nil {
			return Fail[*model.Release](cerr)
		}
		c.applyEffects(ctx, effects)
	}
	return Ok(rel)
}

// checkReleaseFinalize is the finalize barrier: once every platform
// run is finished, the release schedules its asynchronous finalize
// job. Safe to call repeatedly; the guard no-ops when the release has
// already moved on.
func (c *Coordinator) checkReleaseFinalize(ctx context.Context, releaseID string) *Error {
	runs, err := c.db.ListPlatformRuns(ctx, releaseID)
	if err != nil {
		return WrapErr(CodeInternal, err, "list platform runs")
	}
	for _, run := range runs {
		if run.Status != model.PlatformRunFinished {
			return nil
		}
	}

	effects, err := c.db.TransitionRelease(ctx, releaseID, func(r *model.Release) ([]model.Effect, error) {
		if !r.MayStartPostReleasePhase() {
			return nil, nil // concurrent caller won the barrier
		}
		return r.StartPostReleasePhase()
	})
	if cerr := classify(err, "enter post-release phase"); cerr != nil {
		return cerr
	}
	c.applyEffects(ctx, effects)
	return nil
}

// FinalizeRelease runs the post-release phase: bump the train to the
// shipped version, finish the release, and promote an upcoming release
// if one is parked. Invoked by the finalize job.
func (c *Coordinator) FinalizeRelease(ctx context.Context, releaseID string) Result[*model.Release] {
	effects, err := c.db.TransitionRelease(ctx, releaseID, func(r *model.Release) ([]model.Effect, error) {
		return r.BeginPostRelease()
	})
	if cerr := classify(err, "begin post-release"); cerr != nil {
		return Fail[*model.Release](cerr)
	}
	c.applyEffects(ctx, effects)

	rel, err := c.db.GetRelease(ctx, releaseID)
	if cerr := classify(err, "load release"); cerr != nil {
		return Fail[*model.Release](cerr)
	}

	bumpErr := c.db.UpdateTrain(ctx, rel.TrainID, func(t *model.Train) error {
		return t.BumpRelease(rel.Version, c.now())
	})
	if bumpErr != nil {
		effects, err := c.db.TransitionRelease(ctx, releaseID, func(r *model.Release) ([]model.Effect, error) {
			return r.FailPostRelease(bumpErr.Error())
		})
		if cerr := classify(err, "fail post-release"); cerr != nil {
			return Fail[*model.Release](cerr)
		}
		c.applyEffects(ctx, effects)
		return Fail[*model.Release](WrapErr(CodeInternal, bumpErr, "train version bump failed"))
	}

	var out *model.Release
	effects, err = c.db.TransitionRelease(ctx, releaseID, func(r *model.Release) ([]model.Effect, error) {
		effs, err := r.Finish(c.now())
		out = r
		return effs, err
	})
	if cerr := classify(err, "finish release"); cerr != nil {
		return Fail[*model.Release](cerr)
	}
	c.applyEffects(ctx, effects)

	if cerr := c.promoteUpcoming(ctx, rel.TrainID); cerr != nil {
		c.log.Error().Err(cerr).Str("train", rel.TrainID).Msg("promote upcoming release")
	}
	return Ok(out)
}

// RetryFinalize re-runs a failed post-release phase.
func (c *Coordinator) RetryFinalize(ctx context.Context, releaseID string) Result[*model.Release] {
	var rel *model.Release
	effects, err := c.db.TransitionRelease(ctx, releaseID, func(r *model.Release) ([]model.Effect, error) {
		effs, err := r.RetryPostRelease()
		rel = r
		return effs, err
	})
	if cerr := classify(err, "retry post-release"); cerr != nil {
		return Fail[*model.Release](cerr)
	}
	c.applyEffects(ctx, effects)
	return Ok(rel)
}

// promoteUpcoming puts a parked upcoming release on track once the
// pending release has left the train.
func (c *Coordinator) promoteUpcoming(ctx context.Context, trainID string) *Error {
	up, err := c.db.UpcomingRelease(ctx, trainID)
	if cerr := classify(err, "find upcoming release"); cerr != nil {
		return cerr
	}
	if up == nil {
		return nil
	}
	train, err := c.db.GetTrain(ctx, trainID)
	if cerr := classify(err, "load train"); cerr != nil {
		return cerr
	}
	res := c.putOnTrack(ctx, train, up.ID)
	return res.Err
}
