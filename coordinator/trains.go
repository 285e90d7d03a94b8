package coordinator

import (
	"context"

	"conductor/model"
)

// CreateTrain materializes a parsed train definition and persists the
// train with its step and deployment rows.
func (c *Coordinator) CreateTrain(ctx context.Context, spec *model.TrainSpec) Result[*model.Train] {
	if err := spec.Validate(); err != nil {
		return Fail[*model.Train](WrapErr(CodeValidation, err, "invalid train definition"))
	}
	if _, cerr := c.ci(spec.CIProvider); cerr != nil {
		return Fail[*model.Train](cerr)
	}

	train, steps, err := spec.Materialize(c.now())
	if err != nil {
		return Fail[*model.Train](WrapErr(CodeValidation, err, "invalid train definition"))
	}
	if err := c.db.InsertTrain(ctx, train); err != nil {
		return Fail[*model.Train](WrapErr(CodeInternal, err, "persist train"))
	}
	if err := c.db.InsertSteps(ctx, steps); err != nil {
		return Fail[*model.Train](WrapErr(CodeInternal, err, "persist steps"))
	}

	c.log.Info().Str("train", train.ID).Str("name", train.Name).Msg("train created")
	return Ok(train)
}

// ActivateTrain moves a draft train into service.
func (c *Coordinator) ActivateTrain(ctx context.Context, trainID string) Result[*model.Train] {
	var out *model.Train
	err := c.db.UpdateTrain(ctx, trainID, func(t *model.Train) error {
		t.Activate(c.now())
		out = t
		return nil
	})
	if cerr := classify(err, "activate train"); cerr != nil {
		return Fail[*model.Train](cerr)
	}
	return Ok(out)
}

// trainPlatforms returns the platforms a train has steps configured
// for, with their step lists.
func (c *Coordinator) trainPlatforms(ctx context.Context, trainID string) (map[model.Platform][]model.Step, error) {
	out := make(map[model.Platform][]model.Step)
	for _, p := range []model.Platform{model.PlatformAndroid, model.PlatformIOS} {
		steps, err := c.db.ListSteps(ctx, trainID, p)
		if err != nil {
			return nil, err
		}
		if len(steps) > 0 {
			out[p] = steps
		}
	}
	return out, nil
}
