package store

import (
	"context"
	"encoding/json"
	"fmt"

	"conductor/model"
)

func (db *DB) InsertSteps(ctx context.Context, steps []model.Step) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, s := range steps {
		_, err := tx.Exec(ctx,
			`INSERT INTO steps (id, train_id, platform, number, name, kind, ci_workflow)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			s.ID, s.TrainID, s.Platform, s.Number, s.Name, s.Kind, s.CIWorkflow,
		)
		if err != nil {
			return err
		}
		for _, d := range s.Deployments {
			stages, _ := json.Marshal(d.RolloutStages)
			if stages == nil {
				stages = []byte("[]")
			}
			_, err := tx.Exec(ctx,
				`INSERT INTO deployments (id, step_id, number, integration, channel, is_production, rollout_stages)
				 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				d.ID, d.StepID, d.Number, d.Integration, d.Channel, d.IsProduction, stages,
			)
			if err != nil {
				return err
			}
		}
	}
	return tx.Commit(ctx)
}

// ListSteps returns a platform's steps in number order, deployments
// attached in number order.
func (db *DB) ListSteps(ctx context.Context, trainID string, platform model.Platform) ([]model.Step, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT id, train_id, platform, number, name, kind, ci_workflow
		 FROM steps WHERE train_id = $1 AND platform = $2 ORDER BY number`, trainID, platform)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var steps []model.Step
	for rows.Next() {
		var s model.Step
		if err := rows.Scan(&s.ID, &s.TrainID, &s.Platform, &s.Number, &s.Name, &s.Kind, &s.CIWorkflow); err != nil {
			return nil, err
		}
		steps = append(steps, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range steps {
		ds, err := db.listDeployments(ctx, steps[i].ID)
		if err != nil {
			return nil, err
		}
		steps[i].Deployments = ds
	}
	return steps, nil
}

func (db *DB) GetStep(ctx context.Context, id string) (*model.Step, error) {
	var s model.Step
	err := db.Pool.QueryRow(ctx,
		`SELECT id, train_id, platform, number, name, kind, ci_workflow FROM steps WHERE id = $1`, id).
		Scan(&s.ID, &s.TrainID, &s.Platform, &s.Number, &s.Name, &s.Kind, &s.CIWorkflow)
	if err != nil {
		return nil, err
	}
	ds, err := db.listDeployments(ctx, s.ID)
	if err != nil {
		return nil, err
	}
	s.Deployments = ds
	return &s, nil
}

func (db *DB) listDeployments(ctx context.Context, stepID string) ([]model.Deployment, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT id, step_id, number, integration, channel, is_production, rollout_stages
		 FROM deployments WHERE step_id = $1 ORDER BY number`, stepID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ds []model.Deployment
	for rows.Next() {
		var d model.Deployment
		var stages []byte
		if err := rows.Scan(&d.ID, &d.StepID, &d.Number, &d.Integration, &d.Channel, &d.IsProduction, &stages); err != nil {
			return nil, err
		}
		if len(stages) > 0 {
			if err := json.Unmarshal(stages, &d.RolloutStages); err != nil {
				return nil, fmt.Errorf("deployment %s rollout stages: %w", d.ID, err)
			}
		}
		ds = append(ds, d)
	}
	return ds, rows.Err()
}
