package model

import "time"

type DeploymentRunStatus string

const (
	DeploymentRunCreated  DeploymentRunStatus = "created"
	DeploymentRunStarted  DeploymentRunStatus = "started"
	DeploymentRunUploaded DeploymentRunStatus = "uploaded"
	DeploymentRunReleased DeploymentRunStatus = "released"
	DeploymentRunFailed   DeploymentRunStatus = "failed"
)

const (
	evDeploymentRunStart   = "start"
	evDeploymentRunUpload  = "upload"
	evDeploymentRunRelease = "release"
	evDeploymentRunFail    = "fail"
)

var deploymentRunTransitions = TransitionTable{
	evDeploymentRunStart:   {From: []string{string(DeploymentRunCreated)}, To: string(DeploymentRunStarted)},
	evDeploymentRunUpload:  {From: []string{string(DeploymentRunStarted)}, To: string(DeploymentRunUploaded)},
	evDeploymentRunRelease: {From: []string{string(DeploymentRunUploaded)}, To: string(DeploymentRunReleased)},
	evDeploymentRunFail: {
		From: []string{string(DeploymentRunStarted), string(DeploymentRunUploaded)},
		To:   string(DeploymentRunFailed),
	},
}

// DeploymentRun is the live execution of one deployment channel for a
// step run. Store channels park at uploaded until the submission (and,
// for staged channels, the rollout) completes.
type DeploymentRun struct {
	ID            string              `json:"id"`
	StepRunID     string              `json:"stepRunId"`
	DeploymentID  string              `json:"deploymentId"`
	Status        DeploymentRunStatus `json:"status"`
	FailureReason string              `json:"failureReason,omitempty"`
	ScheduledAt   time.Time           `json:"scheduledAt"`
	ReleasedAt    *time.Time          `json:"releasedAt,omitempty"`
}

func (d *DeploymentRun) apply(event string) error {
	next, ok := deploymentRunTransitions.Next(event, string(d.Status))
	if !ok {
		return ErrInvalidTransition
	}
	d.Status = DeploymentRunStatus(next)
	return nil
}

// Start begins delivery and schedules the upload job.
func (d *DeploymentRun) Start() ([]Effect, error) {
	if err := d.apply(evDeploymentRunStart); err != nil {
		return nil, err
	}
	return []Effect{
		Enqueue(JobDeploymentUpload, map[string]string{ArgID: d.ID}),
		Stamp(EntityDeploymentRun, d.ID, "deployment_started", SeverityNotice, "deployment started"),
	}, nil
}

func (d *DeploymentRun) Upload() ([]Effect, error) {
	if err := d.apply(evDeploymentRunUpload); err != nil {
		return nil, err
	}
	return []Effect{
		Stamp(EntityDeploymentRun, d.ID, "deployment_uploaded", SeverityNotice, "build uploaded to channel"),
	}, nil
}

func (d *DeploymentRun) MayRelease() bool {
	return deploymentRunTransitions.Can(evDeploymentRunRelease, string(d.Status))
}

// Release completes the channel. Releasing the last deployment of a
// step finishes the owning step run; the coordinator drives that chain.
func (d *DeploymentRun) Release(now time.Time) ([]Effect, error) {
	if err := d.apply(evDeploymentRunRelease); err != nil {
		return nil, err
	}
	d.ReleasedAt = &now
	return []Effect{
		Stamp(EntityDeploymentRun, d.ID, "deployment_released", SeveritySuccess, "deployment released"),
	}, nil
}

func (d *DeploymentRun) Fail(reason string) ([]Effect, error) {
	if err := d.apply(evDeploymentRunFail); err != nil {
		return nil, err
	}
	d.FailureReason = reason
	return []Effect{
		Stamp(EntityDeploymentRun, d.ID, "deployment_failed", SeverityError, "deployment failed: "+reason),
		Notify(EntityDeploymentRun, d.ID, "deployment_failed", "deployment failed: "+reason),
	}, nil
}
