package model

// Entity type tags used by passport stamps and job arguments.
const (
	EntityTrain         = "train"
	EntityRelease       = "release"
	EntityPlatformRun   = "release_platform_run"
	EntityStepRun       = "step_run"
	EntityDeploymentRun = "deployment_run"
	EntityBuildQueue    = "build_queue"
	EntitySubmission    = "store_submission"
	EntityRollout       = "store_rollout"
)

// Passport severity kinds.
const (
	SeveritySuccess = "success"
	SeverityNotice  = "notice"
	SeverityError   = "error"
)

// Background job names. Every asynchronous hand-off between state
// machines goes through one of these.
const (
	JobCITrigger         = "step_run.trigger_ci"
	JobCIPoll            = "step_run.poll_ci"
	JobFindBuild         = "step_run.find_build"
	JobStartDeployment   = "step_run.start_deployment"
	JobDeploymentUpload  = "deployment_run.upload"
	JobQueueApply        = "build_queue.apply"
	JobReleaseFinalize   = "release.finalize"
	JobSubmissionPrepare = "submission.prepare"
	JobSubmissionPoll    = "submission.poll"
	JobRolloutSync       = "rollout.sync"
)

// ArgID is the conventional job argument carrying the target entity id.
const ArgID = "id"
