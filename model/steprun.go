package model

import "time"

type StepRunStatus string

const (
	StepRunOnTrack           StepRunStatus = "on_track"
	StepRunCITriggered       StepRunStatus = "ci_workflow_triggered"
	StepRunCIStarted         StepRunStatus = "ci_workflow_started"
	StepRunCIUnavailable     StepRunStatus = "ci_workflow_unavailable"
	StepRunCIFailed          StepRunStatus = "ci_workflow_failed"
	StepRunCIHalted          StepRunStatus = "ci_workflow_halted"
	StepRunBuildReady        StepRunStatus = "build_ready"
	StepRunBuildFoundInStore StepRunStatus = "build_found_in_store"
	StepRunBuildAvailable    StepRunStatus = "build_available"
	StepRunBuildNotFound     StepRunStatus = "build_not_found_in_store"
	StepRunBuildUnavailable  StepRunStatus = "build_unavailable"
	StepRunDeploymentStarted StepRunStatus = "deployment_started"
	StepRunSuccess           StepRunStatus = "success"
)

const (
	evStepRunTriggerCI        = "trigger_ci"
	evStepRunCIStart          = "ci_start"
	evStepRunCIUnavailable    = "ci_unavailable"
	evStepRunCIFail           = "ci_fail"
	evStepRunCIHalt           = "ci_halt"
	evStepRunFinishCI         = "finish_ci"
	evStepRunBuildFound       = "build_found"
	evStepRunBuildAvailable   = "build_available"
	evStepRunBuildNotFound    = "build_not_found"
	evStepRunBuildUnavailable = "build_unavailable"
	evStepRunStartDeployment  = "start_deployment"
	evStepRunFinish           = "finish"
	evStepRunRetry            = "retry"
)

var stepRunTransitions = TransitionTable{
	evStepRunTriggerCI: {From: []string{string(StepRunOnTrack)}, To: string(StepRunCITriggered)},
	evStepRunCIStart:   {From: []string{string(StepRunCITriggered)}, To: string(StepRunCIStarted)},
	evStepRunCIUnavailable: {
		From: []string{string(StepRunOnTrack), string(StepRunCITriggered)},
		To:   string(StepRunCIUnavailable),
	},
	evStepRunCIFail: {From: []string{string(StepRunCIStarted)}, To: string(StepRunCIFailed)},
	evStepRunCIHalt: {
		From: []string{string(StepRunCITriggered), string(StepRunCIStarted)},
		To:   string(StepRunCIHalted),
	},
	evStepRunFinishCI: {From: []string{string(StepRunCIStarted)}, To: string(StepRunBuildReady)},
	evStepRunBuildFound: {
		From: []string{string(StepRunBuildReady), string(StepRunBuildNotFound)},
		To:   string(StepRunBuildFoundInStore),
	},
	evStepRunBuildAvailable: {
		From: []string{string(StepRunBuildReady), string(StepRunBuildNotFound)},
		To:   string(StepRunBuildAvailable),
	},
	evStepRunBuildNotFound: {
		From: []string{string(StepRunBuildReady), string(StepRunBuildNotFound)},
		To:   string(StepRunBuildNotFound),
	},
	evStepRunBuildUnavailable: {
		From: []string{string(StepRunBuildReady), string(StepRunBuildNotFound)},
		To:   string(StepRunBuildUnavailable),
	},
	evStepRunStartDeployment: {
		From: []string{string(StepRunBuildFoundInStore), string(StepRunBuildAvailable)},
		To:   string(StepRunDeploymentStarted),
	},
	evStepRunFinish: {From: []string{string(StepRunDeploymentStarted)}, To: string(StepRunSuccess)},
	evStepRunRetry: {
		From: []string{
			string(StepRunCIUnavailable), string(StepRunCIFailed),
			string(StepRunCIHalted), string(StepRunBuildUnavailable),
		},
		To: string(StepRunOnTrack),
	},
}

// StepRun is the live execution of a step for one commit. At most one
// run exists per (step, commit) pair. Failure states are terminal and
// only retried by explicit operator action.
type StepRun struct {
	ID            string        `json:"id"`
	PlatformRunID string        `json:"platformRunId"`
	StepID        string        `json:"stepId"`
	CommitID      string        `json:"commitId"`
	Status        StepRunStatus `json:"status"`
	CIRef         string        `json:"ciRef,omitempty"`
	CILink        string        `json:"ciLink,omitempty"`
	BuildNumber   string        `json:"buildNumber,omitempty"`
	BuildVersion  string        `json:"buildVersion,omitempty"`
	ArtifactURL   string        `json:"artifactUrl,omitempty"`
	ScheduledAt   time.Time     `json:"scheduledAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// Failed reports whether the run sits in one of the terminal failure
// states.
func (s *StepRun) Failed() bool {
	switch s.Status {
	case StepRunCIUnavailable, StepRunCIFailed, StepRunCIHalted, StepRunBuildUnavailable:
		return true
	}
	return false
}

func (s *StepRun) InFlightCI() bool {
	return s.Status == StepRunCITriggered || s.Status == StepRunCIStarted
}

func (s *StepRun) may(event string) bool {
	return stepRunTransitions.Can(event, string(s.Status))
}

func (s *StepRun) apply(event string) error {
	next, ok := stepRunTransitions.Next(event, string(s.Status))
	if !ok {
		return ErrInvalidTransition
	}
	s.Status = StepRunStatus(next)
	return nil
}

// TriggerCI records a triggered workflow and schedules the status poll.
func (s *StepRun) TriggerCI(ref, link, number string) ([]Effect, error) {
	if err := s.apply(evStepRunTriggerCI); err != nil {
		return nil, err
	}
	s.CIRef = ref
	s.CILink = link
	s.BuildNumber = number
	return []Effect{
		EnqueueIn(10*time.Second, JobCIPoll, map[string]string{ArgID: s.ID}),
		Stamp(EntityStepRun, s.ID, "ci_triggered", SeverityNotice, "workflow triggered: "+ref),
	}, nil
}

func (s *StepRun) CIStart() ([]Effect, error) {
	if err := s.apply(evStepRunCIStart); err != nil {
		return nil, err
	}
	return []Effect{
		EnqueueIn(30*time.Second, JobCIPoll, map[string]string{ArgID: s.ID}),
		Stamp(EntityStepRun, s.ID, "ci_started", SeverityNotice, "workflow running"),
	}, nil
}

func (s *StepRun) CIUnavailable(cause string) ([]Effect, error) {
	if err := s.apply(evStepRunCIUnavailable); err != nil {
		return nil, err
	}
	return []Effect{
		Stamp(EntityStepRun, s.ID, "ci_unavailable", SeverityError, "workflow unavailable: "+cause),
		Notify(EntityStepRun, s.ID, "ci_unavailable", "CI workflow unavailable"),
	}, nil
}

func (s *StepRun) CIFail() ([]Effect, error) {
	if err := s.apply(evStepRunCIFail); err != nil {
		return nil, err
	}
	return []Effect{
		Stamp(EntityStepRun, s.ID, "ci_failed", SeverityError, "workflow failed"),
		Notify(EntityStepRun, s.ID, "ci_failed", "CI workflow failed"),
	}, nil
}

func (s *StepRun) CIHalt() ([]Effect, error) {
	if err := s.apply(evStepRunCIHalt); err != nil {
		return nil, err
	}
	return []Effect{
		Stamp(EntityStepRun, s.ID, "ci_halted", SeverityError, "workflow halted"),
		Notify(EntityStepRun, s.ID, "ci_halted", "CI workflow halted"),
	}, nil
}

// FinishCI records a completed workflow and schedules artifact lookup.
func (s *StepRun) FinishCI() ([]Effect, error) {
	if err := s.apply(evStepRunFinishCI); err != nil {
		return nil, err
	}
	return []Effect{
		Enqueue(JobFindBuild, map[string]string{ArgID: s.ID}),
		Stamp(EntityStepRun, s.ID, "ci_finished", SeveritySuccess, "workflow finished, locating build"),
	}, nil
}

func (s *StepRun) BuildFound(buildNumber, buildVersion string) ([]Effect, error) {
	if err := s.apply(evStepRunBuildFound); err != nil {
		return nil, err
	}
	if buildNumber != "" {
		s.BuildNumber = buildNumber
	}
	s.BuildVersion = buildVersion
	return []Effect{
		Enqueue(JobStartDeployment, map[string]string{ArgID: s.ID}),
		Stamp(EntityStepRun, s.ID, "build_found", SeveritySuccess, "build "+s.BuildNumber+" found in store"),
	}, nil
}

func (s *StepRun) BuildAvailable(artifactURL string) ([]Effect, error) {
	if err := s.apply(evStepRunBuildAvailable); err != nil {
		return nil, err
	}
	s.ArtifactURL = artifactURL
	return []Effect{
		Enqueue(JobStartDeployment, map[string]string{ArgID: s.ID}),
		Stamp(EntityStepRun, s.ID, "build_available", SeveritySuccess, "artifact stored"),
	}, nil
}

// BuildNotFound records a store lookup miss and schedules another try;
// the job layer gives up through BuildUnavailable once attempts run out.
func (s *StepRun) BuildNotFound() ([]Effect, error) {
	if err := s.apply(evStepRunBuildNotFound); err != nil {
		return nil, err
	}
	return []Effect{
		EnqueueIn(time.Minute, JobFindBuild, map[string]string{ArgID: s.ID}),
		Stamp(EntityStepRun, s.ID, "build_not_found", SeverityNotice, "build not yet visible in store"),
	}, nil
}

func (s *StepRun) BuildUnavailable(cause string) ([]Effect, error) {
	if err := s.apply(evStepRunBuildUnavailable); err != nil {
		return nil, err
	}
	return []Effect{
		Stamp(EntityStepRun, s.ID, "build_unavailable", SeverityError, "build unavailable: "+cause),
		Notify(EntityStepRun, s.ID, "build_unavailable", "build unavailable"),
	}, nil
}

func (s *StepRun) StartDeployment() ([]Effect, error) {
	if err := s.apply(evStepRunStartDeployment); err != nil {
		return nil, err
	}
	return []Effect{
		Stamp(EntityStepRun, s.ID, "deployments_started", SeverityNotice, "deployments started"),
	}, nil
}

func (s *StepRun) MayFinish() bool { return s.may(evStepRunFinish) }

// Finish succeeds only once every deployment of the step has a released
// run; the coordinator verifies that guard and attempts the finish of
// the owning platform run next.
func (s *StepRun) Finish() ([]Effect, error) {
	if err := s.apply(evStepRunFinish); err != nil {
		return nil, err
	}
	return []Effect{
		Stamp(EntityStepRun, s.ID, "step_finished", SeveritySuccess, "all deployments released"),
	}, nil
}

func (s *StepRun) MayRetry() bool { return s.may(evStepRunRetry) }

// Retry resets a failed run back on track and re-triggers CI. Explicit
// operator action, never automatic.
func (s *StepRun) Retry() ([]Effect, error) {
	if err := s.apply(evStepRunRetry); err != nil {
		return nil, err
	}
	s.CIRef = ""
	s.CILink = ""
	return []Effect{
		Enqueue(JobCITrigger, map[string]string{ArgID: s.ID}),
		Stamp(EntityStepRun, s.ID, "step_retried", SeverityNotice, "run retried"),
	}, nil
}
