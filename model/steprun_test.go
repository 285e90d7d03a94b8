package model

import (
	"errors"
	"testing"
	"time"
)

func newTestStepRun(status StepRunStatus) *StepRun {
	return &StepRun{
		ID:            "sr-1",
		PlatformRunID: "pr-1",
		StepID:        "s1",
		CommitID:      "c1",
		Status:        status,
		ScheduledAt:   time.Now(),
	}
}

func TestStepRunHappyPath(t *testing.T) {
	s := newTestStepRun(StepRunOnTrack)

	if _, err := s.TriggerCI("job/42", "http://ci/42", "1042"); err != nil {
		t.Fatalf("TriggerCI: %v", err)
	}
	if s.CIRef != "job/42" || s.BuildNumber != "1042" {
		t.Errorf("CI fields not recorded: %+v", s)
	}
	if !s.InFlightCI() {
		t.Error("triggered run not in flight")
	}
	if _, err := s.CIStart(); err != nil {
		t.Fatalf("CIStart: %v", err)
	}
	if _, err := s.FinishCI(); err != nil {
		t.Fatalf("FinishCI: %v", err)
	}
	if s.Status != StepRunBuildReady {
		t.Fatalf("status = %q", s.Status)
	}
	if _, err := s.BuildAvailable("s3://builds/android/1042/artifact"); err != nil {
		t.Fatalf("BuildAvailable: %v", err)
	}
	if _, err := s.StartDeployment(); err != nil {
		t.Fatalf("StartDeployment: %v", err)
	}
	if _, err := s.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if s.Status != StepRunSuccess {
		t.Fatalf("status = %q", s.Status)
	}
}

func TestStepRunStoreBuildLookupLoop(t *testing.T) {
	s := newTestStepRun(StepRunBuildReady)

	// The store may take several polls before the build shows up.
	if _, err := s.BuildNotFound(); err != nil {
		t.Fatalf("BuildNotFound: %v", err)
	}
	if _, err := s.BuildNotFound(); err != nil {
		t.Fatalf("second BuildNotFound: %v", err)
	}
	if _, err := s.BuildFound("1042", "1.3.0"); err != nil {
		t.Fatalf("BuildFound after misses: %v", err)
	}
	if s.Status != StepRunBuildFoundInStore {
		t.Fatalf("status = %q", s.Status)
	}
	if s.BuildVersion != "1.3.0" {
		t.Errorf("BuildVersion = %q", s.BuildVersion)
	}
}

func TestStepRunBuildFoundKeepsCINumber(t *testing.T) {
	s := newTestStepRun(StepRunBuildReady)
	s.BuildNumber = "1042"
	if _, err := s.BuildFound("", "1.3.0"); err != nil {
		t.Fatalf("BuildFound: %v", err)
	}
	if s.BuildNumber != "1042" {
		t.Errorf("BuildNumber overwritten to %q", s.BuildNumber)
	}
}

func TestStepRunFailureStatesTerminal(t *testing.T) {
	for _, status := range []StepRunStatus{
		StepRunCIUnavailable, StepRunCIFailed, StepRunCIHalted, StepRunBuildUnavailable,
	} {
		s := newTestStepRun(status)
		if !s.Failed() {
			t.Errorf("%q not reported failed", status)
		}
		// Nothing but an explicit retry leaves a failure state.
		if _, err := s.TriggerCI("r", "", ""); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("%q: TriggerCI err = %v", status, err)
		}
		if _, err := s.Finish(); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("%q: Finish err = %v", status, err)
		}
		if !s.MayRetry() {
			t.Errorf("%q: MayRetry = false", status)
		}
		if _, err := s.Retry(); err != nil {
			t.Errorf("%q: Retry: %v", status, err)
		}
		if s.Status != StepRunOnTrack {
			t.Errorf("%q: status after retry = %q", status, s.Status)
		}
		if s.CIRef != "" {
			t.Errorf("%q: stale CI ref kept after retry", status)
		}
	}
}

func TestStepRunRetryRejectedMidFlight(t *testing.T) {
	for _, status := range []StepRunStatus{
		StepRunOnTrack, StepRunCITriggered, StepRunCIStarted,
		StepRunBuildReady, StepRunDeploymentStarted, StepRunSuccess,
	} {
		s := newTestStepRun(status)
		if _, err := s.Retry(); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("Retry from %q: err = %v, want ErrInvalidTransition", status, err)
		}
	}
}

func TestStepRunCIFailureModes(t *testing.T) {
	s := newTestStepRun(StepRunCIStarted)
	if _, err := s.CIFail(); err != nil {
		t.Fatalf("CIFail: %v", err)
	}
	if s.Status != StepRunCIFailed {
		t.Fatalf("status = %q", s.Status)
	}

	s = newTestStepRun(StepRunCITriggered)
	if _, err := s.CIHalt(); err != nil {
		t.Fatalf("CIHalt: %v", err)
	}

	s = newTestStepRun(StepRunOnTrack)
	if _, err := s.CIUnavailable("workflow missing"); err != nil {
		t.Fatalf("CIUnavailable: %v", err)
	}
}
