package model

import (
	"testing"
	"time"
)

func mkSteps(n int) []Step {
	steps := make([]Step, n)
	for i := range steps {
		steps[i] = Step{ID: string(rune('a' + i)), Number: i + 1, Name: "step"}
	}
	return steps
}

func mkRun(stepID string, status StepRunStatus, at time.Time) StepRun {
	return StepRun{ID: "run-" + stepID, StepID: stepID, CommitID: "c1", Status: status, ScheduledAt: at}
}

func TestNextStep(t *testing.T) {
	steps := mkSteps(3)
	now := time.Now()

	if got := NextStep(steps, nil); got == nil || got.Number != 1 {
		t.Fatalf("NextStep with no runs = %+v, want step 1", got)
	}

	runs := []StepRun{mkRun("a", StepRunSuccess, now)}
	if got := NextStep(steps, runs); got == nil || got.Number != 2 {
		t.Fatalf("NextStep after step 1 = %+v, want step 2", got)
	}

	runs = append(runs, mkRun("b", StepRunCIFailed, now))
	if got := NextStep(steps, runs); got == nil || got.Number != 3 {
		t.Fatalf("NextStep after step 2 reached = %+v, want step 3", got)
	}

	runs = append(runs, mkRun("c", StepRunSuccess, now))
	if got := NextStep(steps, runs); got != nil {
		t.Fatalf("NextStep past last step = %+v, want nil", got)
	}

	if got := NextStep(nil, nil); got != nil {
		t.Fatalf("NextStep with no steps = %+v, want nil", got)
	}
}

func TestStepStartable(t *testing.T) {
	steps := mkSteps(3)
	now := time.Now()
	run := &ReleasePlatformRun{Status: PlatformRunOnTrack}

	// First step always startable on an on-track run.
	if !StepStartable(run, steps[0], steps, nil) {
		t.Error("first step not startable")
	}
	// Later steps need their predecessor's latest run to be a success.
	if StepStartable(run, steps[1], steps, nil) {
		t.Error("step 2 startable before step 1 ran")
	}
	succeeded := []StepRun{mkRun("a", StepRunSuccess, now)}
	if !StepStartable(run, steps[1], steps, succeeded) {
		t.Error("step 2 not startable after step 1 succeeded")
	}
	// A newer failed run for step 1 blocks step 2 again.
	failed := append(succeeded, mkRun("a", StepRunCIFailed, now.Add(time.Minute)))
	if StepStartable(run, steps[1], steps, failed) {
		t.Error("step 2 startable while latest step 1 run failed")
	}
	// Only the computed next step is startable, never one further out.
	if StepStartable(run, steps[2], steps, succeeded) {
		t.Error("step 3 startable while step 2 is next")
	}
	// A stopped platform run starts nothing.
	stopped := &ReleasePlatformRun{Status: PlatformRunStopped}
	if StepStartable(stopped, steps[0], steps, nil) {
		t.Error("step startable on stopped run")
	}
}

func TestFinishedSteps(t *testing.T) {
	steps := mkSteps(2)
	now := time.Now()

	if FinishedSteps(steps, nil, "c1") {
		t.Error("no runs reported finished")
	}
	runs := []StepRun{mkRun("a", StepRunSuccess, now)}
	if FinishedSteps(steps, runs, "c1") {
		t.Error("half-finished pipeline reported finished")
	}
	runs = append(runs, mkRun("b", StepRunSuccess, now))
	if !FinishedSteps(steps, runs, "c1") {
		t.Error("fully succeeded pipeline not reported finished")
	}
	// Successes for a different commit do not count.
	if FinishedSteps(steps, runs, "c2") {
		t.Error("other commit's runs counted")
	}
	if FinishedSteps(nil, runs, "c1") {
		t.Error("empty step list reported finished")
	}
}

func TestPlatformRunTransitions(t *testing.T) {
	p := &ReleasePlatformRun{ID: "pr-1", Platform: PlatformAndroid, ReleaseVersion: "1.3.0", Status: PlatformRunCreated}

	if _, err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := p.Finish(time.Now()); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if p.CompletedAt == nil {
		t.Error("CompletedAt not set")
	}
	if _, err := p.Stop(time.Now()); err == nil {
		t.Error("Stop after finish should be rejected")
	}
}

func TestPlatformRunBumpVersion(t *testing.T) {
	p := &ReleasePlatformRun{ID: "pr-1", ReleaseVersion: "1.3.0", Status: PlatformRunOnTrack}

	if err := p.BumpVersion("1.3.1"); err == nil {
		t.Fatal("bump allowed before production started")
	}
	p.ProdStarted = true
	if err := p.BumpVersion("1.2.9"); err == nil {
		t.Fatal("regression allowed")
	}
	if err := p.BumpVersion("1.3.1"); err != nil {
		t.Fatalf("BumpVersion: %v", err)
	}
	if p.ReleaseVersion != "1.3.1" {
		t.Errorf("ReleaseVersion = %q", p.ReleaseVersion)
	}
}
