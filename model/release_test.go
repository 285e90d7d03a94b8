package model

import (
	"errors"
	"testing"
	"time"
)

func newTestRelease(status ReleaseStatus) *Release {
	return &Release{
		ID:              "rel-1",
		TrainID:         "train-1",
		BranchName:      "r/mobile/1.3.0",
		Status:          status,
		OriginalVersion: "1.3.0",
		Version:         "1.3.0",
		ScheduledAt:     time.Now(),
	}
}

func TestReleaseHappyPath(t *testing.T) {
	r := newTestRelease(ReleaseCreated)

	steps := []func() ([]Effect, error){
		func() ([]Effect, error) { return r.Start() },
		func() ([]Effect, error) { return r.StartPostReleasePhase() },
		func() ([]Effect, error) { return r.BeginPostRelease() },
		func() ([]Effect, error) { return r.Finish(time.Now()) },
	}
	want := []ReleaseStatus{ReleaseOnTrack, ReleasePostRelease, ReleasePostReleaseStarted, ReleaseFinished}

	for i, step := range steps {
		if _, err := step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if r.Status != want[i] {
			t.Fatalf("step %d: status = %q, want %q", i, r.Status, want[i])
		}
	}
	if r.CompletedAt == nil {
		t.Error("CompletedAt not set")
	}
	if r.Active() {
		t.Error("finished release reports active")
	}
}

func TestReleaseFinalizeFailureAndRetry(t *testing.T) {
	r := newTestRelease(ReleasePostReleaseStarted)

	if _, err := r.FailPostRelease("version bump rejected"); err != nil {
		t.Fatalf("FailPostRelease: %v", err)
	}
	if r.Status != ReleasePostReleaseFailed {
		t.Fatalf("status = %q", r.Status)
	}

	effects, err := r.RetryPostRelease()
	if err != nil {
		t.Fatalf("RetryPostRelease: %v", err)
	}
	// Retry re-enters post_release so the re-enqueued finalize job can
	// begin again.
	if r.Status != ReleasePostRelease {
		t.Fatalf("status after retry = %q, want %q", r.Status, ReleasePostRelease)
	}
	foundEnqueue := false
	for _, e := range effects {
		if e.Kind == EffectEnqueue && e.Job == JobReleaseFinalize {
			foundEnqueue = true
		}
	}
	if !foundEnqueue {
		t.Error("retry did not re-enqueue the finalize job")
	}

	if _, err := r.BeginPostRelease(); err != nil {
		t.Fatalf("BeginPostRelease after retry: %v", err)
	}
}

func TestReleaseStop(t *testing.T) {
	for _, from := range []ReleaseStatus{ReleaseCreated, ReleaseOnTrack} {
		r := newTestRelease(from)
		if !r.MayStop() {
			t.Errorf("MayStop from %q = false", from)
		}
		if _, err := r.Stop(time.Now()); err != nil {
			t.Errorf("Stop from %q: %v", from, err)
		}
		if r.StoppedAt == nil {
			t.Error("StoppedAt not set")
		}
	}
}

func TestReleaseInvalidTransitions(t *testing.T) {
	tests := []struct {
		from ReleaseStatus
		op   func(r *Release) error
		name string
	}{
		{ReleaseOnTrack, func(r *Release) error { _, err := r.Start(); return err }, "start on_track"},
		{ReleaseCreated, func(r *Release) error { _, err := r.Finish(time.Now()); return err }, "finish created"},
		{ReleaseFinished, func(r *Release) error { _, err := r.Stop(time.Now()); return err }, "stop finished"},
		{ReleaseStopped, func(r *Release) error { _, err := r.Start(); return err }, "start stopped"},
		{ReleaseOnTrack, func(r *Release) error { _, err := r.BeginPostRelease(); return err }, "begin without barrier"},
	}
	for _, tt := range tests {
		r := newTestRelease(tt.from)
		err := tt.op(r)
		if !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("%s: err = %v, want ErrInvalidTransition", tt.name, err)
		}
		if r.Status != tt.from {
			t.Errorf("%s: status mutated to %q on rejected transition", tt.name, r.Status)
		}
	}
}

func TestReleaseIsHotfix(t *testing.T) {
	r := newTestRelease(ReleaseOnTrack)
	if r.IsHotfix() {
		t.Error("unchanged version reported as hotfix")
	}
	r.Version = "1.3.1"
	if !r.IsHotfix() {
		t.Error("diverged version not reported as hotfix")
	}
}
