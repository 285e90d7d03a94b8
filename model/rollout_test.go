package model

import (
	"errors"
	"testing"
	"time"
)

func newTestRollout(t *testing.T, provider SubmissionProvider, stages []float64) *StoreRollout {
	t.Helper()
	sub := &StoreSubmission{ID: "sub-1", PlatformRunID: "pr-1", Provider: provider}
	r, err := NewStoreRollout("ro-1", sub, stages, time.Now())
	if err != nil {
		t.Fatalf("NewStoreRollout: %v", err)
	}
	return r
}

func TestNewStoreRolloutValidation(t *testing.T) {
	sub := &StoreSubmission{ID: "sub-1", Provider: ProviderPlayStore}
	for _, bad := range [][]float64{
		nil,
		{},
		{10, 5},
		{10, 10},
		{50, 110},
		{0, 50},
	} {
		if _, err := NewStoreRollout("ro", sub, bad, time.Now()); err == nil {
			t.Errorf("stages %v accepted", bad)
		}
	}
}

func TestRolloutStageWalk(t *testing.T) {
	stages := []float64{1, 5, 10, 50, 100}
	r := newTestRollout(t, ProviderPlayStore, stages)

	if r.CurrentStage != NoStage {
		t.Fatalf("CurrentStage = %d, want NoStage", r.CurrentStage)
	}
	if _, err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	for i, want := range stages {
		pct, ok := r.NextPercentage()
		if !ok {
			t.Fatalf("stage %d: no next percentage", i)
		}
		if pct != want {
			t.Fatalf("stage %d: next = %v, want %v", i, pct, want)
		}
		if _, err := r.AdvanceStage(time.Now()); err != nil {
			t.Fatalf("stage %d: AdvanceStage: %v", i, err)
		}
		if r.LastRolloutPercentage != want {
			t.Fatalf("stage %d: LastRolloutPercentage = %v", i, r.LastRolloutPercentage)
		}
	}

	// Walking the last stage auto-completes.
	if r.Status != RolloutCompleted {
		t.Fatalf("status after final stage = %q, want completed", r.Status)
	}
	if r.CompletedAt == nil {
		t.Error("CompletedAt not set")
	}
	if _, ok := r.NextPercentage(); ok {
		t.Error("NextPercentage past final stage")
	}
	if _, err := r.AdvanceStage(time.Now()); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("advance past completion: err = %v", err)
	}
}

func TestRolloutFailureFreezesStage(t *testing.T) {
	r := newTestRollout(t, ProviderPlayStore, []float64{10, 50, 100})
	if _, err := r.Start(); err != nil {
		t.Fatal(err)
	}
	if _, err := r.AdvanceStage(time.Now()); err != nil {
		t.Fatal(err)
	}

	if _, err := r.FailAdvance("store 500"); err != nil {
		t.Fatalf("FailAdvance: %v", err)
	}
	if r.Status != RolloutFailed {
		t.Fatalf("status = %q", r.Status)
	}
	if r.CurrentStage != 0 || r.LastRolloutPercentage != 10 {
		t.Errorf("failed advance moved the stage: stage=%d pct=%v", r.CurrentStage, r.LastRolloutPercentage)
	}
	if r.MayAdvance() {
		t.Error("failed rollout reports advanceable")
	}

	if _, err := r.RetryAdvance(); err != nil {
		t.Fatalf("RetryAdvance: %v", err)
	}
	if _, err := r.AdvanceStage(time.Now()); err != nil {
		t.Fatalf("advance after retry: %v", err)
	}
	if r.LastRolloutPercentage != 50 {
		t.Errorf("pct after retried advance = %v", r.LastRolloutPercentage)
	}
}

func TestRolloutPauseCapability(t *testing.T) {
	play := newTestRollout(t, ProviderPlayStore, []float64{10, 100})
	play.Status = RolloutStarted
	if play.MayPause() {
		t.Error("play store rollout reports pausable")
	}
	if _, err := play.Pause(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("play store pause err = %v", err)
	}

	appstore := newTestRollout(t, ProviderAppStore, []float64{10, 100})
	appstore.Status = RolloutStarted
	if !appstore.MayPause() {
		t.Error("app store rollout not pausable")
	}
	if _, err := appstore.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if _, err := appstore.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if appstore.Status != RolloutStarted {
		t.Errorf("status after resume = %q", appstore.Status)
	}
}

func TestRolloutHaltAndResume(t *testing.T) {
	r := newTestRollout(t, ProviderPlayStore, []float64{10, 100})
	r.Status = RolloutStarted
	if _, err := r.Halt(); err != nil {
		t.Fatalf("Halt: %v", err)
	}
	if _, err := r.Resume(); err != nil {
		t.Fatalf("Resume from halted: %v", err)
	}
}

func TestRolloutReleaseFully(t *testing.T) {
	r := newTestRollout(t, ProviderPlayStore, []float64{1, 5, 100})
	r.Status = RolloutStarted
	r.CurrentStage = 0
	r.LastRolloutPercentage = 1

	if _, err := r.ReleaseFully(time.Now()); err != nil {
		t.Fatalf("ReleaseFully: %v", err)
	}
	if r.Status != RolloutFullyReleased {
		t.Fatalf("status = %q", r.Status)
	}
	if r.LastRolloutPercentage != 100 {
		t.Errorf("pct = %v", r.LastRolloutPercentage)
	}
	if r.CompletedAt == nil {
		t.Error("CompletedAt not set")
	}
}

func TestRolloutSync(t *testing.T) {
	r := newTestRollout(t, ProviderAppStore, []float64{1, 5, 10, 50, 100})
	r.Status = RolloutPaused
	r.CurrentStage = 2
	r.LastRolloutPercentage = 10

	if _, err := r.BeginSync(); err != nil {
		t.Fatalf("BeginSync: %v", err)
	}
	if r.Status != RolloutSyncing {
		t.Fatalf("status = %q", r.Status)
	}
	if r.PreSyncStatus != string(RolloutPaused) {
		t.Errorf("PreSyncStatus = %q", r.PreSyncStatus)
	}

	// The store is authoritative: it reports 5%, one stage behind what
	// we believed. Sync is the one path that may move the stage back.
	if _, err := r.ResolveSync(RolloutStarted, 5, time.Now()); err != nil {
		t.Fatalf("ResolveSync: %v", err)
	}
	if r.Status != RolloutStarted {
		t.Errorf("status = %q", r.Status)
	}
	if r.CurrentStage != 1 {
		t.Errorf("CurrentStage = %d, want 1", r.CurrentStage)
	}
	if r.LastRolloutPercentage != 5 {
		t.Errorf("pct = %v", r.LastRolloutPercentage)
	}
	if r.PreSyncStatus != "" {
		t.Errorf("PreSyncStatus not cleared")
	}
}

func TestRolloutSyncRequiresCapability(t *testing.T) {
	r := newTestRollout(t, ProviderPlayStore, []float64{10, 100})
	r.Status = RolloutStarted
	if _, err := r.BeginSync(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("play store sync err = %v", err)
	}
}

func TestRolloutResolveSyncOnlyFromSyncing(t *testing.T) {
	r := newTestRollout(t, ProviderAppStore, []float64{10, 100})
	r.Status = RolloutStarted
	if _, err := r.ResolveSync(RolloutStarted, 10, time.Now()); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("ResolveSync outside syncing: err = %v", err)
	}
}
