package model

import (
	"testing"
	"time"
)

func newTestTrain(t *testing.T, seed string, strategy VersioningStrategy) *Train {
	t.Helper()
	tr, err := NewTrain("train-1", "app-1", "mobile", seed, strategy, BranchingAlmostTrunk, "main", time.Now())
	if err != nil {
		t.Fatalf("NewTrain: %v", err)
	}
	return tr
}

func TestNewTrainRejectsBadSeed(t *testing.T) {
	if _, err := NewTrain("t", "a", "n", "not-a-version", StrategySemver, BranchingAlmostTrunk, "main", time.Now()); err == nil {
		t.Fatal("expected error for malformed seed version")
	}
}

func TestNewTrainDefaults(t *testing.T) {
	tr, err := NewTrain("t", "a", "n", "1.0.0", "", "", "", time.Now())
	if err != nil {
		t.Fatalf("NewTrain: %v", err)
	}
	if tr.VersioningStrategy != StrategySemver {
		t.Errorf("VersioningStrategy = %q", tr.VersioningStrategy)
	}
	if tr.BranchingStrategy != BranchingAlmostTrunk {
		t.Errorf("BranchingStrategy = %q", tr.BranchingStrategy)
	}
	if tr.WorkingBranch != "main" {
		t.Errorf("WorkingBranch = %q", tr.WorkingBranch)
	}
	if tr.Status != TrainDraft {
		t.Errorf("Status = %q, want draft", tr.Status)
	}
}

func TestNextVersionSemver(t *testing.T) {
	tr := newTestTrain(t, "1.2.0", StrategySemver)

	got, err := tr.NextVersion(false)
	if err != nil {
		t.Fatalf("NextVersion: %v", err)
	}
	if got != "1.3.0" {
		t.Errorf("NextVersion = %q, want 1.3.0", got)
	}

	got, err = tr.NextVersion(true)
	if err != nil {
		t.Fatalf("NextVersion(major): %v", err)
	}
	if got != "2.0.0" {
		t.Errorf("NextVersion(major) = %q, want 2.0.0", got)
	}
}

func TestNextVersionPatchOnly(t *testing.T) {
	tr := newTestTrain(t, "1.2.3", StrategyPatchOnly)
	got, err := tr.NextVersion(false)
	if err != nil {
		t.Fatalf("NextVersion: %v", err)
	}
	if got != "1.2.4" {
		t.Errorf("NextVersion = %q, want 1.2.4", got)
	}
}

// A finished release bumps the train and the next release continues
// from there: 1.2.0 ships, the train reads 1.3.0, the next release
// targets 1.4.0.
func TestReleaseCycleBumpsTrain(t *testing.T) {
	tr := newTestTrain(t, "1.2.0", StrategySemver)

	next, err := tr.NextVersion(false)
	if err != nil {
		t.Fatal(err)
	}
	if next != "1.3.0" {
		t.Fatalf("first release version = %q, want 1.3.0", next)
	}

	if err := tr.BumpRelease(next, time.Now()); err != nil {
		t.Fatalf("BumpRelease: %v", err)
	}
	if tr.CurrentVersion != "1.3.0" {
		t.Errorf("CurrentVersion = %q, want 1.3.0", tr.CurrentVersion)
	}

	next, err = tr.NextVersion(false)
	if err != nil {
		t.Fatal(err)
	}
	if next != "1.4.0" {
		t.Errorf("second release version = %q, want 1.4.0", next)
	}
}

func TestBumpReleaseRejectsRegression(t *testing.T) {
	tr := newTestTrain(t, "1.3.0", StrategySemver)
	if err := tr.BumpRelease("1.2.9", time.Now()); err == nil {
		t.Fatal("expected regression to be rejected")
	}
	if tr.CurrentVersion != "1.3.0" {
		t.Errorf("CurrentVersion changed to %q on rejected bump", tr.CurrentVersion)
	}
}

func TestBumpReleaseAllowsEqual(t *testing.T) {
	tr := newTestTrain(t, "1.3.0", StrategySemver)
	if err := tr.BumpRelease("1.3.0", time.Now()); err != nil {
		t.Fatalf("BumpRelease(equal): %v", err)
	}
}

func TestNextFixVersion(t *testing.T) {
	tr := newTestTrain(t, "1.4.0", StrategySemver)
	// Hotfix bumps from the last shipped version, not the train's
	// nominal version.
	got, err := tr.NextFixVersion("1.3.0")
	if err != nil {
		t.Fatalf("NextFixVersion: %v", err)
	}
	if got != "1.3.1" {
		t.Errorf("NextFixVersion = %q, want 1.3.1", got)
	}
}

func TestReleaseBranch(t *testing.T) {
	tr := newTestTrain(t, "1.2.0", StrategySemver)
	if got := tr.ReleaseBranch("1.3.0"); got != "r/mobile/1.3.0" {
		t.Errorf("ReleaseBranch = %q", got)
	}
	tr.BranchingStrategy = BranchingReleaseBackmerge
	if got := tr.ReleaseBranch("1.3.0"); got != "release/mobile/1.3.0" {
		t.Errorf("ReleaseBranch = %q", got)
	}
}
