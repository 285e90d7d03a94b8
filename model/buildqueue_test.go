package model

import (
	"testing"
	"time"
)

func TestBuildQueueShouldApply(t *testing.T) {
	q := &BuildQueue{ID: "q1", ReleaseID: "rel-1", Active: true}

	tests := []struct {
		count     int
		threshold int
		want      bool
	}{
		{0, 3, false},
		{2, 3, false},
		{3, 3, true},
		{5, 3, true},
		{5, 0, false},
	}
	for _, tt := range tests {
		if got := q.ShouldApply(tt.count, tt.threshold); got != tt.want {
			t.Errorf("ShouldApply(%d, %d) = %v, want %v", tt.count, tt.threshold, got, tt.want)
		}
	}

	q.Active = false
	if q.ShouldApply(10, 3) {
		t.Error("inactive queue reports should-apply")
	}
}

func TestBuildQueueApply(t *testing.T) {
	q := &BuildQueue{ID: "q1", ReleaseID: "rel-1", Active: true}
	if _, err := q.Apply(time.Now()); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if q.Active {
		t.Error("queue still active after apply")
	}
	if q.AppliedAt == nil {
		t.Error("AppliedAt not set")
	}
	// Applying twice is an invalid transition, not a silent success.
	if _, err := q.Apply(time.Now()); err == nil {
		t.Error("second apply accepted")
	}
}

func TestDeploymentRunLifecycle(t *testing.T) {
	d := &DeploymentRun{ID: "dr-1", Status: DeploymentRunCreated}
	if _, err := d.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := d.Upload(); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if !d.MayRelease() {
		t.Error("uploaded run not releasable")
	}
	if _, err := d.Release(time.Now()); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if d.ReleasedAt == nil {
		t.Error("ReleasedAt not set")
	}
	if _, err := d.Fail("late failure"); err == nil {
		t.Error("fail accepted after release")
	}
}

func TestDeploymentRunFail(t *testing.T) {
	d := &DeploymentRun{ID: "dr-1", Status: DeploymentRunUploaded}
	if _, err := d.Fail("store rejected binary"); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if d.Status != DeploymentRunFailed {
		t.Fatalf("status = %q", d.Status)
	}
	if d.FailureReason != "store rejected binary" {
		t.Errorf("FailureReason = %q", d.FailureReason)
	}
}
