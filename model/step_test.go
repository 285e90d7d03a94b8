package model

import "testing"

func twoDeploymentStep() Step {
	return Step{
		ID:     "s1",
		Number: 1,
		Deployments: []Deployment{
			{ID: "d2", StepID: "s1", Number: 2, Integration: IntegrationPlayStore, Channel: "beta"},
			{ID: "d1", StepID: "s1", Number: 1, Integration: IntegrationFirebase, Channel: "qa"},
		},
	}
}

func TestDeploymentOrdering(t *testing.T) {
	s := twoDeploymentStep()

	if got := s.FirstDeployment(); got == nil || got.ID != "d1" {
		t.Errorf("FirstDeployment = %+v, want d1", got)
	}
	if got := s.LastDeployment(); got == nil || got.ID != "d2" {
		t.Errorf("LastDeployment = %+v, want d2", got)
	}
	if got := s.NextDeployment(1); got == nil || got.ID != "d2" {
		t.Errorf("NextDeployment(1) = %+v, want d2", got)
	}
	if got := s.NextDeployment(2); got != nil {
		t.Errorf("NextDeployment(2) = %+v, want nil", got)
	}
	if got := s.PreviousDeployment(2); got == nil || got.ID != "d1" {
		t.Errorf("PreviousDeployment(2) = %+v, want d1", got)
	}
	if got := s.PreviousDeployment(1); got != nil {
		t.Errorf("PreviousDeployment(1) = %+v, want nil", got)
	}
}

func TestDeploymentStartable(t *testing.T) {
	s := twoDeploymentStep()

	// D1 has no predecessor.
	if !DeploymentStartable(s, *s.FirstDeployment(), nil) {
		t.Error("first deployment not startable")
	}
	// D2 waits for D1's released run.
	if DeploymentStartable(s, *s.LastDeployment(), nil) {
		t.Error("second deployment startable before first released")
	}
	runs := []DeploymentRun{{DeploymentID: "d1", Status: DeploymentRunUploaded}}
	if DeploymentStartable(s, *s.LastDeployment(), runs) {
		t.Error("uploaded-but-not-released run unblocked the next deployment")
	}
	runs[0].Status = DeploymentRunReleased
	if !DeploymentStartable(s, *s.LastDeployment(), runs) {
		t.Error("second deployment not startable after first released")
	}
}

func TestFinishedDeployments(t *testing.T) {
	s := twoDeploymentStep()

	if FinishedDeployments(s, nil) {
		t.Error("no runs reported finished")
	}
	runs := []DeploymentRun{{DeploymentID: "d1", Status: DeploymentRunReleased}}
	if FinishedDeployments(s, runs) {
		t.Error("one of two deployments reported finished")
	}
	runs = append(runs, DeploymentRun{DeploymentID: "d2", Status: DeploymentRunReleased})
	if !FinishedDeployments(s, runs) {
		t.Error("all-released step not reported finished")
	}
	if FinishedDeployments(Step{ID: "empty"}, runs) {
		t.Error("step with no deployments reported finished")
	}
}

func TestDeploymentChannelKinds(t *testing.T) {
	tests := []struct {
		integration IntegrationType
		store       bool
	}{
		{IntegrationInternal, false},
		{IntegrationFirebase, true},
		{IntegrationPlayStore, true},
		{IntegrationAppStore, true},
	}
	for _, tt := range tests {
		d := Deployment{Integration: tt.integration}
		if got := d.StoreChannel(); got != tt.store {
			t.Errorf("%s StoreChannel = %v, want %v", tt.integration, got, tt.store)
		}
	}

	d := Deployment{RolloutStages: []float64{1, 5, 100}}
	if !d.StagedRollout() {
		t.Error("configured stages not reported as staged rollout")
	}
	if (Deployment{}).StagedRollout() {
		t.Error("empty stages reported as staged rollout")
	}
}
