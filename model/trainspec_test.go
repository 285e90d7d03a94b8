package model

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const testTrainYAML = `app: acme-mobile
name: mobile
version: "1.2.0"
versioning: semver
branching: almost_trunk
working_branch: main
build_queue:
  enabled: true
  size: 5
  wait: 1h
platforms:
  - platform: android
    steps:
      - name: internal
        ci_workflow: android-build
        deployments:
          - integration: firebase
            channel: qa-testers
      - name: production
        ci_workflow: android-release
        deployments:
          - integration: play_store
            channel: production
            production: true
            rollout_stages: [1, 5, 10, 50, 100]
  - platform: ios
    steps:
      - name: production
        ci_workflow: ios-release
        deployments:
          - integration: app_store
            channel: production
            production: true
`

func TestLoadTrainSpec(t *testing.T) {
	dir := t.TempDir()
	specFile := filepath.Join(dir, "mobile.yaml")
	if err := os.WriteFile(specFile, []byte(testTrainYAML), 0644); err != nil {
		t.Fatal(err)
	}

	spec, err := LoadTrainSpec(specFile)
	if err != nil {
		t.Fatalf("LoadTrainSpec: %v", err)
	}

	if spec.App != "acme-mobile" {
		t.Errorf("App = %q", spec.App)
	}
	if spec.Name != "mobile" {
		t.Errorf("Name = %q", spec.Name)
	}
	if spec.Version != "1.2.0" {
		t.Errorf("Version = %q", spec.Version)
	}
	if !spec.BuildQueue.Enabled || spec.BuildQueue.Size != 5 || time.Duration(spec.BuildQueue.Wait) != time.Hour {
		t.Errorf("BuildQueue = %+v", spec.BuildQueue)
	}
	if spec.CIProvider != "nomad" {
		t.Errorf("CIProvider default = %q, want nomad", spec.CIProvider)
	}
	if len(spec.Platforms) != 2 {
		t.Fatalf("Platforms = %d", len(spec.Platforms))
	}
	stages := spec.Platforms[0].Steps[1].Deployments[0].RolloutStages
	if len(stages) != 5 || stages[0] != 1 || stages[4] != 100 {
		t.Errorf("RolloutStages = %v", stages)
	}
}

func TestParseTrainSpecRejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing app", "name: x\nversion: \"1.0.0\"\nplatforms:\n  - platform: android\n    steps:\n      - name: s\n        ci_workflow: w\n        deployments:\n          - integration: internal\n            channel: c\n"},
		{"bad version", "app: a\nname: x\nversion: nope\nplatforms:\n  - platform: android\n    steps:\n      - name: s\n        ci_workflow: w\n        deployments:\n          - integration: internal\n            channel: c\n"},
		{"no platforms", "app: a\nname: x\nversion: \"1.0.0\"\n"},
		{"unknown platform", "app: a\nname: x\nversion: \"1.0.0\"\nplatforms:\n  - platform: windows\n    steps:\n      - name: s\n        ci_workflow: w\n        deployments:\n          - integration: internal\n            channel: c\n"},
		{"no steps", "app: a\nname: x\nversion: \"1.0.0\"\nplatforms:\n  - platform: android\n    steps: []\n"},
		{"unknown integration", "app: a\nname: x\nversion: \"1.0.0\"\nplatforms:\n  - platform: android\n    steps:\n      - name: s\n        ci_workflow: w\n        deployments:\n          - integration: steam\n            channel: c\n"},
		{"non-increasing stages", "app: a\nname: x\nversion: \"1.0.0\"\nplatforms:\n  - platform: android\n    steps:\n      - name: s\n        ci_workflow: w\n        deployments:\n          - integration: play_store\n            channel: c\n            rollout_stages: [10, 5]\n"},
		{"queue without size", "app: a\nname: x\nversion: \"1.0.0\"\nbuild_queue:\n  enabled: true\nplatforms:\n  - platform: android\n    steps:\n      - name: s\n        ci_workflow: w\n        deployments:\n          - integration: internal\n            channel: c\n"},
	}
	for _, tt := range tests {
		if _, err := ParseTrainSpec([]byte(tt.yaml)); err == nil {
			t.Errorf("%s: accepted", tt.name)
		}
	}
}

func TestMaterialize(t *testing.T) {
	spec, err := ParseTrainSpec([]byte(testTrainYAML))
	if err != nil {
		t.Fatalf("ParseTrainSpec: %v", err)
	}

	train, steps, err := spec.Materialize(time.Now())
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if train.CurrentVersion != "1.2.0" {
		t.Errorf("CurrentVersion = %q", train.CurrentVersion)
	}
	if !train.BuildQueueEnabled || train.BuildQueueSize != 5 {
		t.Errorf("build queue config not carried: %+v", train)
	}
	if len(steps) != 3 {
		t.Fatalf("steps = %d, want 3", len(steps))
	}

	// Last step of a platform defaults to the release kind.
	var android []Step
	for _, s := range steps {
		if s.Platform == PlatformAndroid {
			android = append(android, s)
		}
	}
	if len(android) != 2 {
		t.Fatalf("android steps = %d", len(android))
	}
	if android[0].Kind != StepReview {
		t.Errorf("step 1 kind = %q", android[0].Kind)
	}
	if android[1].Kind != StepRelease {
		t.Errorf("step 2 kind = %q", android[1].Kind)
	}
	if android[0].Number != 1 || android[1].Number != 2 {
		t.Errorf("step numbers = %d, %d", android[0].Number, android[1].Number)
	}
	if len(android[1].Deployments) != 1 || android[1].Deployments[0].Integration != IntegrationPlayStore {
		t.Errorf("deployments not materialized: %+v", android[1].Deployments)
	}
}
