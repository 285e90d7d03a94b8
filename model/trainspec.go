package model

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// TrainSpec is the YAML definition of a train: versioning, branching,
// and the per-platform step/deployment pipeline.
type TrainSpec struct {
	App           string `yaml:"app"`
	Name          string `yaml:"name"`
	Version       string `yaml:"version"`
	Versioning    string `yaml:"versioning,omitempty"`
	Branching     string `yaml:"branching,omitempty"`
	WorkingBranch string `yaml:"working_branch,omitempty"`
	CIProvider    string `yaml:"ci_provider,omitempty"`

	BuildQueue struct {
		Enabled bool     `yaml:"enabled"`
		Size    int      `yaml:"size,omitempty"`
		Wait    Duration `yaml:"wait,omitempty"`
	} `yaml:"build_queue,omitempty"`

	Platforms []PlatformSpec `yaml:"platforms"`
}

type PlatformSpec struct {
	Platform Platform   `yaml:"platform"`
	Steps    []StepSpec `yaml:"steps"`
}

type StepSpec struct {
	Name        string           `yaml:"name"`
	Kind        StepKind         `yaml:"kind,omitempty"`
	CIWorkflow  string           `yaml:"ci_workflow"`
	Deployments []DeploymentSpec `yaml:"deployments"`
}

type DeploymentSpec struct {
	Integration   IntegrationType `yaml:"integration"`
	Channel       string          `yaml:"channel"`
	Production    bool            `yaml:"production,omitempty"`
	RolloutStages []float64       `yaml:"rollout_stages,omitempty"`
}

// Duration decodes YAML strings like "1h" or "90s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// LoadTrainSpec reads and validates a train definition file.
func LoadTrainSpec(path string) (*TrainSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseTrainSpec(data)
}

func ParseTrainSpec(data []byte) (*TrainSpec, error) {
	var spec TrainSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("parse train spec: %w", err)
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &spec, nil
}

func (s *TrainSpec) Validate() error {
	if s.App == "" {
		return fmt.Errorf("train spec: app is required")
	}
	if s.Name == "" {
		return fmt.Errorf("train spec: name is required")
	}
	if _, err := ParseVersion(s.Version); err != nil {
		return fmt.Errorf("train spec: %w", err)
	}
	if len(s.Platforms) == 0 {
		return fmt.Errorf("train spec: at least one platform is required")
	}
	if s.CIProvider == "" {
		s.CIProvider = "nomad"
	}
	seen := map[Platform]bool{}
	for _, p := range s.Platforms {
		if p.Platform != PlatformAndroid && p.Platform != PlatformIOS {
			return fmt.Errorf("train spec: unknown platform %q", p.Platform)
		}
		if seen[p.Platform] {
			return fmt.Errorf("train spec: platform %q listed twice", p.Platform)
		}
		seen[p.Platform] = true
		if len(p.Steps) == 0 {
			return fmt.Errorf("train spec: platform %q has no steps", p.Platform)
		}
		for _, st := range p.Steps {
			if st.Name == "" || st.CIWorkflow == "" {
				return fmt.Errorf("train spec: every step needs a name and a ci_workflow")
			}
			if len(st.Deployments) == 0 {
				return fmt.Errorf("train spec: step %q has no deployments", st.Name)
			}
			for _, d := range st.Deployments {
				switch d.Integration {
				case IntegrationInternal, IntegrationFirebase, IntegrationPlayStore, IntegrationAppStore:
				default:
					return fmt.Errorf("train spec: step %q: unknown integration %q", st.Name, d.Integration)
				}
				if len(d.RolloutStages) > 0 {
					last := 0.0
					for _, pct := range d.RolloutStages {
						if pct <= last || pct > 100 {
							return fmt.Errorf("train spec: step %q: rollout stages must strictly increase up to 100", st.Name)
						}
						last = pct
					}
				}
			}
		}
	}
	if s.BuildQueue.Enabled {
		if s.BuildQueue.Size <= 0 {
			return fmt.Errorf("train spec: build_queue.size must be positive when enabled")
		}
		if s.BuildQueue.Wait <= 0 {
			return fmt.Errorf("train spec: build_queue.wait must be positive when enabled")
		}
	}
	return nil
}

// Materialize turns the spec into a Train and its step/deployment rows.
func (s *TrainSpec) Materialize(now time.Time) (*Train, []Step, error) {
	train, err := NewTrain(uuid.New().String(), s.App, s.Name, s.Version,
		VersioningStrategy(s.Versioning), BranchingStrategy(s.Branching), s.WorkingBranch, now)
	if err != nil {
		return nil, nil, err
	}
	train.CIProvider = s.CIProvider
	train.BuildQueueEnabled = s.BuildQueue.Enabled
	train.BuildQueueSize = s.BuildQueue.Size
	train.BuildQueueWait = time.Duration(s.BuildQueue.Wait)

	var steps []Step
	for _, p := range s.Platforms {
		for i, st := range p.Steps {
			kind := st.Kind
			if kind == "" {
				kind = StepReview
				if i == len(p.Steps)-1 {
					kind = StepRelease
				}
			}
			step := Step{
				ID:         uuid.New().String(),
				TrainID:    train.ID,
				Platform:   p.Platform,
				Number:     i + 1,
				Name:       st.Name,
				Kind:       kind,
				CIWorkflow: st.CIWorkflow,
			}
			for j, d := range st.Deployments {
				step.Deployments = append(step.Deployments, Deployment{
					ID:            uuid.New().String(),
					StepID:        step.ID,
					Number:        j + 1,
					Integration:   d.Integration,
					Channel:       d.Channel,
					IsProduction:  d.Production,
					RolloutStages: d.RolloutStages,
				})
			}
			steps = append(steps, step)
		}
	}
	return train, steps, nil
}
