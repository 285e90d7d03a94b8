package model

import "sort"

type StepKind string

const (
	StepReview  StepKind = "review"
	StepRelease StepKind = "release"
)

// Step is a static, ordered pipeline stage within a platform's track.
// Steps are numbered from 1 and execute strictly in number order.
type Step struct {
	ID         string   `json:"id"`
	TrainID    string   `json:"trainId"`
	Platform   Platform `json:"platform"`
	Number     int      `json:"number"`
	Name       string   `json:"name"`
	Kind       StepKind `json:"kind"`
	CIWorkflow string   `json:"ciWorkflow"`

	Deployments []Deployment `json:"deployments"`
}

type IntegrationType string

const (
	IntegrationInternal  IntegrationType = "internal"
	IntegrationFirebase  IntegrationType = "firebase"
	IntegrationPlayStore IntegrationType = "play_store"
	IntegrationAppStore  IntegrationType = "app_store"
)

// Deployment is a configured delivery channel within a step, numbered
// for strict sequencing.
type Deployment struct {
	ID            string          `json:"id"`
	StepID        string          `json:"stepId"`
	Number        int             `json:"number"`
	Integration   IntegrationType `json:"integration"`
	Channel       string          `json:"channel"`
	IsProduction  bool            `json:"isProduction"`
	RolloutStages []float64       `json:"rolloutStages,omitempty"`
}

// StagedRollout reports whether releasing through this channel goes
// through percentage stages instead of all at once.
func (d Deployment) StagedRollout() bool { return len(d.RolloutStages) > 0 }

// StoreChannel reports whether the channel delivers through an app
// store (and therefore through a store submission).
func (d Deployment) StoreChannel() bool {
	return d.Integration == IntegrationPlayStore || d.Integration == IntegrationAppStore || d.Integration == IntegrationFirebase
}

func (s *Step) sorted() []Deployment {
	ds := make([]Deployment, len(s.Deployments))
	copy(ds, s.Deployments)
	sort.Slice(ds, func(i, j int) bool { return ds[i].Number < ds[j].Number })
	return ds
}

func (s *Step) FirstDeployment() *Deployment {
	ds := s.sorted()
	if len(ds) == 0 {
		return nil
	}
	return &ds[0]
}

func (s *Step) LastDeployment() *Deployment {
	ds := s.sorted()
	if len(ds) == 0 {
		return nil
	}
	return &ds[len(ds)-1]
}

// NextDeployment returns the deployment following number, or nil at the
// end of the sequence.
func (s *Step) NextDeployment(number int) *Deployment {
	for _, d := range s.sorted() {
		if d.Number > number {
			return &d
		}
	}
	return nil
}

// PreviousDeployment returns the deployment before number, or nil at
// the head of the sequence.
func (s *Step) PreviousDeployment(number int) *Deployment {
	ds := s.sorted()
	var prev *Deployment
	for i := range ds {
		if ds[i].Number >= number {
			break
		}
		prev = &ds[i]
	}
	return prev
}

func (s *Step) DeploymentByID(id string) *Deployment {
	for i := range s.Deployments {
		if s.Deployments[i].ID == id {
			return &s.Deployments[i]
		}
	}
	return nil
}

// FinishedDeployments reports whether every deployment of the step has
// a released run, the finish guard for a step run.
func FinishedDeployments(step Step, runs []DeploymentRun) bool {
	if len(step.Deployments) == 0 {
		return false
	}
	for _, d := range step.Deployments {
		ok := false
		for _, r := range runs {
			if r.DeploymentID == d.ID && r.Status == DeploymentRunReleased {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// DeploymentStartable reports whether a run for deployment d may be
// created within a step run: either it is the first deployment, or the
// previous one has a released run.
func DeploymentStartable(step Step, d Deployment, runs []DeploymentRun) bool {
	prev := step.PreviousDeployment(d.Number)
	if prev == nil {
		return true
	}
	for _, r := range runs {
		if r.DeploymentID == prev.ID && r.Status == DeploymentRunReleased {
			return true
		}
	}
	return false
}
