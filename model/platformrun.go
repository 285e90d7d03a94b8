package model

import (
	"fmt"
	"time"
)

type Platform string

const (
	PlatformAndroid Platform = "android"
	PlatformIOS     Platform = "ios"
)

type PlatformRunStatus string

const (
	PlatformRunCreated  PlatformRunStatus = "created"
	PlatformRunOnTrack  PlatformRunStatus = "on_track"
	PlatformRunStopped  PlatformRunStatus = "stopped"
	PlatformRunFinished PlatformRunStatus = "finished"
)

const (
	evPlatformRunStart  = "start"
	evPlatformRunFinish = "finish"
	evPlatformRunStop   = "stop"
)

var platformRunTransitions = TransitionTable{
	evPlatformRunStart:  {From: []string{string(PlatformRunCreated)}, To: string(PlatformRunOnTrack)},
	evPlatformRunFinish: {From: []string{string(PlatformRunOnTrack)}, To: string(PlatformRunFinished)},
	evPlatformRunStop:   {From: []string{string(PlatformRunCreated), string(PlatformRunOnTrack)}, To: string(PlatformRunStopped)},
}

// ReleasePlatformRun is one platform's execution of a release. Its
// release version can be bumped independently of the parent release
// once production has started for the platform, which is what lets
// hotfix tracks diverge.
type ReleasePlatformRun struct {
	ID             string            `json:"id"`
	ReleaseID      string            `json:"releaseId"`
	Platform       Platform          `json:"platform"`
	CodeName       string            `json:"codeName"`
	ReleaseVersion string            `json:"releaseVersion"`
	Status         PlatformRunStatus `json:"status"`
	ProdStarted    bool              `json:"prodStarted"`
	ScheduledAt    time.Time         `json:"scheduledAt"`
	CompletedAt    *time.Time        `json:"completedAt,omitempty"`
	StoppedAt      *time.Time        `json:"stoppedAt,omitempty"`
}

func (p *ReleasePlatformRun) may(event string) bool {
	return platformRunTransitions.Can(event, string(p.Status))
}

func (p *ReleasePlatformRun) apply(event string) error {
	next, ok := platformRunTransitions.Next(event, string(p.Status))
	if !ok {
		return ErrInvalidTransition
	}
	p.Status = PlatformRunStatus(next)
	return nil
}

func (p *ReleasePlatformRun) MayStart() bool { return p.may(evPlatformRunStart) }

func (p *ReleasePlatformRun) Start() ([]Effect, error) {
	if err := p.apply(evPlatformRunStart); err != nil {
		return nil, err
	}
	return []Effect{
		Stamp(EntityPlatformRun, p.ID, "platform_run_started", SeverityNotice, string(p.Platform)+" run started"),
	}, nil
}

func (p *ReleasePlatformRun) MayFinish() bool { return p.may(evPlatformRunFinish) }

// Finish completes the platform run. The finished-steps guard is a
// structural query owned by the coordinator; this only performs the
// transition once the guard holds.
func (p *ReleasePlatformRun) Finish(now time.Time) ([]Effect, error) {
	if err := p.apply(evPlatformRunFinish); err != nil {
		return nil, err
	}
	p.CompletedAt = &now
	return []Effect{
		Stamp(EntityPlatformRun, p.ID, "platform_run_finished", SeveritySuccess, string(p.Platform)+" run finished"),
		Notify(EntityPlatformRun, p.ID, "platform_run_finished", string(p.Platform)+" "+p.ReleaseVersion+" finished"),
	}, nil
}

func (p *ReleasePlatformRun) MayStop() bool { return p.may(evPlatformRunStop) }

func (p *ReleasePlatformRun) Stop(now time.Time) ([]Effect, error) {
	if err := p.apply(evPlatformRunStop); err != nil {
		return nil, err
	}
	p.StoppedAt = &now
	return []Effect{
		Stamp(EntityPlatformRun, p.ID, "platform_run_stopped", SeverityError, string(p.Platform)+" run stopped"),
	}, nil
}

// BumpVersion moves the platform's own release version forward. Only
// legal once production delivery has started for this platform.
func (p *ReleasePlatformRun) BumpVersion(version string) error {
	if !p.ProdStarted {
		return fmt.Errorf("platform %s has not started production, version bump not allowed", p.Platform)
	}
	cur, err := ParseVersion(p.ReleaseVersion)
	if err != nil {
		return fmt.Errorf("platform run %s holds malformed version: %w", p.ID, err)
	}
	next, err := ParseVersion(version)
	if err != nil {
		return err
	}
	if next.Less(cur) {
		return fmt.Errorf("version %s regresses below %s", version, p.ReleaseVersion)
	}
	p.ReleaseVersion = version
	return nil
}

// NextStep computes the step a platform run should execute next: the
// first step with no run yet, or the step after the last run's step in
// number order. Nil when every step has been reached.
func NextStep(steps []Step, runs []StepRun) *Step {
	if len(steps) == 0 {
		return nil
	}
	maxNumber := 0
	byID := make(map[string]Step, len(steps))
	for _, s := range steps {
		byID[s.ID] = s
	}
	for _, r := range runs {
		if s, ok := byID[r.StepID]; ok && s.Number > maxNumber {
			maxNumber = s.Number
		}
	}
	if maxNumber == 0 {
		first := steps[0]
		for _, s := range steps[1:] {
			if s.Number < first.Number {
				first = s
			}
		}
		return &first
	}
	var next *Step
	for i := range steps {
		s := steps[i]
		if s.Number > maxNumber && (next == nil || s.Number < next.Number) {
			next = &s
		}
	}
	return next
}

// StepStartable reports whether a run for step may be created: the
// platform run must be on track, the step must be the computed next
// step, and the previous step's latest run must have succeeded. Steps
// are strictly sequential within a platform; platforms never contend.
func StepStartable(run *ReleasePlatformRun, step Step, steps []Step, stepRuns []StepRun) bool {
	if run.Status != PlatformRunOnTrack {
		return false
	}
	next := NextStep(steps, stepRuns)
	if next == nil || next.ID != step.ID {
		return false
	}
	var prev *Step
	for i := range steps {
		s := steps[i]
		if s.Number < step.Number && (prev == nil || s.Number > prev.Number) {
			prev = &s
		}
	}
	if prev == nil {
		return true
	}
	last := latestRunForStep(prev.ID, stepRuns)
	return last != nil && last.Status == StepRunSuccess
}

// FinishedSteps reports whether every step has a successful run for the
// given commit, the finish guard for a platform run.
func FinishedSteps(steps []Step, stepRuns []StepRun, commitID string) bool {
	if len(steps) == 0 {
		return false
	}
	for _, s := range steps {
		ok := false
		for _, r := range stepRuns {
			if r.StepID == s.ID && r.CommitID == commitID && r.Status == StepRunSuccess {
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

func latestRunForStep(stepID string, runs []StepRun) *StepRun {
	var last *StepRun
	for i := range runs {
		r := runs[i]
		if r.StepID != stepID {
			continue
		}
		if last == nil || r.ScheduledAt.After(last.ScheduledAt) {
			last = &r
		}
	}
	return last
}
