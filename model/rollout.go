package model

import (
	"fmt"
	"time"
)

type RolloutStatus string

const (
	RolloutCreated       RolloutStatus = "created"
	RolloutStarted       RolloutStatus = "started"
	RolloutPaused        RolloutStatus = "paused"
	RolloutHalted        RolloutStatus = "halted"
	RolloutCompleted     RolloutStatus = "completed"
	RolloutFullyReleased RolloutStatus = "fully_released"
	RolloutFailed        RolloutStatus = "failed"
	RolloutSyncing       RolloutStatus = "syncing"
)

const (
	evRolloutStart        = "start"
	evRolloutPause        = "pause"
	evRolloutResume       = "resume"
	evRolloutHalt         = "halt"
	evRolloutComplete     = "complete"
	evRolloutFully        = "release_fully"
	evRolloutFail      = "fail"
	evRolloutRetry     = "retry"
	evRolloutBeginSync = "begin_sync"
)

var rolloutTransitions = TransitionTable{
	evRolloutStart:  {From: []string{string(RolloutCreated)}, To: string(RolloutStarted)},
	evRolloutPause:  {From: []string{string(RolloutStarted)}, To: string(RolloutPaused)},
	evRolloutResume: {From: []string{string(RolloutPaused), string(RolloutHalted)}, To: string(RolloutStarted)},
	evRolloutHalt: {
		From: []string{string(RolloutStarted), string(RolloutPaused), string(RolloutFailed)},
		To:   string(RolloutHalted),
	},
	evRolloutComplete: {From: []string{string(RolloutStarted)}, To: string(RolloutCompleted)},
	evRolloutFully: {
		From: []string{string(RolloutStarted), string(RolloutPaused), string(RolloutCompleted)},
		To:   string(RolloutFullyReleased),
	},
	evRolloutFail:  {From: []string{string(RolloutStarted)}, To: string(RolloutFailed)},
	evRolloutRetry: {From: []string{string(RolloutFailed)}, To: string(RolloutStarted)},
	evRolloutBeginSync: {
		From: []string{string(RolloutStarted), string(RolloutPaused), string(RolloutHalted), string(RolloutFailed)},
		To:   string(RolloutSyncing),
	},
}

// NoStage marks a rollout that has not applied any stage yet.
const NoStage = -1

// StoreRollout is the staged percentage progression of an approved
// build. The stage index only moves after a successful provider
// round-trip, keeping local and store state in lock-step; it never
// decreases except when an external sync re-derives it from the store.
type StoreRollout struct {
	ID                    string             `json:"id"`
	SubmissionID          string             `json:"submissionId"`
	PlatformRunID         string             `json:"platformRunId"`
	Provider              SubmissionProvider `json:"provider"`
	Config                []float64          `json:"config"`
	CurrentStage          int                `json:"currentStage"`
	LastRolloutPercentage float64            `json:"lastRolloutPercentage"`
	Status                RolloutStatus      `json:"status"`
	PreSyncStatus         string             `json:"preSyncStatus,omitempty"`
	CreatedAt             time.Time          `json:"createdAt"`
	CompletedAt           *time.Time         `json:"completedAt,omitempty"`
}

func NewStoreRollout(id string, sub *StoreSubmission, config []float64, now time.Time) (*StoreRollout, error) {
	if len(config) == 0 {
		return nil, fmt.Errorf("rollout config must name at least one stage")
	}
	last := 0.0
	for _, pct := range config {
		if pct <= last || pct > 100 {
			return nil, fmt.Errorf("rollout stages must strictly increase up to 100, got %v", config)
		}
		last = pct
	}
	return &StoreRollout{
		ID:            id,
		SubmissionID:  sub.ID,
		PlatformRunID: sub.PlatformRunID,
		Provider:      sub.Provider,
		Config:        config,
		CurrentStage:  NoStage,
		Status:        RolloutCreated,
		CreatedAt:     now,
	}, nil
}

func (r *StoreRollout) may(event string) bool {
	return rolloutTransitions.Can(event, string(r.Status))
}

func (r *StoreRollout) apply(event string) error {
	next, ok := rolloutTransitions.Next(event, string(r.Status))
	if !ok {
		return ErrInvalidTransition
	}
	r.Status = RolloutStatus(next)
	return nil
}

// NextPercentage returns the percentage the next stage advance targets.
func (r *StoreRollout) NextPercentage() (float64, bool) {
	idx := r.CurrentStage + 1
	if idx >= len(r.Config) {
		return 0, false
	}
	return r.Config[idx], true
}

func (r *StoreRollout) LastStage() bool {
	return r.CurrentStage == len(r.Config)-1
}

func (r *StoreRollout) MayStart() bool { return r.may(evRolloutStart) }

func (r *StoreRollout) Start() ([]Effect, error) {
	if err := r.apply(evRolloutStart); err != nil {
		return nil, err
	}
	return []Effect{
		Stamp(EntityRollout, r.ID, "rollout_started", SeverityNotice, "staged rollout started"),
	}, nil
}

// MayAdvance reports whether a stage advance is currently legal.
func (r *StoreRollout) MayAdvance() bool {
	if r.Status != RolloutStarted {
		return false
	}
	_, ok := r.NextPercentage()
	return ok
}

// AdvanceStage commits a stage advance after the provider call
// succeeded. Advancing past the final stage auto-completes the rollout.
func (r *StoreRollout) AdvanceStage(now time.Time) ([]Effect, error) {
	if !r.MayAdvance() {
		return nil, ErrInvalidTransition
	}
	r.CurrentStage++
	r.LastRolloutPercentage = r.Config[r.CurrentStage]
	effects := []Effect{
		Stamp(EntityRollout, r.ID, "rollout_advanced", SeverityNotice,
			fmt.Sprintf("rollout at %.5g%% (stage %d/%d)", r.LastRolloutPercentage, r.CurrentStage+1, len(r.Config))),
	}
	if r.LastStage() {
		if err := r.apply(evRolloutComplete); err != nil {
			return nil, err
		}
		r.CompletedAt = &now
		effects = append(effects,
			Stamp(EntityRollout, r.ID, "rollout_completed", SeveritySuccess, "staged rollout completed"),
			Notify(EntityRollout, r.ID, "rollout_completed", "staged rollout completed"),
		)
	}
	return effects, nil
}

// FailAdvance records a provider failure; the stage index stays where
// it was.
func (r *StoreRollout) FailAdvance(cause string) ([]Effect, error) {
	if err := r.apply(evRolloutFail); err != nil {
		return nil, err
	}
	return []Effect{
		Stamp(EntityRollout, r.ID, "rollout_failed", SeverityError, "stage change failed: "+cause),
		Notify(EntityRollout, r.ID, "rollout_failed", "rollout stage change failed"),
	}, nil
}

func (r *StoreRollout) MayRetry() bool { return r.may(evRolloutRetry) }

func (r *StoreRollout) RetryAdvance() ([]Effect, error) {
	if err := r.apply(evRolloutRetry); err != nil {
		return nil, err
	}
	return []Effect{
		Stamp(EntityRollout, r.ID, "rollout_retried", SeverityNotice, "rollout resumed after failure"),
	}, nil
}

func (r *StoreRollout) MayPause() bool {
	return r.Provider.CanPauseRollout() && r.may(evRolloutPause)
}

func (r *StoreRollout) Pause() ([]Effect, error) {
	if !r.Provider.CanPauseRollout() {
		return nil, ErrInvalidTransition
	}
	if err := r.apply(evRolloutPause); err != nil {
		return nil, err
	}
	return []Effect{
		Stamp(EntityRollout, r.ID, "rollout_paused", SeverityNotice, "rollout paused"),
	}, nil
}

func (r *StoreRollout) MayResume() bool { return r.may(evRolloutResume) }

func (r *StoreRollout) Resume() ([]Effect, error) {
	if err := r.apply(evRolloutResume); err != nil {
		return nil, err
	}
	return []Effect{
		Stamp(EntityRollout, r.ID, "rollout_resumed", SeverityNotice, "rollout resumed"),
	}, nil
}

func (r *StoreRollout) MayHalt() bool { return r.may(evRolloutHalt) }

func (r *StoreRollout) Halt() ([]Effect, error) {
	if err := r.apply(evRolloutHalt); err != nil {
		return nil, err
	}
	return []Effect{
		Stamp(EntityRollout, r.ID, "rollout_halted", SeverityError, "rollout halted"),
		Notify(EntityRollout, r.ID, "rollout_halted", "rollout halted"),
	}, nil
}

func (r *StoreRollout) MayReleaseFully() bool { return r.may(evRolloutFully) }

// ReleaseFully jumps the rollout to 100% after a successful provider
// call.
func (r *StoreRollout) ReleaseFully(now time.Time) ([]Effect, error) {
	if err := r.apply(evRolloutFully); err != nil {
		return nil, err
	}
	r.CurrentStage = len(r.Config) - 1
	r.LastRolloutPercentage = 100
	r.CompletedAt = &now
	return []Effect{
		Stamp(EntityRollout, r.ID, "rollout_fully_released", SeveritySuccess, "released to all users"),
		Notify(EntityRollout, r.ID, "rollout_fully_released", "released to all users"),
	}, nil
}

// BeginSync records the pre-sync status and enters the transient
// syncing state while the authoritative store answer is fetched.
func (r *StoreRollout) BeginSync() ([]Effect, error) {
	if !r.Provider.Syncable() {
		return nil, ErrInvalidTransition
	}
	pre := string(r.Status)
	if err := r.apply(evRolloutBeginSync); err != nil {
		return nil, err
	}
	r.PreSyncStatus = pre
	return []Effect{
		Stamp(EntityRollout, r.ID, "rollout_syncing", SeverityNotice, "reconciling with store state"),
	}, nil
}

// ResolveSync leaves the syncing state. The resolved status and stage
// are re-derived from what the store reported; this is the one place a
// stage index may move backwards.
func (r *StoreRollout) ResolveSync(resolved RolloutStatus, storePercentage float64, now time.Time) ([]Effect, error) {
	if r.Status != RolloutSyncing {
		return nil, ErrInvalidTransition
	}
	stage := NoStage
	for i, pct := range r.Config {
		if pct <= storePercentage {
			stage = i
		}
	}
	r.CurrentStage = stage
	if storePercentage > 0 {
		r.LastRolloutPercentage = storePercentage
	}
	r.Status = resolved
	if resolved == RolloutCompleted || resolved == RolloutFullyReleased {
		r.CompletedAt = &now
	}
	r.PreSyncStatus = ""
	return []Effect{
		Stamp(EntityRollout, r.ID, "rollout_synced", SeverityNotice,
			fmt.Sprintf("store reports %.5g%%, status %s", storePercentage, resolved)),
	}, nil
}
