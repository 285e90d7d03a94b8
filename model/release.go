package model

import "time"

type ReleaseStatus string

const (
	ReleaseCreated             ReleaseStatus = "created"
	ReleaseOnTrack             ReleaseStatus = "on_track"
	ReleasePostRelease         ReleaseStatus = "post_release"
	ReleasePostReleaseStarted  ReleaseStatus = "post_release_started"
	ReleasePostReleaseFailed   ReleaseStatus = "post_release_failed"
	ReleaseFinished            ReleaseStatus = "finished"
	ReleaseStopped             ReleaseStatus = "stopped"
)

const (
	evReleaseStart            = "start"
	evReleaseStartPostRelease = "start_post_release_phase"
	evReleaseBeginPostRelease = "begin_post_release"
	evReleaseFinish           = "finish"
	evReleaseFailPostRelease  = "fail_post_release"
	evReleaseRetryPostRelease = "retry_post_release"
	evReleaseStop             = "stop"
)

var releaseTransitions = TransitionTable{
	evReleaseStart:            {From: []string{string(ReleaseCreated)}, To: string(ReleaseOnTrack)},
	evReleaseStartPostRelease: {From: []string{string(ReleaseOnTrack)}, To: string(ReleasePostRelease)},
	evReleaseBeginPostRelease: {From: []string{string(ReleasePostRelease)}, To: string(ReleasePostReleaseStarted)},
	evReleaseFinish:           {From: []string{string(ReleasePostReleaseStarted)}, To: string(ReleaseFinished)},
	evReleaseFailPostRelease:  {From: []string{string(ReleasePostReleaseStarted)}, To: string(ReleasePostReleaseFailed)},
	evReleaseRetryPostRelease: {From: []string{string(ReleasePostReleaseFailed)}, To: string(ReleasePostRelease)},
	evReleaseStop:             {From: []string{string(ReleaseCreated), string(ReleaseOnTrack)}, To: string(ReleaseStopped)},
}

// Release is one end-to-end attempt to ship a version across all
// platforms. Immutable once finished or stopped.
type Release struct {
	ID              string        `json:"id"`
	TrainID         string        `json:"trainId"`
	BranchName      string        `json:"branchName"`
	Status          ReleaseStatus `json:"status"`
	OriginalVersion string        `json:"originalVersion"`
	Version         string        `json:"version"`
	Upcoming        bool          `json:"upcoming"`
	ScheduledAt     time.Time     `json:"scheduledAt"`
	StoppedAt       *time.Time    `json:"stoppedAt,omitempty"`
	CompletedAt     *time.Time    `json:"completedAt,omitempty"`
}

// IsHotfix reports whether the release version diverged from the
// version it was kicked off with.
func (r *Release) IsHotfix() bool { return r.Version != r.OriginalVersion }

func (r *Release) Active() bool {
	switch r.Status {
	case ReleaseFinished, ReleaseStopped:
		return false
	}
	return true
}

func (r *Release) may(event string) bool {
	return releaseTransitions.Can(event, string(r.Status))
}

func (r *Release) apply(event string) error {
	next, ok := releaseTransitions.Next(event, string(r.Status))
	if !ok {
		return ErrInvalidTransition
	}
	r.Status = ReleaseStatus(next)
	return nil
}

func (r *Release) MayStart() bool { return r.may(evReleaseStart) }

// Start moves the release on track. The coordinator fans the start out
// to every owned platform run in the same flow.
func (r *Release) Start() ([]Effect, error) {
	if err := r.apply(evReleaseStart); err != nil {
		return nil, err
	}
	return []Effect{
		Stamp(EntityRelease, r.ID, "release_started", SeverityNotice, "release "+r.Version+" started"),
		Notify(EntityRelease, r.ID, "release_started", "release "+r.Version+" is on track"),
	}, nil
}

func (r *Release) MayStartPostReleasePhase() bool { return r.may(evReleaseStartPostRelease) }

// StartPostReleasePhase enters the finalize phase and schedules the
// asynchronous finalize job. The all-platform-runs-finished barrier is
// checked by the coordinator before and re-checked under the row lock.
func (r *Release) StartPostReleasePhase() ([]Effect, error) {
	if err := r.apply(evReleaseStartPostRelease); err != nil {
		return nil, err
	}
	return []Effect{
		Enqueue(JobReleaseFinalize, map[string]string{ArgID: r.ID}),
		Stamp(EntityRelease, r.ID, "post_release_scheduled", SeverityNotice, "all platform runs finished, finalize scheduled"),
	}, nil
}

func (r *Release) BeginPostRelease() ([]Effect, error) {
	if err := r.apply(evReleaseBeginPostRelease); err != nil {
		return nil, err
	}
	return []Effect{
		Stamp(EntityRelease, r.ID, "post_release_started", SeverityNotice, "finalize started"),
	}, nil
}

func (r *Release) MayFinish() bool { return r.may(evReleaseFinish) }

// Finish marks the release done. The train version bump and the
// notification fan-out are cross-entity effects owned by the
// coordinator.
func (r *Release) Finish(now time.Time) ([]Effect, error) {
	if err := r.apply(evReleaseFinish); err != nil {
		return nil, err
	}
	r.CompletedAt = &now
	return []Effect{
		Stamp(EntityRelease, r.ID, "release_finished", SeveritySuccess, "release "+r.Version+" finished"),
		Notify(EntityRelease, r.ID, "release_finished", "release "+r.Version+" finished"),
	}, nil
}

func (r *Release) FailPostRelease(cause string) ([]Effect, error) {
	if err := r.apply(evReleaseFailPostRelease); err != nil {
		return nil, err
	}
	return []Effect{
		Stamp(EntityRelease, r.ID, "post_release_failed", SeverityError, "finalize failed: "+cause),
		Notify(EntityRelease, r.ID, "post_release_failed", "finalize failed: "+cause),
	}, nil
}

func (r *Release) MayRetryPostRelease() bool { return r.may(evReleaseRetryPostRelease) }

func (r *Release) RetryPostRelease() ([]Effect, error) {
	if err := r.apply(evReleaseRetryPostRelease); err != nil {
		return nil, err
	}
	return []Effect{
		Enqueue(JobReleaseFinalize, map[string]string{ArgID: r.ID}),
		Stamp(EntityRelease, r.ID, "post_release_retried", SeverityNotice, "finalize retried"),
	}, nil
}

func (r *Release) MayStop() bool { return r.may(evReleaseStop) }

// Stop ends the release early. The coordinator force-stops every owned
// platform run in the same flow.
func (r *Release) Stop(now time.Time) ([]Effect, error) {
	if err := r.apply(evReleaseStop); err != nil {
		return nil, err
	}
	r.StoppedAt = &now
	return []Effect{
		Stamp(EntityRelease, r.ID, "release_stopped", SeverityError, "release "+r.Version+" stopped"),
		Notify(EntityRelease, r.ID, "release_stopped", "release "+r.Version+" stopped"),
	}, nil
}
