package model

import "time"

// BuildQueue is a batching window that coalesces rapid commits into one
// triggered build. Exactly one active queue exists per release; a
// delayed job force-applies a queue after the configured wait so no
// commit is held indefinitely.
type BuildQueue struct {
	ID        string     `json:"id"`
	ReleaseID string     `json:"releaseId"`
	Active    bool       `json:"active"`
	CreatedAt time.Time  `json:"createdAt"`
	AppliedAt *time.Time `json:"appliedAt,omitempty"`
}

// ShouldApply reports whether a queue holding commitCount commits has
// reached the train's threshold.
func (q *BuildQueue) ShouldApply(commitCount, threshold int) bool {
	return q.Active && threshold > 0 && commitCount >= threshold
}

// Apply deactivates the queue. The coordinator triggers step runs for
// the queue's head commit and opens the next active queue in the same
// flow.
func (q *BuildQueue) Apply(now time.Time) ([]Effect, error) {
	if !q.Active {
		return nil, ErrInvalidTransition
	}
	q.Active = false
	q.AppliedAt = &now
	return []Effect{
		Stamp(EntityBuildQueue, q.ID, "queue_applied", SeverityNotice, "build queue applied"),
	}, nil
}

// Commit is a normalized VCS commit attached to a release (and, while
// batching, to its active build queue).
type Commit struct {
	ID           string     `json:"id"`
	ReleaseID    string     `json:"releaseId"`
	Hash         string     `json:"hash"`
	Author       string     `json:"author"`
	Message      string     `json:"message,omitempty"`
	Branch       string     `json:"branch"`
	Timestamp    time.Time  `json:"timestamp"`
	BuildQueueID *string    `json:"buildQueueId,omitempty"`
	AppliedAt    *time.Time `json:"appliedAt,omitempty"`
}
