package model

import "time"

// EffectKind classifies a side effect produced by a state transition.
type EffectKind string

const (
	EffectEnqueue EffectKind = "enqueue"
	EffectStamp   EffectKind = "stamp"
	EffectNotify  EffectKind = "notify"
)

// Effect is a side effect returned by a transition method instead of
// being performed inline. The coordinator's executor applies effects
// only after the state mutation has committed, so a rolled-back
// transition never enqueues work or writes audit records.
type Effect struct {
	Kind EffectKind

	// enqueue
	Job   string
	Args  map[string]string
	Delay time.Duration

	// stamp / notify
	EntityType string
	EntityID   string
	Reason     string
	Severity   string
	Message    string
}

func Enqueue(job string, args map[string]string) Effect {
	return Effect{Kind: EffectEnqueue, Job: job, Args: args}
}

func EnqueueIn(delay time.Duration, job string, args map[string]string) Effect {
	return Effect{Kind: EffectEnqueue, Job: job, Args: args, Delay: delay}
}

func Stamp(entityType, entityID, reason, severity, message string) Effect {
	return Effect{
		Kind:       EffectStamp,
		EntityType: entityType,
		EntityID:   entityID,
		Reason:     reason,
		Severity:   severity,
		Message:    message,
	}
}

func Notify(entityType, entityID, reason, message string) Effect {
	return Effect{
		Kind:       EffectNotify,
		EntityType: entityType,
		EntityID:   entityID,
		Reason:     reason,
		Message:    message,
	}
}
