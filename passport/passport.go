package passport

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"conductor/model"
)

// Event is one append-only audit stamp tied polymorphically to a
// release entity. The engine writes these on every transition and never
// reads them back for decisions.
type Event struct {
	ID         string            `json:"id"`
	EntityType string            `json:"entityType"`
	EntityID   string            `json:"entityId"`
	Reason     string            `json:"reason"`
	Kind       string            `json:"kind"` // success, notice, error
	Message    string            `json:"message"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}

type Store interface {
	Append(ctx context.Context, evt *Event) error
	ListByEntity(ctx context.Context, entityType, entityID string) ([]Event, error)
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}

// validReasons is the closed reason set per entity type, enforced at
// write time.
var validReasons = map[string]map[string]bool{
	model.EntityTrain: set("train_created", "train_activated", "version_bumped"),
	model.EntityRelease: set(
		"release_started", "release_stopped", "release_finished",
		"post_release_scheduled", "post_release_started", "post_release_failed", "post_release_retried",
		"version_corrected",
	),
	model.EntityPlatformRun: set(
		"platform_run_started", "platform_run_finished", "platform_run_stopped",
		"production_started", "version_bumped",
	),
	model.EntityStepRun: set(
		"ci_triggered", "ci_started", "ci_finished", "ci_unavailable", "ci_failed", "ci_halted",
		"build_found", "build_available", "build_not_found", "build_unavailable",
		"deployments_started", "step_finished", "step_retried",
	),
	model.EntityDeploymentRun: set(
		"deployment_started", "deployment_uploaded", "deployment_released", "deployment_failed",
	),
	model.EntityBuildQueue: set("queue_opened", "queue_applied", "commit_added"),
	model.EntitySubmission: set(
		"submission_preparing", "submission_prepared", "submitted_for_review",
		"submission_approved", "review_rejected", "submission_failed",
		"submission_action_required", "submission_retried",
	),
	model.EntityRollout: set(
		"rollout_started", "rollout_advanced", "rollout_completed", "rollout_paused",
		"rollout_resumed", "rollout_halted", "rollout_failed", "rollout_retried",
		"rollout_fully_released", "rollout_syncing", "rollout_synced",
	),
}

func set(reasons ...string) map[string]bool {
	m := make(map[string]bool, len(reasons))
	for _, r := range reasons {
		m[r] = true
	}
	return m
}

// ValidReason reports whether reason belongs to entityType's closed set.
func ValidReason(entityType, reason string) bool {
	return validReasons[entityType][reason]
}

// New builds a validated event ready to append.
func New(entityType, entityID, reason, kind, message string, metadata map[string]string, now time.Time) (*Event, error) {
	if !ValidReason(entityType, reason) {
		return nil, fmt.Errorf("passport: reason %q not valid for %s", reason, entityType)
	}
	switch kind {
	case model.SeveritySuccess, model.SeverityNotice, model.SeverityError:
	default:
		return nil, fmt.Errorf("passport: unknown kind %q", kind)
	}
	return &Event{
		ID:         uuid.New().String(),
		EntityType: entityType,
		EntityID:   entityID,
		Reason:     reason,
		Kind:       kind,
		Message:    message,
		Metadata:   metadata,
		Timestamp:  now,
	}, nil
}
