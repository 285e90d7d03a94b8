// Package provider defines the capability interfaces the engine
// consumes. The core depends only on these shapes; vendor wire formats
// stay behind the implementations.
package provider

import (
	"context"
	"errors"
	"io"
)

// ErrNotYetAvailable signals an external operation still pending: the
// caller should poll again later, not fail. Distinct from hard errors.
var ErrNotYetAvailable = errors.New("external operation not yet in a terminal state")

// ErrNotFound signals the external system has no record of the asked
// workflow, build, or release.
var ErrNotFound = errors.New("not found in external system")

// WorkflowRunStatus is the normalized CI status the engine consumes.
type WorkflowRunStatus string

const (
	WorkflowPending     WorkflowRunStatus = "pending"
	WorkflowStarted     WorkflowRunStatus = "started"
	WorkflowSucceeded   WorkflowRunStatus = "succeeded"
	WorkflowFailed      WorkflowRunStatus = "failed"
	WorkflowHalted      WorkflowRunStatus = "halted"
	WorkflowUnavailable WorkflowRunStatus = "unavailable"
)

// WorkflowRun describes a triggered CI workflow.
type WorkflowRun struct {
	Ref         string
	Link        string
	Number      string
	Status      WorkflowRunStatus
	ArtifactURL string
}

// CI triggers and observes build workflows.
type CI interface {
	TriggerWorkflowRun(ctx context.Context, workflow, branch string, inputs map[string]string, commitHash string) (WorkflowRun, error)
	GetWorkflowRun(ctx context.Context, ref string) (WorkflowRun, error)
	GetArtifact(ctx context.Context, url string) (io.ReadCloser, error)
	ListChannels(ctx context.Context) ([]string, error)
}

// ReleaseStatus is the normalized store-side release state.
type ReleaseStatus string

const (
	ReleaseInProgress ReleaseStatus = "in_progress"
	ReleaseInReview   ReleaseStatus = "in_review"
	ReleaseApproved   ReleaseStatus = "approved"
	ReleaseRejected   ReleaseStatus = "rejected"
	ReleaseHalted     ReleaseStatus = "halted"
	ReleasePaused     ReleaseStatus = "paused"
	ReleaseLive       ReleaseStatus = "live"
	ReleaseFullyLive  ReleaseStatus = "fully_live"
)

// ReleaseInfo is what a store reports about a release.
type ReleaseInfo struct {
	Status         ReleaseStatus
	BuildNumber    string
	Version        string
	UserFraction   float64 // 0..100
	FailureReason  string
}

// StoreDistributor drives a store's release lifecycle: prepare, submit,
// observe, and stage a rollout. One implementation per vendor; vendor
// quirks are methods here, not subclasses.
type StoreDistributor interface {
	PrepareRelease(ctx context.Context, channel, buildNumber, version string) (ReleaseInfo, error)
	SubmitRelease(ctx context.Context, channel, buildNumber, version string) (ReleaseInfo, error)
	FindRelease(ctx context.Context, buildNumber string) (ReleaseInfo, error)
	RolloutRelease(ctx context.Context, channel, buildNumber, version string, percentage float64) error
	HaltRelease(ctx context.Context, channel, buildNumber, version string) error
	CompleteRelease(ctx context.Context, channel, buildNumber, version string) error
}
