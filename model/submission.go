package model

import "time"

// SubmissionProvider tags which store a submission goes through. The
// state machine shell is shared; vendor quirks are capability methods
// here and trait methods on the provider implementation.
type SubmissionProvider string

const (
	ProviderAppStore  SubmissionProvider = "app_store"
	ProviderPlayStore SubmissionProvider = "play_store"
	ProviderFirebase  SubmissionProvider = "firebase"
)

// Reviewed reports whether the store runs a human review phase.
// Firebase distributions go live as soon as preprocessing finishes.
func (p SubmissionProvider) Reviewed() bool { return p == ProviderAppStore }

// CanPauseRollout reports whether the store allows pausing a live
// staged rollout (as opposed to halting it).
func (p SubmissionProvider) CanPauseRollout() bool { return p == ProviderAppStore }

// Syncable reports whether rollout state can change out-of-band on the
// store side and therefore needs reconciliation.
func (p SubmissionProvider) Syncable() bool { return p == ProviderAppStore }

type SubmissionStatus string

const (
	SubmissionCreated            SubmissionStatus = "created"
	SubmissionPreparing          SubmissionStatus = "preparing"
	SubmissionPrepared           SubmissionStatus = "prepared"
	SubmissionSubmittedForReview SubmissionStatus = "submitted_for_review"
	SubmissionApproved           SubmissionStatus = "approved"
	SubmissionReviewFailed       SubmissionStatus = "review_failed"
	SubmissionFailed             SubmissionStatus = "failed"
	SubmissionFailedActionNeeded SubmissionStatus = "failed_with_action_required"
)

// Machine-readable failure reasons, the closed set surfaced to callers.
const (
	FailureInvalidBinary     = "invalid_binary"
	FailureDeveloperRejected = "developer_rejected"
	FailureReviewRejected    = "review_rejected"
	FailureMetadataMissing   = "metadata_missing"
	FailureUnknown           = "unknown"
)

const (
	evSubmissionStartPrepare = "start_prepare"
	evSubmissionMarkPrepared = "mark_prepared"
	evSubmissionSubmit       = "submit"
	evSubmissionApprove      = "approve"
	evSubmissionReject       = "reject"
	evSubmissionFail         = "fail"
	evSubmissionFailAction   = "fail_with_action"
	evSubmissionRetry        = "retry"
)

var submissionTransitions = TransitionTable{
	evSubmissionStartPrepare: {From: []string{string(SubmissionCreated)}, To: string(SubmissionPreparing)},
	evSubmissionMarkPrepared: {From: []string{string(SubmissionPreparing)}, To: string(SubmissionPrepared)},
	evSubmissionSubmit:       {From: []string{string(SubmissionPrepared)}, To: string(SubmissionSubmittedForReview)},
	evSubmissionApprove: {
		From: []string{string(SubmissionSubmittedForReview), string(SubmissionPrepared)},
		To:   string(SubmissionApproved),
	},
	evSubmissionReject: {From: []string{string(SubmissionSubmittedForReview)}, To: string(SubmissionReviewFailed)},
	evSubmissionFail: {
		From: []string{
			string(SubmissionCreated), string(SubmissionPreparing),
			string(SubmissionPrepared), string(SubmissionSubmittedForReview),
		},
		To: string(SubmissionFailed),
	},
	evSubmissionFailAction: {
		From: []string{string(SubmissionPreparing), string(SubmissionSubmittedForReview)},
		To:   string(SubmissionFailedActionNeeded),
	},
	evSubmissionRetry: {
		From: []string{string(SubmissionFailed), string(SubmissionFailedActionNeeded), string(SubmissionReviewFailed)},
		To:   string(SubmissionCreated),
	},
}

// StoreSubmission is one production (or beta) delivery of a build to a
// store: prepare, review, approve. Belongs to a deployment run and a
// platform run.
type StoreSubmission struct {
	ID              string             `json:"id"`
	PlatformRunID   string             `json:"platformRunId"`
	DeploymentRunID string             `json:"deploymentRunId"`
	Provider        SubmissionProvider `json:"provider"`
	Channel         string             `json:"channel"`
	BuildNumber     string             `json:"buildNumber"`
	Version         string             `json:"version"`
	Status          SubmissionStatus   `json:"status"`
	StoreStatus     string             `json:"storeStatus,omitempty"`
	FailureReason   string             `json:"failureReason,omitempty"`
	PreparedAt      *time.Time         `json:"preparedAt,omitempty"`
	SubmittedAt     *time.Time         `json:"submittedAt,omitempty"`
	ApprovedAt      *time.Time         `json:"approvedAt,omitempty"`
	RejectedAt      *time.Time         `json:"rejectedAt,omitempty"`
}

// Terminal reports whether the submission reached an end state that
// polling must not disturb.
func (s *StoreSubmission) Terminal() bool {
	switch s.Status {
	case SubmissionApproved, SubmissionReviewFailed, SubmissionFailed, SubmissionFailedActionNeeded:
		return true
	}
	return false
}

func (s *StoreSubmission) may(event string) bool {
	return submissionTransitions.Can(event, string(s.Status))
}

func (s *StoreSubmission) apply(event string) error {
	next, ok := submissionTransitions.Next(event, string(s.Status))
	if !ok {
		return ErrInvalidTransition
	}
	s.Status = SubmissionStatus(next)
	return nil
}

func (s *StoreSubmission) MayStartPrepare() bool { return s.may(evSubmissionStartPrepare) }

func (s *StoreSubmission) StartPrepare() ([]Effect, error) {
	if err := s.apply(evSubmissionStartPrepare); err != nil {
		return nil, err
	}
	return []Effect{
		Stamp(EntitySubmission, s.ID, "submission_preparing", SeverityNotice, "preparing store release"),
	}, nil
}

func (s *StoreSubmission) MarkPrepared(storeStatus string, now time.Time) ([]Effect, error) {
	if err := s.apply(evSubmissionMarkPrepared); err != nil {
		return nil, err
	}
	s.StoreStatus = storeStatus
	s.PreparedAt = &now
	return []Effect{
		Stamp(EntitySubmission, s.ID, "submission_prepared", SeverityNotice, "store release prepared"),
	}, nil
}

func (s *StoreSubmission) MaySubmit() bool { return s.may(evSubmissionSubmit) }

// Submit hands the build to store review and schedules the status poll.
func (s *StoreSubmission) Submit(now time.Time) ([]Effect, error) {
	if err := s.apply(evSubmissionSubmit); err != nil {
		return nil, err
	}
	s.SubmittedAt = &now
	return []Effect{
		EnqueueIn(time.Minute, JobSubmissionPoll, map[string]string{ArgID: s.ID}),
		Stamp(EntitySubmission, s.ID, "submitted_for_review", SeverityNotice, "submitted for store review"),
	}, nil
}

// Approve records the store's acceptance. For unreviewed providers this
// is legal straight from prepared.
func (s *StoreSubmission) Approve(storeStatus string, now time.Time) ([]Effect, error) {
	if err := s.apply(evSubmissionApprove); err != nil {
		return nil, err
	}
	s.StoreStatus = storeStatus
	s.ApprovedAt = &now
	return []Effect{
		Stamp(EntitySubmission, s.ID, "submission_approved", SeveritySuccess, "store approved build "+s.BuildNumber),
		Notify(EntitySubmission, s.ID, "submission_approved", "store approved build "+s.BuildNumber),
	}, nil
}

// Reject records a store review rejection. Recoverable: the submission
// can be retried after the operator addresses the reason.
func (s *StoreSubmission) Reject(storeStatus, reason string, now time.Time) ([]Effect, error) {
	if err := s.apply(evSubmissionReject); err != nil {
		return nil, err
	}
	s.StoreStatus = storeStatus
	s.FailureReason = reason
	s.RejectedAt = &now
	return []Effect{
		Stamp(EntitySubmission, s.ID, "review_rejected", SeverityError, "store review rejected: "+reason),
		Notify(EntitySubmission, s.ID, "review_rejected", "store review rejected: "+reason),
	}, nil
}

// Fail records a terminal failure with a machine-readable reason.
func (s *StoreSubmission) Fail(reason string) ([]Effect, error) {
	if err := s.apply(evSubmissionFail); err != nil {
		return nil, err
	}
	s.FailureReason = reason
	return []Effect{
		Stamp(EntitySubmission, s.ID, "submission_failed", SeverityError, "submission failed: "+reason),
		Notify(EntitySubmission, s.ID, "submission_failed", "submission failed: "+reason),
	}, nil
}

// FailWithActionRequired parks the submission in an actionable failed
// state: the vendor needs operator input before a retry can work.
func (s *StoreSubmission) FailWithActionRequired(reason string) ([]Effect, error) {
	if err := s.apply(evSubmissionFailAction); err != nil {
		return nil, err
	}
	s.FailureReason = reason
	return []Effect{
		Stamp(EntitySubmission, s.ID, "submission_action_required", SeverityError, "action required: "+reason),
		Notify(EntitySubmission, s.ID, "submission_action_required", "action required: "+reason),
	}, nil
}

func (s *StoreSubmission) MayRetry() bool { return s.may(evSubmissionRetry) }

func (s *StoreSubmission) Retry() ([]Effect, error) {
	if err := s.apply(evSubmissionRetry); err != nil {
		return nil, err
	}
	s.FailureReason = ""
	return []Effect{
		Enqueue(JobSubmissionPrepare, map[string]string{ArgID: s.ID}),
		Stamp(EntitySubmission, s.ID, "submission_retried", SeverityNotice, "submission retried"),
	}, nil
}
