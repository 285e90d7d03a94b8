package model

import (
	"errors"
	"testing"
	"time"
)

func newTestSubmission(provider SubmissionProvider, status SubmissionStatus) *StoreSubmission {
	return &StoreSubmission{
		ID:            "sub-1",
		PlatformRunID: "pr-1",
		Provider:      provider,
		Channel:       "production",
		BuildNumber:   "1042",
		Version:       "1.3.0",
		Status:        status,
	}
}

func TestSubmissionReviewedPath(t *testing.T) {
	s := newTestSubmission(ProviderAppStore, SubmissionCreated)
	now := time.Now()

	if _, err := s.StartPrepare(); err != nil {
		t.Fatalf("StartPrepare: %v", err)
	}
	if _, err := s.MarkPrepared("PREPARE_FOR_SUBMISSION", now); err != nil {
		t.Fatalf("MarkPrepared: %v", err)
	}
	if s.PreparedAt == nil {
		t.Error("PreparedAt not set")
	}
	if _, err := s.Submit(now); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if s.Status != SubmissionSubmittedForReview {
		t.Fatalf("status = %q", s.Status)
	}
	if _, err := s.Approve("APPROVED", now); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if !s.Terminal() {
		t.Error("approved submission not terminal")
	}
}

// Stores without a review phase approve straight from prepared.
func TestSubmissionUnreviewedSkipsReview(t *testing.T) {
	s := newTestSubmission(ProviderFirebase, SubmissionPrepared)
	if _, err := s.Approve("DISTRIBUTED", time.Now()); err != nil {
		t.Fatalf("Approve from prepared: %v", err)
	}
}

func TestSubmissionRejectAndRetry(t *testing.T) {
	s := newTestSubmission(ProviderAppStore, SubmissionSubmittedForReview)
	if _, err := s.Reject("REJECTED", FailureReviewRejected, time.Now()); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if s.Status != SubmissionReviewFailed {
		t.Fatalf("status = %q", s.Status)
	}
	if s.FailureReason != FailureReviewRejected {
		t.Errorf("FailureReason = %q", s.FailureReason)
	}
	if !s.Terminal() {
		t.Error("rejected submission not terminal")
	}
	if !s.MayRetry() {
		t.Fatal("rejected submission not retryable")
	}
	if _, err := s.Retry(); err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if s.Status != SubmissionCreated {
		t.Fatalf("status after retry = %q", s.Status)
	}
}

func TestSubmissionApproveRequiresReviewOrPrepared(t *testing.T) {
	s := newTestSubmission(ProviderAppStore, SubmissionCreated)
	if _, err := s.Approve("x", time.Now()); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Approve from created: err = %v", err)
	}
}

func TestProviderCapabilities(t *testing.T) {
	tests := []struct {
		p        SubmissionProvider
		reviewed bool
		pausable bool
		syncable bool
	}{
		{ProviderAppStore, true, true, true},
		{ProviderPlayStore, false, false, false},
		{ProviderFirebase, false, false, false},
	}
	for _, tt := range tests {
		if got := tt.p.Reviewed(); got != tt.reviewed {
			t.Errorf("%s Reviewed = %v", tt.p, got)
		}
		if got := tt.p.CanPauseRollout(); got != tt.pausable {
			t.Errorf("%s CanPauseRollout = %v", tt.p, got)
		}
		if got := tt.p.Syncable(); got != tt.syncable {
			t.Errorf("%s Syncable = %v", tt.p, got)
		}
	}
}
