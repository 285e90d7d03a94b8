package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"conductor/coordinator"
	"conductor/provider"
)

// VCSWebhook ingests push events from the VCS host. Payloads are HMAC
// verified, normalized into commit shapes, and handed to the engine;
// pushes to branches no live release tracks are acknowledged and
// dropped.
func (h *Handler) VCSWebhook(w http.ResponseWriter, r *http.Request) {
	vcs := chi.URLParam(r, "provider")
	if vcs != "github" && vcs != "gitea" {
		writeError(w, http.StatusBadRequest, "unsupported provider")
		return
	}

	secret := h.cfg.WebhookSecret
	if secret == "" {
		writeError(w, http.StatusInternalServerError, "webhook secret not configured")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	var sigHeader, eventHeader string
	switch vcs {
	case "github":
		sigHeader = r.Header.Get("X-Hub-Signature-256")
		eventHeader = r.Header.Get("X-GitHub-Event")
	case "gitea":
		sigHeader = r.Header.Get("X-Gitea-Signature")
		eventHeader = r.Header.Get("X-Gitea-Event")
	}
	if !verifySignature(body, secret, vcs, sigHeader) {
		writeError(w, http.StatusForbidden, "invalid signature")
		return
	}
	if eventHeader != "push" {
		writeJSON(w, map[string]bool{"ignored": true})
		return
	}

	var payload struct {
		Ref     string `json:"ref"`
		Commits []struct {
			ID        string    `json:"id"`
			Message   string    `json:"message"`
			Timestamp time.Time `json:"timestamp"`
			Author    struct {
				Name string `json:"name"`
			} `json:"author"`
		} `json:"commits"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	branch := strings.TrimPrefix(payload.Ref, "refs/heads/")

	accepted := 0
	for _, commit := range payload.Commits {
		res := h.coord.IngestCommit(r.Context(), coordinator.CommitPayload{
			Hash:      commit.ID,
			Author:    commit.Author.Name,
			Message:   commit.Message,
			Branch:    branch,
			Timestamp: commit.Timestamp,
		})
		if res.Err != nil {
			h.log.Error().Err(res.Err).Str("hash", commit.ID).Msg("commit ingest failed")
			writeResultError(w, res.Err)
			return
		}
		if res.Value != nil {
			accepted++
		}
	}
	writeJSON(w, map[string]int{"accepted": accepted})
}

// CIWebhook ingests workflow status callbacks. The payload is
// normalized to (ci_ref, status) before it reaches the engine; unknown
// refs are acknowledged so the CI system stops redelivering.
func (h *Handler) CIWebhook(w http.ResponseWriter, r *http.Request) {
	secret := h.cfg.WebhookSecret
	if secret == "" {
		writeError(w, http.StatusInternalServerError, "webhook secret not configured")
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	if !verifySignature(body, secret, "github", r.Header.Get("X-Hub-Signature-256")) {
		writeError(w, http.StatusForbidden, "invalid signature")
		return
	}

	var payload struct {
		Ref        string `json:"ref"`
		Status     string `json:"status"`
		Conclusion string `json:"conclusion"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	res := h.coord.UpdateCIStatus(r.Context(), payload.Ref, normalizeCIStatus(payload.Status, payload.Conclusion))
	if res.Err != nil {
		writeResultError(w, res.Err)
		return
	}
	writeJSON(w, map[string]bool{"processed": res.Value != nil})
}

func normalizeCIStatus(status, conclusion string) provider.WorkflowRunStatus {
	switch status {
	case "queued", "pending":
		return provider.WorkflowPending
	case "in_progress", "running":
		return provider.WorkflowStarted
	case "completed":
		switch conclusion {
		case "success":
			return provider.WorkflowSucceeded
		case "cancelled", "skipped":
			return provider.WorkflowHalted
		default:
			return provider.WorkflowFailed
		}
	}
	return provider.WorkflowUnavailable
}

func verifySignature(body []byte, secret, vcs, sigHeader string) bool {
	if sigHeader == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	got := sigHeader
	if vcs == "github" {
		got = strings.TrimPrefix(sigHeader, "sha256=")
	}
	return hmac.Equal([]byte(got), []byte(expected))
}
