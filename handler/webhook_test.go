package handler

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"conductor/config"
	"conductor/provider"
)

func sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func webhookHandler(secret string) *Handler {
	return &Handler{
		cfg: &config.Config{WebhookSecret: secret},
		log: zerolog.Nop(),
	}
}

func postVCS(h *Handler, vcs string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Post("/api/webhooks/vcs/{provider}", h.VCSWebhook)

	req := httptest.NewRequest("POST", "/api/webhooks/vcs/"+vcs, bytes.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestVCSWebhookRejectsBadSignature(t *testing.T) {
	h := webhookHandler("hook-secret")
	body := []byte(`{"ref":"refs/heads/r/mobile/1.3.0","commits":[]}`)

	tests := []struct {
		name string
		sig  string
	}{
		{"missing", ""},
		{"garbage", "sha256=deadbeef"},
		{"wrong secret", "sha256=" + sign(body, "other-secret")},
	}
	for _, tt := range tests {
		headers := map[string]string{"X-GitHub-Event": "push"}
		if tt.sig != "" {
			headers["X-Hub-Signature-256"] = tt.sig
		}
		rec := postVCS(h, "github", body, headers)
		if rec.Code != http.StatusForbidden {
			t.Errorf("%s: code = %d, want 403", tt.name, rec.Code)
		}
	}
}

func TestVCSWebhookIgnoresNonPushEvents(t *testing.T) {
	h := webhookHandler("hook-secret")
	body := []byte(`{"zen":"keep it simple"}`)

	rec := postVCS(h, "github", body, map[string]string{
		"X-Hub-Signature-256": "sha256=" + sign(body, "hook-secret"),
		"X-GitHub-Event":      "ping",
	})
	if rec.Code != http.StatusOK {
		t.Errorf("code = %d, want 200", rec.Code)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("ignored")) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestVCSWebhookGiteaSignatureHeader(t *testing.T) {
	h := webhookHandler("hook-secret")
	body := []byte(`{"anything":true}`)

	// Gitea sends the raw hex digest without the sha256= prefix, and a
	// non-push event is acknowledged without touching the engine.
	rec := postVCS(h, "gitea", body, map[string]string{
		"X-Gitea-Signature": sign(body, "hook-secret"),
		"X-Gitea-Event":     "issue",
	})
	if rec.Code != http.StatusOK {
		t.Errorf("code = %d, want 200", rec.Code)
	}
}

func TestVCSWebhookUnsupportedProvider(t *testing.T) {
	h := webhookHandler("hook-secret")
	rec := postVCS(h, "bitbucket", []byte(`{}`), nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("code = %d, want 400", rec.Code)
	}
}

func TestVCSWebhookRequiresConfiguredSecret(t *testing.T) {
	h := webhookHandler("")
	rec := postVCS(h, "github", []byte(`{}`), nil)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("code = %d, want 500", rec.Code)
	}
}

func TestNormalizeCIStatus(t *testing.T) {
	tests := []struct {
		status     string
		conclusion string
		want       provider.WorkflowRunStatus
	}{
		{"queued", "", provider.WorkflowPending},
		{"pending", "", provider.WorkflowPending},
		{"in_progress", "", provider.WorkflowStarted},
		{"running", "", provider.WorkflowStarted},
		{"completed", "success", provider.WorkflowSucceeded},
		{"completed", "failure", provider.WorkflowFailed},
		{"completed", "cancelled", provider.WorkflowHalted},
		{"completed", "skipped", provider.WorkflowHalted},
		{"unknown", "", provider.WorkflowUnavailable},
	}
	for _, tt := range tests {
		if got := normalizeCIStatus(tt.status, tt.conclusion); got != tt.want {
			t.Errorf("normalizeCIStatus(%q, %q) = %q, want %q", tt.status, tt.conclusion, got, tt.want)
		}
	}
}
