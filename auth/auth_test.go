package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func okHandler() (http.Handler, *bool) {
	called := false
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}), &called
}

func TestServiceTokenRoundTrip(t *testing.T) {
	a := New("static-token", "secret-key")

	token, err := a.IssueServiceToken("ci-runner", time.Minute)
	if err != nil {
		t.Fatalf("IssueServiceToken: %v", err)
	}

	claims, err := a.ValidateServiceToken(token)
	if err != nil {
		t.Fatalf("ValidateServiceToken: %v", err)
	}
	if claims.Service != "ci-runner" {
		t.Errorf("Service = %q", claims.Service)
	}
	if claims.Issuer != "conductor" {
		t.Errorf("Issuer = %q", claims.Issuer)
	}
}

func TestServiceTokenExpired(t *testing.T) {
	a := New("", "secret-key")
	token, err := a.IssueServiceToken("bot", -time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.ValidateServiceToken(token); err == nil {
		t.Fatal("expired token accepted")
	}
}

func TestServiceTokenWrongSecret(t *testing.T) {
	token, err := New("", "secret-one").IssueServiceToken("bot", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := New("", "secret-two").ValidateServiceToken(token); err == nil {
		t.Fatal("token signed with another secret accepted")
	}
}

func TestIssueRequiresSecret(t *testing.T) {
	if _, err := New("x", "").IssueServiceToken("bot", time.Minute); err == nil {
		t.Fatal("expected error with no JWT secret")
	}
}

func TestMiddlewareOpenWithoutToken(t *testing.T) {
	next, called := okHandler()
	h := New("", "").Middleware(next)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/trains", nil))
	if !*called || rec.Code != http.StatusOK {
		t.Errorf("open mode rejected the request: code=%d", rec.Code)
	}
}

func TestMiddlewareStaticToken(t *testing.T) {
	a := New("top-secret", "")

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid", "Bearer top-secret", http.StatusOK},
		{"wrong", "Bearer nope", http.StatusUnauthorized},
		{"missing", "", http.StatusUnauthorized},
		{"not bearer", "Basic dXNlcg==", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		next, _ := okHandler()
		rec := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/api/trains", nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		a.Middleware(next).ServeHTTP(rec, req)
		if rec.Code != tt.want {
			t.Errorf("%s: code = %d, want %d", tt.name, rec.Code, tt.want)
		}
	}
}

func TestMiddlewareAcceptsServiceJWT(t *testing.T) {
	a := New("static", "jwt-secret")
	token, err := a.IssueServiceToken("ci-runner", time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	next, called := okHandler()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/webhooks/ci", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	a.Middleware(next).ServeHTTP(rec, req)
	if !*called || rec.Code != http.StatusOK {
		t.Errorf("service JWT rejected: code=%d", rec.Code)
	}
}
