package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestAllowEnforcesLimitPerKey(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		if !rl.Allow("a") {
			t.Fatalf("request %d should be within quota", i+1)
		}
	}
	if rl.Allow("a") {
		t.Errorf("request over quota must be denied")
	}
	if !rl.Allow("b") {
		t.Errorf("another key must have its own bucket")
	}
}

func TestAllowResetsAfterWindow(t *testing.T) {
	rl := NewRateLimiter(1, 10*time.Millisecond)

	if !rl.Allow("a") {
		t.Fatalf("first request should pass")
	}
	if rl.Allow("a") {
		t.Fatalf("second request in the window must be denied")
	}

	time.Sleep(15 * time.Millisecond)

	if !rl.Allow("a") {
		t.Errorf("quota must reset once the window expires")
	}
}

func TestMiddlewareRejectsOverQuotaWithRateLimitedCode(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
	req.RemoteAddr = "10.0.0.1:5000"

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, req)
	if first.Code != http.StatusOK {
		t.Fatalf("first request should pass, got %d", first.Code)
	}

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, req)
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", second.Code)
	}

	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(second.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	if resp.Error.Code != "RATE_LIMITED" {
		t.Errorf("expected code RATE_LIMITED, got %q", resp.Error.Code)
	}
}

func TestAuthenticatedCallersGetSeparateBuckets(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// Two users behind the same address must not exhaust each other's quota.
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/face/register", nil)
		req.RemoteAddr = "10.0.0.2:5000"
		id := Identity{UserID: uuid.New(), Role: "student"}
		req = req.WithContext(context.WithValue(req.Context(), identityKey, id))

		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Errorf("user %d: expected 200, got %d", i+1, rr.Code)
		}
	}
}
