package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNewLimiterAllowsFirstRequest(t *testing.T) {
	limiter := New(10, 5)

	if !limiter.allow("192.168.1.1") {
		t.Error("expected first request from new client to be allowed")
	}
}

func TestRequestsWithinBurstAreAllowed(t *testing.T) {
	burst := 5
	limiter := New(1, burst)

	for i := 0; i < burst; i++ {
		if !limiter.allow("192.168.1.1") {
			t.Errorf("request %d within burst of %d should be allowed", i+1, burst)
		}
	}
}

func TestRequestsExceedingBurstAreDenied(t *testing.T) {
	burst := 3
	limiter := New(1, burst)

	for i := 0; i < burst; i++ {
		limiter.allow("192.168.1.1")
	}

	if limiter.allow("192.168.1.1") {
		t.Error("request exceeding burst should be denied")
	}
}

func TestTokensReplenishOverTime(t *testing.T) {
	limiter := New(10, 2)

	// Exhaust all tokens.
	limiter.allow("192.168.1.1")
	limiter.allow("192.168.1.1")

	if limiter.allow("192.168.1.1") {
		t.Error("expected request to be denied after exhausting burst")
	}

	// At 10 tokens/sec, 150ms gives ~1.5 tokens.
	time.Sleep(150 * time.Millisecond)

	if !limiter.allow("192.168.1.1") {
		t.Error("expected request to be allowed after token replenishment")
	}
}

func TestDifferentClientsHaveIndependentLimits(t *testing.T) {
	limiter := New(1, 2)

	limiter.allow("10.0.0.1")
	limiter.allow("10.0.0.1")
	if limiter.allow("10.0.0.1") {
		t.Error("expected third request from first client to be denied")
	}

	if !limiter.allow("10.0.0.2") {
		t.Error("expected first request from second client to be allowed")
	}
}

func TestTokensDoNotExceedBurst(t *testing.T) {
	burst := 3
	limiter := New(100, burst)

	limiter.allow("192.168.1.1")

	// Refill well beyond what the burst cap admits.
	time.Sleep(200 * time.Millisecond)

	allowed := 0
	for i := 0; i < burst+2; i++ {
		if limiter.allow("192.168.1.1") {
			allowed++
		}
	}

	if allowed > burst {
		t.Errorf("expected at most %d requests allowed, got %d", burst, allowed)
	}
}

func limitedHandler(limiter *Limiter) http.Handler {
	return limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
}

func doRequest(handler http.Handler, remoteAddr, forwardedFor string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = remoteAddr
	if forwardedFor != "" {
		req.Header.Set("X-Forwarded-For", forwardedFor)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestMiddlewarePassesAllowedRequests(t *testing.T) {
	handler := limitedHandler(New(10, 5))

	rec := doRequest(handler, "192.168.1.1:12345", "")
	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
	if rec.Body.String() != "ok" {
		t.Errorf("expected body ok, got %s", rec.Body.String())
	}
}

func TestMiddlewareReturns429WhenRateLimited(t *testing.T) {
	handler := limitedHandler(New(1, 1))

	doRequest(handler, "192.168.1.1:12345", "")
	rec := doRequest(handler, "192.168.1.1:12345", "")

	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("expected status 429, got %d", rec.Code)
	}
	if retryAfter := rec.Header().Get("Retry-After"); retryAfter != "10" {
		t.Errorf("expected Retry-After=10, got %s", retryAfter)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type application/json, got %s", ct)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != `{"error":"too many requests"}` {
		t.Errorf("unexpected 429 body %s", body)
	}
}

func TestMiddlewareKeysByForwardedAddress(t *testing.T) {
	handler := limitedHandler(New(1, 1))

	// Same forwarded address from different peers shares one bucket.
	doRequest(handler, "10.0.0.99:1234", "203.0.113.50")
	rec := doRequest(handler, "10.0.0.100:5678", "203.0.113.50")

	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429 for same forwarded address, got %d", rec.Code)
	}
}

func TestMiddlewareForwardedAddressesAreIndependent(t *testing.T) {
	handler := limitedHandler(New(1, 1))

	doRequest(handler, "10.0.0.1:1234", "203.0.113.1")
	rec := doRequest(handler, "10.0.0.1:1234", "203.0.113.2")

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 for different forwarded address, got %d", rec.Code)
	}
}

func TestMiddlewareUsesNearestForwardedAddress(t *testing.T) {
	handler := limitedHandler(New(1, 1))

	// Only the first hop in the chain identifies the client.
	doRequest(handler, "10.0.0.1:1234", "203.0.113.7, 172.16.0.1")
	rec := doRequest(handler, "10.0.0.2:5678", "203.0.113.7, 172.16.0.9")

	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429 for same first-hop address, got %d", rec.Code)
	}
}

func TestMiddlewareDoesNotCallNextWhenRateLimited(t *testing.T) {
	limiter := New(1, 1)
	callCount := 0

	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount++
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 3; i++ {
		doRequest(handler, "10.0.0.1:1234", "")
	}

	if callCount != 1 {
		t.Errorf("expected next handler called 1 time, got %d", callCount)
	}
}
