package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestLoginRateLimiterBurst(t *testing.T) {
	limiter := NewLoginRateLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		if !limiter.Allow("10.0.0.1") {
			t.Fatalf("attempt %d should be allowed", i+1)
		}
	}
	if limiter.Allow("10.0.0.1") {
		t.Fatal("attempt past the burst should be denied")
	}

	// Other addresses are unaffected.
	if !limiter.Allow("10.0.0.2") {
		t.Fatal("independent address should be allowed")
	}
}

func TestLoginRateLimiterMiddleware(t *testing.T) {
	limiter := NewLoginRateLimiter(1, time.Minute)
	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	request := func() int {
		r := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		r.Header.Set("X-Forwarded-For", "203.0.113.9")
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, r)
		return recorder.Code
	}

	if status := request(); status != http.StatusOK {
		t.Fatalf("first request status = %d, want 200", status)
	}
	if status := request(); status != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", status)
	}
}
