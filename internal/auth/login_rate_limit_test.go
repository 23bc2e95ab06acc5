package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type fakeIPLimitStore struct {
	hits map[string]int
	max  int
	err  error
}

func (f *fakeIPLimitStore) AllowLoginIP(_ context.Context, ip string, maxHits int, window time.Duration, _ time.Time) (bool, time.Duration, error) {
	if f.err != nil {
		return false, 0, f.err
	}
	if f.hits == nil {
		f.hits = make(map[string]int)
	}
	f.hits[ip]++
	if f.hits[ip] > maxHits {
		return false, window, nil
	}
	return true, 0, nil
}

func TestLoginRateLimiterBlocksAfterMax(t *testing.T) {
	limiter := NewLoginRateLimiter(&fakeIPLimitStore{}, 2, time.Minute)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := limiter.Middleware(next)

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		req.Header.Set("X-Forwarded-For", "203.0.113.9")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 2; i++ {
		if rec := send(); rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i+1, rec.Code)
		}
	}

	rec := send()
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("Retry-After header missing")
	}
}

func TestLoginRateLimiterIsolatesClients(t *testing.T) {
	limiter := NewLoginRateLimiter(&fakeIPLimitStore{}, 1, time.Minute)

	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(ip string) int {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		req.Header.Set("X-Forwarded-For", ip)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := send("203.0.113.9"); code != http.StatusOK {
		t.Fatalf("first client: status = %d, want 200", code)
	}
	if code := send("203.0.113.9"); code != http.StatusTooManyRequests {
		t.Fatalf("first client again: status = %d, want 429", code)
	}
	if code := send("198.51.100.4"); code != http.StatusOK {
		t.Fatalf("second client: status = %d, want 200", code)
	}
}

func TestLoginRateLimiterFailsOpen(t *testing.T) {
	limiter := NewLoginRateLimiter(&fakeIPLimitStore{err: errors.New("db down")}, 1, time.Minute)

	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 when throttle storage is down", rec.Code)
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	req.RemoteAddr = "192.0.2.1:5050"
	if got := clientIP(req); got != "192.0.2.1:5050" {
		t.Fatalf("clientIP = %q", got)
	}

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if got := clientIP(req); got != "203.0.113.9" {
		t.Fatalf("clientIP with X-Forwarded-For = %q", got)
	}
}
