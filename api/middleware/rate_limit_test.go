package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	pkgerrors "github.com/angelmondragon/linguamate-backend/pkg/errors"
	pkgredis "github.com/angelmondragon/linguamate-backend/pkg/redis"
)

func newMiniredisClient(t *testing.T) (*pkgredis.Client, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := pkgredis.NewFromClient(goredis.NewClient(&goredis.Options{Addr: srv.Addr()}))
	t.Cleanup(func() { _ = client.Close() })
	return client, srv
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimitUserLimitTriggers(t *testing.T) {
	store, _ := newMiniredisClient(t)
	handler := RateLimit(NewRateLimitPolicy("api", time.Minute, 0, 2), store, nil)(okHandler())

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/usage/today", nil)
		req = req.WithContext(WithUserID(req.Context(), "user_2abc"))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if i < 2 {
			if rec.Code != http.StatusOK {
				t.Fatalf("request %d: expected 200 got %d", i, rec.Code)
			}
			continue
		}
		if rec.Code != http.StatusTooManyRequests {
			t.Fatalf("expected 429 got %d", rec.Code)
		}
		if rec.Header().Get("Retry-After") != "60" {
			t.Fatalf("expected Retry-After 60 got %q", rec.Header().Get("Retry-After"))
		}
		var payload struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if payload.Error.Code != string(pkgerrors.CodeRateLimit) {
			t.Fatalf("unexpected error code %s", payload.Error.Code)
		}
	}

	other := httptest.NewRequest(http.MethodGet, "/api/v1/usage/today", nil)
	other = other.WithContext(WithUserID(other.Context(), "user_other"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, other)
	if rec.Code != http.StatusOK {
		t.Fatalf("other users keep their own window, got %d", rec.Code)
	}
}

func TestRateLimitIPWindowResets(t *testing.T) {
	store, srv := newMiniredisClient(t)
	handler := RateLimit(NewRateLimitPolicy("api", time.Minute, 1, 0), store, nil)(okHandler())

	send := func() int {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := send(); code != http.StatusOK {
		t.Fatalf("expected first request allowed, got %d", code)
	}
	if code := send(); code != http.StatusTooManyRequests {
		t.Fatalf("expected second request throttled, got %d", code)
	}
	if !srv.Exists("lm:rate_limit:api:ip:203.0.113.9") {
		t.Fatal("expected counter keyed by first forwarded address")
	}
	srv.FastForward(time.Minute)
	if code := send(); code != http.StatusOK {
		t.Fatalf("expected new window to allow, got %d", code)
	}
}

type failingRateStore struct{}

func (failingRateStore) FixedWindowAllow(context.Context, string, int64, time.Duration) (bool, int64, error) {
	return false, 0, context.DeadlineExceeded
}

func TestRateLimitStoreFailure(t *testing.T) {
	handler := RateLimit(NewRateLimitPolicy("api", time.Minute, 5, 5), failingRateStore{}, nil)(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "1.2.3.4:5678"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadGateway && rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected dependency failure status, got %d", rec.Code)
	}
}

func TestRateLimitDisabledPolicyPassesThrough(t *testing.T) {
	handler := RateLimit(NewRateLimitPolicy("", 0, 1, 1), failingRateStore{}, nil)(okHandler())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected passthrough, got %d", rec.Code)
	}
}
