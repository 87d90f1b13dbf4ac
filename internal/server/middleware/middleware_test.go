package middleware

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestAuth(t *testing.T) {
	tests := []struct {
		name   string
		apiKey string
		method string
		target string
		header map[string]string
		want   int
	}{
		{"missing token", "secret", http.MethodGet, "/api/markets", nil, http.StatusUnauthorized},
		{"bearer", "secret", http.MethodGet, "/api/markets", map[string]string{"Authorization": "Bearer secret"}, http.StatusOK},
		{"bearer scheme is case insensitive", "secret", http.MethodGet, "/api/markets", map[string]string{"Authorization": "bearer secret"}, http.StatusOK},
		{"api key header", "secret", http.MethodGet, "/api/markets", map[string]string{"X-API-Key": "secret"}, http.StatusOK},
		{"wrong token", "secret", http.MethodGet, "/api/markets", map[string]string{"X-API-Key": "nope"}, http.StatusUnauthorized},
		{"query token on ws", "secret", http.MethodGet, "/ws?token=secret", nil, http.StatusOK},
		{"wrong query token on ws", "secret", http.MethodGet, "/ws?token=nope", nil, http.StatusUnauthorized},
		{"query token ignored off ws", "secret", http.MethodGet, "/api/markets?token=secret", nil, http.StatusUnauthorized},
		{"public path", "secret", http.MethodGet, "/health", nil, http.StatusOK},
		{"preflight", "secret", http.MethodOptions, "/api/markets", nil, http.StatusOK},
		{"auth disabled", "", http.MethodGet, "/api/markets", nil, http.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := Auth(tc.apiKey, "/health", "/metrics")(okHandler)
			r := httptest.NewRequest(tc.method, tc.target, nil)
			for k, v := range tc.header {
				r.Header.Set(k, v)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)
			if w.Code != tc.want {
				t.Errorf("status = %d, want %d", w.Code, tc.want)
			}
			if w.Code == http.StatusUnauthorized && w.Header().Get("WWW-Authenticate") == "" {
				t.Error("401 without WWW-Authenticate")
			}
		})
	}
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"https://app.example.com/"})(okHandler)

	r := httptest.NewRequest(http.MethodGet, "/api/markets", nil)
	r.Header.Set("Origin", "https://app.example.com")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("allow origin = %q", got)
	}

	r = httptest.NewRequest(http.MethodGet, "/api/markets", nil)
	r.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("foreign origin allowed: %q", got)
	}
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want request passed through", w.Code)
	}

	r = httptest.NewRequest(http.MethodOptions, "/api/analyze", nil)
	r.Header.Set("Origin", "https://app.example.com")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", w.Code)
	}
}

func TestCORSAllowAll(t *testing.T) {
	h := CORS(nil)(okHandler)
	r := httptest.NewRequest(http.MethodGet, "/api/markets", nil)
	r.Header.Set("Origin", "https://anywhere.example.com")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://anywhere.example.com" {
		t.Errorf("allow origin = %q", got)
	}
}

type fakeLimiter struct {
	allow bool
	err   error
	keys  []string
}

func (f *fakeLimiter) Allow(_ context.Context, key string, _ int, _ time.Duration) (bool, error) {
	f.keys = append(f.keys, key)
	return f.allow, f.err
}

func TestRateLimit(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("denied", func(t *testing.T) {
		lim := &fakeLimiter{}
		h := RateLimit(lim, 10, time.Minute, logger)(okHandler)
		r := httptest.NewRequest(http.MethodPost, "/api/analyze", nil)
		r.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		if w.Code != http.StatusTooManyRequests {
			t.Fatalf("status = %d, want 429", w.Code)
		}
		if got := w.Header().Get("Retry-After"); got != "60" {
			t.Errorf("Retry-After = %q, want 60", got)
		}
		if len(lim.keys) != 1 || lim.keys[0] != "api:203.0.113.5" {
			t.Errorf("keys = %v", lim.keys)
		}
	})

	t.Run("allowed", func(t *testing.T) {
		lim := &fakeLimiter{allow: true}
		h := RateLimit(lim, 10, time.Minute, logger)(okHandler)
		r := httptest.NewRequest(http.MethodGet, "/api/markets", nil)
		r.RemoteAddr = "198.51.100.7:5555"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		if w.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", w.Code)
		}
		if len(lim.keys) != 1 || lim.keys[0] != "api:198.51.100.7" {
			t.Errorf("keys = %v", lim.keys)
		}
	})

	t.Run("limiter error fails open", func(t *testing.T) {
		h := RateLimit(&fakeLimiter{err: errors.New("redis down")}, 10, time.Minute, logger)(okHandler)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/markets", nil))
		if w.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", w.Code)
		}
	})
}

func TestLoggingRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	failing := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream"))
	})
	h := Logging(logger)(failing)

	r := httptest.NewRequest(http.MethodGet, "/api/markets/FED-CUT", nil)
	r.Header.Set("X-Request-ID", "req-123")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if got := w.Header().Get("X-Request-ID"); got != "req-123" {
		t.Errorf("X-Request-ID = %q, want caller's id", got)
	}
	line := buf.String()
	for _, want := range []string{`"request_id":"req-123"`, `"status":502`, `"level":"ERROR"`, `"bytes":8`} {
		if !strings.Contains(line, want) {
			t.Errorf("log line missing %s: %s", want, line)
		}
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("no request id generated")
	}
}
