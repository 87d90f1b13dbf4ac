package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"google.golang.org/genai"

	"github.com/alanyoungcy/kalshiconsensus/internal/domain"
)

type requestBody struct {
	Contents          []genai.Content `json:"contents"`
	SystemInstruction *genai.Content  `json:"systemInstruction"`
	GenerationConfig  struct {
		Temperature     float64 `json:"temperature"`
		MaxOutputTokens int     `json:"maxOutputTokens"`
	} `json:"generationConfig"`
}

func newTestClient(t *testing.T, key, url string) *Client {
	t.Helper()
	c, err := NewClient(context.Background(), key, Options{BaseURL: url, RequestsPerSec: 1000, MaxElapsed: 5 * time.Second})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestCompleteJoinsParts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1beta/models/gemini-1.5-pro:generateContent" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("x-goog-api-key") != "g-key" {
			t.Errorf("api key header missing")
		}
		var body requestBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		if body.GenerationConfig.MaxOutputTokens != 1000 || math.Abs(body.GenerationConfig.Temperature-0.3) > 1e-6 {
			t.Errorf("generation config = %+v", body.GenerationConfig)
		}
		if body.SystemInstruction == nil || len(body.SystemInstruction.Parts) == 0 || body.SystemInstruction.Parts[0].Text != "sys" {
			t.Errorf("system instruction = %+v", body.SystemInstruction)
		}
		if len(body.Contents) != 1 || len(body.Contents[0].Parts) == 0 || body.Contents[0].Parts[0].Text != "p" {
			t.Errorf("contents = %+v", body.Contents)
		}
		w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"{\"a\":"},{"text":"1}"}]}}]}`))
	}))
	defer srv.Close()

	out, err := newTestClient(t, "g-key", srv.URL).Complete(context.Background(), domain.CompletionRequest{
		System: "sys", Prompt: "p", Temperature: 0.3, MaxTokens: 1000,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != `{"a":1}` {
		t.Errorf("out = %q", out)
	}
}

func TestCompleteRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":{"code":503,"message":"overloaded"}}`))
			return
		}
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"ok"}]}}]}`))
	}))
	defer srv.Close()

	out, err := newTestClient(t, "k", srv.URL).Complete(context.Background(), domain.CompletionRequest{Prompt: "p"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != "ok" || calls.Load() != 2 {
		t.Errorf("out = %q after %d calls", out, calls.Load())
	}
}

func TestCompleteDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":400,"message":"API key not valid"}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, "k", srv.URL).Complete(context.Background(), domain.CompletionRequest{Prompt: "p"})
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != http.StatusBadRequest {
		t.Fatalf("err = %v, want APIError 400", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestCompleteWithoutKey(t *testing.T) {
	_, err := newTestClient(t, "", "").Complete(context.Background(), domain.CompletionRequest{Prompt: "p"})
	if !errors.Is(err, domain.ErrMissingCredentials) {
		t.Fatalf("err = %v, want ErrMissingCredentials", err)
	}
}

func TestCompleteBlockedPrompt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[],"promptFeedback":{"blockReason":"SAFETY"}}`))
	}))
	defer srv.Close()

	if _, err := newTestClient(t, "k", srv.URL).Complete(context.Background(), domain.CompletionRequest{Prompt: "p"}); err == nil {
		t.Fatal("expected error for blocked prompt")
	}
}

func TestCompleteSkipsThoughtParts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"thinking","thought":true},{"text":"answer"}]}}]}`))
	}))
	defer srv.Close()

	out, err := newTestClient(t, "k", srv.URL).Complete(context.Background(), domain.CompletionRequest{Prompt: "p"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != "answer" {
		t.Errorf("out = %q, want answer", out)
	}
}

func TestCompleteEmptyCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[]}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, "k", srv.URL).Complete(context.Background(), domain.CompletionRequest{Prompt: "p"})
	if !errors.Is(err, domain.ErrEmptyCompletion) {
		t.Fatalf("err = %v, want ErrEmptyCompletion", err)
	}
}
