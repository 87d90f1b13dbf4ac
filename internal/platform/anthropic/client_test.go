package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alanyoungcy/kalshiconsensus/internal/domain"
)

func TestCompleteReturnsFirstTextBlock(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("X-Api-Key"); got != "ak-test" {
			t.Errorf("api key = %q", got)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		if body["model"] != DefaultModel {
			t.Errorf("model = %v", body["model"])
		}
		if body["max_tokens"] != float64(1000) {
			t.Errorf("max_tokens = %v", body["max_tokens"])
		}
		if _, ok := body["system"]; !ok {
			t.Error("system prompt missing")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"claude-sonnet-4-20250514",
			"content":[{"type":"text","text":"{\"confidence\":70}"}],"stop_reason":"end_turn",
			"usage":{"input_tokens":10,"output_tokens":5}}`))
	}))
	defer srv.Close()

	c := NewClient("ak-test", "", srv.URL, 0)
	out, err := c.Complete(context.Background(), domain.CompletionRequest{
		System: "sys", Prompt: "prompt", Temperature: 0.3, MaxTokens: 1000,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != `{"confidence":70}` {
		t.Errorf("out = %q", out)
	}
}

func TestCompleteWithoutKey(t *testing.T) {
	_, err := NewClient("", "", "", 0).Complete(context.Background(), domain.CompletionRequest{Prompt: "p"})
	if !errors.Is(err, domain.ErrMissingCredentials) {
		t.Fatalf("err = %v, want ErrMissingCredentials", err)
	}
}

func TestCompleteNoTextBlock(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","content":[],"usage":{"input_tokens":1,"output_tokens":0}}`))
	}))
	defer srv.Close()

	_, err := NewClient("ak", "", srv.URL, 0).Complete(context.Background(), domain.CompletionRequest{Prompt: "p", MaxTokens: 10})
	if !errors.Is(err, domain.ErrEmptyCompletion) {
		t.Fatalf("err = %v, want ErrEmptyCompletion", err)
	}
}
