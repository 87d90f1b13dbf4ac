package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/kalshiconsensus/internal/cache/local"
	"github.com/alanyoungcy/kalshiconsensus/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newClient() *client {
	c := &client{subs: make(map[string]bool)}
	for _, ch := range Channels {
		c.subs[ch] = true
	}
	return c
}

func TestApplySubscriptions(t *testing.T) {
	c := newClient()

	c.apply(subscribeMsg{Action: "unsubscribe", Channels: []string{domain.ChannelScan}})
	if c.isSubscribed(domain.ChannelScan) {
		t.Error("still subscribed to scan after unsubscribe")
	}
	if !c.isSubscribed(domain.ChannelConsensus) {
		t.Error("consensus subscription lost")
	}

	c.apply(subscribeMsg{Action: "subscribe", Channels: []string{domain.ChannelScan, "ch:unknown"}})
	if !c.isSubscribed(domain.ChannelScan) {
		t.Error("scan not restored by subscribe")
	}
	if c.isSubscribed("ch:unknown") {
		t.Error("unknown channel accepted")
	}

	c.apply(subscribeMsg{Action: "mute", Channels: []string{domain.ChannelConsensus}})
	if !c.isSubscribed(domain.ChannelConsensus) {
		t.Error("unknown action changed subscriptions")
	}
}

func TestCheckOrigin(t *testing.T) {
	tests := []struct {
		name    string
		origins []string
		origin  string
		want    bool
	}{
		{"no origin header", []string{"https://app.example.com"}, "", true},
		{"no allow list", nil, "https://evil.example.com", true},
		{"listed", []string{"https://app.example.com"}, "https://APP.example.com", true},
		{"wildcard", []string{"*"}, "https://any.example.com", true},
		{"not listed", []string{"https://app.example.com"}, "https://evil.example.com", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHub(local.NewSignalBus(), nil, Config{Origins: tc.origins}, discardLogger())
			r := httptest.NewRequest(http.MethodGet, "/ws", nil)
			if tc.origin != "" {
				r.Header.Set("Origin", tc.origin)
			}
			if got := h.checkOrigin(r); got != tc.want {
				t.Errorf("checkOrigin = %v, want %v", got, tc.want)
			}
		})
	}
}

func startHub(t *testing.T, bus domain.SignalBus, status StatusFunc, cfg Config) string {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	h := NewHub(bus, status, cfg, discardLogger())
	go func() { _ = h.Run(ctx) }()

	srv := httptest.NewServer(http.HandlerFunc(h.HandleWS))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

type frame struct {
	Kind    string         `json:"kind"`
	Payload map[string]any `json:"payload"`
}

func TestHandleWSHelloAndRelay(t *testing.T) {
	bus := local.NewSignalBus()
	status := func() (domain.ScanProgress, bool) {
		return domain.ScanProgress{ScanID: "scan-1", Done: 2, Total: 5}, true
	}
	url := startHub(t, bus, status, Config{Mode: "local", Providers: []string{"openai"}})

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var hello frame
	if err := conn.ReadJSON(&hello); err != nil {
		t.Fatalf("read hello: %v", err)
	}
	if hello.Kind != "status" || hello.Payload["mode"] != "local" || hello.Payload["scan_running"] != true {
		t.Errorf("hello = %+v", hello)
	}

	// The hello frame is only written once the client is registered.
	if err := bus.Publish(context.Background(), domain.ChannelConsensus, []byte(`{"kind":"consensus"}`)); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read relay: %v", err)
	}
	var got frame
	if err := json.Unmarshal(msg, &got); err != nil || got.Kind != "consensus" {
		t.Errorf("relayed = %s", msg)
	}
}

func TestHandleWSRejectsForeignOrigin(t *testing.T) {
	url := startHub(t, local.NewSignalBus(), nil, Config{Origins: []string{"https://app.example.com"}})

	header := http.Header{"Origin": []string{"https://evil.example.com"}}
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err == nil {
		conn.Close()
		t.Fatal("dial succeeded from a foreign origin")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("resp = %v, want 403", resp)
	}
}
