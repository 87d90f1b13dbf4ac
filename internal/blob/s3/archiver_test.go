package s3blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/kalshiconsensus/internal/domain"
)

type memBlobs struct {
	objects map[string][]byte
	types   map[string]string
	failPut error
}

func newMemBlobs() *memBlobs {
	return &memBlobs{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memBlobs) Put(_ context.Context, path string, data io.Reader, contentType string) error {
	if m.failPut != nil {
		return m.failPut
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.objects[path] = b
	m.types[path] = contentType
	return nil
}

func (m *memBlobs) Get(_ context.Context, path string) (io.ReadCloser, error) {
	b, ok := m.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memBlobs) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	var out []domain.BlobInfo
	for p, b := range m.objects {
		if strings.HasPrefix(p, prefix) {
			out = append(out, domain.BlobInfo{Path: p, Size: int64(len(b))})
		}
	}
	return out, nil
}

type recordingAudit struct {
	events []string
}

func (r *recordingAudit) Log(_ context.Context, event string, _ map[string]any) error {
	r.events = append(r.events, event)
	return nil
}

func (r *recordingAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestArchiveScanRoundTrip(t *testing.T) {
	blobs := newMemBlobs()
	audit := &recordingAudit{}
	a := NewArchiver(blobs, blobs, audit, discard)

	finished := time.Date(2026, 10, 19, 14, 5, 0, 0, time.UTC)
	summary := domain.ScanSummary{
		ScanID:      "scan-1",
		StartedAt:   finished.Add(-time.Minute),
		FinishedAt:  finished,
		MarketCount: 1,
		Results: []domain.ConsensusResult{{
			ID:             "r1",
			Market:         domain.Market{Ticker: "KXA", Title: "A & B"},
			EdgePercentage: 12.5,
		}},
	}

	key, err := a.ArchiveScan(context.Background(), summary)
	if err != nil {
		t.Fatalf("ArchiveScan: %v", err)
	}
	if key != "scans/2026/10/19/scan-1.json" {
		t.Errorf("key = %q", key)
	}
	if blobs.types[key] != "application/json" {
		t.Errorf("content type = %q", blobs.types[key])
	}
	if !bytes.Contains(blobs.objects[key], []byte("A & B")) {
		t.Errorf("html escaping applied: %s", blobs.objects[key])
	}
	if len(audit.events) != 1 || audit.events[0] != "archive.scan" {
		t.Errorf("audit events = %v", audit.events)
	}

	infos, err := a.ListScans(context.Background(), finished)
	if err != nil {
		t.Fatalf("ListScans: %v", err)
	}
	if len(infos) != 1 || infos[0].Path != key {
		t.Errorf("ListScans = %+v", infos)
	}

	got, err := a.LoadScan(context.Background(), key)
	if err != nil {
		t.Fatalf("LoadScan: %v", err)
	}
	if got.ScanID != "scan-1" || len(got.Results) != 1 || got.Results[0].EdgePercentage != 12.5 {
		t.Errorf("LoadScan = %+v", got)
	}
}

func TestArchiveScanErrors(t *testing.T) {
	blobs := newMemBlobs()
	a := NewArchiver(blobs, nil, nil, discard)

	if _, err := a.ArchiveScan(context.Background(), domain.ScanSummary{}); err == nil {
		t.Error("expected error for missing scan id")
	}

	blobs.failPut = errors.New("bucket gone")
	_, err := a.ArchiveScan(context.Background(), domain.ScanSummary{ScanID: "x", StartedAt: time.Now()})
	if err == nil || !strings.Contains(err.Error(), "bucket gone") {
		t.Errorf("err = %v", err)
	}

	if _, err := a.ListScans(context.Background(), time.Now()); err == nil {
		t.Error("expected error without reader")
	}
}

func TestNormaliseEndpoint(t *testing.T) {
	cases := []struct {
		in   string
		ssl  bool
		want string
	}{
		{"https://s3.example.com", false, "https://s3.example.com"},
		{"minio:9000", false, "http://minio:9000"},
		{"r2.example.com", true, "https://r2.example.com"},
	}
	for _, c := range cases {
		if got := normaliseEndpoint(c.in, c.ssl); got != c.want {
			t.Errorf("normaliseEndpoint(%q, %v) = %q, want %q", c.in, c.ssl, got, c.want)
		}
	}
}
