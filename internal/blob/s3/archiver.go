package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"time"

	"github.com/alanyoungcy/kalshiconsensus/internal/domain"
)

// Archiver implements domain.ScanArchiver. Each finished scan becomes one
// JSON object keyed by the day it finished:
//
//	scans/2026/10/19/<scan id>.json
type Archiver struct {
	writer domain.BlobWriter
	reader domain.BlobReader
	audit  domain.AuditStore
	logger *slog.Logger
}

var _ domain.ScanArchiver = (*Archiver)(nil)

// NewArchiver wires an archiver. reader and audit may be nil.
func NewArchiver(writer domain.BlobWriter, reader domain.BlobReader, audit domain.AuditStore, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer: writer,
		reader: reader,
		audit:  audit,
		logger: logger.With(slog.String("component", "scan_archiver")),
	}
}

// ArchiveScan uploads the summary and returns its object path.
func (a *Archiver) ArchiveScan(ctx context.Context, summary domain.ScanSummary) (string, error) {
	if summary.ScanID == "" {
		return "", fmt.Errorf("s3blob: archive scan: missing scan id")
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(summary); err != nil {
		return "", fmt.Errorf("s3blob: archive scan %s marshal: %w", summary.ScanID, err)
	}

	key := scanPath(summary)
	if err := a.writer.Put(ctx, key, &buf, "application/json"); err != nil {
		return "", fmt.Errorf("s3blob: archive scan %s upload: %w", summary.ScanID, err)
	}

	if a.audit != nil {
		if err := a.audit.Log(ctx, "archive.scan", map[string]any{
			"scan_id": summary.ScanID,
			"path":    key,
			"markets": summary.MarketCount,
		}); err != nil {
			a.logger.Warn("audit log failed", slog.String("error", err.Error()))
		}
	}
	return key, nil
}

// ListScans returns archived scans for day, newest first.
func (a *Archiver) ListScans(ctx context.Context, day time.Time) ([]domain.BlobInfo, error) {
	if a.reader == nil {
		return nil, errors.New("s3blob: archiver has no reader")
	}
	infos, err := a.reader.List(ctx, dayPrefix(day))
	if err != nil {
		return nil, err
	}
	sort.SliceStable(infos, func(i, j int) bool {
		return infos[i].LastModified.After(infos[j].LastModified)
	})
	return infos, nil
}

// LoadScan reads back an archived scan.
func (a *Archiver) LoadScan(ctx context.Context, key string) (domain.ScanSummary, error) {
	if a.reader == nil {
		return domain.ScanSummary{}, errors.New("s3blob: archiver has no reader")
	}
	body, err := a.reader.Get(ctx, key)
	if err != nil {
		return domain.ScanSummary{}, err
	}
	defer body.Close()

	var summary domain.ScanSummary
	if err := json.NewDecoder(body).Decode(&summary); err != nil {
		return domain.ScanSummary{}, fmt.Errorf("s3blob: decode scan %s: %w", key, err)
	}
	return summary, nil
}

func dayPrefix(day time.Time) string {
	return "scans/" + day.UTC().Format("2006/01/02") + "/"
}

func scanPath(summary domain.ScanSummary) string {
	at := summary.FinishedAt
	if at.IsZero() {
		at = summary.StartedAt
	}
	return path.Join(dayPrefix(at), summary.ScanID+".json")
}
