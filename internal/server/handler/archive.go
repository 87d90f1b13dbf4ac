package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/alanyoungcy/kalshiconsensus/internal/domain"
)

// ScanArchive reads archived scan snapshots.
type ScanArchive interface {
	ListScans(ctx context.Context, day time.Time) ([]domain.BlobInfo, error)
	LoadScan(ctx context.Context, key string) (domain.ScanSummary, error)
}

// AuditLog reads the audit trail.
type AuditLog interface {
	List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error)
}

// ArchiveHandler serves archived scans and the audit log. Either backend may
// be nil, in which case its endpoints answer 503.
type ArchiveHandler struct {
	scans  ScanArchive
	audit  AuditLog
	now    func() time.Time
	logger *slog.Logger
}

// NewArchiveHandler creates an ArchiveHandler. audit may be nil.
func NewArchiveHandler(scans ScanArchive, audit AuditLog, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{scans: scans, audit: audit, now: time.Now, logger: logger}
}

// ListScans lists one UTC day of archived scans, today by default.
// GET /api/archive/scans?date=2026-10-19
func (h *ArchiveHandler) ListScans(w http.ResponseWriter, r *http.Request) {
	if h.scans == nil {
		writeError(w, http.StatusServiceUnavailable, "scan archive not configured")
		return
	}
	day := h.now().UTC()
	if v := r.URL.Query().Get("date"); v != "" {
		d, err := time.Parse(time.DateOnly, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		day = d
	}

	infos, err := h.scans.ListScans(r.Context(), day)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list archived scans failed", slog.String("error", err.Error()))
		writeError(w, statusFor(err), "failed to list archived scans")
		return
	}
	if infos == nil {
		infos = []domain.BlobInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": day.Format(time.DateOnly), "scans": infos})
}

// GetScan loads one archived scan by its object key.
// GET /api/archive/scans/2026/10/19/{scanID}.json
func (h *ArchiveHandler) GetScan(w http.ResponseWriter, r *http.Request) {
	if h.scans == nil {
		writeError(w, http.StatusServiceUnavailable, "scan archive not configured")
		return
	}
	rest := r.PathValue("key")
	if rest == "" || strings.Contains(rest, "..") || !strings.HasSuffix(rest, ".json") {
		writeError(w, http.StatusBadRequest, "invalid scan key")
		return
	}

	summary, err := h.scans.LoadScan(r.Context(), "scans/"+rest)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "load archived scan failed", slog.String("error", err.Error()))
		}
		writeError(w, status, "failed to load archived scan")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"scan": summary})
}

// ListAudit returns audit entries, newest first.
// GET /api/audit?limit=50&since=2026-10-01T00:00:00Z
func (h *ArchiveHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		writeError(w, http.StatusServiceUnavailable, "audit log not configured")
		return
	}
	entries, err := h.audit.List(r.Context(), parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list audit failed", slog.String("error", err.Error()))
		writeError(w, statusFor(err), "failed to list audit log")
		return
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
