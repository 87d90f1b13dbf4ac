package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/kalshiconsensus/internal/domain"
)

// AnalysisService is what the analysis endpoints drive.
type AnalysisService interface {
	AnalyzeTicker(ctx context.Context, ticker string) (domain.ConsensusResult, error)
	AnalyzeMarket(ctx context.Context, m domain.Market) (domain.ConsensusResult, error)
	StartScan(ctx context.Context, limit int) (string, error)
	Progress() (domain.ScanProgress, bool)
	Picks(ctx context.Context, all bool) ([]domain.ConsensusResult, error)
	Recent(ctx context.Context, opts domain.ListOpts) ([]domain.ConsensusResult, error)
	History(ctx context.Context, ticker string, opts domain.ListOpts) ([]domain.ConsensusResult, error)
}

// AnalysisHandler serves analysis, scan, picks and history endpoints.
type AnalysisHandler struct {
	svc    AnalysisService
	logger *slog.Logger
}

// NewAnalysisHandler creates an AnalysisHandler backed by svc.
func NewAnalysisHandler(svc AnalysisService, logger *slog.Logger) *AnalysisHandler {
	return &AnalysisHandler{svc: svc, logger: logger}
}

// AnalyzeTicker fetches a market and runs the consensus on it.
// POST /api/analyze {"ticker": "KXFED-25DEC-T4.00"}
func (h *AnalysisHandler) AnalyzeTicker(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Ticker string `json:"ticker"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.Ticker == "" {
		writeError(w, http.StatusBadRequest, "market ticker is required")
		return
	}

	result, err := h.svc.AnalyzeTicker(r.Context(), body.Ticker)
	if err != nil {
		h.fail(w, r, "analyze ticker", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"analysis": result})
}

// AnalyzeMarket runs the consensus on a caller-supplied market snapshot.
// PUT /api/analyze {"market": {...}}
func (h *AnalysisHandler) AnalyzeMarket(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Market *domain.Market `json:"market"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.Market == nil {
		writeError(w, http.StatusBadRequest, "market data is required")
		return
	}

	result, err := h.svc.AnalyzeMarket(r.Context(), *body.Market)
	if err != nil {
		h.fail(w, r, "analyze market", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"analysis": result})
}

// StartScan queues a batch scan of the highest-volume markets.
// POST /api/scan {"limit": 10}
func (h *AnalysisHandler) StartScan(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Limit int `json:"limit"`
	}
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &body); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if body.Limit < 0 || body.Limit > 100 {
		writeError(w, http.StatusBadRequest, "limit must be between 1 and 100")
		return
	}

	id, err := h.svc.StartScan(r.Context(), body.Limit)
	if err != nil {
		if errors.Is(err, domain.ErrScanInProgress) {
			writeError(w, http.StatusConflict, "a scan is already running")
			return
		}
		h.fail(w, r, "start scan", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"scanId": id})
}

// ScanStatus reports the scan this instance is running, if any.
// GET /api/scan
func (h *AnalysisHandler) ScanStatus(w http.ResponseWriter, r *http.Request) {
	p, running := h.svc.Progress()
	if !running {
		writeJSON(w, http.StatusOK, map[string]any{"running": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"running": true,
		"scanId":  p.ScanID,
		"done":    p.Done,
		"total":   p.Total,
	})
}

// ListPicks returns the top picks.
// GET /api/picks?all=false
func (h *AnalysisHandler) ListPicks(w http.ResponseWriter, r *http.Request) {
	all, _ := strconv.ParseBool(r.URL.Query().Get("all"))
	picks, err := h.svc.Picks(r.Context(), all)
	if err != nil {
		h.fail(w, r, "list picks", err)
		return
	}
	if picks == nil {
		picks = []domain.ConsensusResult{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"picks": picks})
}

// ListRecent returns stored results, newest first.
// GET /api/consensus/recent?limit=50&offset=0&since=2026-01-01T00:00:00Z
func (h *AnalysisHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	results, err := h.svc.Recent(r.Context(), parseListOpts(r))
	if err != nil {
		h.fail(w, r, "list recent", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": nonNil(results)})
}

// ListByTicker returns one market's stored history.
// GET /api/consensus/{ticker}
func (h *AnalysisHandler) ListByTicker(w http.ResponseWriter, r *http.Request) {
	results, err := h.svc.History(r.Context(), r.PathValue("ticker"), parseListOpts(r))
	if err != nil {
		h.fail(w, r, "list history", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": nonNil(results)})
}

func (h *AnalysisHandler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusFor(err)
	msg := err.Error()
	switch {
	case errors.Is(err, domain.ErrNotFound):
		msg = "market not found"
	case status >= http.StatusInternalServerError:
		h.logger.ErrorContext(r.Context(), op+" failed", slog.String("error", err.Error()))
		msg = "failed to " + op
	}
	writeError(w, status, msg)
}

func nonNil(results []domain.ConsensusResult) []domain.ConsensusResult {
	if results == nil {
		return []domain.ConsensusResult{}
	}
	return results
}
