package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/twstocklab/stockboard/internal/engine"
	"github.com/twstocklab/stockboard/internal/returns"
	"github.com/twstocklab/stockboard/internal/stocks"
)

// refreshRequest carries optional overrides for a run; absent fields fall back
// to the configured engine defaults.
type refreshRequest struct {
	BatchSize         *int          `json:"batch_size"`
	Concurrency       *int          `json:"concurrency"`
	InterBatchDelayMs *int          `json:"inter_batch_delay_ms"`
	Days              *int          `json:"days"`
	Scope             *stocks.Scope `json:"scope"`
}

func (s *Server) startRefresh(w http.ResponseWriter, r *http.Request) {
	job := s.cfg.JobDefaults()

	if r.Body != nil && r.ContentLength != 0 {
		var req refreshRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
		if req.BatchSize != nil {
			job.BatchSize = *req.BatchSize
		}
		if req.Concurrency != nil {
			job.Concurrency = *req.Concurrency
		}
		if req.InterBatchDelayMs != nil {
			job.InterBatchDelay = time.Duration(*req.InterBatchDelayMs) * time.Millisecond
		}
		if req.Days != nil {
			job.Days = *req.Days
		}
		if req.Scope != nil {
			job.Scope = *req.Scope
		}
	}

	if err := job.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Start reserves the run slot atomically, so a 202 always names a run
	// that was actually accepted.
	runID, err := s.controller.Start(job)
	if err != nil {
		if errors.Is(err, stocks.ErrRunActive) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"run_id":     runID.String(),
		"batch_size": job.BatchSize,
		"days":       job.Days,
	})
}

func (s *Server) cancelRefresh(w http.ResponseWriter, _ *http.Request) {
	if !s.controller.Active() {
		writeError(w, http.StatusConflict, "no run in progress")
		return
	}
	s.controller.Cancel()
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancellation requested"})
}

func (s *Server) refreshStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.controller.Status())
}

func (s *Server) listSymbols(w http.ResponseWriter, r *http.Request) {
	symbols, err := s.upstream.ListSymbols(r.Context())
	if err != nil {
		writeUpstreamError(w, err)
		return
	}

	q := r.URL.Query()
	if q.Get("start") != "" || q.Get("end") != "" {
		start, err := strconv.Atoi(q.Get("start"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "start must be an integer code")
			return
		}
		end, err := strconv.Atoi(q.Get("end"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "end must be an integer code")
			return
		}
		scope := stocks.Scope{Kind: stocks.ScopeRange, StartCode: start, EndCode: end}
		if err := scope.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		symbols = scope.Filter(symbols)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    symbols,
		"count":   len(symbols),
	})
}

func (s *Server) getPrices(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	start, end, ok := parseDateRange(w, r)
	if !ok {
		return
	}

	points, fromCache, err := s.fetchPrices(r.Context(), symbol, start, end)
	if err != nil {
		writeUpstreamError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"symbol":  symbol,
		"data":    points,
		"count":   len(points),
		"cached":  fromCache,
	})
}

func (s *Server) getReturns(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	frequency := r.URL.Query().Get("frequency")
	if frequency == "" {
		frequency = "daily"
	}
	start, end, ok := parseDateRange(w, r)
	if !ok {
		return
	}

	points, _, err := s.fetchPrices(r.Context(), symbol, start, end)
	if err != nil {
		writeUpstreamError(w, err)
		return
	}

	series, err := returns.Compute(symbol, points, frequency)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"symbol":    symbol,
		"frequency": frequency,
		"data":      series,
		"count":     len(series),
	})
}

// fetchPrices serves from the price cache when present and falls back to the
// upstream service, warming the cache with what it fetched.
func (s *Server) fetchPrices(ctx context.Context, symbol string, start, end time.Time) ([]stocks.PricePoint, bool, error) {
	if s.prices != nil {
		cached, err := s.prices.PricesRange(ctx, symbol, start, end)
		if err == nil && len(cached) > 0 {
			return cached, true, nil
		}
		if err != nil {
			s.logger.Warn("price cache read failed", zap.String("symbol", symbol), zap.Error(err))
		}
	}

	points, err := s.upstream.Prices(ctx, symbol, formatDate(start), formatDate(end))
	if err != nil {
		return nil, false, err
	}

	if s.prices != nil && len(points) > 0 {
		if _, err := s.prices.UpsertPrices(ctx, points); err != nil {
			s.logger.Warn("price cache write failed", zap.String("symbol", symbol), zap.Error(err))
		}
	}
	return points, false, nil
}

func (s *Server) getStatistics(w http.ResponseWriter, r *http.Request) {
	if s.prices != nil {
		stats, err := s.prices.Statistics(r.Context())
		if err == nil {
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": stats})
			return
		}
		s.logger.Warn("local statistics failed", zap.Error(err))
	}

	stats, err := s.upstream.Statistics(r.Context())
	if err != nil {
		writeUpstreamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": stats})
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit := intQuery(r, "limit", 20)
	offset := intQuery(r, "offset", 0)
	if limit < 1 || limit > 200 {
		writeError(w, http.StatusBadRequest, "limit must be between 1 and 200")
		return
	}
	if offset < 0 {
		writeError(w, http.StatusBadRequest, "offset must be non-negative")
		return
	}

	runs, err := s.runs.ListRuns(r.Context(), limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "listing runs failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    runs,
		"count":   len(runs),
	})
}

// parseDateRange reads optional start/end query params in YYYY-MM-DD form.
// Zero times mean unbounded. Reports false after writing a 400.
func parseDateRange(w http.ResponseWriter, r *http.Request) (start, end time.Time, ok bool) {
	q := r.URL.Query()
	var err error
	if v := q.Get("start"); v != "" {
		start, err = time.Parse("2006-01-02", v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "start must be YYYY-MM-DD")
			return time.Time{}, time.Time{}, false
		}
	}
	if v := q.Get("end"); v != "" {
		end, err = time.Parse("2006-01-02", v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "end must be YYYY-MM-DD")
			return time.Time{}, time.Time{}, false
		}
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		writeError(w, http.StatusBadRequest, "end must not precede start")
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}

func intQuery(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// writeUpstreamError maps client error classes onto HTTP statuses.
func writeUpstreamError(w http.ResponseWriter, err error) {
	var statusErr *stocks.StatusError
	var apiErr *stocks.APIError
	switch {
	case engine.IsConfigError(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &statusErr):
		writeError(w, http.StatusBadGateway, err.Error())
	case errors.As(err, &apiErr):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeError(w, http.StatusServiceUnavailable, err.Error())
	}
}
