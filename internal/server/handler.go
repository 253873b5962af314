// Package server exposes the decoder over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/syntaxmt/forest-decoder/internal/cache"
	"github.com/syntaxmt/forest-decoder/internal/decode"
	"github.com/syntaxmt/forest-decoder/internal/events"
	"github.com/syntaxmt/forest-decoder/internal/history"
	pkgerrors "github.com/syntaxmt/forest-decoder/pkg/errors"
	"github.com/syntaxmt/forest-decoder/pkg/logger"
	"github.com/syntaxmt/forest-decoder/pkg/metrics"
	"github.com/syntaxmt/forest-decoder/pkg/middleware"
	"github.com/syntaxmt/forest-decoder/pkg/resilience"
)

const maxRequestBytes = 32 << 20

// Decoder is the part of the engine the handler needs.
type Decoder interface {
	Decode(ctx context.Context, req *decode.Request) (*decode.Result, error)
}

// Handler serves the translation API.
type Handler struct {
	engine        Decoder
	cache         *cache.ResultCache
	collector     *events.Collector
	history       *history.Store
	metrics       *metrics.Metrics
	decodeTimeout time.Duration
	logger        *slog.Logger
}

// New creates a Handler. cache, collector, history, and metrics may each be
// nil when the corresponding backend is not configured.
func New(
	engine Decoder,
	resultCache *cache.ResultCache,
	collector *events.Collector,
	historyStore *history.Store,
	m *metrics.Metrics,
	decodeTimeout time.Duration,
) *Handler {
	return &Handler{
		engine:        engine,
		cache:         resultCache,
		collector:     collector,
		history:       historyStore,
		metrics:       m,
		decodeTimeout: decodeTimeout,
		logger:        slog.Default().With("component", "translate-handler"),
	}
}

// Translate decodes one source tree or forest into its n-best translations.
func (h *Handler) Translate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	var req decode.Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := dec.Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	hash, err := req.Hash()
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "unhashable request")
		return
	}

	var result *decode.Result
	var cached bool
	err = resilience.WithTimeout(ctx, h.decodeTimeout, "decode", func(ctx context.Context) error {
		var decodeErr error
		result, cached, decodeErr = h.cache.GetOrCompute(ctx, hash, func() (*decode.Result, error) {
			return h.engine.Decode(ctx, &req)
		})
		return decodeErr
	})

	latency := time.Since(start)
	if err != nil {
		status := pkgerrors.HTTPStatusCode(err)
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
		log.Error("decode failed", "request_hash", hash, "status", status, "error", err)
		h.observeDecode("error", latency)
		h.trackEvent(ctx, hash, nil, false, "error", latency)
		h.writeError(w, status, err.Error())
		return
	}
	result.Cached = cached

	outcome := "ok"
	if cached {
		outcome = "cached"
	}
	log.Info("decode completed",
		"request_hash", hash,
		"hypotheses", len(result.Hypotheses),
		"cached", cached,
		"latency_ms", latency.Milliseconds(),
	)
	h.observeDecode(outcome, latency)
	h.trackEvent(ctx, hash, result, cached, "ok", latency)
	if !cached {
		h.saveHistory(hash, result)
	}

	h.writeJSON(w, http.StatusOK, result)
}

// History lists recent decodes, newest first.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		parsed, err := strconv.Atoi(s)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	records, err := h.history.List(r.Context(), limit)
	if err != nil {
		h.logger.Error("history listing failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	if records == nil {
		records = []history.Record{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

// CacheStats reports cache hit/miss counts.
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

// CacheInvalidate drops every cached decode result.
func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) observeDecode(outcome string, latency time.Duration) {
	if h.metrics == nil {
		return
	}
	h.metrics.DecodesTotal.WithLabelValues(outcome).Inc()
	h.metrics.DecodeLatency.Observe(latency.Seconds())
}

func (h *Handler) trackEvent(ctx context.Context, hash string, result *decode.Result, cached bool, status string, latency time.Duration) {
	if h.collector == nil {
		return
	}
	event := events.DecodeEvent{
		RequestID:   middleware.GetRequestID(ctx),
		RequestHash: hash,
		Status:      status,
		Cached:      cached,
		DurationMs:  latency.Milliseconds(),
		Timestamp:   time.Now().UTC(),
	}
	if result != nil {
		event.Hypotheses = len(result.Hypotheses)
		event.CubePops = result.Stats.CubePops
		event.GlueRules = result.Stats.GlueRules
		if len(result.Hypotheses) > 0 {
			event.BestScore = result.Hypotheses[0].Score
		}
	}
	h.collector.Track(event)
}

// saveHistory persists the best hypothesis off the request path; a slow or
// failing database must not delay responses.
func (h *Handler) saveHistory(hash string, result *decode.Result) {
	if h.history == nil || len(result.Hypotheses) == 0 {
		return
	}
	best := result.Hypotheses[0]
	rec := history.Record{
		RequestHash: hash,
		BestText:    best.Text,
		BestScore:   best.Score,
		Hypotheses:  len(result.Hypotheses),
		DurationMs:  result.DurationMs,
		DecodedAt:   time.Now().UTC(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := h.history.Save(ctx, rec); err != nil {
			h.logger.Error("failed to persist decode record", "error", err)
		}
	}()
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
