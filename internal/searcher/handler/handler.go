package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/text-searcher/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/text-searcher/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/text-searcher/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/text-searcher/internal/searcher/executor"
	apperrors "github.com/Adithya-Monish-Kumar-K/text-searcher/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/text-searcher/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/text-searcher/pkg/middleware"
)

type SearchExecutor interface {
	Execute(ctx context.Context, word string, contextWords int, withMatches bool) (*executor.SearchResult, error)
	EffectiveContext(contextWords int) int
	Stats() index.Stats
}

// Options configures a Handler. Cache and Tracker are optional.
type Options struct {
	Cache               *cache.QueryCache
	Tracker             analytics.Tracker
	DefaultContextWords int
	ContextUnit         index.ContextUnit
	Source              string
}

type Handler struct {
	executor       SearchExecutor
	cache          *cache.QueryCache
	tracker        analytics.Tracker
	defaultContext int
	unit           index.ContextUnit
	source         string
	logger         *slog.Logger
}

func New(exec SearchExecutor, opts Options) *Handler {
	return &Handler{
		executor:       exec,
		cache:          opts.Cache,
		tracker:        opts.Tracker,
		defaultContext: opts.DefaultContextWords,
		unit:           opts.ContextUnit,
		source:         opts.Source,
		logger:         slog.Default().With("component", "search-handler"),
	}
}

// RegisterRoutes mounts the search API on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/index/stats", h.IndexStats)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
	mux.HandleFunc("GET /health", h.Health)
}

// Search serves GET /api/v1/search?q=word&context=N&matches=bool.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)
	params := r.URL.Query()

	word := strings.TrimSpace(params.Get("q"))
	if word == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}

	contextWords := h.defaultContext
	if raw := params.Get("context"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			h.writeError(w, http.StatusBadRequest, "context must be a non-negative integer")
			return
		}
		contextWords = parsed
	}
	contextWords = h.executor.EffectiveContext(contextWords)

	withMatches := false
	if raw := params.Get("matches"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "matches must be a boolean")
			return
		}
		withMatches = parsed
	}

	compute := func(ctx context.Context) (*executor.SearchResult, error) {
		return h.executor.Execute(ctx, word, contextWords, withMatches)
	}
	var (
		result   *executor.SearchResult
		cacheHit bool
		err      error
	)
	if h.cache != nil {
		q := cache.Query{Word: word, ContextWords: contextWords, WithMatches: withMatches}
		result, cacheHit, err = h.cache.GetOrCompute(ctx, q, compute)
	} else {
		result, err = compute(ctx)
	}
	if err != nil {
		status := apperrors.HTTPStatusCode(err)
		if status >= http.StatusInternalServerError {
			log.Error("search failed", "word", word, "error", err)
		} else {
			log.Debug("search rejected", "word", word, "error", err)
		}
		h.writeAppError(w, status, err)
		return
	}

	// Cached and shared results answer for a differently cased query.
	if result.Query != word {
		clone := *result
		clone.Query = word
		result = &clone
	}

	latency := time.Since(start)
	log.Info("search completed",
		"word", word,
		"context_words", result.ContextWords,
		"total_hits", result.TotalHits,
		"cache_hit", cacheHit,
		"latency_ms", latency.Milliseconds(),
	)
	if h.tracker != nil {
		eventType := analytics.EventSearch
		if result.TotalHits == 0 {
			eventType = analytics.EventZeroResult
		}
		h.tracker.Track(analytics.SearchEvent{
			Type:         eventType,
			Query:        index.Normalize(word),
			ContextWords: result.ContextWords,
			ContextUnit:  result.ContextUnit,
			TotalHits:    result.TotalHits,
			LatencyMs:    latency.Milliseconds(),
			CacheHit:     cacheHit,
			Timestamp:    time.Now().UTC(),
			RequestID:    middleware.GetRequestID(r),
		})
	}

	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) IndexStats(w http.ResponseWriter, r *http.Request) {
	stats := h.executor.Stats()
	h.writeJSON(w, http.StatusOK, map[string]any{
		"source":         h.source,
		"context_unit":   h.unit.String(),
		"tokens":         stats.Tokens,
		"word_tokens":    stats.WordTokens,
		"distinct_words": stats.DistinctWords,
	})
}

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
		"breaker":  h.cache.BreakerState(),
	})
}

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

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) writeAppError(w http.ResponseWriter, status int, err error) {
	var (
		msg    string
		appErr *apperrors.AppError
	)
	switch {
	case status >= http.StatusInternalServerError && !errors.Is(err, apperrors.ErrNotReady) && !errors.Is(err, apperrors.ErrTimeout):
		msg = "search failed"
	case errors.As(err, &appErr):
		msg = appErr.Message
	default:
		msg = err.Error()
	}
	h.writeError(w, status, msg)
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
