package indexer

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/text-searcher/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/text-searcher/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/text-searcher/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/text-searcher/internal/loader"
	"github.com/Adithya-Monish-Kumar-K/text-searcher/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/text-searcher/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/text-searcher/pkg/tracing"
)

// Engine turns a document source into a ready SearchIndex.
type Engine struct {
	loader    loader.Loader
	tokenizer *tokenizer.Tokenizer
	unit      index.ContextUnit
	metrics   *metrics.Metrics
	tracker   analytics.Tracker
	logger    *slog.Logger
}

// Result is the outcome of a successful build.
type Result struct {
	Index  *index.SearchIndex
	Source string
	// Fingerprint changes whenever the document text or context unit does.
	Fingerprint string
	SizeBytes   int
	Duration    time.Duration
}

// NewEngine validates the search settings in cfg. m and tracker may be nil.
func NewEngine(l loader.Loader, cfg config.SearchConfig, m *metrics.Metrics, tracker analytics.Tracker) (*Engine, error) {
	tok, err := tokenizer.New(cfg.WordPattern)
	if err != nil {
		return nil, err
	}
	unit, err := index.ParseContextUnit(cfg.ContextUnit)
	if err != nil {
		return nil, err
	}
	return &Engine{
		loader:    l,
		tokenizer: tok,
		unit:      unit,
		metrics:   m,
		tracker:   tracker,
		logger:    slog.Default().With("component", "indexer"),
	}, nil
}

// Build loads the document and indexes it. It is traced as a root span.
func (e *Engine) Build(ctx context.Context) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "index.build", "")
	defer func() {
		span.End()
		span.Log()
	}()

	_, loadSpan := tracing.StartChildSpan(ctx, "document.load")
	text, err := loader.LoadLogged(ctx, e.loader)
	loadSpan.SetAttr("bytes", len(text))
	loadSpan.End()
	if err != nil {
		span.SetAttr("error", err.Error())
		return nil, err
	}

	_, tokSpan := tracing.StartChildSpan(ctx, "index.tokenize")
	start := time.Now()
	idx, err := index.Build(text, index.WithTokenizer(e.tokenizer), index.WithContextUnit(e.unit))
	elapsed := time.Since(start)
	tokSpan.End()
	if err != nil {
		span.SetAttr("error", err.Error())
		return nil, fmt.Errorf("building index from %s: %w", e.loader.Source(), err)
	}

	stats := idx.Stats()
	span.SetAttr("tokens", stats.Tokens)
	span.SetAttr("distinct_words", stats.DistinctWords)

	if e.metrics != nil {
		e.metrics.IndexBuildDuration.Observe(elapsed.Seconds())
		e.metrics.IndexTokens.WithLabelValues("all").Set(float64(stats.Tokens))
		e.metrics.IndexTokens.WithLabelValues("word").Set(float64(stats.WordTokens))
		e.metrics.IndexTokens.WithLabelValues("distinct").Set(float64(stats.DistinctWords))
	}
	if e.tracker != nil {
		e.tracker.Track(analytics.IndexEvent{
			Type:          analytics.EventIndexBuild,
			Source:        e.loader.Source(),
			SizeBytes:     len(text),
			Tokens:        stats.Tokens,
			WordTokens:    stats.WordTokens,
			DistinctWords: stats.DistinctWords,
			LatencyMs:     elapsed.Milliseconds(),
			Timestamp:     time.Now().UTC(),
		})
	}

	e.logger.Info("index built",
		"source", e.loader.Source(),
		"tokens", stats.Tokens,
		"word_tokens", stats.WordTokens,
		"distinct_words", stats.DistinctWords,
		"context_unit", e.unit.String(),
		"duration", elapsed,
	)
	return &Result{
		Index:       idx,
		Source:      e.loader.Source(),
		Fingerprint: Fingerprint(text, e.unit),
		SizeBytes:   len(text),
		Duration:    elapsed,
	}, nil
}

// Fingerprint identifies a document and context unit pair, for use as a
// cache namespace.
func Fingerprint(text string, unit index.ContextUnit) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("%x:%s", sum[:8], unit)
}
