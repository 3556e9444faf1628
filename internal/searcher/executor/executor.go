package executor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/Adithya-Monish-Kumar-K/text-searcher/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/text-searcher/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/text-searcher/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/text-searcher/pkg/tracing"
)

type SearchResult struct {
	Query        string        `json:"query"`
	ContextWords int           `json:"context_words"`
	ContextUnit  string        `json:"context_unit"`
	TotalHits    int           `json:"total_hits"`
	Windows      []string      `json:"windows"`
	Matches      []index.Match `json:"matches,omitempty"`
}

type Executor struct {
	idx             *index.SearchIndex
	maxContextWords int
	metrics         *metrics.Metrics
	logger          *slog.Logger
}

// New wraps a built index. Requests above maxContextWords are capped; zero
// disables the cap. m may be nil.
func New(idx *index.SearchIndex, maxContextWords int, m *metrics.Metrics) *Executor {
	return &Executor{
		idx:             idx,
		maxContextWords: maxContextWords,
		metrics:         m,
		logger:          slog.Default().With("component", "query-executor"),
	}
}

// Execute looks up a single word. Phrase queries are rejected.
func (e *Executor) Execute(ctx context.Context, word string, contextWords int, withMatches bool) (*SearchResult, error) {
	if e.idx == nil {
		return nil, apperrors.ErrNotReady
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrTimeout, err)
	}
	start := time.Now()
	_, span := tracing.StartChildSpan(ctx, "executor.search")
	defer span.End()

	word = strings.TrimSpace(word)
	if err := validateWord(word); err != nil {
		e.observe("invalid", start, 0)
		return nil, err
	}
	if capped := e.EffectiveContext(contextWords); capped != contextWords {
		e.logger.Debug("context width capped", "requested", contextWords, "max", e.maxContextWords)
		contextWords = capped
	}
	span.SetAttr("word", word)
	span.SetAttr("context_words", contextWords)

	result := &SearchResult{
		Query:        word,
		ContextWords: contextWords,
		ContextUnit:  e.idx.ContextUnit().String(),
	}
	if withMatches {
		matches, err := e.idx.SearchMatches(word, contextWords)
		if err != nil {
			e.observe("invalid", start, 0)
			return nil, err
		}
		result.Matches = matches
		result.Windows = make([]string, len(matches))
		for i, m := range matches {
			result.Windows[i] = m.Text
		}
	} else {
		windows, err := e.idx.Search(word, contextWords)
		if err != nil {
			e.observe("invalid", start, 0)
			return nil, err
		}
		result.Windows = windows
	}
	result.TotalHits = len(result.Windows)
	span.SetAttr("total_hits", result.TotalHits)

	resultType := "hit"
	if result.TotalHits == 0 {
		resultType = "zero_result"
	}
	e.observe(resultType, start, result.TotalHits)
	return result, nil
}

// EffectiveContext returns the width Execute will use for a request of
// contextWords.
func (e *Executor) EffectiveContext(contextWords int) int {
	if e.maxContextWords > 0 && contextWords > e.maxContextWords {
		return e.maxContextWords
	}
	return contextWords
}

// Stats reports the size of the underlying index.
func (e *Executor) Stats() index.Stats {
	if e.idx == nil {
		return index.Stats{}
	}
	return e.idx.Stats()
}

func (e *Executor) observe(resultType string, start time.Time, windows int) {
	if e.metrics == nil {
		return
	}
	e.metrics.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	if resultType == "invalid" {
		return
	}
	e.metrics.SearchLatency.WithLabelValues(e.idx.ContextUnit().String()).Observe(time.Since(start).Seconds())
	e.metrics.SearchWindowsCount.Observe(float64(windows))
}

func validateWord(word string) error {
	if word == "" {
		return apperrors.InvalidArgumentf("query word is empty")
	}
	if strings.IndexFunc(word, unicode.IsSpace) >= 0 {
		return apperrors.InvalidArgumentf("query %q has more than one word; phrase queries are not supported", word)
	}
	return nil
}
