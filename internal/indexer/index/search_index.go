// Package index holds the in-memory positional index for a single document.
// A SearchIndex retains the document's token sequence and maps every
// lowercased word to the token positions where it occurs, so that search
// results can be rebuilt from tokens with the original casing and spacing.
package index

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/text-searcher/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/text-searcher/pkg/errors"
)

// Tokenizer is the token source a SearchIndex is built from. IsWord alone
// decides which tokens are indexed; the Kind a token arrives with is
// replaced by its answer.
type Tokenizer interface {
	Tokenize(text string) []tokenizer.Token
	IsWord(tok tokenizer.Token) bool
}

// ContextUnit selects how the context width of a query is measured.
type ContextUnit int

const (
	// UnitSlots counts token slots: a width of k spans 2k tokens on each
	// side, separators included.
	UnitSlots ContextUnit = iota
	// UnitWords counts only word tokens on each side.
	UnitWords
)

func (u ContextUnit) String() string {
	switch u {
	case UnitSlots:
		return "slots"
	case UnitWords:
		return "words"
	default:
		return fmt.Sprintf("unit(%d)", int(u))
	}
}

// ParseContextUnit maps a config value to a ContextUnit. The empty string
// selects UnitSlots.
func ParseContextUnit(s string) (ContextUnit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "slots":
		return UnitSlots, nil
	case "words":
		return UnitWords, nil
	default:
		return 0, apperrors.InvalidArgumentf("unknown context unit %q", s)
	}
}

// Normalize returns the index key for a word.
func Normalize(word string) string {
	return strings.ToLower(word)
}

// Stats summarises a built index.
type Stats struct {
	Tokens        int `json:"tokens"`
	WordTokens    int `json:"word_tokens"`
	DistinctWords int `json:"distinct_words"`
}

// Match is one search hit. WindowStart and WindowEnd are the inclusive token
// positions that Text was rebuilt from.
type Match struct {
	Position    int    `json:"position"`
	Offset      int    `json:"offset"`
	Token       string `json:"token"`
	WindowStart int    `json:"window_start"`
	WindowEnd   int    `json:"window_end"`
	Text        string `json:"text"`
}

// SearchIndex is immutable once Build returns, and safe for concurrent use.
type SearchIndex struct {
	tokens     []tokenizer.Token
	positions  map[string][]int
	unit       ContextUnit
	wordTokens int
}

type buildOptions struct {
	tokenizer Tokenizer
	unit      ContextUnit
}

// Option configures Build.
type Option func(*buildOptions)

// WithTokenizer replaces the default tokenizer.
func WithTokenizer(t Tokenizer) Option {
	return func(o *buildOptions) {
		o.tokenizer = t
	}
}

// WithContextUnit sets how Search measures context. The default is UnitSlots.
func WithContextUnit(u ContextUnit) Option {
	return func(o *buildOptions) {
		o.unit = u
	}
}

// Build tokenizes text and indexes every word token. It returns either a
// fully built index or an error; no partially built index escapes.
func Build(text string, opts ...Option) (*SearchIndex, error) {
	o := buildOptions{
		tokenizer: tokenizer.Default(),
		unit:      UnitSlots,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.tokenizer == nil {
		return nil, apperrors.InvalidArgumentf("tokenizer is nil")
	}
	if o.unit != UnitSlots && o.unit != UnitWords {
		return nil, apperrors.InvalidArgumentf("unknown context unit %d", int(o.unit))
	}

	produced := o.tokenizer.Tokenize(text)
	tokens := make([]tokenizer.Token, len(produced))
	offset := 0
	for i, tok := range produced {
		if err := checkToken(text, offset, i, tok); err != nil {
			return nil, err
		}
		isWord := o.tokenizer.IsWord(tok)
		tok.Kind = tokenizer.Separator
		if isWord {
			tok.Kind = tokenizer.Word
		}
		tokens[i] = tok
		offset = tok.End
	}
	if offset != len(text) {
		return nil, apperrors.Internalf("tokens cover %d of %d bytes", offset, len(text))
	}

	positions, wordTokens := indexWords(tokens)
	return &SearchIndex{
		tokens:     tokens,
		positions:  positions,
		unit:       o.unit,
		wordTokens: wordTokens,
	}, nil
}

// checkToken enforces that tokens are non-empty, contiguous and faithful to
// the source text.
func checkToken(text string, offset, i int, tok tokenizer.Token) error {
	switch {
	case tok.Text == "":
		return apperrors.Internalf("token %d is empty", i)
	case tok.Start != offset:
		return apperrors.Internalf("token %d starts at byte %d, expected %d", i, tok.Start, offset)
	case tok.End != tok.Start+len(tok.Text) || tok.End > len(text) || text[tok.Start:tok.End] != tok.Text:
		return apperrors.Internalf("token %d does not match source bytes [%d,%d)", i, tok.Start, tok.End)
	}
	return nil
}

// indexWords folds the token sequence into word -> ascending positions.
func indexWords(tokens []tokenizer.Token) (map[string][]int, int) {
	positions := make(map[string][]int)
	words := 0
	for pos, tok := range tokens {
		if tok.Kind != tokenizer.Word {
			continue
		}
		key := Normalize(tok.Text)
		positions[key] = append(positions[key], pos)
		words++
	}
	return positions, words
}

// Search returns one context window per occurrence of queryWord, in
// document order. An unknown word yields an empty slice. A negative
// contextWords is rejected with ErrInvalidArgument.
func (s *SearchIndex) Search(queryWord string, contextWords int) ([]string, error) {
	if contextWords < 0 {
		return nil, apperrors.InvalidArgumentf("contextWords must be >= 0, got %d", contextWords)
	}
	occurrences := s.positions[Normalize(queryWord)]
	results := make([]string, 0, len(occurrences))
	for _, p := range occurrences {
		lo, hi := s.bounds(p, contextWords)
		results = append(results, s.join(lo, hi))
	}
	return results, nil
}

// SearchMatches is Search with the positions each window was built from.
func (s *SearchIndex) SearchMatches(queryWord string, contextWords int) ([]Match, error) {
	if contextWords < 0 {
		return nil, apperrors.InvalidArgumentf("contextWords must be >= 0, got %d", contextWords)
	}
	occurrences := s.positions[Normalize(queryWord)]
	matches := make([]Match, 0, len(occurrences))
	for _, p := range occurrences {
		matches = append(matches, s.match(p, contextWords))
	}
	return matches, nil
}

// Window rebuilds the context window around any token position.
func (s *SearchIndex) Window(position, contextWords int) (Match, error) {
	if contextWords < 0 {
		return Match{}, apperrors.InvalidArgumentf("contextWords must be >= 0, got %d", contextWords)
	}
	if position < 0 || position >= len(s.tokens) {
		return Match{}, apperrors.InvalidArgumentf("position %d out of range [0,%d)", position, len(s.tokens))
	}
	return s.match(position, contextWords), nil
}

func (s *SearchIndex) match(p, contextWords int) Match {
	lo, hi := s.bounds(p, contextWords)
	return Match{
		Position:    p,
		Offset:      s.tokens[p].Start,
		Token:       s.tokens[p].Text,
		WindowStart: lo,
		WindowEnd:   hi,
		Text:        s.join(lo, hi),
	}
}

// bounds returns the clamped, inclusive window around p.
func (s *SearchIndex) bounds(p, contextWords int) (lo, hi int) {
	if s.unit == UnitWords {
		return s.reach(p, -1, contextWords), s.reach(p, 1, contextWords)
	}
	span := len(s.tokens)
	if contextWords <= span/2 {
		span = 2 * contextWords
	}
	return max(0, p-span), min(len(s.tokens)-1, p+span)
}

// reach walks from p in direction step until it has passed words word
// tokens or hit the edge of the document, and returns the last position
// included.
func (s *SearchIndex) reach(p, step, words int) int {
	edge := p
	for i := p + step; words > 0 && i >= 0 && i < len(s.tokens); i += step {
		edge = i
		if s.tokens[i].Kind == tokenizer.Word {
			words--
		}
	}
	return edge
}

func (s *SearchIndex) join(lo, hi int) string {
	if lo == hi {
		return s.tokens[lo].Text
	}
	var b strings.Builder
	b.Grow(s.tokens[hi].End - s.tokens[lo].Start)
	for _, tok := range s.tokens[lo : hi+1] {
		b.WriteString(tok.Text)
	}
	return b.String()
}

// ContextUnit reports how Search measures context for this index.
func (s *SearchIndex) ContextUnit() ContextUnit {
	return s.unit
}

// Len returns the number of tokens.
func (s *SearchIndex) Len() int {
	return len(s.tokens)
}

// Tokens returns a copy of the token sequence.
func (s *SearchIndex) Tokens() []tokenizer.Token {
	return slices.Clone(s.tokens)
}

// Positions returns a copy of the ascending positions of word, or nil.
func (s *SearchIndex) Positions(word string) []int {
	return slices.Clone(s.positions[Normalize(word)])
}

// Contains reports whether word occurs in the document.
func (s *SearchIndex) Contains(word string) bool {
	_, ok := s.positions[Normalize(word)]
	return ok
}

// Vocabulary returns the distinct normalized words in sorted order.
func (s *SearchIndex) Vocabulary() []string {
	return slices.Sorted(maps.Keys(s.positions))
}

func (s *SearchIndex) Stats() Stats {
	return Stats{
		Tokens:        len(s.tokens),
		WordTokens:    s.wordTokens,
		DistinctWords: len(s.positions),
	}
}
