// Package tokenizer splits document text into an ordered, gapless sequence of
// word and separator tokens. Concatenating the tokens in order reproduces the
// input exactly, including case and whitespace.
package tokenizer

import (
	"fmt"
	"iter"
	"regexp"
	"slices"

	apperrors "github.com/Adithya-Monish-Kumar-K/text-searcher/pkg/errors"
)

// DefaultWordPattern matches runs of ASCII letters, digits and apostrophes.
const DefaultWordPattern = `[0-9A-Za-z']+`

// Kind tags a token as a word or the text between words.
type Kind int

const (
	Separator Kind = iota
	Word
)

func (k Kind) String() string {
	switch k {
	case Word:
		return "word"
	case Separator:
		return "separator"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Token is a contiguous slice of the source text. Start and End are byte
// offsets into that text, End exclusive.
type Token struct {
	Text  string
	Kind  Kind
	Start int
	End   int
}

// Classifier decides whether a produced substring is a word.
type Classifier interface {
	Classify(text string) Kind
}

// ClassifierFunc adapts a plain function to the Classifier interface.
type ClassifierFunc func(text string) Kind

func (f ClassifierFunc) Classify(text string) Kind {
	return f(text)
}

// PatternClassifier reports Word for strings that the word pattern matches in
// full.
type PatternClassifier struct {
	full *regexp.Regexp
}

// NewPatternClassifier compiles pattern into an anchored classifier.
func NewPatternClassifier(pattern string) (*PatternClassifier, error) {
	full, err := regexp.Compile(`^(?:` + pattern + `)$`)
	if err != nil {
		return nil, fmt.Errorf("%w: compiling word pattern %q: %v", apperrors.ErrInvalidArgument, pattern, err)
	}
	return &PatternClassifier{full: full}, nil
}

func (c *PatternClassifier) Classify(text string) Kind {
	if text != "" && c.full.MatchString(text) {
		return Word
	}
	return Separator
}

// Tokenizer finds word runs with a regular expression and fills the gaps
// between them with separator tokens.
type Tokenizer struct {
	pattern    *regexp.Regexp
	classifier Classifier
}

// Option configures a Tokenizer.
type Option func(*Tokenizer)

// WithClassifier overrides the classifier used to tag produced tokens. By
// default the word pattern itself classifies.
func WithClassifier(c Classifier) Option {
	return func(t *Tokenizer) {
		if c != nil {
			t.classifier = c
		}
	}
}

// New builds a Tokenizer for the given word pattern. An empty pattern selects
// DefaultWordPattern.
func New(pattern string, opts ...Option) (*Tokenizer, error) {
	if pattern == "" {
		pattern = DefaultWordPattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: compiling word pattern %q: %v", apperrors.ErrInvalidArgument, pattern, err)
	}
	classifier, err := NewPatternClassifier(pattern)
	if err != nil {
		return nil, err
	}
	t := &Tokenizer{pattern: re, classifier: classifier}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

var defaultTokenizer = func() *Tokenizer {
	t, err := New(DefaultWordPattern)
	if err != nil {
		panic(err)
	}
	return t
}()

// Default returns the shared tokenizer for DefaultWordPattern. Tokenizers hold
// no mutable state, so sharing is safe.
func Default() *Tokenizer {
	return defaultTokenizer
}

// Tokens yields the tokens of text in document order. Zero-length pattern
// matches are ignored, so every yielded token is non-empty.
func (t *Tokenizer) Tokens(text string) iter.Seq[Token] {
	return func(yield func(Token) bool) {
		prev := 0
		for _, loc := range t.pattern.FindAllStringIndex(text, -1) {
			start, end := loc[0], loc[1]
			if start == end {
				continue
			}
			if start > prev {
				if !yield(t.token(text, prev, start)) {
					return
				}
			}
			if !yield(t.token(text, start, end)) {
				return
			}
			prev = end
		}
		if prev < len(text) {
			yield(t.token(text, prev, len(text)))
		}
	}
}

// Tokenize returns every token of text. The empty string yields no tokens.
func (t *Tokenizer) Tokenize(text string) []Token {
	return slices.Collect(t.Tokens(text))
}

// IsWord reports whether tok was classified as a word when it was produced.
func (t *Tokenizer) IsWord(tok Token) bool {
	return tok.Kind == Word
}

// Classifier returns the classifier used to tag tokens.
func (t *Tokenizer) Classifier() Classifier {
	return t.classifier
}

func (t *Tokenizer) token(text string, start, end int) Token {
	s := text[start:end]
	return Token{
		Text:  s,
		Kind:  t.classifier.Classify(s),
		Start: start,
		End:   end,
	}
}
