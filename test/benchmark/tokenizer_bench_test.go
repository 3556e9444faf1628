package benchmark

import (
	"fmt"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/text-searcher/internal/indexer/tokenizer"
)

var sampleTexts = map[string]string{
	"short": "The quick brown fox jumps over the lazy dog",
	"medium": `It was the best of times, it was the worst of times, it was the age of
        wisdom, it was the age of foolishness, it was the epoch of belief, it was the
        epoch of incredulity, it was the season of Light, it was the season of Darkness.`,
	"long": strings.Repeat(`Information retrieval systems form the backbone of modern search
        infrastructure. These systems combine tokenization and normalization to turn
        text into searchable terms; the index maps each term to the positions where it
        occurs, so that a reader can see every place a word was used in context. Don't
        forget: punctuation, whitespace -- and apostrophes -- survive as separators. `, 20),
}

func BenchmarkTokenize(b *testing.B) {
	tok := tokenizer.Default()
	for name, text := range sampleTexts {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				_ = tok.Tokenize(text)
			}
		})
	}
}

// BenchmarkTokensIter measures the streaming form, which avoids building the
// token slice.
func BenchmarkTokensIter(b *testing.B) {
	tok := tokenizer.Default()
	text := sampleTexts["long"]
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	for i := 0; i < b.N; i++ {
		n := 0
		for range tok.Tokens(text) {
			n++
		}
		_ = n
	}
}

func BenchmarkTokenizeParallel(b *testing.B) {
	tok := tokenizer.Default()
	text := sampleTexts["medium"]
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = tok.Tokenize(text)
		}
	})
}

// BenchmarkCustomPattern compares the default word pattern with a narrower
// letters-only one.
func BenchmarkCustomPattern(b *testing.B) {
	text := sampleTexts["long"]
	for _, pattern := range []string{tokenizer.DefaultWordPattern, "[A-Za-z]+"} {
		tok, err := tokenizer.New(pattern)
		if err != nil {
			b.Fatal(err)
		}
		b.Run(pattern, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				_ = tok.Tokenize(text)
			}
		})
	}
}

func BenchmarkTokenizeVaryingSize(b *testing.B) {
	sizes := []int{10, 100, 500, 1000, 5000}
	baseWord := "the cat sat on the mat, and the dog sat on the log. "
	for _, size := range sizes {
		text := strings.Repeat(baseWord, size/len(baseWord)+1)[:size]
		b.Run(fmt.Sprintf("bytes_%d", size), func(b *testing.B) {
			tok := tokenizer.Default()
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				_ = tok.Tokenize(text)
			}
		})
	}
}
