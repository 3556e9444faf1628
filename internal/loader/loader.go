// Package loader materializes a document's full text so an index can be built
// from it. Every failure is reported as errors.ErrDocumentLoad.
package loader

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/text-searcher/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/text-searcher/pkg/errors"
)

// Loader reads a whole document into memory.
type Loader interface {
	Load(ctx context.Context) (string, error)
	// Source names the document for logs and analytics.
	Source() string
}

// DocumentStore fetches document bodies by id.
type DocumentStore interface {
	DocumentBody(ctx context.Context, table, id string) (string, error)
}

func loadErr(source string, err error) error {
	return fmt.Errorf("%w: %s: %w", apperrors.ErrDocumentLoad, source, err)
}

func decode(source string, data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", loadErr(source, fmt.Errorf("content is not valid UTF-8"))
	}
	return string(data), nil
}

// FileLoader reads a document from the local filesystem.
type FileLoader struct {
	Path string
}

func (l FileLoader) Source() string {
	return "file:" + l.Path
}

func (l FileLoader) Load(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", loadErr(l.Source(), err)
	}
	f, err := os.Open(l.Path)
	if err != nil {
		return "", loadErr(l.Source(), err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return "", loadErr(l.Source(), fmt.Errorf("reading: %w", err))
	}
	return decode(l.Source(), data)
}

// ReaderLoader drains an arbitrary reader. It can be loaded once.
type ReaderLoader struct {
	Name string
	R    io.Reader
}

func (l ReaderLoader) Source() string {
	if l.Name == "" {
		return "reader"
	}
	return l.Name
}

func (l ReaderLoader) Load(ctx context.Context) (string, error) {
	if l.R == nil {
		return "", loadErr(l.Source(), fmt.Errorf("nil reader"))
	}
	if err := ctx.Err(); err != nil {
		return "", loadErr(l.Source(), err)
	}
	data, err := io.ReadAll(l.R)
	if err != nil {
		return "", loadErr(l.Source(), fmt.Errorf("reading: %w", err))
	}
	return decode(l.Source(), data)
}

// PostgresLoader reads the body column of one row.
type PostgresLoader struct {
	Store      DocumentStore
	Table      string
	DocumentID string
}

func (l PostgresLoader) Source() string {
	return fmt.Sprintf("postgres:%s/%s", l.Table, l.DocumentID)
}

func (l PostgresLoader) Load(ctx context.Context) (string, error) {
	if l.Store == nil {
		return "", loadErr(l.Source(), fmt.Errorf("no document store configured"))
	}
	body, err := l.Store.DocumentBody(ctx, l.Table, l.DocumentID)
	if err != nil {
		return "", loadErr(l.Source(), err)
	}
	return decode(l.Source(), []byte(body))
}

// New picks a Loader for cfg. store may be nil unless the source is
// postgres.
func New(cfg config.DocumentConfig, store DocumentStore) (Loader, error) {
	switch cfg.Source {
	case config.SourceFile, "":
		return FileLoader{Path: cfg.Path}, nil
	case config.SourcePostgres:
		table := cfg.Table
		if table == "" {
			table = "documents"
		}
		return PostgresLoader{Store: store, Table: table, DocumentID: cfg.DocumentID}, nil
	default:
		return nil, apperrors.InvalidArgumentf("unknown document source %q", cfg.Source)
	}
}

// LoadLogged runs l and logs the outcome with the document size.
func LoadLogged(ctx context.Context, l Loader) (string, error) {
	log := slog.Default().With("component", "loader", "source", l.Source())
	text, err := l.Load(ctx)
	if err != nil {
		log.Error("document load failed", "error", err)
		return "", err
	}
	log.Info("document loaded", "bytes", len(text))
	return text, nil
}
