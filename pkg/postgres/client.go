// Package postgres wraps database/sql with the lib/pq driver and exposes the
// document reads the searcher needs.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/text-searcher/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/text-searcher/pkg/errors"
)

type Client struct {
	DB  *sql.DB
	cfg config.PostgresConfig
}

func New(cfg config.PostgresConfig) (*Client, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening postgres connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return &Client{DB: db, cfg: cfg}, nil
}

func (c *Client) Close() error {
	return c.DB.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

// DocumentBody returns the body column of the row with the given id. The
// table name is quoted, so it may be any identifier.
func (c *Client) DocumentBody(ctx context.Context, table, id string) (string, error) {
	query := DocumentBodyQuery(table)
	var body string
	err := c.DB.QueryRowContext(ctx, query, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s/%s", apperrors.ErrDocumentNotFound, table, id)
	}
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			return "", fmt.Errorf("querying %s (%s): %w", table, pqErr.Code.Name(), err)
		}
		return "", fmt.Errorf("querying %s: %w", table, err)
	}
	return body, nil
}

// IsConfigError reports whether err is a server rejection that retrying
// cannot fix: bad credentials (class 28) or an unknown database.
func IsConfigError(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code.Class() == "28" || pqErr.Code == "3D000"
}

// DocumentBodyQuery builds the single-row select used by DocumentBody.
func DocumentBodyQuery(table string) string {
	return fmt.Sprintf("SELECT body FROM %s WHERE id = $1", pq.QuoteIdentifier(table))
}
