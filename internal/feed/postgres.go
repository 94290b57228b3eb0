package feed

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/crawl-search/internal/crawl"
	"github.com/Adithya-Monish-Kumar-K/crawl-search/pkg/postgres"
)

// PostgresSink upserts records into a table with url and content columns.
// Re-feeding a URL replaces its content and keeps its id, so the table
// scan order PostgresSource uses stays stable.
type PostgresSink struct {
	client *postgres.Client
	table  string
}

func NewPostgresSink(client *postgres.Client, table string) (*PostgresSink, error) {
	if !crawl.ValidTableName(table) {
		return nil, fmt.Errorf("invalid crawl table name %q", table)
	}
	return &PostgresSink{client: client, table: table}, nil
}

func (p *PostgresSink) Name() string {
	return "postgres:" + p.table
}

func createTableSQL(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id         BIGSERIAL PRIMARY KEY,
	url        TEXT NOT NULL UNIQUE,
	content    BYTEA NOT NULL,
	fetched_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, table)
}

func upsertSQL(table string) string {
	return fmt.Sprintf(`INSERT INTO %s (url, content) VALUES ($1, $2)
ON CONFLICT (url) DO UPDATE SET content = EXCLUDED.content, fetched_at = now()`, table)
}

// EnsureTable creates the crawl table when it does not exist.
func (p *PostgresSink) EnsureTable(ctx context.Context) error {
	if _, err := p.client.DB.ExecContext(ctx, createTableSQL(p.table)); err != nil {
		return fmt.Errorf("creating %s: %w", p.table, err)
	}
	return nil
}

func (p *PostgresSink) Write(ctx context.Context, batch []crawl.Record) error {
	return p.client.InTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, upsertSQL(p.table))
		if err != nil {
			return fmt.Errorf("preparing upsert: %w", err)
		}
		defer stmt.Close()
		for _, rec := range batch {
			if _, err := stmt.ExecContext(ctx, rec.URL, rec.Content); err != nil {
				return fmt.Errorf("upserting %s: %w", rec.URL, err)
			}
		}
		return nil
	})
}
