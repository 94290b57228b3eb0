package crawl

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"

	"github.com/Adithya-Monish-Kumar-K/crawl-search/pkg/postgres"
)

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// PostgresSource scans a table with url and content columns, ordered by id,
// inside one read-only snapshot.
type PostgresSource struct {
	client *postgres.Client
	table  string
	limit  int
}

// ValidTableName reports whether name is safe to interpolate as a table
// identifier, optionally schema-qualified.
func ValidTableName(name string) bool {
	return identifier.MatchString(name)
}

func NewPostgresSource(client *postgres.Client, table string, limit int) (*PostgresSource, error) {
	if !ValidTableName(table) {
		return nil, fmt.Errorf("invalid crawl table name %q", table)
	}
	return &PostgresSource{client: client, table: table, limit: limit}, nil
}

func (p *PostgresSource) Name() string {
	return "postgres:" + p.table
}

func (p *PostgresSource) query() string {
	q := fmt.Sprintf("SELECT id, url, content FROM %s ORDER BY id", p.table)
	if p.limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", p.limit)
	}
	return q
}

func (p *PostgresSource) Records(ctx context.Context, emit EmitFunc) error {
	return p.client.ReadTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, p.query())
		if err != nil {
			return fmt.Errorf("querying %s: %w", p.table, err)
		}
		defer rows.Close()
		for rows.Next() {
			var (
				id      int64
				url     sql.NullString
				content []byte
			)
			if err := rows.Scan(&id, &url, &content); err != nil {
				return fmt.Errorf("scanning %s row: %w", p.table, err)
			}
			rec := Record{URL: url.String, Content: content, Origin: fmt.Sprintf("%s#%d", p.table, id)}
			if err := emit(rec); err != nil {
				return err
			}
		}
		return rows.Err()
	})
}
