package source

import (
	"context"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/IQzhan/abload"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// PostgresManifest reads the manifest from a table with the columns
// (name text, version text, dependencies text[]).
type PostgresManifest struct {
	pool  *pgxpool.Pool
	table string
}

func NewPostgresManifest(ctx context.Context, dsn string, table string) (*PostgresManifest, error) {
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("new postgres manifest: invalid table name %q", table)
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("new postgres manifest: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("new postgres manifest: %w", err)
	}
	return &PostgresManifest{pool: pool, table: table}, nil
}

func (p *PostgresManifest) FetchManifest(ctx context.Context) (abload.Manifest, error) {
	rows, err := p.pool.Query(ctx, "SELECT name, version, dependencies FROM "+p.table)
	if err != nil {
		return nil, fmt.Errorf("query manifest: %w", err)
	}
	defer rows.Close()

	m := &abload.StaticManifest{Bundles: make(map[string]abload.ManifestEntry)}
	for rows.Next() {
		var name, version string
		var deps []string
		if err := rows.Scan(&name, &version, &deps); err != nil {
			return nil, fmt.Errorf("scan manifest row: %w", err)
		}
		m.Bundles[name] = abload.ManifestEntry{Version: version, Dependencies: deps}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read manifest rows: %w", err)
	}
	return m, nil
}

func (p *PostgresManifest) Close() {
	p.pool.Close()
}
