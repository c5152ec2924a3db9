package authority

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresGateway implements Gateway with Postgres persistence.
type PostgresGateway struct {
	db *sql.DB
}

// OpenPostgresGateway connects with the given DSN and applies the schema.
func OpenPostgresGateway(ctx context.Context, dsn string) (*PostgresGateway, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}
	g := &PostgresGateway{db: db}
	if err := g.Init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return g, nil
}

// NewPostgresGateway wraps an existing connection.
func NewPostgresGateway(db *sql.DB) *PostgresGateway {
	return &PostgresGateway{db: db}
}

const pgVersionSchema = `
CREATE TABLE IF NOT EXISTS framework_versions (
	artifact_name TEXT NOT NULL,
	version TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	payload JSONB NOT NULL,
	created_at TIMESTAMP NOT NULL,
	PRIMARY KEY (artifact_name, version)
);
`

// Close releases the underlying connection pool.
func (g *PostgresGateway) Close() error {
	return g.db.Close()
}

func (g *PostgresGateway) Init(ctx context.Context) error {
	_, err := g.db.ExecContext(ctx, pgVersionSchema)
	if err != nil {
		return fmt.Errorf("failed to create version schema: %w", err)
	}
	return nil
}

func (g *PostgresGateway) GetVersions(ctx context.Context, name string) ([]Version, error) {
	rows, err := g.db.QueryContext(ctx, `
		SELECT artifact_name, version, content_hash, payload, created_at
		FROM framework_versions
		WHERE artifact_name = $1
	`, name)
	if err != nil {
		return nil, fmt.Errorf("version query failed for %s: %w", name, err)
	}
	defer func() { _ = rows.Close() }()

	var out []Version
	for rows.Next() {
		v, err := scanVersion(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("version row iteration failed: %w", err)
	}
	sortVersions(out)
	return out, nil
}

func (g *PostgresGateway) GetVersion(ctx context.Context, name, version string) (*Version, error) {
	row := g.db.QueryRowContext(ctx, `
		SELECT artifact_name, version, content_hash, payload, created_at
		FROM framework_versions
		WHERE artifact_name = $1 AND version = $2
	`, name, version)
	v, err := scanVersion(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrVersionNotFound
		}
		return nil, err
	}
	return v, nil
}

// Insert registers a version unless it already exists. ON CONFLICT DO
// NOTHING keeps the statement race-safe; zero rows affected means the
// uniqueness constraint fired.
func (g *PostgresGateway) Insert(ctx context.Context, v Version) error {
	res, err := g.db.ExecContext(ctx, `
		INSERT INTO framework_versions (artifact_name, version, content_hash, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (artifact_name, version) DO NOTHING
	`, v.ArtifactName, v.VersionString, v.ContentHash, []byte(v.Payload), v.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("version insert failed for %s@%s: %w", v.ArtifactName, v.VersionString, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("version insert result unreadable: %w", err)
	}
	if affected == 0 {
		return ErrVersionExists
	}
	return nil
}

func (g *PostgresGateway) Delete(ctx context.Context, name, version string) error {
	res, err := g.db.ExecContext(ctx, `
		DELETE FROM framework_versions WHERE artifact_name = $1 AND version = $2
	`, name, version)
	if err != nil {
		return fmt.Errorf("version delete failed for %s@%s: %w", name, version, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("version delete result unreadable: %w", err)
	}
	if affected == 0 {
		return ErrVersionNotFound
	}
	return nil
}

func scanVersion(scan func(dest ...any) error) (*Version, error) {
	var v Version
	var payload []byte
	var createdAt time.Time
	if err := scan(&v.ArtifactName, &v.VersionString, &v.ContentHash, &payload, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("version row scan failed: %w", err)
	}
	v.Payload = payload
	v.CreatedAt = createdAt
	return &v, nil
}
