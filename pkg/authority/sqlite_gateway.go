package authority

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteGateway implements Gateway on an embedded SQLite database. Used
// by the offline/batch profile where no Postgres is available; semantics
// match PostgresGateway.
type SQLiteGateway struct {
	db *sql.DB
}

// OpenSQLiteGateway opens (or creates) the database at path and applies
// the schema. Pass ":memory:" for an ephemeral store.
func OpenSQLiteGateway(ctx context.Context, path string) (*SQLiteGateway, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	g := &SQLiteGateway{db: db}
	if err := g.Init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return g, nil
}

// NewSQLiteGateway wraps an existing connection.
func NewSQLiteGateway(db *sql.DB) *SQLiteGateway {
	return &SQLiteGateway{db: db}
}

func (g *SQLiteGateway) Init(ctx context.Context) error {
	_, err := g.db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS framework_versions (
		artifact_name TEXT NOT NULL,
		version TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		payload JSON NOT NULL,
		created_at DATETIME NOT NULL,
		PRIMARY KEY (artifact_name, version)
	);`)
	if err != nil {
		return fmt.Errorf("failed to create version schema: %w", err)
	}
	return nil
}

// Close releases the underlying connection when the gateway owns it.
func (g *SQLiteGateway) Close() error {
	return g.db.Close()
}

func (g *SQLiteGateway) GetVersions(ctx context.Context, name string) ([]Version, error) {
	rows, err := g.db.QueryContext(ctx, `
		SELECT artifact_name, version, content_hash, payload, created_at
		FROM framework_versions
		WHERE artifact_name = ?
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

func (g *SQLiteGateway) GetVersion(ctx context.Context, name, version string) (*Version, error) {
	row := g.db.QueryRowContext(ctx, `
		SELECT artifact_name, version, content_hash, payload, created_at
		FROM framework_versions
		WHERE artifact_name = ? AND version = ?
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

func (g *SQLiteGateway) Insert(ctx context.Context, v Version) error {
	res, err := g.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO framework_versions (artifact_name, version, content_hash, payload, created_at)
		VALUES (?, ?, ?, ?, ?)
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

func (g *SQLiteGateway) Delete(ctx context.Context, name, version string) error {
	res, err := g.db.ExecContext(ctx, `
		DELETE FROM framework_versions WHERE artifact_name = ? AND version = ?
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
