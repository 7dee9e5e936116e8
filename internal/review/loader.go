package review

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/wegman-software/osmconflate/internal/decide"
	"github.com/wegman-software/osmconflate/internal/logger"
	"github.com/wegman-software/osmconflate/internal/proj"
	"github.com/wegman-software/osmconflate/internal/wkb"
)

var columns = []string{"way_id", "origin", "action", "state", "sources", "tags", "geom"}

// Loader copies features into a review table
type Loader struct {
	settings Settings
	pool     *pgxpool.Pool
}

// NewLoader connects to the review database
func NewLoader(ctx context.Context, s Settings) (*Loader, error) {
	poolConfig, err := pgxpool.ParseConfig(s.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	poolConfig.MaxConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	return &Loader{settings: s, pool: pool}, nil
}

// Close closes all database connections
func (l *Loader) Close() {
	l.pool.Close()
}

func (l *Loader) ident(table string) pgx.Identifier {
	return pgx.Identifier{l.settings.Schema, table}
}

// PrepareTable creates the PostGIS extension and recreates the table
func (l *Loader) PrepareTable(ctx context.Context, table string) error {
	if _, err := l.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS postgis"); err != nil {
		return fmt.Errorf("failed to create PostGIS extension: %w", err)
	}
	if l.settings.Schema != "public" {
		schema := pgx.Identifier{l.settings.Schema}.Sanitize()
		if _, err := l.pool.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+schema); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}

	full := l.ident(table).Sanitize()
	if _, err := l.pool.Exec(ctx, "DROP TABLE IF EXISTS "+full); err != nil {
		return fmt.Errorf("failed to drop table: %w", err)
	}
	if _, err := l.pool.Exec(ctx, createTableSQL(full, l.settings.SRID)); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	return nil
}

func createTableSQL(full string, srid int) string {
	return fmt.Sprintf(`
		CREATE TABLE %s (
			way_id BIGINT NOT NULL,
			origin TEXT NOT NULL,
			action TEXT NOT NULL,
			state TEXT NOT NULL,
			sources TEXT NOT NULL,
			tags JSONB,
			geom GEOMETRY(LineString, %d)
		)
	`, full, srid)
}

// Load copies the features into the table and indexes it. The table must
// have been prepared.
func (l *Loader) Load(ctx context.Context, table string, features []decide.Feature) (int64, error) {
	log := logger.Named("review")

	rows, err := Rows(features, l.settings.SRID)
	if err != nil {
		return 0, err
	}

	// PostGIS accepts raw EWKB bytes for geometry columns
	count, err := l.pool.CopyFrom(ctx, l.ident(table), columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, fmt.Errorf("COPY failed: %w", err)
	}

	full := l.ident(table).Sanitize()
	index := pgx.Identifier{table + "_geom_idx"}.Sanitize()
	if _, err := l.pool.Exec(ctx, fmt.Sprintf("CREATE INDEX %s ON %s USING GIST (geom)", index, full)); err != nil {
		return count, fmt.Errorf("failed to create GIST index: %w", err)
	}
	if _, err := l.pool.Exec(ctx, "ANALYZE "+full); err != nil {
		return count, fmt.Errorf("failed to analyze table: %w", err)
	}

	log.Info("Review table loaded", zap.String("table", table), zap.Int64("rows", count))
	return count, nil
}

// Rows converts features to COPY rows in column order
func Rows(features []decide.Feature, srid int) ([][]any, error) {
	tr, err := proj.NewTransformer(srid)
	if err != nil {
		return nil, err
	}
	enc := wkb.NewEncoder(srid)

	rows := make([][]any, 0, len(features))
	for _, f := range features {
		tags, err := json.Marshal(f.Tags)
		if err != nil {
			return nil, fmt.Errorf("failed to encode tags of way %d: %w", f.ID, err)
		}
		line := tr.LineString(f.Line)
		// the encoder reuses its buffer
		geom := append([]byte(nil), enc.LineString(line)...)

		rows = append(rows, []any{
			f.ID,
			f.Origin.String(),
			string(f.Action),
			f.State.String(),
			joinIDs(f.Sources),
			string(tags),
			geom,
		})
	}
	return rows, nil
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprint(id)
	}
	return strings.Join(parts, ";")
}
