// Package postgres persists run artifacts as JSONB rows. One table holds
// every artifact kind; payloads are opaque to the database and replayed by
// unmarshaling into the concrete domain types.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"gosegment/domain/core"
	"gosegment/internal/errors"
	"gosegment/ports"
)

// ArtifactRepositoryImpl implements ports.ArtifactRepository for PostgreSQL.
type ArtifactRepositoryImpl struct {
	db *sqlx.DB
}

// NewArtifactRepository creates a PostgreSQL artifact repository.
func NewArtifactRepository(db *sqlx.DB) ports.ArtifactRepository {
	return &ArtifactRepositoryImpl{db: db}
}

// Connect opens and pings a PostgreSQL connection.
func Connect(databaseURL string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "connecting to postgres")
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

// EnsureSchema creates the artifacts table if it does not exist.
func EnsureSchema(db *sqlx.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS run_artifacts (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			payload JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (run_id, kind)
		);
		CREATE INDEX IF NOT EXISTS idx_run_artifacts_run ON run_artifacts (run_id);
	`)
	if err != nil {
		return errors.Wrap(err, "creating artifact schema")
	}
	return nil
}

// artifactRow is the database shape of one artifact.
type artifactRow struct {
	ID        string    `db:"id"`
	RunID     string    `db:"run_id"`
	Kind      string    `db:"kind"`
	Payload   []byte    `db:"payload"`
	CreatedAt time.Time `db:"created_at"`
}

func (row artifactRow) toDomain() (*core.Artifact, error) {
	var payload interface{}
	if err := json.Unmarshal(row.Payload, &payload); err != nil {
		return nil, errors.Wrap(err, "decoding artifact payload")
	}
	return &core.Artifact{
		ID:        core.ID(row.ID),
		RunID:     core.RunID(row.RunID),
		Kind:      core.ArtifactKind(row.Kind),
		Payload:   payload,
		CreatedAt: core.NewTimestamp(row.CreatedAt),
	}, nil
}

// SaveArtifact upserts one artifact. A rerun of the same run and kind
// replaces the previous payload.
func (r *ArtifactRepositoryImpl) SaveArtifact(ctx context.Context, artifact core.Artifact) error {
	payload, err := json.Marshal(artifact.Payload)
	if err != nil {
		return errors.Wrap(err, "encoding artifact payload")
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO run_artifacts (id, run_id, kind, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (run_id, kind) DO UPDATE
		SET id = EXCLUDED.id, payload = EXCLUDED.payload, created_at = EXCLUDED.created_at
	`, artifact.ID.String(), artifact.RunID.String(), string(artifact.Kind), payload, artifact.CreatedAt.Time())
	if err != nil {
		return errors.Wrap(err, "saving artifact")
	}
	return nil
}

// GetArtifact fetches one artifact by its identifier.
func (r *ArtifactRepositoryImpl) GetArtifact(ctx context.Context, artifactID core.ArtifactID) (*core.Artifact, error) {
	var row artifactRow
	err := r.db.GetContext(ctx, &row, `
		SELECT id, run_id, kind, payload, created_at
		FROM run_artifacts
		WHERE id = $1
	`, artifactID.String())
	if err == sql.ErrNoRows {
		return nil, core.ErrArtifactNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "fetching artifact")
	}
	return row.toDomain()
}

// GetArtifactByKind fetches the artifact of one kind for a run.
func (r *ArtifactRepositoryImpl) GetArtifactByKind(ctx context.Context, runID core.RunID, kind core.ArtifactKind) (*core.Artifact, error) {
	var row artifactRow
	err := r.db.GetContext(ctx, &row, `
		SELECT id, run_id, kind, payload, created_at
		FROM run_artifacts
		WHERE run_id = $1 AND kind = $2
	`, runID.String(), string(kind))
	if err == sql.ErrNoRows {
		return nil, core.ErrArtifactNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "fetching artifact by kind")
	}
	return row.toDomain()
}

// ListArtifactsByRun returns every artifact persisted for a run.
func (r *ArtifactRepositoryImpl) ListArtifactsByRun(ctx context.Context, runID core.RunID) ([]core.Artifact, error) {
	var rows []artifactRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, run_id, kind, payload, created_at
		FROM run_artifacts
		WHERE run_id = $1
		ORDER BY kind
	`, runID.String())
	if err != nil {
		return nil, errors.Wrap(err, "listing artifacts")
	}

	artifacts := make([]core.Artifact, 0, len(rows))
	for _, row := range rows {
		artifact, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, *artifact)
	}
	return artifacts, nil
}

// ListRuns summarizes past runs from their persisted manifests, newest first.
func (r *ArtifactRepositoryImpl) ListRuns(ctx context.Context, limit int) ([]ports.RunSummary, error) {
	query := `
		SELECT id, run_id, kind, payload, created_at
		FROM run_artifacts
		WHERE kind = $1
		ORDER BY created_at DESC
	`
	args := []interface{}{string(core.ArtifactRunManifest)}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	var rows []artifactRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "listing runs")
	}

	summaries := make([]ports.RunSummary, 0, len(rows))
	for _, row := range rows {
		var manifest struct {
			ChosenK int `json:"chosen_k"`
			Rows    int `json:"row_count"`
		}
		if err := json.Unmarshal(row.Payload, &manifest); err != nil {
			return nil, errors.Wrap(err, "decoding run manifest")
		}
		summaries = append(summaries, ports.RunSummary{
			RunID:     core.RunID(row.RunID),
			ChosenK:   manifest.ChosenK,
			Rows:      manifest.Rows,
			CreatedAt: core.NewTimestamp(row.CreatedAt),
		})
	}
	return summaries, nil
}

// DeleteRun removes every artifact belonging to a run.
func (r *ArtifactRepositoryImpl) DeleteRun(ctx context.Context, runID core.RunID) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM run_artifacts WHERE run_id = $1
	`, runID.String())
	if err != nil {
		return errors.Wrap(err, "deleting run artifacts")
	}
	return nil
}
