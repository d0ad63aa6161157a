package ports

import (
	"context"

	"gosegment/domain/core"
)

// ArtifactRepository defines the interface for persisted run artifacts.
// Every fit-once output of a run (missingness report, imputation plan, scale
// parameters, reduction, cluster model, manifest) is stored as one artifact
// row keyed by run and kind.
type ArtifactRepository interface {
	SaveArtifact(ctx context.Context, artifact core.Artifact) error
	GetArtifact(ctx context.Context, artifactID core.ArtifactID) (*core.Artifact, error)
	GetArtifactByKind(ctx context.Context, runID core.RunID, kind core.ArtifactKind) (*core.Artifact, error)
	ListArtifactsByRun(ctx context.Context, runID core.RunID) ([]core.Artifact, error)
	ListRuns(ctx context.Context, limit int) ([]RunSummary, error)
	DeleteRun(ctx context.Context, runID core.RunID) error
}

// RunSummary is the read model for listing past runs.
type RunSummary struct {
	RunID     core.RunID     `json:"run_id"`
	ChosenK   int            `json:"chosen_k"`
	Rows      int            `json:"rows"`
	CreatedAt core.Timestamp `json:"created_at"`
}
