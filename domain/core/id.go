package core

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ID represents a domain identifier
type ID string

// NewID creates a new unique identifier using UUID v7 for time-ordered generation
func NewID() ID {
	// Use UUID v7 for time-ordered, sortable IDs
	// Falls back to v4 if v7 is not available (for compatibility)
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return ID(id.String())
}

// String returns the string representation
func (id ID) String() string {
	return string(id)
}

// IsEmpty checks if the ID is empty
func (id ID) IsEmpty() bool {
	return id == ""
}

// Domain-specific ID types
type (
	RunID      ID
	ArtifactID ID
	ColumnKey  ID
)

// String conversions for domain IDs
func (id RunID) String() string      { return ID(id).String() }
func (id ArtifactID) String() string { return ID(id).String() }
func (k ColumnKey) String() string   { return ID(k).String() }

// ParseRunID parses a string into RunID
func ParseRunID(s string) (RunID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("run ID cannot be empty")
	}
	return RunID(s), nil
}

// Artifact represents any persisted output of a training run
type Artifact struct {
	ID        ID           `json:"id"`
	RunID     RunID        `json:"run_id"`
	Kind      ArtifactKind `json:"kind"`
	Payload   interface{}  `json:"payload"`
	CreatedAt Timestamp    `json:"created_at"`
}

// ArtifactKind defines types of persisted artifacts
type ArtifactKind string

const (
	// ArtifactMissingnessReport is the per-column mechanism classification table.
	ArtifactMissingnessReport ArtifactKind = "missingness_report"
	// ArtifactImputationPlan holds per-column fitted imputation strategies for replay.
	ArtifactImputationPlan ArtifactKind = "imputation_plan"
	// ArtifactScaleParams holds per-column mean/scale used by the standardizer.
	ArtifactScaleParams ArtifactKind = "scale_params"
	// ArtifactReduction holds component loadings and explained-variance ratios.
	ArtifactReduction ArtifactKind = "reduction"
	// ArtifactClusterModel holds the chosen k, centroids and the full metric table.
	ArtifactClusterModel ArtifactKind = "cluster_model"
	// ArtifactRunManifest captures audit metadata for a run (seed, config, fingerprint).
	ArtifactRunManifest ArtifactKind = "run_manifest"
)
