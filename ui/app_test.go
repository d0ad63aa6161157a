package ui

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"gosegment/domain/core"
	"gosegment/domain/segment"
	"gosegment/engine"
	"gosegment/internal/config"
	"gosegment/ports"
)

// memoryRepo is an in-memory ArtifactRepository for handler tests.
type memoryRepo struct {
	artifacts map[core.RunID][]core.Artifact
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{artifacts: map[core.RunID][]core.Artifact{}}
}

func (m *memoryRepo) SaveArtifact(_ context.Context, artifact core.Artifact) error {
	m.artifacts[artifact.RunID] = append(m.artifacts[artifact.RunID], artifact)
	return nil
}

func (m *memoryRepo) GetArtifact(_ context.Context, artifactID core.ArtifactID) (*core.Artifact, error) {
	for _, list := range m.artifacts {
		for _, a := range list {
			if core.ArtifactID(a.ID) == artifactID {
				return &a, nil
			}
		}
	}
	return nil, core.ErrArtifactNotFound
}

func (m *memoryRepo) GetArtifactByKind(_ context.Context, runID core.RunID, kind core.ArtifactKind) (*core.Artifact, error) {
	for _, a := range m.artifacts[runID] {
		if a.Kind == kind {
			return &a, nil
		}
	}
	return nil, core.ErrArtifactNotFound
}

func (m *memoryRepo) ListArtifactsByRun(_ context.Context, runID core.RunID) ([]core.Artifact, error) {
	return m.artifacts[runID], nil
}

func (m *memoryRepo) ListRuns(_ context.Context, limit int) ([]ports.RunSummary, error) {
	var out []ports.RunSummary
	for runID := range m.artifacts {
		if len(out) == limit {
			break
		}
		out = append(out, ports.RunSummary{RunID: runID})
	}
	return out, nil
}

func (m *memoryRepo) DeleteRun(_ context.Context, runID core.RunID) error {
	delete(m.artifacts, runID)
	return nil
}

func newTestApp(t *testing.T, repo ports.ArtifactRepository) *App {
	t.Helper()
	pipeline, err := engine.New(config.DefaultEngineConfig())
	if err != nil {
		t.Fatalf("building pipeline: %v", err)
	}
	return NewApp(pipeline, repo)
}

// TestGetRun_RejectsBlankRunID verifies a whitespace run id is a client
// error, not a lookup.
func TestGetRun_RejectsBlankRunID(t *testing.T) {
	app := newTestApp(t, newMemoryRepo())

	req := httptest.NewRequest(http.MethodGet, "/api/runs/%20", nil)
	rec := httptest.NewRecorder()
	app.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a blank run id, got %d", rec.Code)
	}
}

// TestGetRun_UnknownRunNotFound verifies a well-formed but unknown id maps
// to 404.
func TestGetRun_UnknownRunNotFound(t *testing.T) {
	app := newTestApp(t, newMemoryRepo())

	req := httptest.NewRequest(http.MethodGet, "/api/runs/"+core.NewID().String(), nil)
	rec := httptest.NewRecorder()
	app.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for an unknown run, got %d", rec.Code)
	}
}

// TestGetReport_ReassemblesFromArtifacts verifies a persisted run renders as
// an HTML report.
func TestGetReport_ReassemblesFromArtifacts(t *testing.T) {
	repo := newMemoryRepo()
	manifest := segment.NewRunManifest(42, "cfg", "data", 300, 6)
	manifest.ChosenK = 3
	repo.SaveArtifact(context.Background(), core.Artifact{
		ID:        core.NewID(),
		RunID:     manifest.RunID,
		Kind:      core.ArtifactRunManifest,
		Payload:   manifest,
		CreatedAt: core.Now(),
	})

	app := newTestApp(t, repo)

	req := httptest.NewRequest(http.MethodGet, "/api/runs/"+manifest.RunID.String()+"/report", nil)
	rec := httptest.NewRecorder()
	app.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("expected an HTML response, got %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "Segmentation Run") {
		t.Error("report body missing the run heading")
	}
}
