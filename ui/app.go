// Package ui exposes the segmentation engine over HTTP: submit a tabular
// file, run the pipeline, browse persisted runs and rendered reports.
package ui

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"gosegment/adapters/tabular"
	"gosegment/domain/core"
	"gosegment/domain/schema"
	"gosegment/domain/segment"
	"gosegment/engine"
	"gosegment/internal"
	"gosegment/internal/errors"
	"gosegment/ports"
	"gosegment/report"
)

// App represents the HTTP application.
type App struct {
	router    *chi.Mux
	pipeline  *engine.Pipeline
	artifacts ports.ArtifactRepository
	renderer  *report.Renderer
	logger    *internal.Logger
}

// Config holds HTTP application configuration.
type Config struct {
	Port string
}

// NewApp creates the HTTP application. The artifact repository may be nil,
// in which case runs execute but nothing is persisted or listable.
func NewApp(pipeline *engine.Pipeline, artifacts ports.ArtifactRepository) *App {
	app := &App{
		router:    chi.NewRouter(),
		pipeline:  pipeline,
		artifacts: artifacts,
		renderer:  report.NewRenderer(),
		logger:    internal.DefaultLogger.Component("UI"),
	}

	app.setupMiddleware()
	app.setupRoutes()

	return app
}

func (a *App) setupMiddleware() {
	a.router.Use(middleware.Logger)
	a.router.Use(middleware.Recoverer)
	a.router.Use(middleware.Compress(5))
}

func (a *App) setupRoutes() {
	a.router.Get("/health", a.handleHealth)

	a.router.Post("/api/runs", a.handleSubmitRun)
	a.router.Get("/api/runs", a.handleListRuns)
	a.router.Get("/api/runs/{id}", a.handleGetRun)
	a.router.Get("/api/runs/{id}/report", a.handleGetReport)
}

// Router exposes the configured handler for serving and tests.
func (a *App) Router() http.Handler {
	return a.router
}

// Start starts the HTTP server.
func (a *App) Start(config Config) error {
	addr := ":" + config.Port
	a.logger.Info("starting segmentation server on %s", addr)
	return http.ListenAndServe(addr, a.router)
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	a.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleSubmitRun accepts a multipart upload, runs the full pipeline on it
// and persists the resulting artifacts. Optional form fields:
//
//	roles      JSON object mapping column name to role
//	protected  comma-separated column names excluded from imputation/scaling
func (a *App) handleSubmitRun(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(64 << 20); err != nil {
		a.respondError(w, http.StatusBadRequest, errors.InvalidInput("expected multipart form upload"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		a.respondError(w, http.StatusBadRequest, errors.InvalidInput("missing file field"))
		return
	}
	defer file.Close()

	opts := ports.DefaultReadOptions()
	if rolesJSON := r.FormValue("roles"); rolesJSON != "" {
		roles := map[string]schema.ColumnRole{}
		if err := json.Unmarshal([]byte(rolesJSON), &roles); err != nil {
			a.respondError(w, http.StatusBadRequest, errors.InvalidInput("roles field is not valid JSON"))
			return
		}
		opts.Roles = roles
	}
	if protected := r.FormValue("protected"); protected != "" {
		for _, name := range strings.Split(protected, ",") {
			opts.Protected = append(opts.Protected, strings.TrimSpace(name))
		}
	}

	ds, err := a.stageAndRead(file, header.Filename, opts)
	if err != nil {
		a.respondError(w, http.StatusBadRequest, err)
		return
	}

	result, err := a.pipeline.Run(r.Context(), ds)
	if err != nil {
		a.respondError(w, statusForError(err), err)
		return
	}

	if a.artifacts != nil {
		if err := persistResult(r, a.artifacts, result); err != nil {
			a.logger.Error("persisting run %s failed: %v", result.Manifest.RunID, err)
		}
	}

	a.respondJSON(w, http.StatusOK, result)
}

// stageAndRead copies the upload to a temp file so the extension-dispatching
// reader can open it.
func (a *App) stageAndRead(file io.Reader, filename string, opts ports.ReadOptions) (*schema.Dataset, error) {
	ext := filepath.Ext(filename)
	tmp, err := os.CreateTemp("", "upload-*"+ext)
	if err != nil {
		return nil, errors.Wrap(err, "staging upload")
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if _, err := io.Copy(tmp, file); err != nil {
		return nil, errors.Wrap(err, "staging upload")
	}
	if err := tmp.Close(); err != nil {
		return nil, errors.Wrap(err, "staging upload")
	}

	return tabular.NewReader(opts).Read(tmp.Name())
}

func (a *App) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if a.artifacts == nil {
		a.respondJSON(w, http.StatusOK, []ports.RunSummary{})
		return
	}

	runs, err := a.artifacts.ListRuns(r.Context(), 100)
	if err != nil {
		a.respondError(w, http.StatusInternalServerError, err)
		return
	}
	a.respondJSON(w, http.StatusOK, runs)
}

func (a *App) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if a.artifacts == nil {
		a.respondError(w, http.StatusNotFound, errors.New(errors.CodeDatabaseError, "no artifact storage configured"))
		return
	}

	runID, err := core.ParseRunID(chi.URLParam(r, "id"))
	if err != nil {
		a.respondError(w, http.StatusBadRequest, errors.InvalidInput(err.Error()))
		return
	}
	artifacts, err := a.artifacts.ListArtifactsByRun(r.Context(), runID)
	if err != nil {
		a.respondError(w, http.StatusInternalServerError, err)
		return
	}
	if len(artifacts) == 0 {
		a.respondError(w, http.StatusNotFound, errors.InvalidInput(fmt.Sprintf("run %s not found", runID)))
		return
	}
	a.respondJSON(w, http.StatusOK, artifacts)
}

func (a *App) handleGetReport(w http.ResponseWriter, r *http.Request) {
	if a.artifacts == nil {
		a.respondError(w, http.StatusNotFound, errors.New(errors.CodeDatabaseError, "no artifact storage configured"))
		return
	}

	runID, err := core.ParseRunID(chi.URLParam(r, "id"))
	if err != nil {
		a.respondError(w, http.StatusBadRequest, errors.InvalidInput(err.Error()))
		return
	}
	artifacts, err := a.artifacts.ListArtifactsByRun(r.Context(), runID)
	if err != nil {
		a.respondError(w, http.StatusInternalServerError, err)
		return
	}
	if len(artifacts) == 0 {
		a.respondError(w, http.StatusNotFound, errors.InvalidInput(fmt.Sprintf("run %s not found", runID)))
		return
	}

	result, err := resultFromArtifacts(artifacts)
	if err != nil {
		a.respondError(w, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(a.renderer.RenderHTML(result))
}

// resultFromArtifacts reassembles a pipeline result from its persisted
// artifact rows. Derived outputs (assignment, profiles) are not persisted
// and stay empty.
func resultFromArtifacts(artifacts []core.Artifact) (*engine.Result, error) {
	result := &engine.Result{}

	for _, artifact := range artifacts {
		payload, err := json.Marshal(artifact.Payload)
		if err != nil {
			return nil, errors.Wrap(err, "re-encoding artifact payload")
		}

		var target interface{}
		switch artifact.Kind {
		case core.ArtifactRunManifest:
			result.Manifest = &segment.RunManifest{}
			target = result.Manifest
		case core.ArtifactMissingnessReport:
			result.Missingness = &segment.MissingnessReport{}
			target = result.Missingness
		case core.ArtifactImputationPlan:
			result.Plan = &segment.ImputationPlan{}
			target = result.Plan
		case core.ArtifactScaleParams:
			result.ScaleParams = &segment.ScaleParams{}
			target = result.ScaleParams
		case core.ArtifactReduction:
			result.Reduction = &segment.Reduction{}
			target = result.Reduction
		case core.ArtifactClusterModel:
			result.Model = &segment.ClusterModel{}
			target = result.Model
		default:
			continue
		}

		if err := json.Unmarshal(payload, target); err != nil {
			return nil, errors.Wrapf(err, "decoding %s artifact", artifact.Kind)
		}
	}

	if result.Manifest == nil {
		return nil, errors.InvalidInput("run has no manifest artifact")
	}
	return result, nil
}

// persistResult writes every artifact of a completed run.
func persistResult(r *http.Request, repo ports.ArtifactRepository, result *engine.Result) error {
	runID := result.Manifest.RunID
	entries := []struct {
		kind    core.ArtifactKind
		payload interface{}
	}{
		{core.ArtifactRunManifest, result.Manifest},
		{core.ArtifactMissingnessReport, result.Missingness},
		{core.ArtifactImputationPlan, result.Plan},
		{core.ArtifactScaleParams, result.ScaleParams},
		{core.ArtifactReduction, result.Reduction},
		{core.ArtifactClusterModel, result.Model},
	}

	for _, entry := range entries {
		artifact := core.Artifact{
			ID:        core.NewID(),
			RunID:     runID,
			Kind:      entry.kind,
			Payload:   entry.payload,
			CreatedAt: core.Now(),
		}
		if err := repo.SaveArtifact(r.Context(), artifact); err != nil {
			return err
		}
	}
	return nil
}

func statusForError(err error) int {
	switch errors.GetCode(err) {
	case errors.CodeInvalidInput:
		return http.StatusBadRequest
	case errors.CodeInsufficientData, errors.CodeInfeasiblePartition:
		return http.StatusUnprocessableEntity
	}
	if stderrors.Is(err, core.ErrInfeasiblePartition) || stderrors.Is(err, core.ErrInsufficientData) {
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func (a *App) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		a.logger.Error("encoding response failed: %v", err)
	}
}

func (a *App) respondError(w http.ResponseWriter, status int, err error) {
	a.logger.Error("request failed: %v", err)
	a.respondJSON(w, status, map[string]string{
		"error": err.Error(),
		"code":  errors.GetCode(err),
	})
}
