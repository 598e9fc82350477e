package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/clarioo/compare-cli/internal/compare"
	"github.com/clarioo/compare-cli/internal/export"
	"github.com/clarioo/compare-cli/internal/model"
	"github.com/clarioo/compare-cli/internal/project"
	"github.com/clarioo/compare-cli/pkg/notion"
)

const maxBodyBytes = 1 << 20

// StateResponse is the body of GET .../comparison and of every control call.
type StateResponse struct {
	State     *model.ComparisonRun `json:"state"`
	IsRunning bool                 `json:"isRunning"`
}

func stateOf(o *compare.Orchestrator) StateResponse {
	return StateResponse{State: o.Snapshot(), IsRunning: o.IsRunning()}
}

// orchestrator resolves {projectID} or writes the error response.
func (s *Server) orchestrator(w http.ResponseWriter, r *http.Request) (*compare.Orchestrator, bool) {
	id := chi.URLParam(r, "projectID")
	o, err := s.manager.Get(r.Context(), id)
	switch {
	case errors.Is(err, compare.ErrProjectNotFound):
		writeError(w, http.StatusNotFound, fmt.Sprintf("project %q not found", id))
		return nil, false
	case err != nil:
		zap.L().Error("api: load project", zap.String("project_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load project")
		return nil, false
	}
	return o, true
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	ids, err := s.manager.Projects(r.Context())
	if err != nil {
		zap.L().Error("api: list projects", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list projects")
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"projects": ids})
}

func (s *Server) handlePutProject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "projectID")

	var p model.Project
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if p.ID == "" {
		p.ID = id
	}
	if p.ID != id {
		writeError(w, http.StatusBadRequest, "project id does not match path")
		return
	}
	project.Normalize(&p)
	if err := project.Validate(p); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	o, err := s.manager.Register(r.Context(), p)
	switch {
	case errors.Is(err, compare.ErrRunActive):
		writeError(w, http.StatusConflict, "comparison is running; pause it before replacing the project")
		return
	case err != nil:
		zap.L().Error("api: register project", zap.String("project_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to register project")
		return
	}
	writeJSON(w, http.StatusOK, o.Project())
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	o, ok := s.orchestrator(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, o.Project())
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	o, ok := s.orchestrator(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, stateOf(o))
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	o, ok := s.orchestrator(w, r)
	if !ok {
		return
	}
	o.Start()
	writeJSON(w, http.StatusAccepted, stateOf(o))
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	o, ok := s.orchestrator(w, r)
	if !ok {
		return
	}
	o.Pause()
	writeJSON(w, http.StatusOK, stateOf(o))
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	o, ok := s.orchestrator(w, r)
	if !ok {
		return
	}
	if err := o.Reset(r.Context()); err != nil {
		zap.L().Error("api: reset", zap.String("project_id", o.Project().ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to reset comparison")
		return
	}
	writeJSON(w, http.StatusOK, stateOf(o))
}

func (s *Server) handleRetryRow(w http.ResponseWriter, r *http.Request) {
	o, ok := s.orchestrator(w, r)
	if !ok {
		return
	}
	critID := chi.URLParam(r, "criterionID")
	if !o.RetryRowStage2(critID) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("criterion %q not found", critID))
		return
	}
	writeJSON(w, http.StatusAccepted, stateOf(o))
}

func (s *Server) handleRetryCell(w http.ResponseWriter, r *http.Request) {
	o, ok := s.orchestrator(w, r)
	if !ok {
		return
	}
	critID := chi.URLParam(r, "criterionID")
	vendorID := chi.URLParam(r, "vendorID")
	if !o.RetryCellStage1(critID, vendorID) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("cell %q/%q not found", critID, vendorID))
		return
	}
	writeJSON(w, http.StatusAccepted, stateOf(o))
}

func (s *Server) handleExportJSON(w http.ResponseWriter, r *http.Request) {
	o, ok := s.orchestrator(w, r)
	if !ok {
		return
	}
	doc := export.Build(o.Project(), o.Snapshot(), s.now())

	var buf bytes.Buffer
	if err := export.WriteJSON(&buf, doc); err != nil {
		zap.L().Error("api: export json", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", attachment(doc.Project.ID, "json"))
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleExportXLSX(w http.ResponseWriter, r *http.Request) {
	o, ok := s.orchestrator(w, r)
	if !ok {
		return
	}
	doc := export.Build(o.Project(), o.Snapshot(), s.now())

	var buf bytes.Buffer
	if err := export.WriteXLSX(&buf, doc); err != nil {
		zap.L().Error("api: export xlsx", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", attachment(doc.Project.ID, "xlsx"))
	_, _ = w.Write(buf.Bytes())
}

func attachment(projectID, ext string) string {
	return fmt.Sprintf(`attachment; filename="%s-comparison.%s"`, projectID, ext)
}

func (s *Server) handleLead(w http.ResponseWriter, r *http.Request) {
	if s.leads == nil {
		writeError(w, http.StatusServiceUnavailable, "lead capture is not configured")
		return
	}

	var lead notion.Lead
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&lead); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	lead = lead.Normalize()
	if err := lead.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := s.leads.Capture(r.Context(), lead)
	if err != nil {
		zap.L().Error("api: capture lead", zap.String("email", lead.Email), zap.Error(err))
		writeError(w, http.StatusBadGateway, "failed to record lead")
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]any{"status": "recorded", "created": created})
}
