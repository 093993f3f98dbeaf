package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"fieldmap/internal/graph"
	"fieldmap/internal/history"
	"fieldmap/internal/mapdoc"
	"fieldmap/internal/ui"
	"fieldmap/internal/validate"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"code": status, "message": message})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// documentInfo is one entry of the document listing, with the outcome of
// its most recent recorded run when there is one.
type documentInfo struct {
	Name       string     `json:"name"`
	LastStatus string     `json:"last_status,omitempty"`
	LastRunID  string     `json:"last_run_id,omitempty"`
	LastRunAt  *time.Time `json:"last_run_at,omitempty"`
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	names, err := s.workspace.List()
	if err != nil {
		s.logger.Error("list documents", "error", err)
		writeError(w, http.StatusInternalServerError, "list documents")
		return
	}

	var latest map[string]*history.Run
	if s.history != nil {
		latest, err = s.history.LastByFile(r.Context())
		if err != nil {
			s.logger.Error("load last runs", "error", err)
			writeError(w, http.StatusInternalServerError, "load run history")
			return
		}
	}

	docs := make([]documentInfo, 0, len(names))
	for _, name := range names {
		info := documentInfo{Name: name}
		if run, ok := latest[filepath.Join(s.workspace.dir, name)]; ok {
			info.LastStatus = run.Status
			info.LastRunID = run.ID
			at := run.CreatedAt
			info.LastRunAt = &at
		}
		docs = append(docs, info)
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (s *Server) handleValidateDocument(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	res, err := s.workspace.Validate(r.Context(), name)
	if errors.Is(err, ErrDocumentNotFound) {
		writeError(w, http.StatusNotFound, "document not found: "+name)
		return
	}
	if err != nil {
		s.logger.Error("validate document", "document", name, "error", err)
		writeError(w, http.StatusInternalServerError, "validate document")
		return
	}

	if s.history != nil {
		run, err := s.history.Record(r.Context(), res)
		if err != nil {
			s.logger.Error("record validation run", "document", name, "error", err)
		} else {
			w.Header().Set("X-Run-Id", run.ID)
		}
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleDocumentGraph(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	model := s.documentModel(w, name)
	if model == nil {
		return
	}
	writeJSON(w, http.StatusOK, model)
}

func (s *Server) handleDocumentView(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	model := s.documentModel(w, name)
	if model == nil {
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := ui.Render(w, model); err != nil {
		s.logger.Error("render document view", "document", name, "error", err)
	}
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSON(w, http.StatusOK, map[string]any{"runs": []history.Run{}})
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("list runs", "error", err)
		writeError(w, http.StatusInternalServerError, "list runs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// runDetail is one run with its full diagnostic list.
type runDetail struct {
	history.Run
	Diagnostics []validate.Diagnostic `json:"diagnostics"`
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if s.history == nil {
		writeError(w, http.StatusNotFound, "run not found: "+id)
		return
	}

	run, err := s.history.Run(r.Context(), id)
	if errors.Is(err, history.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found: "+id)
		return
	}
	if err != nil {
		s.logger.Error("get run", "run", id, "error", err)
		writeError(w, http.StatusInternalServerError, "get run")
		return
	}

	diags, err := s.history.Diagnostics(r.Context(), id)
	if err != nil {
		s.logger.Error("get run diagnostics", "run", id, "error", err)
		writeError(w, http.StatusInternalServerError, "get run")
		return
	}
	writeJSON(w, http.StatusOK, runDetail{Run: *run, Diagnostics: diags})
}

// documentModel builds the graph model for a named document, writing the
// HTTP error itself when the document is missing or unparseable. A nil
// model means the response has been written.
func (s *Server) documentModel(w http.ResponseWriter, name string) *graph.Model {
	model, err := s.workspace.Model(name)
	if errors.Is(err, ErrDocumentNotFound) {
		writeError(w, http.StatusNotFound, "document not found: "+name)
		return nil
	}
	var parseErr *mapdoc.ParseError
	if errors.As(err, &parseErr) {
		writeError(w, http.StatusUnprocessableEntity, parseErr.Error())
		return nil
	}
	if err != nil {
		s.logger.Error("build document model", "document", name, "error", err)
		writeError(w, http.StatusInternalServerError, "build document model")
		return nil
	}
	return model
}
