package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/mattjoyce/sasspipe/internal/protocol"
	"github.com/mattjoyce/sasspipe/internal/render"
)

// handleHealthz handles GET /healthz.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		QueueDepth:    s.svc.Depth(),
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleRender handles POST /v1/render.
func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeCompileRequest(w, r)
	if !ok {
		return
	}

	result, compileErrs, err := s.svc.Render(r.Context(), req.toSpec())
	s.writeCompileOutcome(w, result, compileErrs, err)
}

// handlePreview handles POST /v1/preview.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeCompileRequest(w, r)
	if !ok {
		return
	}

	result, compileErrs, err := s.svc.Preview(r.Context(), render.PreviewSpec{
		Spec:     req.toSpec(),
		InMemory: req.Files,
	})
	s.writeCompileOutcome(w, result, compileErrs, err)
}

// handleDeleteTempFiles handles DELETE /v1/tempfiles.
func (s *Server) handleDeleteTempFiles(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteTempFiles(); err != nil {
		s.logger.Error("failed to delete temp files", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to delete temp files")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleMkdirp handles POST /v1/mkdirp.
func (s *Server) handleMkdirp(w http.ResponseWriter, r *http.Request) {
	var req PathRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		s.writeError(w, http.StatusBadRequest, "body must be a JSON object with a path")
		return
	}
	if err := s.svc.Mkdirp(req.Path); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSetTempDir handles PUT /v1/tempdir.
func (s *Server) handleSetTempDir(w http.ResponseWriter, r *http.Request) {
	var req PathRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		s.writeError(w, http.StatusBadRequest, "body must be a JSON object with a path")
		return
	}
	if err := s.svc.SetTempDir(req.Path); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleJobs handles GET /v1/jobs.
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	if s.hist == nil {
		s.writeJSON(w, http.StatusOK, []JobResponse{})
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries, err := s.hist.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to read history", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to read history")
		return
	}

	jobs := make([]JobResponse, 0, len(entries))
	for _, e := range entries {
		jobs = append(jobs, JobResponse{
			ID:          e.ID,
			Mode:        e.Mode,
			Compiler:    e.Compiler,
			SourceFile:  e.SourceFile,
			OutputFile:  e.OutputFile,
			Status:      string(e.Status),
			DurationMS:  e.DurationMS,
			Error:       e.Error,
			CompletedAt: e.CompletedAt,
		})
	}
	s.writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) decodeCompileRequest(w http.ResponseWriter, r *http.Request) (*CompileRequest, bool) {
	var req CompileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return nil, false
	}
	if req.File == "" || req.OutFile == "" {
		s.writeError(w, http.StatusBadRequest, "file and out_file are required")
		return nil, false
	}
	return &req, true
}

func (r *CompileRequest) toSpec() render.Spec {
	return render.Spec{
		File:           r.File,
		OutFile:        r.OutFile,
		IncludePaths:   r.IncludePaths,
		AuxiliaryPaths: r.AuxiliaryPaths,
		OutputStyle:    r.OutputStyle,
		EmitComments:   r.EmitComments,
		SourceMap:      r.SourceMap,
		Compiler:       r.Compiler,
	}
}

// writeCompileOutcome maps the service's three-way outcome onto HTTP:
// 200 with the result, 422 with structured errors, 502 for process errors.
func (s *Server) writeCompileOutcome(w http.ResponseWriter, result *protocol.Result, compileErrs []protocol.CompileError, err error) {
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	if len(compileErrs) > 0 {
		s.writeJSON(w, http.StatusUnprocessableEntity, ErrorsResponse{Errors: compileErrs})
		return
	}

	resp := CompileResponse{CSS: result.CSS, Error: result.Error}
	if result.Map != nil {
		raw, err := json.Marshal(result.Map)
		if err != nil {
			s.logger.Error("failed to encode source map", "error", err)
			s.writeError(w, http.StatusInternalServerError, "failed to encode source map")
			return
		}
		resp.Map = raw
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, ErrorResponse{Error: msg})
}
