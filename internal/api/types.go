package api

import (
	"encoding/json"
	"time"

	"github.com/mattjoyce/sasspipe/internal/protocol"
)

// CompileRequest is the body of POST /v1/render and POST /v1/preview.
// Files maps staging-relative (or project-absolute) paths to unsaved
// buffer contents and is only honored by preview.
type CompileRequest struct {
	File           string            `json:"file"`
	OutFile        string            `json:"out_file"`
	IncludePaths   []string          `json:"include_paths,omitempty"`
	AuxiliaryPaths []string          `json:"auxiliary_paths,omitempty"`
	OutputStyle    string            `json:"output_style,omitempty"`
	EmitComments   bool              `json:"emit_comments,omitempty"`
	SourceMap      string            `json:"source_map,omitempty"`
	Compiler       string            `json:"compiler,omitempty"`
	Files          map[string]string `json:"files,omitempty"`
}

// CompileResponse is the success body of a compile endpoint.
type CompileResponse struct {
	CSS string `json:"css"`
	Map json.RawMessage `json:"map,omitempty"`
	// Error is the in-band soft error accompanying otherwise-valid
	// output, passed through verbatim.
	Error *protocol.CompileError `json:"error,omitempty"`
}

// ErrorsResponse carries structured compile errors (HTTP 422).
type ErrorsResponse struct {
	Errors []protocol.CompileError `json:"errors"`
}

// ErrorResponse is the generic failure body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// PathRequest is the body of POST /v1/mkdirp and PUT /v1/tempdir.
type PathRequest struct {
	Path string `json:"path"`
}

// HealthzResponse is the body of GET /healthz.
type HealthzResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	QueueDepth    int    `json:"queue_depth"`
}

// JobResponse is one history entry in GET /v1/jobs.
type JobResponse struct {
	ID          string    `json:"id"`
	Mode        string    `json:"mode"`
	Compiler    string    `json:"compiler"`
	SourceFile  string    `json:"source_file"`
	OutputFile  string    `json:"output_file"`
	Status      string    `json:"status"`
	DurationMS  int64     `json:"duration_ms"`
	Error       *string   `json:"error,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}
