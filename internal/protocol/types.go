package protocol

import "fmt"

// Request is the envelope sent to the worker via stdin, one JSON line per
// compile. The worker answers with zero or more log messages followed by
// exactly one terminal message.
type Request struct {
	ID             string   `json:"id"`
	File           string   `json:"file"`
	OutFile        string   `json:"out_file"`
	IncludePaths   []string `json:"include_paths,omitempty"`
	AuxiliaryPaths []string `json:"auxiliary_paths,omitempty"`
	Options        Options  `json:"options"`
}

// Options are the compiler options forwarded verbatim to the worker.
type Options struct {
	OutputStyle  string `json:"output_style,omitempty"`
	EmitComments bool   `json:"emit_comments,omitempty"`
	SourceMap    string `json:"source_map,omitempty"` // file | inline | none
}

// Message is one line received from the worker via stdout. A message with
// Log set is advisory and non-terminal. A message with CSS set is the
// terminal success payload (Error may still carry a soft, non-fatal error).
// A message with only Error set is the terminal failure payload.
type Message struct {
	Log   *string       `json:"log,omitempty"`
	CSS   *string       `json:"css,omitempty"`
	Map   *SourceMap    `json:"map,omitempty"`
	Error *CompileError `json:"error,omitempty"`
}

// Terminal reports whether the message ends the in-flight request.
func (m *Message) Terminal() bool {
	return m.CSS != nil || (m.Log == nil && m.Error != nil)
}

// Result is the decoded success payload of a compile.
type Result struct {
	CSS string
	Map *SourceMap
	// Error carries an in-band soft error reported alongside otherwise
	// valid output. It is passed through to the caller, not treated as
	// fatal.
	Error *CompileError
}

// CompileError is one structured error record reported by the compiler.
type CompileError struct {
	Message string `json:"message"`
	Path    string `json:"path,omitempty"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
}

func (e CompileError) String() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s:%d:%d: %s", e.Path, e.Line, e.Column, e.Message)
}
