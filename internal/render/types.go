package render

import (
	"github.com/mattjoyce/sasspipe/internal/protocol"
)

// Spec is one render-mode compile request as the caller states it.
type Spec struct {
	File           string
	OutFile        string
	IncludePaths   []string
	AuxiliaryPaths []string
	OutputStyle    string
	EmitComments   bool
	SourceMap      string
	Compiler       string
}

// PreviewSpec is a preview-mode compile: the entry file (and possibly some
// of its imports) may be unsaved, supplied through InMemory instead of the
// filesystem.
type PreviewSpec struct {
	Spec
	InMemory map[string]string
}

// Outcome is the single terminal result of one request. Exactly one of the
// three arms is set: Result for success (possibly carrying an in-band soft
// error), Errors for structured compiler errors (including synthesized
// crash errors), Err for process-level failures.
type Outcome struct {
	Result *protocol.Result
	Errors []protocol.CompileError
	Err    error

	// Crashed marks an Errors outcome that was synthesized from an
	// abnormal worker exit rather than reported by the compiler.
	Crashed bool
}

// Request is one queued compile. It is owned by the queue until dispatched,
// then by the in-flight slot until the outcome is delivered on done,
// exactly once.
type Request struct {
	ID       string
	Mode     string // render | preview
	Compiler string

	wire    *protocol.Request
	command []string

	done chan Outcome
}

// Wait returns the channel carrying the request's single outcome.
func (r *Request) Wait() <-chan Outcome {
	return r.done
}
