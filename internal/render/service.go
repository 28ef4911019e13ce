package render

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/mattjoyce/sasspipe/internal/config"
	"github.com/mattjoyce/sasspipe/internal/pathmap"
	"github.com/mattjoyce/sasspipe/internal/protocol"
	"github.com/mattjoyce/sasspipe/internal/staging"
)

// Service is the command surface the host talks to: render and preview
// compiles plus temp-directory housekeeping. It owns path rewriting so
// callers only ever see paths in their own coordinate space.
type Service struct {
	cfg     *config.Config
	pipe    *Pipeline
	staging *staging.Manager
}

// NewService wires the service over a pipeline and a staging manager.
func NewService(cfg *config.Config, pipe *Pipeline, stg *staging.Manager) *Service {
	return &Service{
		cfg:     cfg,
		pipe:    pipe,
		staging: stg,
	}
}

// Render compiles a saved file in place. On success the source map's
// sources are rewritten relative to the output directory with the entry
// file first. Compile errors come back as the middle return; process
// errors as the last. Exactly one of the three is non-zero.
func (s *Service) Render(ctx context.Context, spec Spec) (*protocol.Result, []protocol.CompileError, error) {
	req, err := s.buildRequest(spec, "render", spec.File, spec.OutFile, spec.IncludePaths)
	if err != nil {
		return nil, nil, err
	}

	out, err := s.await(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	if out.Err != nil {
		return nil, nil, out.Err
	}
	if len(out.Errors) > 0 {
		return nil, out.Errors, nil
	}

	pathmap.RewriteRenderSources(out.Result.Map, spec.File, spec.OutFile)
	return out.Result, nil, nil
}

// Preview compiles a possibly-unsaved file by staging a snapshot first.
// Result and error paths are rewritten back into the caller's coordinate
// space and the staging root is scrubbed from error messages.
func (s *Service) Preview(ctx context.Context, spec PreviewSpec) (*protocol.Result, []protocol.CompileError, error) {
	st, err := s.staging.Stage(spec.File, spec.IncludePaths, spec.InMemory)
	if err != nil {
		return nil, nil, fmt.Errorf("stage preview snapshot: %w", err)
	}

	stagedOut, err := st.Map(spec.OutFile)
	if err != nil {
		// Output outside the project: keep the file name, drop the location.
		stagedOut = filepath.Join(st.Root, filepath.Base(spec.OutFile))
	}

	req, err := s.buildRequest(spec.Spec, "preview", st.EntryFile, stagedOut, st.IncludePaths)
	if err != nil {
		return nil, nil, err
	}

	out, err := s.await(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	if out.Err != nil {
		return nil, nil, out.Err
	}

	preview := pathmap.Preview{
		Root:       st.Root,
		OutDir:     filepath.Dir(stagedOut),
		ProjectDir: st.ProjectDir,
	}

	if len(out.Errors) > 0 {
		return nil, preview.RewriteErrors(out.Errors), nil
	}

	preview.RewriteSources(out.Result.Map)
	if out.Result.Error != nil {
		soft := preview.RewriteErrors([]protocol.CompileError{*out.Result.Error})
		out.Result.Error = &soft[0]
	}
	return out.Result, nil, nil
}

// DeleteTempFiles removes every staging snapshot created so far.
func (s *Service) DeleteTempFiles() error {
	return s.staging.DeleteAll()
}

// Mkdirp creates a directory and any missing parents.
func (s *Service) Mkdirp(path string) error {
	return s.staging.Mkdirp(path)
}

// SetTempDir moves the staging root.
func (s *Service) SetTempDir(path string) error {
	return s.staging.SetTempDir(path)
}

// Depth reports the number of requests waiting for dispatch.
func (s *Service) Depth() int {
	return s.pipe.Depth()
}

func (s *Service) buildRequest(spec Spec, mode, file, outFile string, includePaths []string) (*Request, error) {
	command, err := s.cfg.CompilerCommand(spec.Compiler)
	if err != nil {
		return nil, err
	}

	name := spec.Compiler
	if name == "" {
		name = s.cfg.DefaultCompiler
	}

	id := uuid.NewString()
	return &Request{
		ID:       id,
		Mode:     mode,
		Compiler: name,
		command:  command,
		wire: &protocol.Request{
			ID:             id,
			File:           file,
			OutFile:        outFile,
			IncludePaths:   includePaths,
			AuxiliaryPaths: spec.AuxiliaryPaths,
			Options: protocol.Options{
				OutputStyle:  spec.OutputStyle,
				EmitComments: spec.EmitComments,
				SourceMap:    spec.SourceMap,
			},
		},
		done: make(chan Outcome, 1),
	}, nil
}

// await submits the request and blocks for its single outcome. There is no
// cancellation once enqueued: if ctx expires first the compile still runs
// to completion, the outcome just goes unobserved (the done channel is
// buffered).
func (s *Service) await(ctx context.Context, req *Request) (Outcome, error) {
	s.pipe.Submit(req)
	select {
	case out := <-req.done:
		return out, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}
