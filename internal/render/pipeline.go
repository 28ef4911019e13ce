package render

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/mattjoyce/sasspipe/internal/compiler"
	"github.com/mattjoyce/sasspipe/internal/config"
	"github.com/mattjoyce/sasspipe/internal/history"
	"github.com/mattjoyce/sasspipe/internal/log"
	"github.com/mattjoyce/sasspipe/internal/protocol"
	"github.com/mattjoyce/sasspipe/internal/queue"
)

// shutdownGracePeriod is the time an idle worker gets to exit after its
// stdin closes before it is killed.
const shutdownGracePeriod = 5 * time.Second

// Pipeline serializes compile requests into a one-at-a-time stream against
// a single worker process. All mutable state (the worker handle and the
// in-flight slot) is touched only from the Run goroutine.
type Pipeline struct {
	cfg    *config.Config
	queue  *queue.FIFO[*Request]
	hist   *history.Store // may be nil
	logger *slog.Logger

	worker    *compiler.Worker
	workerCmd []string
}

// NewPipeline creates a pipeline. hist may be nil to disable history
// recording.
func NewPipeline(cfg *config.Config, hist *history.Store) *Pipeline {
	return &Pipeline{
		cfg:    cfg,
		queue:  queue.New[*Request](),
		hist:   hist,
		logger: log.WithComponent("render"),
	}
}

// Submit appends a request at the queue tail. The outcome arrives later on
// req.Wait(), exactly once.
func (p *Pipeline) Submit(req *Request) {
	p.queue.Enqueue(req)
}

// Depth returns the number of requests waiting for dispatch.
func (p *Pipeline) Depth() int {
	return p.queue.Depth()
}

// Run is the dispatch loop. It drains the queue one request at a time and
// blocks until ctx is cancelled. This is the only goroutine that touches
// the worker handle.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("render pipeline started")
	defer p.logger.Info("render pipeline stopped")

	for {
		req, ok := p.queue.Dequeue()
		if !ok {
			select {
			case <-ctx.Done():
				p.stop()
				return ctx.Err()
			case <-p.queue.Wake():
				continue
			}
		}
		p.dispatch(ctx, req)
	}
}

// dispatch runs a single request to its one terminal outcome.
func (p *Pipeline) dispatch(ctx context.Context, req *Request) {
	reqLogger := log.WithRequest(req.ID).With("file", req.wire.File, "mode", req.Mode)
	reqLogger.Info("dispatching compile")
	started := time.Now()

	w, err := p.ensureWorker(req.command)
	if err != nil {
		p.resolve(ctx, req, started, Outcome{Err: err})
		return
	}

	if err := w.Send(req.wire); err != nil {
		// A dead stdin means the worker died since it was last used. The
		// request never reached it, so retrying once on a fresh worker is
		// safe and cannot double-send.
		reqLogger.Warn("worker rejected request, retrying on a fresh worker", "error", err)
		p.invalidate()
		if w, err = p.ensureWorker(req.command); err == nil {
			err = w.Send(req.wire)
		}
		if err != nil {
			p.invalidate()
			p.resolve(ctx, req, started, Outcome{Err: err})
			return
		}
	}

	timer := time.NewTimer(p.cfg.RenderTimeout)
	defer timer.Stop()

	msgs := w.Messages()
	for {
		select {
		case msg, ok := <-msgs:
			if !ok {
				// stdout EOF; the exit status is on its way.
				msgs = nil
				continue
			}
			if !msg.Terminal() {
				if msg.Log != nil {
					reqLogger.Info("compiler log", "message", *msg.Log)
				}
				continue
			}
			p.resolve(ctx, req, started, terminalOutcome(msg))
			return

		case status := <-w.Exited():
			p.invalidate()

			// The worker may have written its terminal message just before
			// dying; prefer it over a synthesized crash.
			if out, found := drainForTerminal(msgs, reqLogger); found {
				p.resolve(ctx, req, started, out)
				return
			}

			errString := fmt.Sprintf("the Sass compiler terminated unexpectedly (%s)", status)
			if !status.Abnormal() {
				errString = "the Sass compiler exited without producing a result"
			}
			reqLogger.Warn("worker died mid-request", "status", status.String())
			p.resolve(ctx, req, started, Outcome{
				Errors: []protocol.CompileError{{
					Message: errString,
					Path:    req.wire.File,
					Line:    0,
				}},
				Crashed: true,
			})
			return

		case <-timer.C:
			// No separate timeout error kind: the kill produces an
			// abnormal exit and the request resolves through that path.
			reqLogger.Warn("render timeout expired, killing worker",
				"timeout", p.cfg.RenderTimeout)
			w.Kill()
		}
	}
}

// terminalOutcome converts a terminal worker message into its outcome.
// Callers gate on Message.Terminal first.
func terminalOutcome(msg *protocol.Message) Outcome {
	if msg.CSS != nil {
		return Outcome{Result: &protocol.Result{
			CSS:   *msg.CSS,
			Map:   msg.Map,
			Error: msg.Error, // soft error passes through, not fatal
		}}
	}
	return Outcome{Errors: []protocol.CompileError{*msg.Error}}
}

// drainForTerminal empties what remains of a dead worker's message stream,
// forwarding log lines, and returns the terminal outcome if one was
// buffered. msgs closes shortly after exit, so this terminates.
func drainForTerminal(msgs <-chan *protocol.Message, logger *slog.Logger) (Outcome, bool) {
	if msgs == nil {
		return Outcome{}, false
	}
	for msg := range msgs {
		if !msg.Terminal() {
			if msg.Log != nil {
				logger.Info("compiler log", "message", *msg.Log)
			}
			continue
		}
		return terminalOutcome(msg), true
	}
	return Outcome{}, false
}

// ensureWorker returns the live worker handle, spawning one if absent. A
// request for a different compiler command retires the current worker
// first.
func (p *Pipeline) ensureWorker(command []string) (*compiler.Worker, error) {
	if p.worker != nil {
		// The worker may have died while idle, between requests. A pending
		// exit status means the handle is stale.
		select {
		case status := <-p.worker.Exited():
			p.logger.Warn("worker exited while idle, spawning replacement",
				"status", status.String())
			p.invalidate()
		default:
		}
	}
	if p.worker != nil && !slices.Equal(p.workerCmd, command) {
		p.retireWorker()
	}
	if p.worker == nil {
		w, err := compiler.Start(command, p.logger)
		if err != nil {
			return nil, fmt.Errorf("spawn worker: %w", err)
		}
		p.worker = w
		p.workerCmd = slices.Clone(command)
	}
	return p.worker, nil
}

// invalidate drops the worker handle after its process exited.
func (p *Pipeline) invalidate() {
	p.worker = nil
	p.workerCmd = nil
}

// retireWorker stops the current (idle) worker: close stdin, give it the
// grace period, then kill.
func (p *Pipeline) retireWorker() {
	w := p.worker
	p.invalidate()

	w.Shutdown()
	grace := time.NewTimer(shutdownGracePeriod)
	defer grace.Stop()

	select {
	case <-w.Exited():
	case <-grace.C:
		p.logger.Warn("worker did not exit after shutdown, killing", "pid", w.Pid())
		w.Kill()
		<-w.Exited()
	}
}

// stop tears down the worker and fails any requests still queued.
func (p *Pipeline) stop() {
	if p.worker != nil {
		p.retireWorker()
	}
	for {
		req, ok := p.queue.Dequeue()
		if !ok {
			return
		}
		req.done <- Outcome{Err: fmt.Errorf("render pipeline stopped")}
	}
}

// resolve delivers the request's single outcome and records it in history.
func (p *Pipeline) resolve(ctx context.Context, req *Request, started time.Time, out Outcome) {
	duration := time.Since(started)

	status := history.StatusSucceeded
	var errMsg *string
	switch {
	case out.Err != nil:
		status = history.StatusProcessError
		s := out.Err.Error()
		errMsg = &s
	case out.Crashed:
		status = history.StatusCrashed
		s := out.Errors[0].Message
		errMsg = &s
	case len(out.Errors) > 0:
		status = history.StatusCompileError
		s := out.Errors[0].Message
		errMsg = &s
	}

	if p.hist != nil {
		entry := history.Entry{
			ID:         req.ID,
			Mode:       req.Mode,
			Compiler:   req.Compiler,
			SourceFile: req.wire.File,
			OutputFile: req.wire.OutFile,
			Status:     status,
			DurationMS: duration.Milliseconds(),
			Error:      errMsg,
		}
		if err := p.hist.Record(ctx, entry); err != nil {
			p.logger.Error("failed to record compile history", "error", err)
		}
	}

	p.logger.Info("compile resolved",
		"request_id", req.ID,
		"status", string(status),
		"duration_ms", duration.Milliseconds(),
	)

	req.done <- out
}
