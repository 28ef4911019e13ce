// Package compiler owns the external worker process. At most one worker
// exists at a time; the render pipeline spawns one lazily, sends it compile
// requests over stdin, and reads NDJSON messages back from stdout. An
// abnormal exit invalidates the handle and the next dispatch spawns a
// replacement.
package compiler

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"github.com/mattjoyce/sasspipe/internal/protocol"
)

// maxLineBytes caps one worker stdout line. Generated CSS and source maps
// travel on a single line, so the cap is generous.
const maxLineBytes = 64 * 1024 * 1024

// ExitStatus describes how the worker process ended.
type ExitStatus struct {
	Code   int
	Signal string
	Err    error
}

// Abnormal reports whether the exit should invalidate the handle. A clean
// shutdown is exit code zero with no terminating signal.
func (s ExitStatus) Abnormal() bool {
	return s.Err != nil || s.Code != 0 || s.Signal != ""
}

func (s ExitStatus) String() string {
	switch {
	case s.Signal != "":
		return fmt.Sprintf("signal: %s", s.Signal)
	case s.Err != nil:
		return s.Err.Error()
	default:
		return fmt.Sprintf("exit status %d", s.Code)
	}
}

// Worker wraps one live worker process.
type Worker struct {
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	messages chan *protocol.Message
	exited   chan ExitStatus
	logger   *slog.Logger

	shutdownOnce sync.Once
}

// Start spawns the worker command and begins pumping its stdout and stderr.
// Decoded messages arrive on Messages (closed at EOF); the single exit
// status arrives on Exited.
func Start(command []string, logger *slog.Logger) (*Worker, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("worker command is empty")
	}

	cmd := exec.Command(command[0], command[1:]...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}

	// Plumb stdout and stderr through our own pipes instead of StdoutPipe:
	// Wait closes exec-managed pipes on exit, which can discard a terminal
	// message the worker wrote just before dying. With manual pipes the
	// reader always drains to true EOF.
	stdout, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	stderr, stderrW, err := os.Pipe()
	if err != nil {
		_ = stdout.Close()
		_ = stdoutW.Close()
		return nil, fmt.Errorf("create stderr pipe: %w", err)
	}
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	if err := cmd.Start(); err != nil {
		_ = stdout.Close()
		_ = stdoutW.Close()
		_ = stderr.Close()
		_ = stderrW.Close()
		return nil, fmt.Errorf("start worker: %w", err)
	}

	// The child holds the write ends now; dropping ours makes the readers
	// see EOF exactly when the worker exits.
	_ = stdoutW.Close()
	_ = stderrW.Close()

	w := &Worker{
		cmd:      cmd,
		stdin:    stdin,
		messages: make(chan *protocol.Message, 16),
		exited:   make(chan ExitStatus, 1),
		logger:   logger.With("pid", cmd.Process.Pid),
	}

	w.logger.Debug("worker started", "command", command[0])

	go w.readMessages(stdout)
	go w.readStderr(stderr)
	go w.wait()

	return w, nil
}

// Send transmits one compile request to the worker.
func (w *Worker) Send(req *protocol.Request) error {
	if err := protocol.EncodeRequest(w.stdin, req); err != nil {
		return fmt.Errorf("send request to worker: %w", err)
	}
	return nil
}

// Messages returns the decoded stdout stream. The channel closes when the
// worker's stdout reaches EOF.
func (w *Worker) Messages() <-chan *protocol.Message {
	return w.messages
}

// Exited returns a channel delivering the worker's exit status exactly once.
func (w *Worker) Exited() <-chan ExitStatus {
	return w.exited
}

// Kill force-terminates the worker immediately. Used on timeout; the
// resulting abnormal exit surfaces through Exited.
func (w *Worker) Kill() {
	if w.cmd.Process != nil {
		if err := w.cmd.Process.Kill(); err != nil {
			w.logger.Error("failed to kill worker", "error", err)
		}
	}
}

// Shutdown closes the worker's stdin so an idle worker exits cleanly.
func (w *Worker) Shutdown() {
	w.shutdownOnce.Do(func() {
		_ = w.stdin.Close()
	})
}

// Pid returns the worker's process ID.
func (w *Worker) Pid() int {
	return w.cmd.Process.Pid
}

func (w *Worker) readMessages(stdout io.ReadCloser) {
	defer close(w.messages)
	defer stdout.Close()

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		msg, err := protocol.DecodeMessage(line)
		if err != nil {
			w.logger.Warn("dropping malformed worker message", "error", err)
			continue
		}
		w.messages <- msg
	}

	if err := scanner.Err(); err != nil {
		w.logger.Warn("worker stdout read failed", "error", err)
	}
}

func (w *Worker) readStderr(stderr io.ReadCloser) {
	defer stderr.Close()
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			w.logger.Debug("worker stderr", "line", line)
		}
	}
}

func (w *Worker) wait() {
	err := w.cmd.Wait()

	status := ExitStatus{}
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			status.Code = exitErr.ExitCode()
			if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
				status.Signal = ws.Signal().String()
			}
		} else {
			status.Err = err
		}
	}

	w.logger.Debug("worker exited", "status", status.String())
	w.exited <- status
}
