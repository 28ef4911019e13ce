// Package render is the core of sasspipe: a strict single-concurrency
// pipeline that feeds compile requests to the external worker process one
// at a time.
//
// The pipeline pulls the next queued request, acquires the worker (spawning
// one lazily if absent), arms the render timeout, forwards the request, and
// resolves exactly one outcome before advancing:
//   - a terminal message with css resolves as success, passing through any
//     in-band soft error
//   - a terminal message with only an error resolves as a compile error
//   - a spawn or send failure resolves as a process error
//   - an abnormal worker exit resolves as a synthesized crash error
//     referencing the request's source file
//
// Timeouts have no error kind of their own: on expiry the worker is killed
// unconditionally and the request resolves through the abnormal-exit path.
// Any abnormal exit invalidates the worker handle; the next dispatch spawns
// a replacement transparently, so queued requests survive a crash — only
// the request that was in flight fails.
//
// Completion order is strict FIFO: request N+1 is never sent before request
// N resolves, and every request resolves exactly once.
package render
