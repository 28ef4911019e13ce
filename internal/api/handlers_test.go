package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/mattjoyce/sasspipe/internal/history"
	"github.com/mattjoyce/sasspipe/internal/log"
	"github.com/mattjoyce/sasspipe/internal/protocol"
	"github.com/mattjoyce/sasspipe/internal/render"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR") // Suppress logs in tests
	os.Exit(m.Run())
}

// stubRenderer scripts the service outcomes for handler tests.
type stubRenderer struct {
	result      *protocol.Result
	compileErrs []protocol.CompileError
	err         error

	lastSpec    *render.Spec
	lastPreview *render.PreviewSpec
	deleted     int
	mkdirs      []string
	tempDirs    []string
}

func (s *stubRenderer) Render(_ context.Context, spec render.Spec) (*protocol.Result, []protocol.CompileError, error) {
	s.lastSpec = &spec
	return s.result, s.compileErrs, s.err
}

func (s *stubRenderer) Preview(_ context.Context, spec render.PreviewSpec) (*protocol.Result, []protocol.CompileError, error) {
	s.lastPreview = &spec
	return s.result, s.compileErrs, s.err
}

func (s *stubRenderer) DeleteTempFiles() error      { s.deleted++; return nil }
func (s *stubRenderer) Mkdirp(path string) error    { s.mkdirs = append(s.mkdirs, path); return nil }
func (s *stubRenderer) SetTempDir(path string) error {
	s.tempDirs = append(s.tempDirs, path)
	return nil
}
func (s *stubRenderer) Depth() int { return 2 }

type stubHistory struct {
	entries []history.Entry
}

func (s *stubHistory) Recent(_ context.Context, limit int) ([]history.Entry, error) {
	if limit < len(s.entries) {
		return s.entries[:limit], nil
	}
	return s.entries, nil
}

func newTestServer(svc Renderer, hist HistoryReader) *httptest.Server {
	s := New(Config{Listen: "127.0.0.1:0"}, svc, hist, log.WithComponent("api"))
	return httptest.NewServer(s.setupRoutes())
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	ts := newTestServer(&stubRenderer{}, nil)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	body := decodeBody[HealthzResponse](t, resp)
	if body.Status != "ok" || body.QueueDepth != 2 {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestRenderSuccess(t *testing.T) {
	t.Parallel()

	var m protocol.SourceMap
	if err := json.Unmarshal([]byte(`{"version":3,"sources":["../src/a.scss"]}`), &m); err != nil {
		t.Fatalf("seed map: %v", err)
	}

	stub := &stubRenderer{result: &protocol.Result{CSS: "a{}", Map: &m}}
	ts := newTestServer(stub, nil)
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/v1/render", CompileRequest{
		File:        "/proj/src/a.scss",
		OutFile:     "/proj/out/a.css",
		OutputStyle: "compressed",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	body := decodeBody[CompileResponse](t, resp)
	if body.CSS != "a{}" || body.Map == nil {
		t.Fatalf("unexpected body: %+v", body)
	}
	if stub.lastSpec.OutputStyle != "compressed" {
		t.Fatalf("spec not forwarded: %+v", stub.lastSpec)
	}
}

func TestRenderCompileErrorsGet422(t *testing.T) {
	t.Parallel()

	stub := &stubRenderer{compileErrs: []protocol.CompileError{
		{Message: "invalid property", Path: "/proj/a.scss", Line: 3, Column: 1},
	}}
	ts := newTestServer(stub, nil)
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/v1/render", CompileRequest{File: "/a.scss", OutFile: "/a.css"})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", resp.StatusCode)
	}

	body := decodeBody[ErrorsResponse](t, resp)
	if len(body.Errors) != 1 || body.Errors[0].Line != 3 {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestRenderProcessErrorGets502(t *testing.T) {
	t.Parallel()

	stub := &stubRenderer{err: fmt.Errorf("spawn worker: executable not found")}
	ts := newTestServer(stub, nil)
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/v1/render", CompileRequest{File: "/a.scss", OutFile: "/a.css"})
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", resp.StatusCode)
	}
}

func TestRenderValidation(t *testing.T) {
	t.Parallel()

	ts := newTestServer(&stubRenderer{}, nil)
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/v1/render", CompileRequest{File: "/a.scss"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for missing out_file", resp.StatusCode)
	}
}

func TestPreviewForwardsInMemoryFiles(t *testing.T) {
	t.Parallel()

	stub := &stubRenderer{result: &protocol.Result{CSS: "b{}"}}
	ts := newTestServer(stub, nil)
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/v1/preview", CompileRequest{
		File:    "/proj/a.scss",
		OutFile: "/proj/a.css",
		Files:   map[string]string{"a.scss": "b{}"},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if stub.lastPreview == nil || stub.lastPreview.InMemory["a.scss"] != "b{}" {
		t.Fatalf("in-memory files not forwarded: %+v", stub.lastPreview)
	}
}

func TestTempFileEndpoints(t *testing.T) {
	t.Parallel()

	stub := &stubRenderer{}
	ts := newTestServer(stub, nil)
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/v1/tempfiles", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE /v1/tempfiles: %v", err)
	}
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	resp = postJSON(t, ts.URL+"/v1/mkdirp", PathRequest{Path: "/tmp/x/y"})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("mkdirp status = %d", resp.StatusCode)
	}

	raw, _ := json.Marshal(PathRequest{Path: "/tmp/newtmp"})
	put, _ := http.NewRequest(http.MethodPut, ts.URL+"/v1/tempdir", bytes.NewReader(raw))
	resp, err = http.DefaultClient.Do(put)
	if err != nil {
		t.Fatalf("PUT /v1/tempdir: %v", err)
	}
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("tempdir status = %d", resp.StatusCode)
	}

	if stub.deleted != 1 || len(stub.mkdirs) != 1 || len(stub.tempDirs) != 1 {
		t.Fatalf("service calls not forwarded: %+v", stub)
	}

	resp = postJSON(t, ts.URL+"/v1/mkdirp", PathRequest{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty path should be rejected, got %d", resp.StatusCode)
	}
}

func TestJobsEndpoint(t *testing.T) {
	t.Parallel()

	errMsg := "boom"
	hist := &stubHistory{entries: []history.Entry{
		{ID: "1", Mode: "render", Status: history.StatusSucceeded, CompletedAt: time.Now()},
		{ID: "2", Mode: "preview", Status: history.StatusCrashed, Error: &errMsg, CompletedAt: time.Now()},
	}}
	ts := newTestServer(&stubRenderer{}, hist)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/jobs?limit=1")
	if err != nil {
		t.Fatalf("GET /v1/jobs: %v", err)
	}
	jobs := decodeBody[[]JobResponse](t, resp)
	if len(jobs) != 1 || jobs[0].ID != "1" {
		t.Fatalf("unexpected jobs: %+v", jobs)
	}

	resp, err = http.Get(ts.URL + "/v1/jobs?limit=bogus")
	if err != nil {
		t.Fatalf("GET /v1/jobs: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bogus limit should be rejected, got %d", resp.StatusCode)
	}
}

func TestJobsWithoutHistory(t *testing.T) {
	t.Parallel()

	ts := newTestServer(&stubRenderer{}, nil)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/jobs")
	if err != nil {
		t.Fatalf("GET /v1/jobs: %v", err)
	}
	jobs := decodeBody[[]JobResponse](t, resp)
	if len(jobs) != 0 {
		t.Fatalf("expected empty list, got %+v", jobs)
	}
}
