package protocol

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestEncodeRequestWritesOneLine(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	req := &Request{
		ID:           "req-1",
		File:         "/proj/src/main.scss",
		OutFile:      "/proj/out/main.css",
		IncludePaths: []string{"/proj/lib"},
		Options: Options{
			OutputStyle: "expanded",
			SourceMap:   "file",
		},
	}

	if err := EncodeRequest(&buf, req); err != nil {
		t.Fatalf("EncodeRequest: %v", err)
	}

	out := buf.String()
	if !strings.HasSuffix(out, "\n") {
		t.Fatalf("encoded request is not newline-terminated: %q", out)
	}
	if strings.Count(out, "\n") != 1 {
		t.Fatalf("encoded request spans multiple lines: %q", out)
	}

	var round Request
	if err := json.Unmarshal([]byte(out), &round); err != nil {
		t.Fatalf("round-trip unmarshal: %v", err)
	}
	if round.File != req.File || round.OutFile != req.OutFile {
		t.Fatalf("round-trip mismatch: %#v", round)
	}
}

func TestEncodeRequestRejectsEmptyFile(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := EncodeRequest(&buf, &Request{}); err == nil {
		t.Fatal("expected error for request without source file")
	}
}

func TestDecodeMessageClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		line     string
		terminal bool
		wantErr  bool
	}{
		{
			name:     "log message is non-terminal",
			line:     `{"log": "loading plugins"}`,
			terminal: false,
		},
		{
			name:     "css message is terminal",
			line:     `{"css": "a{color:red}", "map": {"version": 3, "sources": []}}`,
			terminal: true,
		},
		{
			name:     "css with soft error is terminal",
			line:     `{"css": "a{}", "error": {"message": "deprecation warning", "path": "a.scss"}}`,
			terminal: true,
		},
		{
			name:     "bare error is terminal",
			line:     `{"error": {"message": "invalid property", "path": "a.scss", "line": 3, "column": 7}}`,
			terminal: true,
		},
		{
			name:    "garbage is rejected",
			line:    `not json`,
			wantErr: true,
		},
		{
			name:    "empty object is rejected",
			line:    `{}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := DecodeMessage([]byte(tt.line))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected decode error")
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeMessage: %v", err)
			}
			if msg.Terminal() != tt.terminal {
				t.Fatalf("Terminal() = %v, want %v", msg.Terminal(), tt.terminal)
			}
		})
	}
}

func TestDecodeMessageSoftErrorPassthrough(t *testing.T) {
	t.Parallel()

	line := `{"css": "a{}", "error": {"message": "will be removed in 2.0", "path": "a.scss", "line": 1}}`
	msg, err := DecodeMessage([]byte(line))
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}
	if msg.CSS == nil || msg.Error == nil {
		t.Fatalf("expected both css and error present: %#v", msg)
	}
	if !msg.Terminal() {
		t.Fatal("css+error message must be terminal")
	}
}

func TestSourceMapRoundTripPreservesUnknownFields(t *testing.T) {
	t.Parallel()

	in := `{"version":3,"file":"out.css","sources":["../src/a.scss","../src/b.scss"],"names":[],"mappings":"AAAA;EACE"}`

	var m SourceMap
	if err := json.Unmarshal([]byte(in), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(m.Sources) != 2 || m.Sources[0] != "../src/a.scss" {
		t.Fatalf("unexpected sources: %#v", m.Sources)
	}

	m.Sources = []string{"rewritten.scss"}

	out, err := json.Marshal(&m)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(out, &fields); err != nil {
		t.Fatalf("re-unmarshal: %v", err)
	}
	if string(fields["mappings"]) != `"AAAA;EACE"` {
		t.Fatalf("mappings not preserved: %s", fields["mappings"])
	}
	if string(fields["version"]) != `3` {
		t.Fatalf("version not preserved: %s", fields["version"])
	}
	if string(fields["sources"]) != `["rewritten.scss"]` {
		t.Fatalf("sources not rewritten: %s", fields["sources"])
	}
}
