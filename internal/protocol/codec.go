package protocol

import (
	"encoding/json"
	"fmt"
	"io"
)

// EncodeRequest serializes a Request as a single JSON line and writes it to w.
// Returns an error if marshaling or writing fails.
func EncodeRequest(w io.Writer, req *Request) error {
	if req.File == "" {
		return fmt.Errorf("request has no source file")
	}

	encoder := json.NewEncoder(w)
	if err := encoder.Encode(req); err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	return nil
}

// DecodeMessage deserializes one worker message line. Returns an error if
// unmarshaling fails or the message carries no recognized payload.
func DecodeMessage(line []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(line, &msg); err != nil {
		return nil, fmt.Errorf("worker output is not valid JSON: %w", err)
	}

	if msg.Log == nil && msg.CSS == nil && msg.Error == nil {
		return nil, fmt.Errorf("worker message carries neither log, css nor error")
	}

	return &msg, nil
}
