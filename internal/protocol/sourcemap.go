package protocol

import (
	"encoding/json"
	"fmt"
)

// SourceMap holds a generated source map. Only the sources list is
// interpreted; every other field round-trips byte-for-byte so the map
// stays valid for downstream consumers regardless of generator version.
type SourceMap struct {
	Sources []string

	rest map[string]json.RawMessage
}

// UnmarshalJSON decodes the sources list and preserves all other fields raw.
func (m *SourceMap) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("decode source map: %w", err)
	}

	if raw, ok := fields["sources"]; ok {
		if err := json.Unmarshal(raw, &m.Sources); err != nil {
			return fmt.Errorf("decode source map sources: %w", err)
		}
		delete(fields, "sources")
	}

	m.rest = fields
	return nil
}

// MarshalJSON re-emits the preserved fields plus the (possibly rewritten)
// sources list.
func (m *SourceMap) MarshalJSON() ([]byte, error) {
	fields := make(map[string]json.RawMessage, len(m.rest)+1)
	for k, v := range m.rest {
		fields[k] = v
	}

	sources := m.Sources
	if sources == nil {
		sources = []string{}
	}
	raw, err := json.Marshal(sources)
	if err != nil {
		return nil, fmt.Errorf("encode source map sources: %w", err)
	}
	fields["sources"] = raw

	return json.Marshal(fields)
}

// Field returns the raw value of an uninterpreted source-map field, such as
// "mappings" or "file". The second return is false if the field is absent.
func (m *SourceMap) Field(name string) (json.RawMessage, bool) {
	raw, ok := m.rest[name]
	return raw, ok
}
