package store

import "encoding/json"

// Metadata is an open key-value bag attached to conversations and messages.
// The store never inspects it; it is serialized to a TEXT column and
// returned unchanged.
type Metadata map[string]any

func encodeMetadata(m Metadata) (string, error) {
	if m == nil {
		return "{}", nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func decodeMetadata(raw string) (Metadata, error) {
	if raw == "" {
		return Metadata{}, nil
	}
	var m Metadata
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, err
	}
	if m == nil {
		m = Metadata{}
	}
	return m, nil
}
