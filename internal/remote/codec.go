package remote

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/teesmad/findmyspot/internal/spot"
)

// EncodeFields serializes a document body for stores that keep documents as
// JSON text.
func EncodeFields(fields spot.Fields) ([]byte, error) {
	if fields == nil {
		fields = spot.Fields{}
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	return data, nil
}

// DecodeDocument parses a JSON document body stored under id.
func DecodeDocument(id string, data []byte) (spot.RawDocument, error) {
	var fields spot.Fields
	if err := json.Unmarshal(data, &fields); err != nil {
		return spot.RawDocument{}, fmt.Errorf("failed to decode document %s: %w", id, err)
	}
	if fields == nil {
		fields = spot.Fields{}
	}
	return spot.RawDocument{ID: id, Fields: fields}, nil
}
