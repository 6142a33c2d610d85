package envmeta

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/reproseal/reproseal/core/fsx"
)

// ParseEnvelope decodes a sidecar envelope. Numbers are kept as json.Number
// so re-fingerprinting a decoded envelope cannot drift through float
// conversion.
func ParseEnvelope(data []byte) (Envelope, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	decoder.DisallowUnknownFields()
	var envelope Envelope
	if err := decoder.Decode(&envelope); err != nil {
		return Envelope{}, fmt.Errorf("decode environment envelope: %w", err)
	}
	if envelope.SchemaID != EnvelopeSchemaID {
		return Envelope{}, fmt.Errorf("unexpected environment schema id: %q", envelope.SchemaID)
	}
	if envelope.CapturedBy.Plugin == "" {
		return Envelope{}, fmt.Errorf("environment envelope missing plugin name")
	}
	return envelope, nil
}

// LoadEnvelope reads and decodes a sidecar file from dir.
func LoadEnvelope(dir, name string) (Envelope, error) {
	data, err := fsx.ReadFileCapped(filepath.Join(dir, name))
	if err != nil {
		return Envelope{}, err
	}
	return ParseEnvelope(data)
}
