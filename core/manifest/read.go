package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/reproseal/reproseal/core/canon"
	"github.com/reproseal/reproseal/core/fsx"
	schemamanifest "github.com/reproseal/reproseal/core/schema/v1/manifest"
	"github.com/reproseal/reproseal/core/schema/validate"
)

// Parse decodes a stored manifest document, checking it against the
// embedded schema first so malformed stored claims surface as corruption.
func Parse(payload []byte) (schemamanifest.Document, error) {
	if err := validate.Manifest(payload); err != nil {
		return schemamanifest.Document{}, err
	}
	var document schemamanifest.Document
	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.UseNumber()
	if err := decoder.Decode(&document); err != nil {
		return schemamanifest.Document{}, fmt.Errorf("parse manifest: %w", err)
	}
	if document.SchemaID != schemamanifest.SchemaID {
		return schemamanifest.Document{}, fmt.Errorf("unsupported manifest schema_id: %s", document.SchemaID)
	}
	if document.FormatVersion != schemamanifest.FormatVersion {
		return schemamanifest.Document{}, fmt.Errorf("unsupported manifest format_version: %s", document.FormatVersion)
	}
	return document, nil
}

// Load reads and parses a stored manifest document from disk. Read errors
// pass through unwrapped-at-the-os-level so callers can distinguish absence
// from corruption.
func Load(path string) (schemamanifest.Document, error) {
	payload, err := fsx.ReadFileCapped(path)
	if err != nil {
		return schemamanifest.Document{}, err
	}
	return Parse(payload)
}

// RecomputeAggregate re-derives the aggregate hash from a stored document's
// hashable section.
func RecomputeAggregate(document schemamanifest.Document) (string, error) {
	return canon.Digest(document.Hashed)
}

// EncodeDocument serializes a sealed manifest document to its stored form.
func EncodeDocument(document schemamanifest.Document) ([]byte, error) {
	encoded, err := json.MarshalIndent(document, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	return append(encoded, '\n'), nil
}
