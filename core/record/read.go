package record

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/reproseal/reproseal/core/canon"
	"github.com/reproseal/reproseal/core/fsx"
	schemarecord "github.com/reproseal/reproseal/core/schema/v1/record"
	"github.com/reproseal/reproseal/core/schema/validate"
)

// Parse decodes a stored record document after schema validation.
func Parse(payload []byte) (schemarecord.Document, error) {
	if err := validate.Record(payload); err != nil {
		return schemarecord.Document{}, err
	}
	var document schemarecord.Document
	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.UseNumber()
	if err := decoder.Decode(&document); err != nil {
		return schemarecord.Document{}, fmt.Errorf("parse record: %w", err)
	}
	if document.SchemaID != schemarecord.SchemaID {
		return schemarecord.Document{}, fmt.Errorf("unsupported record schema_id: %s", document.SchemaID)
	}
	if document.FormatVersion != schemarecord.FormatVersion {
		return schemarecord.Document{}, fmt.Errorf("unsupported record format_version: %s", document.FormatVersion)
	}
	return document, nil
}

// Load reads and parses a stored record document from disk.
func Load(path string) (schemarecord.Document, error) {
	payload, err := fsx.ReadFileCapped(path)
	if err != nil {
		return schemarecord.Document{}, err
	}
	return Parse(payload)
}

// RecomputeHash re-derives the record hash from a stored document's sealed
// fields, mirroring the payload hashed by Seal.
func RecomputeHash(document schemarecord.Document) (string, error) {
	var environmentHash any
	if document.EnvironmentMetadata != nil {
		environmentHash = document.EnvironmentMetadata.FingerprintHash
	}
	var outputHash any
	if document.OutputManifestHash != "" {
		outputHash = document.OutputManifestHash
	}
	var exitCode any
	if document.ExitCode != nil {
		exitCode = *document.ExitCode
	}
	payload := map[string]any{
		"run_id":                    document.RunID,
		"input_manifest_hash":       document.InputManifestHash,
		"output_manifest_hash":      outputHash,
		"command":                   document.Command,
		"reproducibility_class":     document.ReproducibilityClass,
		"exit_code":                 exitCode,
		"started_at":                document.StartedAt,
		"ended_at":                  document.EndedAt,
		"environment_metadata_hash": environmentHash,
	}
	return canon.Digest(payload)
}

// EncodeDocument serializes a sealed record document to its stored form.
func EncodeDocument(document schemarecord.Document) ([]byte, error) {
	encoded, err := json.MarshalIndent(document, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return append(encoded, '\n'), nil
}
