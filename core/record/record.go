// Package record models one execution step as a sealed provenance record.
// A record is constructed against a fixed input manifest hash, mutated
// through restricted operations while open, then sealed. Sealing computes
// the record hash over every core field; the environment metadata's raw
// payload stays outside the hash and contributes only its own fingerprint.
// Provenance is linear: one input, at most one output, and binding an
// output a second time overwrites rather than appends.
package record

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/reproseal/reproseal/core/canon"
	schemarecord "github.com/reproseal/reproseal/core/schema/v1/record"
)

var (
	// ErrSealed reports a mutation attempt on a sealed record.
	ErrSealed = errors.New("record already sealed")
	// ErrNotSealed reports record hash access before Seal.
	ErrNotSealed = errors.New("record not sealed")
	// ErrUnsealedExport reports an export attempt on an unsealed record.
	// Unsealed records must never be archived or cited.
	ErrUnsealedExport = errors.New("record must be sealed before export")
)

type Record struct {
	runID             string
	inputManifestHash string
	command           string
	class             string
	startedAt         string
	endedAt           string
	exitCode          *int
	outputHash        string // empty means unbound
	environment       *schemarecord.EnvironmentMetadata
	recordHash        string // non-empty means sealed
}

// New constructs an open record bound to a sealed input manifest hash. The
// input hash is fixed for the record's lifetime.
func New(inputManifestHash, command, reproducibilityClass string) (*Record, error) {
	if !isHexDigest(inputManifestHash) {
		return nil, fmt.Errorf("input manifest hash must be lowercase sha256 hex")
	}
	if strings.TrimSpace(command) == "" {
		return nil, fmt.Errorf("command is required")
	}
	switch reproducibilityClass {
	case schemarecord.ClassDeterministic, schemarecord.ClassStochastic, schemarecord.ClassUnknown:
	case "":
		reproducibilityClass = schemarecord.ClassUnknown
	default:
		return nil, fmt.Errorf("unsupported reproducibility class: %s", reproducibilityClass)
	}
	return &Record{
		runID:             newRunID(),
		inputManifestHash: inputManifestHash,
		command:           command,
		class:             reproducibilityClass,
	}, nil
}

func (record *Record) RunID() string {
	return record.runID
}

func (record *Record) InputManifestHash() string {
	return record.inputManifestHash
}

func (record *Record) OutputManifestHash() string {
	return record.outputHash
}

// SetTiming stamps the execution window. Times are truncated to whole
// seconds and normalized to UTC before entering the hash scope.
func (record *Record) SetTiming(started, ended time.Time) error {
	if record.recordHash != "" {
		return ErrSealed
	}
	record.startedAt = started.UTC().Truncate(time.Second).Format(time.RFC3339)
	record.endedAt = ended.UTC().Truncate(time.Second).Format(time.RFC3339)
	return nil
}

func (record *Record) SetExitCode(code int) error {
	if record.recordHash != "" {
		return ErrSealed
	}
	record.exitCode = &code
	return nil
}

// BindOutput binds the output manifest hash. Calling it again overwrites
// the previous value; the sealed form never retains more than one output.
func (record *Record) BindOutput(outputManifestHash string) error {
	if record.recordHash != "" {
		return ErrSealed
	}
	if !isHexDigest(outputManifestHash) {
		return fmt.Errorf("output manifest hash must be lowercase sha256 hex")
	}
	record.outputHash = outputManifestHash
	return nil
}

// AttachEnvironment stores opaque environment metadata. The metadata must
// be canonically encodable and must carry its own fingerprint hash; only
// that fingerprint is folded into the record hash.
func (record *Record) AttachEnvironment(metadata schemarecord.EnvironmentMetadata) error {
	if record.recordHash != "" {
		return ErrSealed
	}
	if !isHexDigest(metadata.FingerprintHash) {
		return fmt.Errorf("environment metadata fingerprint must be lowercase sha256 hex")
	}
	if metadata.Plugin == "" {
		return fmt.Errorf("environment metadata plugin is required")
	}
	if _, err := canon.Encode(metadata); err != nil {
		return fmt.Errorf("environment metadata not canonically encodable: %w", err)
	}
	stored := metadata
	record.environment = &stored
	return nil
}

// Seal computes the record hash and flips the record to sealed. Sealing an
// already-sealed record is a no-op returning the stored hash.
func (record *Record) Seal() (string, error) {
	if record.recordHash != "" {
		return record.recordHash, nil
	}
	digest, err := canon.Digest(record.sealPayload())
	if err != nil {
		return "", fmt.Errorf("compute record hash: %w", err)
	}
	record.recordHash = digest
	return digest, nil
}

func (record *Record) RecordHash() (string, error) {
	if record.recordHash == "" {
		return "", ErrNotSealed
	}
	return record.recordHash, nil
}

// Document exports the stored wire form. Export of an unsealed record is a
// hard failure, not a verification outcome.
func (record *Record) Document() (schemarecord.Document, error) {
	if record.recordHash == "" {
		return schemarecord.Document{}, ErrUnsealedExport
	}
	document := schemarecord.Document{
		SchemaID:             schemarecord.SchemaID,
		FormatVersion:        schemarecord.FormatVersion,
		RunID:                record.runID,
		InputManifestHash:    record.inputManifestHash,
		OutputManifestHash:   record.outputHash,
		Command:              record.command,
		ReproducibilityClass: record.class,
		StartedAt:            record.startedAt,
		EndedAt:              record.endedAt,
		ExitCode:             record.exitCode,
		RecordHash:           record.recordHash,
	}
	if record.environment != nil {
		environment := *record.environment
		document.EnvironmentMetadata = &environment
	}
	return document, nil
}

func (record *Record) sealPayload() map[string]any {
	var environmentHash any
	if record.environment != nil {
		environmentHash = record.environment.FingerprintHash
	}
	var outputHash any
	if record.outputHash != "" {
		outputHash = record.outputHash
	}
	var exitCode any
	if record.exitCode != nil {
		exitCode = *record.exitCode
	}
	return map[string]any{
		"run_id":                    record.runID,
		"input_manifest_hash":       record.inputManifestHash,
		"output_manifest_hash":      outputHash,
		"command":                   record.command,
		"reproducibility_class":     record.class,
		"exit_code":                 exitCode,
		"started_at":                record.startedAt,
		"ended_at":                  record.endedAt,
		"environment_metadata_hash": environmentHash,
	}
}

func newRunID() string {
	var buffer [16]byte
	if _, err := rand.Read(buffer[:]); err != nil {
		// crypto/rand failure leaves no safe fallback for unique ids.
		panic(fmt.Sprintf("generate run id: %v", err))
	}
	return "run_" + hex.EncodeToString(buffer[:])
}

func isHexDigest(candidate string) bool {
	if len(candidate) != 64 {
		return false
	}
	for _, char := range candidate {
		if (char < '0' || char > '9') && (char < 'a' || char > 'f') {
			return false
		}
	}
	return true
}
