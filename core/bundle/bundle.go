// Package bundle assembles sealed manifests and records into an archival
// directory with a descriptor that binds member files together. The bundle
// hash covers the profile id plus each member's file checksum as written,
// so the descriptor detects file substitution even when a substituted file
// is internally self-consistent.
package bundle

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/reproseal/reproseal/core/canon"
	"github.com/reproseal/reproseal/core/envmeta"
	"github.com/reproseal/reproseal/core/fsx"
	"github.com/reproseal/reproseal/core/manifest"
	"github.com/reproseal/reproseal/core/profile"
	"github.com/reproseal/reproseal/core/record"
	schemabundle "github.com/reproseal/reproseal/core/schema/v1/bundle"
	schemamanifest "github.com/reproseal/reproseal/core/schema/v1/manifest"
	schemarecord "github.com/reproseal/reproseal/core/schema/v1/record"
)

// Member file names inside a bundle directory.
const (
	InputManifestFile  = "snapshot.json"
	RecordFile         = "record.json"
	OutputManifestFile = "output_snapshot.json"
	DescriptorFile     = "bundle.json"
)

// ErrNotSealed reports an attempt to bundle an unsealed component.
var ErrNotSealed = errors.New("bundle members must be sealed")

// CreateInput carries the sealed components of a new bundle. Output and
// Environment are optional; everything else is required.
type CreateInput struct {
	InputManifest schemamanifest.Document
	Record        schemarecord.Document
	Output        *schemamanifest.Document
	// Environment is the full sidecar envelope backing the record's
	// environment metadata, written alongside the members when set.
	Environment *envmeta.Envelope
	ProfileID   string
}

// Create writes a bundle directory at dir and returns its descriptor.
// Every component must already be sealed; the bundle layer never seals on
// a caller's behalf.
func Create(dir string, input CreateInput, now time.Time) (schemabundle.Descriptor, error) {
	if input.ProfileID == "" {
		input.ProfileID = profile.DefaultID
	}
	if _, err := profile.Lookup(input.ProfileID); err != nil {
		return schemabundle.Descriptor{}, err
	}
	if err := checkSealed(input); err != nil {
		return schemabundle.Descriptor{}, err
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return schemabundle.Descriptor{}, fmt.Errorf("create bundle directory: %w", err)
	}

	inputBytes, err := manifest.EncodeDocument(input.InputManifest)
	if err != nil {
		return schemabundle.Descriptor{}, fmt.Errorf("encode input manifest: %w", err)
	}
	recordBytes, err := record.EncodeDocument(input.Record)
	if err != nil {
		return schemabundle.Descriptor{}, fmt.Errorf("encode record: %w", err)
	}
	members := []schemabundle.Member{
		member(schemabundle.RoleInputManifest, InputManifestFile, input.InputManifest.AggregateHash, inputBytes),
		member(schemabundle.RoleRecord, RecordFile, input.Record.RecordHash, recordBytes),
	}
	files := map[string][]byte{
		InputManifestFile: inputBytes,
		RecordFile:        recordBytes,
	}
	if input.Output != nil {
		outputBytes, err := manifest.EncodeDocument(*input.Output)
		if err != nil {
			return schemabundle.Descriptor{}, fmt.Errorf("encode output manifest: %w", err)
		}
		members = append(members, member(schemabundle.RoleOutputManifest, OutputManifestFile, input.Output.AggregateHash, outputBytes))
		files[OutputManifestFile] = outputBytes
	}

	hash, err := Hash(input.ProfileID, members)
	if err != nil {
		return schemabundle.Descriptor{}, err
	}
	descriptor := schemabundle.Descriptor{
		SchemaID:      schemabundle.SchemaID,
		FormatVersion: schemabundle.FormatVersion,
		BundleID:      newBundleID(),
		ProfileID:     input.ProfileID,
		Members:       members,
		BundleHash:    hash,
		CreatedAt:     now.UTC(),
	}
	descriptorBytes, err := EncodeDescriptor(descriptor)
	if err != nil {
		return schemabundle.Descriptor{}, err
	}
	files[DescriptorFile] = descriptorBytes

	for name, content := range files {
		if err := fsx.WriteFileAtomic(filepath.Join(dir, name), content, 0o600); err != nil {
			return schemabundle.Descriptor{}, fmt.Errorf("write bundle member %s: %w", name, err)
		}
	}
	if input.Environment != nil {
		if _, err := envmeta.WriteSidecar(dir, *input.Environment); err != nil {
			return schemabundle.Descriptor{}, err
		}
	}
	return descriptor, nil
}

// Hash computes a bundle hash from the profile id and the members in their
// stored order.
func Hash(profileID string, members []schemabundle.Member) (string, error) {
	ordered := make([]map[string]any, 0, len(members))
	for _, m := range members {
		ordered = append(ordered, map[string]any{
			"role":         m.Role,
			"file":         m.File,
			"content_hash": m.ContentHash,
			"file_sha256":  m.FileSHA256,
		})
	}
	hash, err := canon.Digest(map[string]any{
		"format_version":          schemabundle.FormatVersion,
		"verification_profile_id": profileID,
		"members":                 ordered,
	})
	if err != nil {
		return "", fmt.Errorf("hash bundle descriptor: %w", err)
	}
	return hash, nil
}

func checkSealed(input CreateInput) error {
	if input.InputManifest.AggregateHash == "" {
		return fmt.Errorf("%w: input manifest has no aggregate hash", ErrNotSealed)
	}
	if input.Record.RecordHash == "" {
		return fmt.Errorf("%w: record has no record hash", ErrNotSealed)
	}
	if input.Output != nil && input.Output.AggregateHash == "" {
		return fmt.Errorf("%w: output manifest has no aggregate hash", ErrNotSealed)
	}
	return nil
}

func member(role, file, contentHash string, content []byte) schemabundle.Member {
	sum := sha256.Sum256(content)
	return schemabundle.Member{
		Role:        role,
		File:        file,
		ContentHash: contentHash,
		FileSHA256:  hex.EncodeToString(sum[:]),
	}
}

func newBundleID() string {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic(fmt.Sprintf("read random bundle id: %v", err))
	}
	return "bundle_" + hex.EncodeToString(buf[:])
}
