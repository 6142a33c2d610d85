package bundle

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/reproseal/reproseal/core/fsx"
	"github.com/reproseal/reproseal/core/schema/validate"
	schemabundle "github.com/reproseal/reproseal/core/schema/v1/bundle"
)

// Parse validates and decodes a bundle descriptor.
func Parse(payload []byte) (schemabundle.Descriptor, error) {
	if err := validate.Bundle(payload); err != nil {
		return schemabundle.Descriptor{}, err
	}
	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.UseNumber()
	decoder.DisallowUnknownFields()
	var descriptor schemabundle.Descriptor
	if err := decoder.Decode(&descriptor); err != nil {
		return schemabundle.Descriptor{}, fmt.Errorf("decode bundle descriptor: %w", err)
	}
	if descriptor.SchemaID != schemabundle.SchemaID {
		return schemabundle.Descriptor{}, fmt.Errorf("unexpected schema id: %q", descriptor.SchemaID)
	}
	if descriptor.FormatVersion != schemabundle.FormatVersion {
		return schemabundle.Descriptor{}, fmt.Errorf("unsupported format version: %q", descriptor.FormatVersion)
	}
	return descriptor, nil
}

// Load reads the descriptor file from a bundle directory.
func Load(dir string) (schemabundle.Descriptor, error) {
	payload, err := fsx.ReadFileCapped(filepath.Join(dir, DescriptorFile))
	if err != nil {
		return schemabundle.Descriptor{}, err
	}
	return Parse(payload)
}

// RecomputeHash recomputes a descriptor's bundle hash from its stored
// members and profile id.
func RecomputeHash(descriptor schemabundle.Descriptor) (string, error) {
	return Hash(descriptor.ProfileID, descriptor.Members)
}

// VerifySelf reloads the descriptor at dir and checks it against the files
// on disk: each member's stored checksum against the bytes as written, then
// the bundle hash against a recompute. It reports the first inconsistency.
// The verification engine performs the same checks with classified findings;
// this is the quick creator-side sanity pass.
func VerifySelf(dir string) error {
	descriptor, err := Load(dir)
	if err != nil {
		return err
	}
	for _, m := range descriptor.Members {
		payload, err := fsx.ReadFileCapped(filepath.Join(dir, m.File))
		if err != nil {
			return fmt.Errorf("read bundle member %s: %w", m.File, err)
		}
		sum := sha256.Sum256(payload)
		if computed := hex.EncodeToString(sum[:]); computed != m.FileSHA256 {
			return fmt.Errorf("bundle member %s checksum mismatch: stored %s, computed %s", m.File, m.FileSHA256, computed)
		}
	}
	recomputed, err := RecomputeHash(descriptor)
	if err != nil {
		return err
	}
	if recomputed != descriptor.BundleHash {
		return fmt.Errorf("bundle hash mismatch: stored %s, computed %s", descriptor.BundleHash, recomputed)
	}
	return nil
}

// MemberByRole returns the descriptor entry for role, if present.
func MemberByRole(descriptor schemabundle.Descriptor, role string) (schemabundle.Member, bool) {
	for _, m := range descriptor.Members {
		if m.Role == role {
			return m, true
		}
	}
	return schemabundle.Member{}, false
}

// EncodeDescriptor renders a descriptor the way Create writes it.
func EncodeDescriptor(descriptor schemabundle.Descriptor) ([]byte, error) {
	encoded, err := json.MarshalIndent(descriptor, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode bundle descriptor: %w", err)
	}
	return append(encoded, '\n'), nil
}
