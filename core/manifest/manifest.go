// Package manifest builds and seals content manifests: hash-scoped
// descriptions of a file tree. A Builder is mutable until Finalize, which
// sorts and deep-copies the entries, computes the aggregate hash over only
// the hashable section, and returns an immutable Manifest. Annotations are
// an unhashed side channel and attach only after sealing.
package manifest

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/reproseal/reproseal/core/canon"
	schemamanifest "github.com/reproseal/reproseal/core/schema/v1/manifest"
)

var (
	// ErrNotFinalized reports aggregate hash access before Finalize.
	ErrNotFinalized = errors.New("manifest not finalized")
	// ErrSealed reports a mutation attempt after Finalize.
	ErrSealed = errors.New("manifest already sealed")
	// ErrEmptyTree reports a build over a tree with zero files.
	ErrEmptyTree = errors.New("no files found under root")
)

type Builder struct {
	sourceKind string
	entries    []schemamanifest.Entry
	seen       map[string]struct{}
	sealed     *Manifest
}

func NewBuilder(sourceKind string) (*Builder, error) {
	switch sourceKind {
	case schemamanifest.SourcePosix, schemamanifest.SourceContainer, schemamanifest.SourceDrive:
	default:
		return nil, fmt.Errorf("unsupported source kind: %s", sourceKind)
	}
	return &Builder{
		sourceKind: sourceKind,
		seen:       map[string]struct{}{},
	}, nil
}

// AddFile records one file entry. Paths must be relative, forward-slash
// separated, free of parent traversal, and unique within the builder.
func (builder *Builder) AddFile(path string, sizeBytes uint64, sha256Hex string) error {
	if builder.sealed != nil {
		return ErrSealed
	}
	normalized, err := NormalizePath(path)
	if err != nil {
		return err
	}
	if _, exists := builder.seen[normalized]; exists {
		return fmt.Errorf("duplicate manifest path: %s", normalized)
	}
	if !isHexDigest(sha256Hex) {
		return fmt.Errorf("content hash for %s must be lowercase sha256 hex", normalized)
	}
	builder.seen[normalized] = struct{}{}
	builder.entries = append(builder.entries, schemamanifest.Entry{
		Path:      normalized,
		SizeBytes: sizeBytes,
		SHA256:    sha256Hex,
	})
	return nil
}

// Finalize sorts the entries bytewise by path, copies them into the sealed
// value, and computes the aggregate hash. Idempotent: a second call returns
// the same sealed manifest.
func (builder *Builder) Finalize() (*Manifest, error) {
	if builder.sealed != nil {
		return builder.sealed, nil
	}
	if len(builder.entries) == 0 {
		return nil, ErrEmptyTree
	}
	entries := make([]schemamanifest.Entry, len(builder.entries))
	copy(entries, builder.entries)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })

	hashed := schemamanifest.Hashed{
		FormatVersion: schemamanifest.FormatVersion,
		SourceKind:    builder.sourceKind,
		Entries:       entries,
	}
	aggregate, err := canon.Digest(hashed)
	if err != nil {
		return nil, fmt.Errorf("compute aggregate hash: %w", err)
	}
	builder.sealed = &Manifest{
		hashed:        hashed,
		aggregateHash: aggregate,
		createdAt:     time.Now().UTC(),
	}
	return builder.sealed, nil
}

// AggregateHash is only available once the builder has been finalized.
func (builder *Builder) AggregateHash() (string, error) {
	if builder.sealed == nil {
		return "", ErrNotFinalized
	}
	return builder.sealed.AggregateHash(), nil
}

// Manifest is the sealed, immutable form. It is safe for unrestricted
// concurrent reads; accessors return copies of interior slices and maps.
type Manifest struct {
	hashed        schemamanifest.Hashed
	aggregateHash string
	createdAt     time.Time
	annotations   map[string]any
}

func (manifest *Manifest) AggregateHash() string {
	return manifest.aggregateHash
}

func (manifest *Manifest) SourceKind() string {
	return manifest.hashed.SourceKind
}

func (manifest *Manifest) Entries() []schemamanifest.Entry {
	entries := make([]schemamanifest.Entry, len(manifest.hashed.Entries))
	copy(entries, manifest.hashed.Entries)
	return entries
}

// Annotate attaches a free-form note. Annotations are structurally outside
// the hashable section, so the aggregate hash never observes them.
func (manifest *Manifest) Annotate(key string, value any) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("annotation key is required")
	}
	if manifest.annotations == nil {
		manifest.annotations = map[string]any{}
	}
	manifest.annotations[key] = value
	return nil
}

// Document exports the stored wire form.
func (manifest *Manifest) Document() schemamanifest.Document {
	hashed := schemamanifest.Hashed{
		FormatVersion: manifest.hashed.FormatVersion,
		SourceKind:    manifest.hashed.SourceKind,
		Entries:       make([]schemamanifest.Entry, len(manifest.hashed.Entries)),
	}
	copy(hashed.Entries, manifest.hashed.Entries)
	annotations := make(map[string]any, len(manifest.annotations))
	for key, value := range manifest.annotations {
		annotations[key] = value
	}
	if len(annotations) == 0 {
		annotations = nil
	}
	return schemamanifest.Document{
		SchemaID:      schemamanifest.SchemaID,
		FormatVersion: schemamanifest.FormatVersion,
		Hashed:        hashed,
		AggregateHash: manifest.aggregateHash,
		CreatedAt:     manifest.createdAt,
		Annotations:   annotations,
	}
}

// NormalizePath validates and normalizes a manifest-relative path.
func NormalizePath(path string) (string, error) {
	normalized := strings.ReplaceAll(strings.TrimSpace(path), "\\", "/")
	if normalized == "" {
		return "", fmt.Errorf("manifest path is required")
	}
	if strings.HasPrefix(normalized, "/") {
		return "", fmt.Errorf("manifest path must be relative: %s", path)
	}
	for _, segment := range strings.Split(normalized, "/") {
		if segment == "" || segment == "." || segment == ".." {
			return "", fmt.Errorf("manifest path must not contain empty, dot, or parent segments: %s", path)
		}
	}
	return normalized, nil
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
