package manifest

import "time"

const (
	SchemaID      = "reproseal.manifest"
	FormatVersion = "1.0.0"
)

// Source kinds accepted for a content manifest.
const (
	SourcePosix     = "posix"
	SourceContainer = "container"
	SourceDrive     = "drive"
)

// Document is the stored form of a sealed content manifest. Only the
// Hashed section feeds the aggregate hash; created_at and annotations are
// an unhashed side channel.
type Document struct {
	SchemaID      string         `json:"schema_id"`
	FormatVersion string         `json:"format_version"`
	Hashed        Hashed         `json:"hashable_manifest"`
	AggregateHash string         `json:"aggregate_hash"`
	CreatedAt     time.Time      `json:"created_at"`
	Annotations   map[string]any `json:"annotations,omitempty"`
}

type Hashed struct {
	FormatVersion string  `json:"format_version"`
	SourceKind    string  `json:"source_kind"`
	Entries       []Entry `json:"entries"`
}

type Entry struct {
	Path      string `json:"path"`
	SizeBytes uint64 `json:"size_bytes"`
	SHA256    string `json:"sha256"`
}
