package record

const (
	SchemaID      = "reproseal.record"
	FormatVersion = "1.0.0"
)

// Reproducibility classes. Informational: the verifier never enforces them.
const (
	ClassDeterministic = "deterministic"
	ClassStochastic    = "stochastic"
	ClassUnknown       = "unknown"
)

// Document is the stored form of a sealed provenance record. RecordHash is
// computed over every field except the environment metadata's raw payload;
// only the metadata's own fingerprint hash is folded in. Timestamps are
// RFC 3339 UTC strings so the hash input stays within the canonical value
// grammar.
type Document struct {
	SchemaID             string               `json:"schema_id"`
	FormatVersion        string               `json:"format_version"`
	RunID                string               `json:"run_id"`
	InputManifestHash    string               `json:"input_manifest_hash"`
	OutputManifestHash   string               `json:"output_manifest_hash,omitempty"`
	Command              string               `json:"command"`
	ReproducibilityClass string               `json:"reproducibility_class"`
	StartedAt            string               `json:"started_at,omitempty"`
	EndedAt              string               `json:"ended_at,omitempty"`
	ExitCode             *int                 `json:"exit_code"`
	EnvironmentMetadata  *EnvironmentMetadata `json:"environment_metadata,omitempty"`
	RecordHash           string               `json:"record_hash"`
}

// EnvironmentMetadata is the opaque, pre-hashed blob contributed by an
// environment plugin. The verifier checks FingerprintHash against the
// sidecar data file but never interprets Summary.
type EnvironmentMetadata struct {
	SchemaID        string         `json:"schema_id"`
	Plugin          string         `json:"plugin"`
	PluginVersion   string         `json:"plugin_version"`
	FingerprintHash string         `json:"fingerprint_hash"`
	Summary         map[string]any `json:"summary,omitempty"`
	DataFile        string         `json:"data_file,omitempty"`
}
