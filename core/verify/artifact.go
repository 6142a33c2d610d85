package verify

import (
	"github.com/reproseal/reproseal/core/manifest"
	"github.com/reproseal/reproseal/core/record"
	schemamanifest "github.com/reproseal/reproseal/core/schema/v1/manifest"
	schemarecord "github.com/reproseal/reproseal/core/schema/v1/record"
)

// Verifiable is a sealed artifact that can re-verify its own seal. The
// engine delegates seal checks to the artifact instead of re-deriving each
// component's hashing rules.
type Verifiable interface {
	// Describe names the artifact for findings.
	Describe() string
	// SealHashes returns the stored hash and the freshly recomputed hash.
	SealHashes() (stored, recomputed string, err error)
}

// ManifestArtifact adapts a stored manifest document to Verifiable.
type ManifestArtifact struct {
	Document schemamanifest.Document
	// Name overrides the default description, usually the member file name.
	Name string
}

func (artifact ManifestArtifact) Describe() string {
	if artifact.Name != "" {
		return artifact.Name
	}
	return "manifest"
}

func (artifact ManifestArtifact) SealHashes() (string, string, error) {
	recomputed, err := manifest.RecomputeAggregate(artifact.Document)
	if err != nil {
		return "", "", err
	}
	return artifact.Document.AggregateHash, recomputed, nil
}

// RecordArtifact adapts a stored provenance record to Verifiable.
type RecordArtifact struct {
	Document schemarecord.Document
	Name     string
}

func (artifact RecordArtifact) Describe() string {
	if artifact.Name != "" {
		return artifact.Name
	}
	return "record"
}

func (artifact RecordArtifact) SealHashes() (string, string, error) {
	recomputed, err := record.RecomputeHash(artifact.Document)
	if err != nil {
		return "", "", err
	}
	return artifact.Document.RecordHash, recomputed, nil
}

// checkSeal runs one artifact's seal comparison into the collector.
func checkSeal(c *collector, artifact Verifiable) {
	stored, recomputed, err := artifact.SealHashes()
	if err != nil {
		c.fail(Finding{
			Step:    StepSeal,
			Code:    CodeSchemaError,
			Path:    artifact.Describe(),
			Message: "seal recomputation failed: " + err.Error(),
		})
		return
	}
	if stored != recomputed {
		c.fail(Finding{
			Step:     StepSeal,
			Code:     CodeHashMismatch,
			Path:     artifact.Describe(),
			Message:  "stored seal hash does not match recomputed hash",
			Expected: stored,
			Actual:   recomputed,
		})
	}
}
