package verify

import (
	"github.com/reproseal/reproseal/core/envmeta"
	"github.com/reproseal/reproseal/core/fsx"
	"github.com/reproseal/reproseal/core/manifest"
	"github.com/reproseal/reproseal/core/record"
	schemamanifest "github.com/reproseal/reproseal/core/schema/v1/manifest"
	schemarecord "github.com/reproseal/reproseal/core/schema/v1/record"
)

// Manifest re-verifies a stored manifest's own seal.
func Manifest(document schemamanifest.Document) Report {
	var c collector
	checkSeal(&c, ManifestArtifact{Document: document})
	return c.report()
}

// ManifestAgainstDir verifies a manifest's seal and then compares it to
// the live contents of dir.
func ManifestAgainstDir(document schemamanifest.Document, dir string) Report {
	var c collector
	checkSeal(&c, ManifestArtifact{Document: document})
	compareAgainstDir(&c, document, dir, true)
	return c.report()
}

// ManifestFile loads a stored manifest and verifies it, optionally against
// a live data directory. Load failures are classified per the absence
// versus corruption contract.
func ManifestFile(path, dataDir string) Report {
	var c collector
	payload, err := fsx.ReadFileCapped(path)
	if err != nil {
		c.inconclusive(Finding{
			Step:    StepLoad,
			Code:    loadCode(err),
			Path:    path,
			Message: "manifest unreadable: " + err.Error(),
		})
		return c.report()
	}
	document, err := manifest.Parse(payload)
	if err != nil {
		c.fail(Finding{
			Step:    StepLoad,
			Code:    CodeSchemaError,
			Path:    path,
			Message: "manifest corrupted: " + err.Error(),
		})
		return c.report()
	}
	checkSeal(&c, ManifestArtifact{Document: document, Name: path})
	if dataDir != "" {
		compareAgainstDir(&c, document, dataDir, true)
	}
	return c.report()
}

// RecordFile loads a stored provenance record and verifies its seal.
func RecordFile(path string) Report {
	var c collector
	payload, err := fsx.ReadFileCapped(path)
	if err != nil {
		c.inconclusive(Finding{
			Step:    StepLoad,
			Code:    loadCode(err),
			Path:    path,
			Message: "record unreadable: " + err.Error(),
		})
		return c.report()
	}
	document, err := record.Parse(payload)
	if err != nil {
		c.fail(Finding{
			Step:    StepLoad,
			Code:    CodeSchemaError,
			Path:    path,
			Message: "record corrupted: " + err.Error(),
		})
		return c.report()
	}
	checkSeal(&c, RecordArtifact{Document: document, Name: path})
	return c.report()
}

// Record re-verifies a stored provenance record's own seal.
func Record(document schemarecord.Document) Report {
	var c collector
	checkSeal(&c, RecordArtifact{Document: document})
	return c.report()
}

// Environments compares two records' environment metadata. Drift between
// environments is advisory: every finding is a warning and the outcome is
// always Pass. Tamper detection on the metadata itself belongs to the
// record seal check, not here.
func Environments(left, right *schemarecord.EnvironmentMetadata) Report {
	var c collector
	comparison := envmeta.CompareMetadata(left, right)
	switch {
	case !comparison.Comparable:
		c.warn(Finding{
			Step:    StepData,
			Code:    CodeEnvironmentDrift,
			Message: "environments not comparable: " + comparison.Reason,
		})
	case !comparison.Identical:
		for _, difference := range comparison.Differences {
			c.warn(Finding{
				Step:    StepData,
				Code:    CodeEnvironmentDrift,
				Message: "environment drift: " + difference,
			})
		}
		if len(comparison.Differences) == 0 {
			c.warn(Finding{
				Step:    StepData,
				Code:    CodeEnvironmentDrift,
				Message: "environment fingerprints differ",
			})
		}
	}
	return c.report()
}
