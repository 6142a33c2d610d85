package verify

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"

	"github.com/reproseal/reproseal/core/bundle"
	"github.com/reproseal/reproseal/core/envmeta"
	"github.com/reproseal/reproseal/core/fsx"
	"github.com/reproseal/reproseal/core/manifest"
	"github.com/reproseal/reproseal/core/profile"
	"github.com/reproseal/reproseal/core/record"
	schemabundle "github.com/reproseal/reproseal/core/schema/v1/bundle"
	schemamanifest "github.com/reproseal/reproseal/core/schema/v1/manifest"
	schemarecord "github.com/reproseal/reproseal/core/schema/v1/record"
)

// Options configures a bundle verification call.
type Options struct {
	// DataDir, when set, rebuilds a live manifest from this directory and
	// compares it against the bundle's input manifest.
	DataDir string
}

// Bundle runs the full verification state machine over a bundle directory:
// load, component seals, bundle coherence, provenance consistency, and the
// optional live-data check. Steps never short-circuit; unparseable members
// simply leave their dependent comparisons unevaluated.
func Bundle(dir string, options Options) Report {
	var c collector

	descriptor, ok := loadDescriptor(&c, dir)
	if !ok {
		return c.report()
	}

	rules := resolveProfile(&c, descriptor.ProfileID)
	members := loadMembers(&c, dir, descriptor)

	// Component seal checks.
	if members.input != nil {
		checkSeal(&c, ManifestArtifact{Document: *members.input, Name: members.inputFile})
	}
	if members.record != nil {
		checkSeal(&c, RecordArtifact{Document: *members.record, Name: members.recordFile})
		if rules.VerifyEnvironmentSidecar {
			checkEnvironmentSidecar(&c, dir, members.record)
		}
	}
	if members.output != nil {
		checkSeal(&c, ManifestArtifact{Document: *members.output, Name: members.outputFile})
	}

	checkCoherence(&c, descriptor, members)
	checkProvenance(&c, rules, members)

	if options.DataDir != "" && members.input != nil {
		compareAgainstDir(&c, *members.input, options.DataDir, rules.ExtraFilesAreWarnings)
	}

	return c.report()
}

// loadedMembers holds whichever member documents were readable, plus their
// raw bytes for checksum recomputation.
type loadedMembers struct {
	input      *schemamanifest.Document
	record     *schemarecord.Document
	output     *schemamanifest.Document
	inputFile  string
	recordFile string
	outputFile string
	// outputListed distinguishes a bundle that never carried an output
	// manifest from one whose output member could not be read.
	outputListed bool
	raw          map[string][]byte
}

func loadDescriptor(c *collector, dir string) (schemabundle.Descriptor, bool) {
	payload, err := fsx.ReadFileCapped(filepath.Join(dir, bundle.DescriptorFile))
	if err != nil {
		c.inconclusive(Finding{
			Step:    StepLoad,
			Code:    loadCode(err),
			Path:    bundle.DescriptorFile,
			Message: "bundle descriptor unreadable: " + err.Error(),
		})
		return schemabundle.Descriptor{}, false
	}
	descriptor, err := bundle.Parse(payload)
	if err != nil {
		c.fail(Finding{
			Step:    StepLoad,
			Code:    CodeSchemaError,
			Path:    bundle.DescriptorFile,
			Message: "bundle descriptor corrupted: " + err.Error(),
		})
		return schemabundle.Descriptor{}, false
	}
	return descriptor, true
}

// resolveProfile looks up the declared profile, falling back to the strict
// default rules with a warning when the id is unknown. An unknown profile
// is a comparability problem, not evidence of tampering.
func resolveProfile(c *collector, profileID string) profile.Profile {
	rules, err := profile.Lookup(profileID)
	if err != nil {
		c.warn(Finding{
			Step:    StepLoad,
			Code:    CodeProfileUnknown,
			Message: "unknown verification profile " + profileID + ", applying " + profile.DefaultID,
		})
		rules, _ = profile.Lookup(profile.DefaultID)
	}
	return rules
}

func loadMembers(c *collector, dir string, descriptor schemabundle.Descriptor) loadedMembers {
	members := loadedMembers{raw: map[string][]byte{}}
	seenRoles := map[string]bool{}
	for _, m := range descriptor.Members {
		seenRoles[m.Role] = true
		payload, err := fsx.ReadFileCapped(filepath.Join(dir, m.File))
		if err != nil {
			c.inconclusive(Finding{
				Step:    StepLoad,
				Code:    loadCode(err),
				Path:    m.File,
				Message: "bundle member unreadable: " + err.Error(),
			})
			continue
		}
		members.raw[m.File] = payload
		switch m.Role {
		case schemabundle.RoleInputManifest, schemabundle.RoleOutputManifest:
			document, err := manifest.Parse(payload)
			if err != nil {
				c.fail(Finding{
					Step:    StepLoad,
					Code:    CodeSchemaError,
					Path:    m.File,
					Message: "manifest member corrupted: " + err.Error(),
				})
				continue
			}
			if m.Role == schemabundle.RoleInputManifest {
				members.input, members.inputFile = &document, m.File
			} else {
				members.output, members.outputFile = &document, m.File
			}
		case schemabundle.RoleRecord:
			document, err := record.Parse(payload)
			if err != nil {
				c.fail(Finding{
					Step:    StepLoad,
					Code:    CodeSchemaError,
					Path:    m.File,
					Message: "record member corrupted: " + err.Error(),
				})
				continue
			}
			members.record, members.recordFile = &document, m.File
		}
	}
	members.outputListed = seenRoles[schemabundle.RoleOutputManifest]
	for _, role := range []string{schemabundle.RoleInputManifest, schemabundle.RoleRecord} {
		if !seenRoles[role] {
			c.fail(Finding{
				Step:    StepLoad,
				Code:    CodeMemberMissing,
				Path:    role,
				Message: "descriptor lists no " + role + " member",
			})
		}
	}
	return members
}

// checkCoherence recomputes member file checksums, binds member content
// hashes to the parsed documents, and recomputes the bundle hash.
func checkCoherence(c *collector, descriptor schemabundle.Descriptor, members loadedMembers) {
	for _, m := range descriptor.Members {
		payload, ok := members.raw[m.File]
		if !ok {
			continue // unreadable, already reported in load
		}
		sum := sha256.Sum256(payload)
		if actual := hex.EncodeToString(sum[:]); actual != m.FileSHA256 {
			c.fail(Finding{
				Step:     StepBundle,
				Code:     CodeHashMismatch,
				Path:     m.File,
				Message:  "member file bytes do not match recorded checksum",
				Expected: m.FileSHA256,
				Actual:   actual,
			})
		}
		if stored := memberContentHash(m, members); stored != "" && stored != m.ContentHash {
			c.fail(Finding{
				Step:     StepBundle,
				Code:     CodeHashMismatch,
				Path:     m.File,
				Message:  "member content hash does not match the document's own seal",
				Expected: m.ContentHash,
				Actual:   stored,
			})
		}
	}
	recomputed, err := bundle.RecomputeHash(descriptor)
	if err != nil {
		c.fail(Finding{
			Step:    StepBundle,
			Code:    CodeSchemaError,
			Path:    bundle.DescriptorFile,
			Message: "bundle hash recomputation failed: " + err.Error(),
		})
		return
	}
	if recomputed != descriptor.BundleHash {
		c.fail(Finding{
			Step:     StepBundle,
			Code:     CodeHashMismatch,
			Path:     bundle.DescriptorFile,
			Message:  "stored bundle hash does not match recomputed hash",
			Expected: descriptor.BundleHash,
			Actual:   recomputed,
		})
	}
}

func memberContentHash(m schemabundle.Member, members loadedMembers) string {
	switch {
	case m.File == members.inputFile && members.input != nil:
		return members.input.AggregateHash
	case m.File == members.outputFile && members.output != nil:
		return members.output.AggregateHash
	case m.File == members.recordFile && members.record != nil:
		return members.record.RecordHash
	}
	return ""
}

// checkProvenance walks the linear chain: input manifest into record, and
// record into output manifest when one is bound.
func checkProvenance(c *collector, rules profile.Profile, members loadedMembers) {
	if members.record == nil {
		return // record unreadable or missing, already reported
	}
	if members.input != nil && members.record.InputManifestHash != members.input.AggregateHash {
		c.fail(Finding{
			Step:     StepProvenance,
			Code:     CodeProvenanceInconsistency,
			Path:     members.recordFile,
			Message:  "record input hash does not match the input manifest's aggregate hash",
			Expected: members.record.InputManifestHash,
			Actual:   members.input.AggregateHash,
		})
	}
	switch {
	case members.record.OutputManifestHash == "":
		return
	case members.output == nil:
		if rules.RequireOutputWhenBound && !members.outputListed {
			c.fail(Finding{
				Step:    StepProvenance,
				Code:    CodeMemberMissing,
				Path:    schemabundle.RoleOutputManifest,
				Message: "record binds an output manifest but the bundle carries none",
			})
		}
	case members.record.OutputManifestHash != members.output.AggregateHash:
		c.fail(Finding{
			Step:     StepProvenance,
			Code:     CodeProvenanceInconsistency,
			Path:     members.recordFile,
			Message:  "record output hash does not match the output manifest's aggregate hash",
			Expected: members.record.OutputManifestHash,
			Actual:   members.output.AggregateHash,
		})
	}
}

// checkEnvironmentSidecar re-fingerprints the environment envelope file
// against the fingerprint sealed into the record.
func checkEnvironmentSidecar(c *collector, dir string, document *schemarecord.Document) {
	metadata := document.EnvironmentMetadata
	if metadata == nil || metadata.DataFile == "" {
		return
	}
	payload, err := fsx.ReadFileCapped(filepath.Join(dir, metadata.DataFile))
	if err != nil {
		c.inconclusive(Finding{
			Step:    StepSeal,
			Code:    loadCode(err),
			Path:    metadata.DataFile,
			Message: "environment sidecar unreadable: " + err.Error(),
		})
		return
	}
	envelope, err := envmeta.ParseEnvelope(payload)
	if err != nil {
		c.fail(Finding{
			Step:    StepSeal,
			Code:    CodeSchemaError,
			Path:    metadata.DataFile,
			Message: "environment sidecar corrupted: " + err.Error(),
		})
		return
	}
	fingerprint, err := envmeta.Fingerprint(envelope)
	if err != nil {
		c.fail(Finding{
			Step:    StepSeal,
			Code:    CodeSchemaError,
			Path:    metadata.DataFile,
			Message: "environment sidecar corrupted: " + err.Error(),
		})
		return
	}
	if fingerprint != metadata.FingerprintHash {
		c.fail(Finding{
			Step:     StepSeal,
			Code:     CodeHashMismatch,
			Path:     metadata.DataFile,
			Message:  "environment sidecar does not match the fingerprint sealed into the record",
			Expected: metadata.FingerprintHash,
			Actual:   fingerprint,
		})
	}
}
