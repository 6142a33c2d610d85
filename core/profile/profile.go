// Package profile pins the rule set a bundle was built against. A bundle
// names its profile so a later verifier can tell whether it is applying
// the same checks the creator intended. Profiles are compiled-in constants
// and never loaded from disk.
package profile

import "fmt"

// DefaultID is the profile new bundles are stamped with.
const DefaultID = "reproseal-v1-strict"

// Profile is an immutable description of the verification rule set.
type Profile struct {
	ID          string
	Description string
	// HashAlgorithm is the content digest algorithm every rule assumes.
	HashAlgorithm string
	// RequireRecord rejects bundles without a provenance record.
	RequireRecord bool
	// RequireOutputWhenBound rejects bundles whose record binds an output
	// hash but whose member set omits the output manifest.
	RequireOutputWhenBound bool
	// VerifyEnvironmentSidecar re-fingerprints environment sidecar files
	// against the record's fingerprint hash when a sidecar is present.
	VerifyEnvironmentSidecar bool
	// ExtraFilesAreWarnings downgrades files present on disk but absent
	// from a manifest to advisory findings.
	ExtraFilesAreWarnings bool
}

var profiles = map[string]Profile{
	DefaultID: {
		ID:                       DefaultID,
		Description:              "all structural, hash, and provenance checks enforced",
		HashAlgorithm:            "sha256",
		RequireRecord:            true,
		RequireOutputWhenBound:   true,
		VerifyEnvironmentSidecar: true,
		ExtraFilesAreWarnings:    true,
	},
}

// Lookup returns the profile for id.
func Lookup(id string) (Profile, error) {
	p, ok := profiles[id]
	if !ok {
		return Profile{}, fmt.Errorf("unknown verification profile: %q (known: %s)", id, DefaultID)
	}
	return p, nil
}

// Known reports whether id names a compiled-in profile.
func Known(id string) bool {
	_, ok := profiles[id]
	return ok
}
