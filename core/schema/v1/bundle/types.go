package bundle

import "time"

const (
	SchemaID      = "reproseal.bundle"
	FormatVersion = "1.0.0"
)

// Member roles inside a bundle, in their canonical order.
const (
	RoleInputManifest  = "input_manifest"
	RoleRecord         = "record"
	RoleOutputManifest = "output_manifest"
)

// Descriptor is the stored bundle descriptor. BundleHash binds the profile
// id and the ordered member file checksums: it covers files as written,
// independent of whether their internal hashes later verify.
type Descriptor struct {
	SchemaID      string    `json:"schema_id"`
	FormatVersion string    `json:"format_version"`
	BundleID      string    `json:"bundle_id"`
	ProfileID     string    `json:"verification_profile_id"`
	Members       []Member  `json:"members"`
	BundleHash    string    `json:"bundle_hash"`
	CreatedAt     time.Time `json:"created_at"`
}

type Member struct {
	Role        string `json:"role"`
	File        string `json:"file"`
	ContentHash string `json:"content_hash"`
	FileSHA256  string `json:"file_sha256"`
}
