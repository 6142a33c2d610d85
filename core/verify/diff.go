package verify

import (
	"errors"
	"io/fs"

	"github.com/reproseal/reproseal/core/manifest"
	schemamanifest "github.com/reproseal/reproseal/core/schema/v1/manifest"
)

// compareAgainstDir rebuilds a manifest from dir and diffs it against the
// sealed document entry by entry. Removed and changed files are violations;
// files present on disk but absent from the manifest are advisory when the
// profile says so. An unreadable directory makes the claim unevaluable.
func compareAgainstDir(c *collector, document schemamanifest.Document, dir string, extraFilesAreWarnings bool) {
	builder, issues, err := manifest.Build(dir, document.Hashed.SourceKind)
	if err != nil {
		c.inconclusive(Finding{
			Step:    StepData,
			Code:    loadCode(err),
			Path:    dir,
			Message: "data directory unreadable: " + err.Error(),
		})
		return
	}
	for _, issue := range issues {
		c.inconclusive(Finding{
			Step:    StepData,
			Code:    CodeIOError,
			Path:    issue.Path,
			Message: "file unreadable during rebuild: " + issue.Err.Error(),
		})
	}
	live := map[string]schemamanifest.Entry{}
	rebuilt, err := builder.Finalize()
	switch {
	case err == nil:
		for _, entry := range rebuilt.Entries() {
			live[entry.Path] = entry
		}
	case errors.Is(err, manifest.ErrEmptyTree):
		// An empty directory is an evaluable state: every recorded file
		// is missing.
	default:
		c.inconclusive(Finding{
			Step:    StepData,
			Code:    CodeIOError,
			Path:    dir,
			Message: "rebuild failed: " + err.Error(),
		})
		return
	}

	sealed := map[string]schemamanifest.Entry{}
	for _, entry := range document.Hashed.Entries {
		sealed[entry.Path] = entry
	}

	for path, sealedEntry := range sealed {
		liveEntry, ok := live[path]
		if !ok {
			c.fail(Finding{
				Step:     StepData,
				Code:     CodeFileRemoved,
				Path:     path,
				Message:  "file recorded in manifest is missing from data directory",
				Expected: sealedEntry.SHA256,
			})
			continue
		}
		if liveEntry.SHA256 != sealedEntry.SHA256 {
			c.fail(Finding{
				Step:     StepData,
				Code:     CodeFileChanged,
				Path:     path,
				Message:  "file content differs from recorded hash",
				Expected: sealedEntry.SHA256,
				Actual:   liveEntry.SHA256,
			})
		}
	}
	for path, liveEntry := range live {
		if _, ok := sealed[path]; ok {
			continue
		}
		finding := Finding{
			Step:    StepData,
			Code:    CodeFileAdded,
			Path:    path,
			Message: "file present in data directory but absent from manifest",
			Actual:  liveEntry.SHA256,
		}
		if extraFilesAreWarnings {
			c.warn(finding)
		} else {
			c.fail(finding)
		}
	}
}

// loadCode classifies a read error for the load phase contract.
func loadCode(err error) string {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return CodeNotFound
	case errors.Is(err, fs.ErrPermission):
		return CodePermissionDenied
	default:
		return CodeIOError
	}
}
