package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	schemamanifest "github.com/reproseal/reproseal/core/schema/v1/manifest"
)

func writeTree(test *testing.T, files map[string]string) string {
	test.Helper()
	root := test.TempDir()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			test.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			test.Fatalf("write %s: %v", name, err)
		}
	}
	return root
}

func TestBuildMatchesTree(test *testing.T) {
	root := writeTree(test, map[string]string{
		"a.txt":        "hi",
		"sub/b.txt":    "yo",
		"sub/deep/c":   "data",
		"sub/deep/d.x": "",
	})
	builder, issues, err := Build(root, schemamanifest.SourcePosix)
	if err != nil {
		test.Fatalf("build: %v", err)
	}
	if len(issues) != 0 {
		test.Fatalf("unexpected issues: %#v", issues)
	}
	sealed, err := builder.Finalize()
	if err != nil {
		test.Fatalf("finalize: %v", err)
	}
	entries := sealed.Entries()
	if len(entries) != 4 {
		test.Fatalf("expected 4 entries, got %d", len(entries))
	}
	if entries[0].Path != "a.txt" || entries[1].Path != "sub/b.txt" {
		test.Fatalf("unexpected entry order: %#v", entries)
	}
	if entries[0].SizeBytes != 2 {
		test.Fatalf("unexpected size for a.txt: %d", entries[0].SizeBytes)
	}
}

func TestBuildDeterministicAcrossRuns(test *testing.T) {
	root := writeTree(test, map[string]string{
		"a.txt":     "hi",
		"sub/b.txt": "yo",
	})
	var previous string
	for run := 0; run < 5; run++ {
		builder, _, err := Build(root, schemamanifest.SourcePosix)
		if err != nil {
			test.Fatalf("build run %d: %v", run, err)
		}
		sealed, err := builder.Finalize()
		if err != nil {
			test.Fatalf("finalize run %d: %v", run, err)
		}
		if previous != "" && sealed.AggregateHash() != previous {
			test.Fatalf("aggregate hash varied across runs")
		}
		previous = sealed.AggregateHash()
	}
}

func TestBuildEmptyTree(test *testing.T) {
	builder, _, err := Build(test.TempDir(), schemamanifest.SourcePosix)
	if err != nil {
		test.Fatalf("build: %v", err)
	}
	if _, err := builder.Finalize(); err != ErrEmptyTree {
		test.Fatalf("expected ErrEmptyTree, got %v", err)
	}
}

func TestBuildMissingRoot(test *testing.T) {
	if _, _, err := Build(filepath.Join(test.TempDir(), "absent"), schemamanifest.SourcePosix); err == nil {
		test.Fatalf("expected missing root to fail")
	}
}

func TestBuildLargeTreeBoundedWorkers(test *testing.T) {
	files := make(map[string]string, 200)
	for index := 0; index < 200; index++ {
		files[fmt.Sprintf("dir%d/file%d.txt", index%10, index)] = fmt.Sprintf("content-%d", index)
	}
	root := writeTree(test, files)
	builder, issues, err := Build(root, schemamanifest.SourcePosix)
	if err != nil {
		test.Fatalf("build: %v", err)
	}
	if len(issues) != 0 {
		test.Fatalf("unexpected issues: %#v", issues)
	}
	sealed, err := builder.Finalize()
	if err != nil {
		test.Fatalf("finalize: %v", err)
	}
	if len(sealed.Entries()) != 200 {
		test.Fatalf("expected 200 entries, got %d", len(sealed.Entries()))
	}
}

func TestParseRoundTrip(test *testing.T) {
	root := writeTree(test, map[string]string{"a.txt": "hi"})
	builder, _, err := Build(root, schemamanifest.SourcePosix)
	if err != nil {
		test.Fatalf("build: %v", err)
	}
	sealed, err := builder.Finalize()
	if err != nil {
		test.Fatalf("finalize: %v", err)
	}
	if err := sealed.Annotate("note", "side channel"); err != nil {
		test.Fatalf("annotate: %v", err)
	}
	encoded, err := EncodeDocument(sealed.Document())
	if err != nil {
		test.Fatalf("encode: %v", err)
	}
	parsed, err := Parse(encoded)
	if err != nil {
		test.Fatalf("parse: %v", err)
	}
	if parsed.AggregateHash != sealed.AggregateHash() {
		test.Fatalf("aggregate hash lost in round trip")
	}
	recomputed, err := RecomputeAggregate(parsed)
	if err != nil {
		test.Fatalf("recompute: %v", err)
	}
	if recomputed != parsed.AggregateHash {
		test.Fatalf("stored aggregate does not verify after round trip")
	}
}

func TestParseRejectsGarbage(test *testing.T) {
	if _, err := Parse([]byte(`{"schema_id":"reproseal.manifest"`)); err == nil {
		test.Fatalf("expected truncated JSON to fail")
	}
	if _, err := Parse([]byte(`{"schema_id":"other","format_version":"1.0.0"}`)); err == nil {
		test.Fatalf("expected wrong schema_id to fail")
	}
}
