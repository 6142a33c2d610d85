package verify

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/reproseal/reproseal/core/bundle"
	"github.com/reproseal/reproseal/core/envmeta"
	"github.com/reproseal/reproseal/core/fsx"
	"github.com/reproseal/reproseal/core/manifest"
	"github.com/reproseal/reproseal/core/record"
	schemamanifest "github.com/reproseal/reproseal/core/schema/v1/manifest"
	schemarecord "github.com/reproseal/reproseal/core/schema/v1/record"
)

func writeTree(test *testing.T, files map[string]string) string {
	test.Helper()
	dir := test.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			test.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			test.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

func manifestFromDir(test *testing.T, dir string) schemamanifest.Document {
	test.Helper()
	builder, issues, err := manifest.Build(dir, schemamanifest.SourcePosix)
	if err != nil {
		test.Fatalf("Build: %v", err)
	}
	if len(issues) != 0 {
		test.Fatalf("unexpected walk issues: %v", issues)
	}
	sealed, err := builder.Finalize()
	if err != nil {
		test.Fatalf("Finalize: %v", err)
	}
	return sealed.Document()
}

// makeBundle builds the reference scenario: input tree {a.txt, b.txt},
// output tree {out.txt}, a sealed record joining them, and a bundle
// directory with an environment sidecar.
func makeBundle(test *testing.T) (bundleDir, dataDir string) {
	test.Helper()
	dataDir = writeTree(test, map[string]string{"a.txt": "hi", "b.txt": "yo"})
	outDir := writeTree(test, map[string]string{"out.txt": "done"})
	input := manifestFromDir(test, dataDir)
	output := manifestFromDir(test, outDir)

	run, err := record.New(input.AggregateHash, "echo hi", schemarecord.ClassDeterministic)
	if err != nil {
		test.Fatalf("record.New: %v", err)
	}
	if err := run.SetExitCode(0); err != nil {
		test.Fatalf("SetExitCode: %v", err)
	}
	if err := run.BindOutput(output.AggregateHash); err != nil {
		test.Fatalf("BindOutput: %v", err)
	}
	metadata, envelope, err := envmeta.Capture("host", time.Now())
	if err != nil {
		test.Fatalf("Capture: %v", err)
	}
	metadata.DataFile = envmeta.SidecarName("host")
	if err := run.AttachEnvironment(metadata); err != nil {
		test.Fatalf("AttachEnvironment: %v", err)
	}
	if _, err := run.Seal(); err != nil {
		test.Fatalf("Seal: %v", err)
	}
	runDocument, err := run.Document()
	if err != nil {
		test.Fatalf("Document: %v", err)
	}

	bundleDir = test.TempDir()
	if _, err := bundle.Create(bundleDir, bundle.CreateInput{
		InputManifest: input,
		Record:        runDocument,
		Output:        &output,
		Environment:   &envelope,
	}, time.Now()); err != nil {
		test.Fatalf("bundle.Create: %v", err)
	}
	return bundleDir, dataDir
}

func findingByCode(report Report, code string) (Finding, bool) {
	for _, finding := range report.Findings {
		if finding.Code == code {
			return finding, true
		}
	}
	return Finding{}, false
}

func TestScenarioPassThenTamper(test *testing.T) {
	bundleDir, dataDir := makeBundle(test)

	report := Bundle(bundleDir, Options{DataDir: dataDir})
	if report.Outcome != OutcomePass {
		test.Fatalf("outcome = %s, findings = %+v", report.Outcome, report.Findings)
	}
	if errs := report.Errors(); len(errs) != 0 {
		test.Fatalf("unexpected error findings: %+v", errs)
	}

	if err := os.WriteFile(filepath.Join(dataDir, "a.txt"), []byte("hI"), 0o600); err != nil {
		test.Fatalf("tamper: %v", err)
	}
	report = Bundle(bundleDir, Options{DataDir: dataDir})
	if report.Outcome != OutcomeFail {
		test.Fatalf("outcome after tamper = %s", report.Outcome)
	}
	finding, ok := findingByCode(report, CodeFileChanged)
	if !ok {
		test.Fatalf("no file_changed finding: %+v", report.Findings)
	}
	if finding.Path != "a.txt" {
		test.Fatalf("finding path = %q, want a.txt", finding.Path)
	}
	if finding.Expected == "" || finding.Actual == "" || finding.Expected == finding.Actual {
		test.Fatalf("expected/actual pair missing or equal: %+v", finding)
	}
}

func TestAbsenceIsInconclusiveCorruptionIsFail(test *testing.T) {
	bundleDir, _ := makeBundle(test)
	snapshotPath := filepath.Join(bundleDir, bundle.InputManifestFile)
	original, err := os.ReadFile(snapshotPath)
	if err != nil {
		test.Fatalf("read snapshot: %v", err)
	}

	if err := os.Remove(snapshotPath); err != nil {
		test.Fatalf("remove: %v", err)
	}
	report := Bundle(bundleDir, Options{})
	if report.Outcome != OutcomeInconclusive {
		test.Fatalf("missing manifest outcome = %s, want inconclusive", report.Outcome)
	}
	if _, ok := findingByCode(report, CodeNotFound); !ok {
		test.Fatalf("no not_found finding: %+v", report.Findings)
	}

	if err := os.WriteFile(snapshotPath, original[:len(original)/2], 0o600); err != nil {
		test.Fatalf("truncate: %v", err)
	}
	report = Bundle(bundleDir, Options{})
	if report.Outcome != OutcomeFail {
		test.Fatalf("truncated manifest outcome = %s, want fail", report.Outcome)
	}
	if _, ok := findingByCode(report, CodeSchemaError); !ok {
		test.Fatalf("no schema_error finding: %+v", report.Findings)
	}
}

func TestMissingDescriptorIsInconclusive(test *testing.T) {
	bundleDir, _ := makeBundle(test)
	if err := os.Remove(filepath.Join(bundleDir, bundle.DescriptorFile)); err != nil {
		test.Fatalf("remove: %v", err)
	}
	report := Bundle(bundleDir, Options{})
	if report.Outcome != OutcomeInconclusive {
		test.Fatalf("outcome = %s, want inconclusive", report.Outcome)
	}
}

func TestCompositionalPropagation(test *testing.T) {
	bundleDir, _ := makeBundle(test)

	// Hand-edit the record's input hash to a different valid hash and
	// re-seal it, then repair the descriptor so the record and the bundle
	// are each internally consistent. Only the cross-component check can
	// catch this.
	document, err := record.Load(filepath.Join(bundleDir, bundle.RecordFile))
	if err != nil {
		test.Fatalf("load record: %v", err)
	}
	edited := document
	edited.InputManifestHash = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"
	rehashed, err := record.RecomputeHash(edited)
	if err != nil {
		test.Fatalf("RecomputeHash: %v", err)
	}
	edited.RecordHash = rehashed
	encoded, err := record.EncodeDocument(edited)
	if err != nil {
		test.Fatalf("EncodeDocument: %v", err)
	}
	if err := fsx.WriteFileAtomic(filepath.Join(bundleDir, bundle.RecordFile), encoded, 0o600); err != nil {
		test.Fatalf("rewrite record: %v", err)
	}
	if report := Record(edited); report.Outcome != OutcomePass {
		test.Fatalf("edited record should re-verify alone: %+v", report.Findings)
	}

	descriptor, err := bundle.Load(bundleDir)
	if err != nil {
		test.Fatalf("load descriptor: %v", err)
	}
	for index, m := range descriptor.Members {
		if m.Role != "record" {
			continue
		}
		sum, _, err := manifest.HashFile(filepath.Join(bundleDir, m.File))
		if err != nil {
			test.Fatalf("HashFile: %v", err)
		}
		descriptor.Members[index].FileSHA256 = sum
		descriptor.Members[index].ContentHash = rehashed
	}
	descriptor.BundleHash, err = bundle.RecomputeHash(descriptor)
	if err != nil {
		test.Fatalf("RecomputeHash: %v", err)
	}
	descriptorBytes, err := bundle.EncodeDescriptor(descriptor)
	if err != nil {
		test.Fatalf("EncodeDescriptor: %v", err)
	}
	if err := fsx.WriteFileAtomic(filepath.Join(bundleDir, bundle.DescriptorFile), descriptorBytes, 0o600); err != nil {
		test.Fatalf("rewrite descriptor: %v", err)
	}

	report := Bundle(bundleDir, Options{})
	if report.Outcome != OutcomeFail {
		test.Fatalf("outcome = %s, want fail", report.Outcome)
	}
	finding, ok := findingByCode(report, CodeProvenanceInconsistency)
	if !ok {
		test.Fatalf("no provenance finding: %+v", report.Findings)
	}
	if finding.Step != StepProvenance {
		test.Fatalf("finding step = %q", finding.Step)
	}
}

func TestMemberSubstitutionCaughtByChecksums(test *testing.T) {
	bundleDir, _ := makeBundle(test)

	// A self-consistent replacement manifest passes load and seal checks
	// but cannot match the descriptor's recorded file checksum.
	otherDir := writeTree(test, map[string]string{"other.txt": "other"})
	replacement := manifestFromDir(test, otherDir)
	encoded, err := manifest.EncodeDocument(replacement)
	if err != nil {
		test.Fatalf("EncodeDocument: %v", err)
	}
	if err := fsx.WriteFileAtomic(filepath.Join(bundleDir, bundle.InputManifestFile), encoded, 0o600); err != nil {
		test.Fatalf("substitute member: %v", err)
	}

	report := Bundle(bundleDir, Options{})
	if report.Outcome != OutcomeFail {
		test.Fatalf("outcome = %s, want fail", report.Outcome)
	}
	var sawChecksum, sawProvenance bool
	for _, finding := range report.Findings {
		if finding.Step == StepBundle && finding.Code == CodeHashMismatch {
			sawChecksum = true
		}
		if finding.Code == CodeProvenanceInconsistency {
			sawProvenance = true
		}
	}
	if !sawChecksum || !sawProvenance {
		test.Fatalf("expected checksum and provenance findings, got %+v", report.Findings)
	}
}

func TestEnvironmentSidecarTamper(test *testing.T) {
	bundleDir, _ := makeBundle(test)
	sidecar := filepath.Join(bundleDir, envmeta.SidecarName("host"))
	payload, err := os.ReadFile(sidecar)
	if err != nil {
		test.Fatalf("read sidecar: %v", err)
	}
	envelope, err := envmeta.ParseEnvelope(payload)
	if err != nil {
		test.Fatalf("parse sidecar: %v", err)
	}
	envelope.Data["os"] = "plan9"
	if _, err := envmeta.WriteSidecar(bundleDir, envelope); err != nil {
		test.Fatalf("rewrite sidecar: %v", err)
	}

	report := Bundle(bundleDir, Options{})
	if report.Outcome != OutcomeFail {
		test.Fatalf("outcome = %s, want fail", report.Outcome)
	}
	finding, ok := findingByCode(report, CodeHashMismatch)
	if !ok || finding.Step != StepSeal {
		test.Fatalf("expected seal-step hash mismatch: %+v", report.Findings)
	}
}

func TestNoShortCircuitCollectsAllFindings(test *testing.T) {
	bundleDir, dataDir := makeBundle(test)
	if err := os.WriteFile(filepath.Join(dataDir, "a.txt"), []byte("XX"), 0o600); err != nil {
		test.Fatalf("tamper data: %v", err)
	}
	if err := os.Remove(filepath.Join(bundleDir, bundle.OutputManifestFile)); err != nil {
		test.Fatalf("remove output: %v", err)
	}

	report := Bundle(bundleDir, Options{DataDir: dataDir})
	if report.Outcome != OutcomeFail {
		test.Fatalf("outcome = %s, want fail", report.Outcome)
	}
	if _, ok := findingByCode(report, CodeNotFound); !ok {
		test.Fatalf("missing not_found finding: %+v", report.Findings)
	}
	if _, ok := findingByCode(report, CodeFileChanged); !ok {
		test.Fatalf("missing file_changed finding: %+v", report.Findings)
	}
	for index := 1; index < len(report.Findings); index++ {
		left, right := report.Findings[index-1], report.Findings[index]
		if stepRank[left.Step] > stepRank[right.Step] {
			test.Fatalf("findings out of step order: %+v", report.Findings)
		}
		if left.Step == right.Step && left.Path > right.Path {
			test.Fatalf("findings out of path order: %+v", report.Findings)
		}
	}
}

func TestExtraFilesAreWarnings(test *testing.T) {
	bundleDir, dataDir := makeBundle(test)
	if err := os.WriteFile(filepath.Join(dataDir, "extra.txt"), []byte("new"), 0o600); err != nil {
		test.Fatalf("add extra file: %v", err)
	}
	report := Bundle(bundleDir, Options{DataDir: dataDir})
	if report.Outcome != OutcomePass {
		test.Fatalf("outcome = %s, findings = %+v", report.Outcome, report.Findings)
	}
	finding, ok := findingByCode(report, CodeFileAdded)
	if !ok {
		test.Fatalf("no file_added finding: %+v", report.Findings)
	}
	if finding.Severity != SeverityWarning {
		test.Fatalf("file_added severity = %s, want warning", finding.Severity)
	}
}

func TestStandaloneManifestSeal(test *testing.T) {
	dir := writeTree(test, map[string]string{"f.txt": "data"})
	document := manifestFromDir(test, dir)
	if report := Manifest(document); report.Outcome != OutcomePass {
		test.Fatalf("intact manifest outcome = %s", report.Outcome)
	}

	document.Hashed.Entries[0].SHA256 = "1111111111111111111111111111111111111111111111111111111111111111"
	report := Manifest(document)
	if report.Outcome != OutcomeFail {
		test.Fatalf("edited manifest outcome = %s", report.Outcome)
	}
	if _, ok := findingByCode(report, CodeHashMismatch); !ok {
		test.Fatalf("no hash mismatch finding: %+v", report.Findings)
	}
}

func TestManifestAgainstDirEmptyDirIsFail(test *testing.T) {
	dir := writeTree(test, map[string]string{"f.txt": "data"})
	document := manifestFromDir(test, dir)
	empty := test.TempDir()
	report := ManifestAgainstDir(document, empty)
	if report.Outcome != OutcomeFail {
		test.Fatalf("outcome = %s, want fail", report.Outcome)
	}
	if _, ok := findingByCode(report, CodeFileRemoved); !ok {
		test.Fatalf("no file_removed finding: %+v", report.Findings)
	}
}

func TestManifestAgainstMissingDirIsInconclusive(test *testing.T) {
	dir := writeTree(test, map[string]string{"f.txt": "data"})
	document := manifestFromDir(test, dir)
	report := ManifestAgainstDir(document, filepath.Join(dir, "nope"))
	if report.Outcome != OutcomeInconclusive {
		test.Fatalf("outcome = %s, want inconclusive", report.Outcome)
	}
}

func TestEnvironmentsComparisonIsAdvisory(test *testing.T) {
	left := &schemarecord.EnvironmentMetadata{
		Plugin:          "host",
		FingerprintHash: "aa",
		Summary:         map[string]any{"os": "linux"},
	}
	right := &schemarecord.EnvironmentMetadata{
		Plugin:          "host",
		FingerprintHash: "bb",
		Summary:         map[string]any{"os": "darwin"},
	}
	report := Environments(left, right)
	if report.Outcome != OutcomePass {
		test.Fatalf("outcome = %s, drift must stay advisory", report.Outcome)
	}
	if len(report.Findings) == 0 {
		test.Fatal("expected drift warnings")
	}
	for _, finding := range report.Findings {
		if finding.Severity != SeverityWarning {
			test.Fatalf("non-warning drift finding: %+v", finding)
		}
	}
}
