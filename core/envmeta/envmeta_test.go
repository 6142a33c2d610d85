package envmeta

import (
	"testing"
	"time"

	schemarecord "github.com/reproseal/reproseal/core/schema/v1/record"
)

func TestCaptureHostPlugin(test *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	metadata, envelope, err := Capture("host", now)
	if err != nil {
		test.Fatalf("Capture: %v", err)
	}
	if metadata.Plugin != "host" {
		test.Fatalf("plugin = %q, want host", metadata.Plugin)
	}
	if len(metadata.FingerprintHash) != 64 {
		test.Fatalf("fingerprint = %q, want 64 hex chars", metadata.FingerprintHash)
	}
	if envelope.SchemaID != EnvelopeSchemaID {
		test.Fatalf("schema id = %q", envelope.SchemaID)
	}
	if _, ok := envelope.Data["os"]; !ok {
		test.Fatalf("host capture missing os key: %v", envelope.Data)
	}
}

func TestCaptureUnknownPlugin(test *testing.T) {
	if _, _, err := Capture("nonexistent", time.Now()); err == nil {
		test.Fatal("expected error for unknown plugin")
	}
}

func TestFingerprintExcludesTimestamp(test *testing.T) {
	first, firstEnvelope, err := Capture("host", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		test.Fatalf("Capture: %v", err)
	}
	second, secondEnvelope, err := Capture("host", time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		test.Fatalf("Capture: %v", err)
	}
	if firstEnvelope.CapturedAt.Equal(secondEnvelope.CapturedAt) {
		test.Fatal("test expects distinct capture timestamps")
	}
	if first.FingerprintHash != second.FingerprintHash {
		test.Fatalf("fingerprint changed with timestamp: %s vs %s", first.FingerprintHash, second.FingerprintHash)
	}
}

func TestSidecarRoundTrip(test *testing.T) {
	dir := test.TempDir()
	metadata, envelope, err := Capture("host", time.Now())
	if err != nil {
		test.Fatalf("Capture: %v", err)
	}
	name, err := WriteSidecar(dir, envelope)
	if err != nil {
		test.Fatalf("WriteSidecar: %v", err)
	}
	if name != SidecarName("host") {
		test.Fatalf("sidecar name = %q", name)
	}
	loaded, err := LoadEnvelope(dir, name)
	if err != nil {
		test.Fatalf("LoadEnvelope: %v", err)
	}
	fingerprint, err := Fingerprint(loaded)
	if err != nil {
		test.Fatalf("Fingerprint: %v", err)
	}
	if fingerprint != metadata.FingerprintHash {
		test.Fatalf("reloaded fingerprint %s does not match captured %s", fingerprint, metadata.FingerprintHash)
	}
}

func TestParseEnvelopeRejectsWrongSchema(test *testing.T) {
	if _, err := ParseEnvelope([]byte(`{"schema_id":"other","captured_by":{"plugin":"host","plugin_version":"1"},"captured_at":"2026-01-01T00:00:00Z","data":{}}`)); err == nil {
		test.Fatal("expected schema id rejection")
	}
}

func TestCompareMetadata(test *testing.T) {
	left := &schemarecord.EnvironmentMetadata{
		Plugin:          "host",
		FingerprintHash: "aa",
		Summary:         map[string]any{"os": "linux"},
	}
	same := &schemarecord.EnvironmentMetadata{Plugin: "host", FingerprintHash: "aa"}
	if comparison := CompareMetadata(left, same); !comparison.Identical {
		test.Fatalf("same fingerprint should be identical: %+v", comparison)
	}
	other := &schemarecord.EnvironmentMetadata{
		Plugin:          "host",
		FingerprintHash: "bb",
		Summary:         map[string]any{"os": "darwin"},
	}
	comparison := CompareMetadata(left, other)
	if !comparison.Comparable || comparison.Identical {
		test.Fatalf("different fingerprints should compare as drifted: %+v", comparison)
	}
	if len(comparison.Differences) == 0 {
		test.Fatal("expected summary differences")
	}
	if comparison := CompareMetadata(left, nil); comparison.Comparable {
		test.Fatal("missing metadata should not be comparable")
	}
	foreign := &schemarecord.EnvironmentMetadata{Plugin: "container", FingerprintHash: "aa"}
	if comparison := CompareMetadata(left, foreign); comparison.Comparable {
		test.Fatal("different plugins should not be comparable")
	}
}

func TestCompareEnvelopes(test *testing.T) {
	base := Envelope{
		SchemaID:   EnvelopeSchemaID,
		CapturedBy: CapturedBy{Plugin: "host", PluginVersion: "1.0.0"},
		Data:       map[string]any{"os": "linux", "arch": "amd64"},
	}
	drifted := Envelope{
		SchemaID:   EnvelopeSchemaID,
		CapturedBy: CapturedBy{Plugin: "host", PluginVersion: "1.0.0"},
		Data:       map[string]any{"os": "linux", "arch": "arm64"},
	}
	comparison := CompareEnvelopes(base, drifted)
	if !comparison.Comparable || comparison.Identical {
		test.Fatalf("expected drift: %+v", comparison)
	}
	if len(comparison.Differences) != 1 {
		test.Fatalf("differences = %v", comparison.Differences)
	}
}
