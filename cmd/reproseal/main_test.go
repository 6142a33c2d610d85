package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func capture(test *testing.T, invoke func() int) (string, int) {
	test.Helper()
	original := os.Stdout
	reader, writer, err := os.Pipe()
	if err != nil {
		test.Fatalf("pipe: %v", err)
	}
	os.Stdout = writer
	exitCode := invoke()
	os.Stdout = original
	if err := writer.Close(); err != nil {
		test.Fatalf("close pipe: %v", err)
	}
	content, err := io.ReadAll(reader)
	if err != nil {
		test.Fatalf("read pipe: %v", err)
	}
	return string(content), exitCode
}

func writeFiles(test *testing.T, files map[string]string) string {
	test.Helper()
	dir := test.TempDir()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
			test.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

func decodeOutput(test *testing.T, payload string) map[string]any {
	test.Helper()
	result := map[string]any{}
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		test.Fatalf("decode output %q: %v", payload, err)
	}
	return result
}

func TestUnknownCommand(test *testing.T) {
	output, exitCode := capture(test, func() int {
		return run([]string{"reproseal", "transmogrify"})
	})
	if exitCode != exitInvalidInput {
		test.Fatalf("exit = %d, want %d", exitCode, exitInvalidInput)
	}
	if !strings.Contains(output, "usage: reproseal") {
		test.Fatalf("no usage in output: %q", output)
	}
}

func TestVersionCommand(test *testing.T) {
	output, exitCode := capture(test, func() int {
		return run([]string{"reproseal", "version"})
	})
	if exitCode != exitOK || !strings.Contains(output, "reproseal") {
		test.Fatalf("exit = %d, output = %q", exitCode, output)
	}
}

func TestSnapshotVerifyPipeline(test *testing.T) {
	dataDir := writeFiles(test, map[string]string{"a.txt": "hi", "b.txt": "yo"})
	snapshotPath := filepath.Join(test.TempDir(), "snapshot.json")

	output, exitCode := capture(test, func() int {
		return run([]string{"reproseal", "snapshot", "--dir", dataDir, "--out", snapshotPath, "--json"})
	})
	if exitCode != exitOK {
		test.Fatalf("snapshot exit = %d, output = %q", exitCode, output)
	}
	result := decodeOutput(test, output)
	if result["ok"] != true {
		test.Fatalf("snapshot not ok: %v", result)
	}
	if hash, _ := result["aggregate_hash"].(string); len(hash) != 64 {
		test.Fatalf("aggregate hash = %v", result["aggregate_hash"])
	}

	if _, exitCode := capture(test, func() int {
		return run([]string{"reproseal", "verify", "--snapshot", snapshotPath, "--dir", dataDir, "--json"})
	}); exitCode != exitOK {
		test.Fatalf("verify exit = %d", exitCode)
	}

	if err := os.WriteFile(filepath.Join(dataDir, "a.txt"), []byte("HI"), 0o600); err != nil {
		test.Fatalf("tamper: %v", err)
	}
	output, exitCode = capture(test, func() int {
		return run([]string{"reproseal", "verify", "--snapshot", snapshotPath, "--dir", dataDir, "--json"})
	})
	if exitCode != exitVerifyFailed {
		test.Fatalf("verify after tamper exit = %d, output = %q", exitCode, output)
	}
	if !strings.Contains(output, "a.txt") {
		test.Fatalf("tamper finding should cite a.txt: %q", output)
	}

	if err := os.Remove(snapshotPath); err != nil {
		test.Fatalf("remove snapshot: %v", err)
	}
	if _, exitCode := capture(test, func() int {
		return run([]string{"reproseal", "verify", "--snapshot", snapshotPath, "--json"})
	}); exitCode != exitInconclusive {
		test.Fatalf("verify missing snapshot exit = %d, want %d", exitCode, exitInconclusive)
	}
}

func TestRunBundleVerifyPipeline(test *testing.T) {
	dataDir := writeFiles(test, map[string]string{"input.txt": "payload"})
	outputDir := writeFiles(test, map[string]string{"result.txt": "done"})
	artifactDir := test.TempDir()
	snapshotPath := filepath.Join(artifactDir, "snapshot.json")

	if output, exitCode := capture(test, func() int {
		return run([]string{"reproseal", "snapshot", "--dir", dataDir, "--out", snapshotPath, "--json"})
	}); exitCode != exitOK {
		test.Fatalf("snapshot exit = %d, output = %q", exitCode, output)
	}

	output, exitCode := capture(test, func() int {
		return run([]string{
			"reproseal", "run",
			"--input", snapshotPath,
			"--output-dir", outputDir,
			"--out-dir", artifactDir,
			"--class", "deterministic",
			"--env-plugin", "host",
			"--json",
			"--", "sh", "-c", "exit 0",
		})
	})
	if exitCode != exitOK {
		test.Fatalf("run exit = %d, output = %q", exitCode, output)
	}
	result := decodeOutput(test, output)
	if result["ok"] != true {
		test.Fatalf("run not ok: %v", result)
	}
	recordPath, _ := result["record_path"].(string)
	if recordPath == "" {
		test.Fatalf("no record path in %v", result)
	}

	if _, exitCode := capture(test, func() int {
		return run([]string{"reproseal", "verify-record", "--record", recordPath, "--json"})
	}); exitCode != exitOK {
		test.Fatalf("verify-record exit = %d", exitCode)
	}

	bundleDir := filepath.Join(test.TempDir(), "bundle")
	output, exitCode = capture(test, func() int {
		return run([]string{
			"reproseal", "create-bundle",
			"--input", snapshotPath,
			"--record", recordPath,
			"--output", filepath.Join(artifactDir, "output_snapshot.json"),
			"--out-dir", bundleDir,
			"--json",
		})
	})
	if exitCode != exitOK {
		test.Fatalf("create-bundle exit = %d, output = %q", exitCode, output)
	}
	result = decodeOutput(test, output)
	if warnings, ok := result["warnings"]; ok {
		test.Fatalf("unexpected bundle warnings: %v", warnings)
	}

	output, exitCode = capture(test, func() int {
		return run([]string{"reproseal", "verify-bundle", "--bundle", bundleDir, "--data-dir", dataDir, "--json"})
	})
	if exitCode != exitOK {
		test.Fatalf("verify-bundle exit = %d, output = %q", exitCode, output)
	}
	result = decodeOutput(test, output)
	if result["outcome"] != "pass" {
		test.Fatalf("outcome = %v", result["outcome"])
	}

	if err := os.WriteFile(filepath.Join(dataDir, "input.txt"), []byte("tampered"), 0o600); err != nil {
		test.Fatalf("tamper: %v", err)
	}
	if _, exitCode := capture(test, func() int {
		return run([]string{"reproseal", "verify-bundle", "--bundle", bundleDir, "--data-dir", dataDir, "--json"})
	}); exitCode != exitVerifyFailed {
		test.Fatalf("verify-bundle after tamper exit = %d", exitCode)
	}
}

func TestCompareEnvironmentsCommand(test *testing.T) {
	dataDir := writeFiles(test, map[string]string{"x.txt": "x"})
	artifactDir := test.TempDir()
	otherDir := test.TempDir()
	snapshotPath := filepath.Join(artifactDir, "snapshot.json")

	if _, exitCode := capture(test, func() int {
		return run([]string{"reproseal", "snapshot", "--dir", dataDir, "--out", snapshotPath, "--json"})
	}); exitCode != exitOK {
		test.Fatal("snapshot failed")
	}
	for _, dir := range []string{artifactDir, otherDir} {
		if output, exitCode := capture(test, func() int {
			return run([]string{
				"reproseal", "run",
				"--input", snapshotPath,
				"--out-dir", dir,
				"--env-plugin", "host",
				"--json",
				"--", "sh", "-c", "exit 0",
			})
		}); exitCode != exitOK {
			test.Fatalf("run exit = %d, output = %q", exitCode, output)
		}
	}

	output, exitCode := capture(test, func() int {
		return run([]string{
			"reproseal", "compare-environments",
			"--left", filepath.Join(artifactDir, "record.json"),
			"--right", filepath.Join(otherDir, "record.json"),
			"--json",
		})
	})
	if exitCode != exitOK {
		test.Fatalf("compare exit = %d, output = %q", exitCode, output)
	}
	result := decodeOutput(test, output)
	if result["outcome"] != "pass" {
		test.Fatalf("outcome = %v", result["outcome"])
	}
}

func TestRunSurfacesOutputSnapshotWalkWarnings(test *testing.T) {
	if os.Geteuid() == 0 {
		test.Skip("permission denial does not apply to root")
	}
	dataDir := writeFiles(test, map[string]string{"x.txt": "x"})
	artifactDir := test.TempDir()
	snapshotPath := filepath.Join(artifactDir, "snapshot.json")

	if _, exitCode := capture(test, func() int {
		return run([]string{"reproseal", "snapshot", "--dir", dataDir, "--out", snapshotPath, "--json"})
	}); exitCode != exitOK {
		test.Fatal("snapshot failed")
	}

	outputDir := writeFiles(test, map[string]string{"kept.txt": "kept"})
	blocked := filepath.Join(outputDir, "blocked")
	if err := os.Mkdir(blocked, 0o700); err != nil {
		test.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(blocked, "hidden.txt"), []byte("hidden"), 0o600); err != nil {
		test.Fatalf("write hidden file: %v", err)
	}
	if err := os.Chmod(blocked, 0o000); err != nil {
		test.Fatalf("chmod: %v", err)
	}
	test.Cleanup(func() {
		_ = os.Chmod(blocked, 0o700)
	})

	output, exitCode := capture(test, func() int {
		return run([]string{
			"reproseal", "run",
			"--input", snapshotPath,
			"--output-dir", outputDir,
			"--out-dir", artifactDir,
			"--json",
			"--", "sh", "-c", "exit 0",
		})
	})
	if exitCode != exitOK {
		test.Fatalf("run exit = %d, output = %q", exitCode, output)
	}
	result := decodeOutput(test, output)
	if result["ok"] != true {
		test.Fatalf("run not ok: %q", output)
	}
	warnings, ok := result["warnings"].([]any)
	if !ok || len(warnings) == 0 {
		test.Fatalf("expected walk warnings in run output, got %q", output)
	}
	if !strings.Contains(fmt.Sprint(warnings[0]), "blocked") {
		test.Fatalf("warning should name the skipped path, got %v", warnings[0])
	}
}

func TestRunFailingCommandStillSealsRecord(test *testing.T) {
	dataDir := writeFiles(test, map[string]string{"x.txt": "x"})
	artifactDir := test.TempDir()
	snapshotPath := filepath.Join(artifactDir, "snapshot.json")

	if _, exitCode := capture(test, func() int {
		return run([]string{"reproseal", "snapshot", "--dir", dataDir, "--out", snapshotPath, "--json"})
	}); exitCode != exitOK {
		test.Fatal("snapshot failed")
	}

	output, exitCode := capture(test, func() int {
		return run([]string{
			"reproseal", "run",
			"--input", snapshotPath,
			"--out-dir", artifactDir,
			"--json",
			"--", "sh", "-c", "exit 7",
		})
	})
	if exitCode != exitOK {
		test.Fatalf("run exit = %d, output = %q", exitCode, output)
	}
	result := decodeOutput(test, output)
	if result["command_exit"] != float64(7) {
		test.Fatalf("command_exit = %v, want 7", result["command_exit"])
	}
}
