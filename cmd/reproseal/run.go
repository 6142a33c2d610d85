package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/reproseal/reproseal/core/bundle"
	"github.com/reproseal/reproseal/core/envmeta"
	"github.com/reproseal/reproseal/core/fsx"
	"github.com/reproseal/reproseal/core/manifest"
	"github.com/reproseal/reproseal/core/projectconfig"
	"github.com/reproseal/reproseal/core/record"
)

type runOutput struct {
	OK             bool     `json:"ok"`
	RunID          string   `json:"run_id,omitempty"`
	RecordHash     string   `json:"record_hash,omitempty"`
	RecordPath     string   `json:"record_path,omitempty"`
	OutputSnapshot string   `json:"output_snapshot,omitempty"`
	CommandExit    *int     `json:"command_exit,omitempty"`
	Warnings       []string `json:"warnings,omitempty"`
	Error          string   `json:"error,omitempty"`
}

func runRun(arguments []string) int {
	if hasExplainFlag(arguments) {
		return writeExplain("Execute a command against a sealed input snapshot and seal a provenance record of the run.")
	}
	flagArguments, command := splitCommandTail(arguments)
	flagArguments = reorderInterspersedFlags(flagArguments, map[string]bool{
		"input":      true,
		"output-dir": true,
		"out-dir":    true,
		"class":      true,
		"env-plugin": true,
		"config":     true,
	})

	flagSet := flag.NewFlagSet("run", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	var inputPath string
	var outputDir string
	var outDir string
	var class string
	var envPlugin string
	var configPath string
	var jsonOutput bool
	var helpFlag bool

	flagSet.StringVar(&inputPath, "input", "", "path to sealed input snapshot")
	flagSet.StringVar(&outputDir, "output-dir", "", "directory to snapshot after the run (optional)")
	flagSet.StringVar(&outDir, "out-dir", "./reproseal-out", "directory for generated artifacts")
	flagSet.StringVar(&class, "class", "", "reproducibility class: deterministic|stochastic|unknown")
	flagSet.StringVar(&envPlugin, "env-plugin", "", "environment plugin to capture (optional)")
	flagSet.StringVar(&configPath, "config", projectconfig.DefaultPath, "project config path")
	flagSet.BoolVar(&jsonOutput, "json", false, "emit JSON output")
	flagSet.BoolVar(&helpFlag, "help", false, "show help")

	if err := flagSet.Parse(flagArguments); err != nil {
		return writeRunOutput(jsonOutput, runOutput{OK: false, Error: err.Error()}, exitInvalidInput)
	}
	if helpFlag {
		fmt.Println("usage: reproseal run --input snapshot.json [--output-dir <path>] [--out-dir dir] [--class deterministic] [--env-plugin host] [--json] -- <command> [args]")
		return exitOK
	}
	if strings.TrimSpace(inputPath) == "" {
		return writeRunOutput(jsonOutput, runOutput{OK: false, Error: "missing required --input <snapshot.json>"}, exitInvalidInput)
	}
	if len(command) == 0 {
		return writeRunOutput(jsonOutput, runOutput{OK: false, Error: "missing command after --"}, exitInvalidInput)
	}

	configuration, err := projectconfig.Load(configPath, true)
	if err != nil {
		return writeRunOutput(jsonOutput, runOutput{OK: false, Error: err.Error()}, exitInvalidInput)
	}
	if strings.TrimSpace(class) == "" {
		class = configuration.Run.ReproducibilityClass
	}
	if strings.TrimSpace(envPlugin) == "" {
		envPlugin = configuration.Run.EnvironmentPlugin
	}

	input, err := manifest.Load(inputPath)
	if err != nil {
		return writeRunOutput(jsonOutput, runOutput{OK: false, Error: err.Error()}, exitCodeForError(err, exitInvalidInput))
	}

	run, err := record.New(input.AggregateHash, strings.Join(command, " "), class)
	if err != nil {
		return writeRunOutput(jsonOutput, runOutput{OK: false, Error: err.Error()}, exitInvalidInput)
	}

	var envelope *envmeta.Envelope
	if strings.TrimSpace(envPlugin) != "" {
		metadata, captured, err := envmeta.Capture(envPlugin, time.Now())
		if err != nil {
			return writeRunOutput(jsonOutput, runOutput{OK: false, Error: err.Error()}, exitInvalidInput)
		}
		metadata.DataFile = envmeta.SidecarName(envPlugin)
		if err := run.AttachEnvironment(metadata); err != nil {
			return writeRunOutput(jsonOutput, runOutput{OK: false, Error: err.Error()}, exitInternalFailure)
		}
		envelope = &captured
	}

	started := time.Now()
	commandExit, err := executeCommand(command)
	ended := time.Now()
	if err != nil {
		return writeRunOutput(jsonOutput, runOutput{OK: false, Error: err.Error()}, exitInternalFailure)
	}
	if err := run.SetTiming(started, ended); err != nil {
		return writeRunOutput(jsonOutput, runOutput{OK: false, Error: err.Error()}, exitInternalFailure)
	}
	if err := run.SetExitCode(commandExit); err != nil {
		return writeRunOutput(jsonOutput, runOutput{OK: false, Error: err.Error()}, exitInternalFailure)
	}

	output := runOutput{CommandExit: &commandExit}
	if err := os.MkdirAll(outDir, 0o750); err != nil {
		output.Error = fmt.Sprintf("create artifact directory: %v", err)
		return writeRunOutput(jsonOutput, output, exitInternalFailure)
	}
	if strings.TrimSpace(outputDir) != "" {
		snapshotPath, aggregateHash, issues, err := snapshotOutputDir(outputDir, input.Hashed.SourceKind, outDir)
		if err != nil {
			output.Error = err.Error()
			return writeRunOutput(jsonOutput, output, exitCodeForError(err, exitInternalFailure))
		}
		for _, issue := range issues {
			output.Warnings = append(output.Warnings, fmt.Sprintf("skipped %s: %v", issue.Path, issue.Err))
		}
		if err := run.BindOutput(aggregateHash); err != nil {
			output.Error = err.Error()
			return writeRunOutput(jsonOutput, output, exitInternalFailure)
		}
		output.OutputSnapshot = snapshotPath
	}

	if _, err := run.Seal(); err != nil {
		output.Error = err.Error()
		return writeRunOutput(jsonOutput, output, exitInternalFailure)
	}
	document, err := run.Document()
	if err != nil {
		output.Error = err.Error()
		return writeRunOutput(jsonOutput, output, exitInternalFailure)
	}
	encoded, err := record.EncodeDocument(document)
	if err != nil {
		output.Error = err.Error()
		return writeRunOutput(jsonOutput, output, exitInternalFailure)
	}
	recordPath := filepath.Join(outDir, bundle.RecordFile)
	if err := fsx.WriteFileAtomic(recordPath, encoded, 0o600); err != nil {
		output.Error = err.Error()
		return writeRunOutput(jsonOutput, output, exitInternalFailure)
	}
	if envelope != nil {
		if _, err := envmeta.WriteSidecar(outDir, *envelope); err != nil {
			output.Error = err.Error()
			return writeRunOutput(jsonOutput, output, exitInternalFailure)
		}
	}

	output.OK = true
	output.RunID = document.RunID
	output.RecordHash = document.RecordHash
	output.RecordPath = recordPath
	return writeRunOutput(jsonOutput, output, exitOK)
}

// executeCommand runs the captured command with inherited streams. A
// non-zero command exit is data for the record, not a CLI failure.
func executeCommand(command []string) (int, error) {
	// #nosec G204 -- running the user's own command is the point of this subcommand.
	cmd := exec.Command(command[0], command[1:]...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin
	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return 0, fmt.Errorf("execute command: %w", err)
}

func snapshotOutputDir(outputDir, sourceKind, outDir string) (string, string, []manifest.WalkIssue, error) {
	builder, issues, err := manifest.Build(outputDir, sourceKind)
	if err != nil {
		return "", "", nil, fmt.Errorf("snapshot output directory: %w", err)
	}
	sealed, err := builder.Finalize()
	if err != nil {
		return "", "", nil, fmt.Errorf("seal output snapshot: %w", err)
	}
	encoded, err := manifest.EncodeDocument(sealed.Document())
	if err != nil {
		return "", "", nil, err
	}
	snapshotPath := filepath.Join(outDir, bundle.OutputManifestFile)
	if err := fsx.WriteFileAtomic(snapshotPath, encoded, 0o600); err != nil {
		return "", "", nil, err
	}
	return snapshotPath, sealed.AggregateHash(), issues, nil
}

func writeRunOutput(jsonOutput bool, output runOutput, exitCode int) int {
	if jsonOutput {
		return writeJSONOutput(output, exitCode)
	}
	if !output.OK {
		return writeTextError(fmt.Errorf("%s", output.Error), exitCode)
	}
	fmt.Printf("sealed record %s (%s) at %s\n", output.RunID, output.RecordHash, output.RecordPath)
	if output.OutputSnapshot != "" {
		fmt.Println("output snapshot:", output.OutputSnapshot)
	}
	for _, warning := range output.Warnings {
		fmt.Println("warning:", warning)
	}
	return exitCode
}
