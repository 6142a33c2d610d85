package main

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/reproseal/reproseal/core/fsx"
	"github.com/reproseal/reproseal/core/manifest"
	"github.com/reproseal/reproseal/core/projectconfig"
	schemamanifest "github.com/reproseal/reproseal/core/schema/v1/manifest"
)

type snapshotOutput struct {
	OK            bool     `json:"ok"`
	Path          string   `json:"path,omitempty"`
	AggregateHash string   `json:"aggregate_hash,omitempty"`
	Files         int      `json:"files,omitempty"`
	Warnings      []string `json:"warnings,omitempty"`
	Error         string   `json:"error,omitempty"`
}

func runSnapshot(arguments []string) int {
	if hasExplainFlag(arguments) {
		return writeExplain("Build a content manifest over a directory tree, seal it, and write it as a snapshot file.")
	}
	arguments = reorderInterspersedFlags(arguments, map[string]bool{
		"dir":         true,
		"out":         true,
		"source-kind": true,
		"config":      true,
		"annotate":    true,
	})

	flagSet := flag.NewFlagSet("snapshot", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	var dir string
	var outPath string
	var sourceKind string
	var configPath string
	var annotations annotationFlags
	var jsonOutput bool
	var helpFlag bool

	flagSet.StringVar(&dir, "dir", "", "directory to snapshot")
	flagSet.StringVar(&outPath, "out", "", "snapshot output file (default ./snapshot.json)")
	flagSet.StringVar(&sourceKind, "source-kind", "", "source kind: posix|container|drive")
	flagSet.StringVar(&configPath, "config", projectconfig.DefaultPath, "project config path")
	flagSet.Var(&annotations, "annotate", "unhashed key=value annotation (repeatable)")
	flagSet.BoolVar(&jsonOutput, "json", false, "emit JSON output")
	flagSet.BoolVar(&helpFlag, "help", false, "show help")

	if err := flagSet.Parse(arguments); err != nil {
		return writeSnapshotOutput(jsonOutput, snapshotOutput{OK: false, Error: err.Error()}, exitInvalidInput)
	}
	if helpFlag {
		fmt.Println("usage: reproseal snapshot --dir <path> [--out snapshot.json] [--source-kind posix] [--annotate key=value] [--json]")
		return exitOK
	}
	if strings.TrimSpace(dir) == "" && flagSet.NArg() == 1 {
		dir = flagSet.Arg(0)
	} else if flagSet.NArg() > 0 {
		return writeSnapshotOutput(jsonOutput, snapshotOutput{OK: false, Error: "unexpected positional arguments"}, exitInvalidInput)
	}
	if strings.TrimSpace(dir) == "" {
		return writeSnapshotOutput(jsonOutput, snapshotOutput{OK: false, Error: "missing required --dir <path>"}, exitInvalidInput)
	}

	configuration, err := projectconfig.Load(configPath, true)
	if err != nil {
		return writeSnapshotOutput(jsonOutput, snapshotOutput{OK: false, Error: err.Error()}, exitInvalidInput)
	}
	if strings.TrimSpace(sourceKind) == "" {
		sourceKind = configuration.Snapshot.SourceKind
	}
	if strings.TrimSpace(sourceKind) == "" {
		sourceKind = schemamanifest.SourcePosix
	}
	if strings.TrimSpace(outPath) == "" {
		outPath = configuration.Snapshot.OutputPath
	}
	if strings.TrimSpace(outPath) == "" {
		outPath = "./snapshot.json"
	}

	builder, issues, err := manifest.Build(dir, sourceKind)
	if err != nil {
		return writeSnapshotOutput(jsonOutput, snapshotOutput{OK: false, Error: err.Error()}, exitCodeForError(err, exitInternalFailure))
	}
	sealed, err := builder.Finalize()
	if err != nil {
		return writeSnapshotOutput(jsonOutput, snapshotOutput{OK: false, Error: err.Error()}, exitCodeForError(err, exitInvalidInput))
	}
	for _, annotation := range annotations {
		key, value, _ := strings.Cut(annotation, "=")
		if err := sealed.Annotate(key, value); err != nil {
			return writeSnapshotOutput(jsonOutput, snapshotOutput{OK: false, Error: err.Error()}, exitInvalidInput)
		}
	}

	encoded, err := manifest.EncodeDocument(sealed.Document())
	if err != nil {
		return writeSnapshotOutput(jsonOutput, snapshotOutput{OK: false, Error: err.Error()}, exitInternalFailure)
	}
	if err := fsx.WriteFileAtomic(outPath, encoded, 0o600); err != nil {
		return writeSnapshotOutput(jsonOutput, snapshotOutput{OK: false, Error: err.Error()}, exitInternalFailure)
	}

	output := snapshotOutput{
		OK:            true,
		Path:          outPath,
		AggregateHash: sealed.AggregateHash(),
		Files:         len(sealed.Entries()),
	}
	for _, issue := range issues {
		output.Warnings = append(output.Warnings, fmt.Sprintf("skipped %s: %v", issue.Path, issue.Err))
	}
	return writeSnapshotOutput(jsonOutput, output, exitOK)
}

func writeSnapshotOutput(jsonOutput bool, output snapshotOutput, exitCode int) int {
	if jsonOutput {
		return writeJSONOutput(output, exitCode)
	}
	if !output.OK {
		return writeTextError(fmt.Errorf("%s", output.Error), exitCode)
	}
	fmt.Printf("sealed %d files into %s (aggregate %s)\n", output.Files, output.Path, output.AggregateHash)
	for _, warning := range output.Warnings {
		fmt.Println("warning:", warning)
	}
	return exitCode
}

// annotationFlags collects repeated --annotate values.
type annotationFlags []string

func (flags *annotationFlags) String() string { return strings.Join(*flags, ",") }

func (flags *annotationFlags) Set(value string) error {
	if !strings.Contains(value, "=") {
		return fmt.Errorf("annotation must be key=value, got %q", value)
	}
	*flags = append(*flags, value)
	return nil
}
