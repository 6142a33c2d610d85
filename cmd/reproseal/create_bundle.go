package main

import (
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/reproseal/reproseal/core/bundle"
	"github.com/reproseal/reproseal/core/envmeta"
	"github.com/reproseal/reproseal/core/manifest"
	"github.com/reproseal/reproseal/core/projectconfig"
	"github.com/reproseal/reproseal/core/record"
	schemamanifest "github.com/reproseal/reproseal/core/schema/v1/manifest"
)

type createBundleOutput struct {
	OK         bool     `json:"ok"`
	BundleID   string   `json:"bundle_id,omitempty"`
	BundleHash string   `json:"bundle_hash,omitempty"`
	Dir        string   `json:"dir,omitempty"`
	Warnings   []string `json:"warnings,omitempty"`
	Error      string   `json:"error,omitempty"`
}

func runCreateBundle(arguments []string) int {
	if hasExplainFlag(arguments) {
		return writeExplain("Assemble a sealed snapshot, record, and optional output snapshot into a bundle directory with a checksummed descriptor.")
	}
	arguments = reorderInterspersedFlags(arguments, map[string]bool{
		"input":   true,
		"record":  true,
		"output":  true,
		"out-dir": true,
		"profile": true,
		"config":  true,
	})

	flagSet := flag.NewFlagSet("create-bundle", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	var inputPath string
	var recordPath string
	var outputPath string
	var outDir string
	var profileID string
	var configPath string
	var jsonOutput bool
	var helpFlag bool

	flagSet.StringVar(&inputPath, "input", "", "path to sealed input snapshot")
	flagSet.StringVar(&recordPath, "record", "", "path to sealed provenance record")
	flagSet.StringVar(&outputPath, "output", "", "path to sealed output snapshot (optional)")
	flagSet.StringVar(&outDir, "out-dir", "", "bundle output directory")
	flagSet.StringVar(&profileID, "profile", "", "verification profile id")
	flagSet.StringVar(&configPath, "config", projectconfig.DefaultPath, "project config path")
	flagSet.BoolVar(&jsonOutput, "json", false, "emit JSON output")
	flagSet.BoolVar(&helpFlag, "help", false, "show help")

	if err := flagSet.Parse(arguments); err != nil {
		return writeCreateBundleOutput(jsonOutput, createBundleOutput{OK: false, Error: err.Error()}, exitInvalidInput)
	}
	if helpFlag {
		fmt.Println("usage: reproseal create-bundle --input snapshot.json --record record.json [--output output_snapshot.json] [--out-dir dir] [--profile id] [--json]")
		return exitOK
	}
	if strings.TrimSpace(inputPath) == "" || strings.TrimSpace(recordPath) == "" {
		return writeCreateBundleOutput(jsonOutput, createBundleOutput{OK: false, Error: "missing required --input and --record"}, exitInvalidInput)
	}

	configuration, err := projectconfig.Load(configPath, true)
	if err != nil {
		return writeCreateBundleOutput(jsonOutput, createBundleOutput{OK: false, Error: err.Error()}, exitInvalidInput)
	}
	if strings.TrimSpace(profileID) == "" {
		profileID = configuration.Bundle.Profile
	}

	input, err := manifest.Load(inputPath)
	if err != nil {
		return writeCreateBundleOutput(jsonOutput, createBundleOutput{OK: false, Error: err.Error()}, exitCodeForError(err, exitInvalidInput))
	}
	runDocument, err := record.Load(recordPath)
	if err != nil {
		return writeCreateBundleOutput(jsonOutput, createBundleOutput{OK: false, Error: err.Error()}, exitCodeForError(err, exitInvalidInput))
	}
	var output *schemamanifest.Document
	if strings.TrimSpace(outputPath) != "" {
		document, err := manifest.Load(outputPath)
		if err != nil {
			return writeCreateBundleOutput(jsonOutput, createBundleOutput{OK: false, Error: err.Error()}, exitCodeForError(err, exitInvalidInput))
		}
		output = &document
	}

	var warnings []string
	var envelope *envmeta.Envelope
	if metadata := runDocument.EnvironmentMetadata; metadata != nil && metadata.DataFile != "" {
		loaded, err := envmeta.LoadEnvelope(filepath.Dir(recordPath), metadata.DataFile)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("environment sidecar %s not bundled: %v", metadata.DataFile, err))
		} else {
			envelope = &loaded
		}
	}

	if strings.TrimSpace(outDir) == "" {
		outDir = configuration.Bundle.OutputDir
	}
	if strings.TrimSpace(outDir) == "" {
		outDir = "./reproseal-out/bundle"
	}
	descriptor, err := bundle.Create(outDir, bundle.CreateInput{
		InputManifest: input,
		Record:        runDocument,
		Output:        output,
		Environment:   envelope,
		ProfileID:     profileID,
	}, time.Now())
	if err != nil {
		return writeCreateBundleOutput(jsonOutput, createBundleOutput{OK: false, Error: err.Error()}, exitCodeForError(err, exitInternalFailure))
	}
	if err := bundle.VerifySelf(outDir); err != nil {
		return writeCreateBundleOutput(jsonOutput, createBundleOutput{OK: false, Error: fmt.Sprintf("bundle written but failed self-check: %v", err)}, exitInternalFailure)
	}

	return writeCreateBundleOutput(jsonOutput, createBundleOutput{
		OK:         true,
		BundleID:   descriptor.BundleID,
		BundleHash: descriptor.BundleHash,
		Dir:        outDir,
		Warnings:   warnings,
	}, exitOK)
}

func writeCreateBundleOutput(jsonOutput bool, output createBundleOutput, exitCode int) int {
	if jsonOutput {
		return writeJSONOutput(output, exitCode)
	}
	if !output.OK {
		return writeTextError(fmt.Errorf("%s", output.Error), exitCode)
	}
	fmt.Printf("created %s (%s) in %s\n", output.BundleID, output.BundleHash, output.Dir)
	for _, warning := range output.Warnings {
		fmt.Println("warning:", warning)
	}
	return exitCode
}
