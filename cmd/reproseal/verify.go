package main

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/reproseal/reproseal/core/verify"
)

type verifyOutput struct {
	OK       bool             `json:"ok"`
	Outcome  verify.Outcome   `json:"outcome,omitempty"`
	Findings []verify.Finding `json:"findings,omitempty"`
	Error    string           `json:"error,omitempty"`
}

func runVerify(arguments []string) int {
	if hasExplainFlag(arguments) {
		return writeExplain("Verify a sealed snapshot's own integrity and, when a data directory is given, compare it to the live files.")
	}
	arguments = reorderInterspersedFlags(arguments, map[string]bool{
		"snapshot": true,
		"dir":      true,
	})

	flagSet := flag.NewFlagSet("verify", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	var snapshotPath string
	var dataDir string
	var jsonOutput bool
	var helpFlag bool

	flagSet.StringVar(&snapshotPath, "snapshot", "", "path to sealed snapshot")
	flagSet.StringVar(&dataDir, "dir", "", "data directory to compare against (optional)")
	flagSet.BoolVar(&jsonOutput, "json", false, "emit JSON output")
	flagSet.BoolVar(&helpFlag, "help", false, "show help")

	if err := flagSet.Parse(arguments); err != nil {
		return writeVerifyOutput(jsonOutput, verifyOutput{OK: false, Error: err.Error()}, exitInvalidInput)
	}
	if helpFlag {
		fmt.Println("usage: reproseal verify --snapshot snapshot.json [--dir <path>] [--json]")
		return exitOK
	}
	if strings.TrimSpace(snapshotPath) == "" && flagSet.NArg() == 1 {
		snapshotPath = flagSet.Arg(0)
	}
	if strings.TrimSpace(snapshotPath) == "" {
		return writeVerifyOutput(jsonOutput, verifyOutput{OK: false, Error: "missing required --snapshot <snapshot.json>"}, exitInvalidInput)
	}

	report := verify.ManifestFile(snapshotPath, dataDir)
	return writeReport(jsonOutput, report)
}

func runVerifyRecord(arguments []string) int {
	if hasExplainFlag(arguments) {
		return writeExplain("Verify a sealed provenance record by recomputing its record hash.")
	}
	arguments = reorderInterspersedFlags(arguments, map[string]bool{"record": true})

	flagSet := flag.NewFlagSet("verify-record", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	var recordPath string
	var jsonOutput bool
	var helpFlag bool

	flagSet.StringVar(&recordPath, "record", "", "path to sealed record")
	flagSet.BoolVar(&jsonOutput, "json", false, "emit JSON output")
	flagSet.BoolVar(&helpFlag, "help", false, "show help")

	if err := flagSet.Parse(arguments); err != nil {
		return writeVerifyOutput(jsonOutput, verifyOutput{OK: false, Error: err.Error()}, exitInvalidInput)
	}
	if helpFlag {
		fmt.Println("usage: reproseal verify-record --record record.json [--json]")
		return exitOK
	}
	if strings.TrimSpace(recordPath) == "" && flagSet.NArg() == 1 {
		recordPath = flagSet.Arg(0)
	}
	if strings.TrimSpace(recordPath) == "" {
		return writeVerifyOutput(jsonOutput, verifyOutput{OK: false, Error: "missing required --record <record.json>"}, exitInvalidInput)
	}

	report := verify.RecordFile(recordPath)
	return writeReport(jsonOutput, report)
}

func runVerifyBundle(arguments []string) int {
	if hasExplainFlag(arguments) {
		return writeExplain("Verify a bundle directory: member integrity, seals, bundle coherence, provenance chain, and optional live data.")
	}
	arguments = reorderInterspersedFlags(arguments, map[string]bool{
		"bundle":   true,
		"data-dir": true,
	})

	flagSet := flag.NewFlagSet("verify-bundle", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	var bundleDir string
	var dataDir string
	var jsonOutput bool
	var helpFlag bool

	flagSet.StringVar(&bundleDir, "bundle", "", "path to bundle directory")
	flagSet.StringVar(&dataDir, "data-dir", "", "live data directory to compare against (optional)")
	flagSet.BoolVar(&jsonOutput, "json", false, "emit JSON output")
	flagSet.BoolVar(&helpFlag, "help", false, "show help")

	if err := flagSet.Parse(arguments); err != nil {
		return writeVerifyOutput(jsonOutput, verifyOutput{OK: false, Error: err.Error()}, exitInvalidInput)
	}
	if helpFlag {
		fmt.Println("usage: reproseal verify-bundle --bundle <dir> [--data-dir <path>] [--json]")
		return exitOK
	}
	if strings.TrimSpace(bundleDir) == "" && flagSet.NArg() == 1 {
		bundleDir = flagSet.Arg(0)
	}
	if strings.TrimSpace(bundleDir) == "" {
		return writeVerifyOutput(jsonOutput, verifyOutput{OK: false, Error: "missing required --bundle <dir>"}, exitInvalidInput)
	}

	report := verify.Bundle(bundleDir, verify.Options{DataDir: dataDir})
	return writeReport(jsonOutput, report)
}

func writeReport(jsonOutput bool, report verify.Report) int {
	exitCode := exitCodeForOutcome(report.Outcome)
	output := verifyOutput{
		OK:       report.Outcome == verify.OutcomePass,
		Outcome:  report.Outcome,
		Findings: report.Findings,
	}
	if !output.OK {
		output.Error = "verification outcome: " + string(report.Outcome)
	}
	return writeVerifyOutput(jsonOutput, output, exitCode)
}

func writeVerifyOutput(jsonOutput bool, output verifyOutput, exitCode int) int {
	if jsonOutput {
		return writeJSONOutput(output, exitCode)
	}
	if output.Outcome == "" {
		return writeTextError(fmt.Errorf("%s", output.Error), exitCode)
	}
	fmt.Println("outcome:", output.Outcome)
	for _, finding := range output.Findings {
		line := fmt.Sprintf("%s [%s/%s] %s", finding.Severity, finding.Step, finding.Code, finding.Message)
		if finding.Path != "" {
			line += " (" + finding.Path + ")"
		}
		if finding.Expected != "" || finding.Actual != "" {
			line += fmt.Sprintf(" expected=%s actual=%s", finding.Expected, finding.Actual)
		}
		fmt.Println(line)
	}
	return exitCode
}
