package main

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/reproseal/reproseal/core/record"
	"github.com/reproseal/reproseal/core/verify"
)

func runCompareEnvironments(arguments []string) int {
	if hasExplainFlag(arguments) {
		return writeExplain("Compare the environment metadata of two sealed records. Drift is advisory and never fails verification.")
	}
	arguments = reorderInterspersedFlags(arguments, map[string]bool{
		"left":  true,
		"right": true,
	})

	flagSet := flag.NewFlagSet("compare-environments", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	var leftPath string
	var rightPath string
	var jsonOutput bool
	var helpFlag bool

	flagSet.StringVar(&leftPath, "left", "", "path to first sealed record")
	flagSet.StringVar(&rightPath, "right", "", "path to second sealed record")
	flagSet.BoolVar(&jsonOutput, "json", false, "emit JSON output")
	flagSet.BoolVar(&helpFlag, "help", false, "show help")

	if err := flagSet.Parse(arguments); err != nil {
		return writeVerifyOutput(jsonOutput, verifyOutput{OK: false, Error: err.Error()}, exitInvalidInput)
	}
	if helpFlag {
		fmt.Println("usage: reproseal compare-environments --left record.json --right record.json [--json]")
		return exitOK
	}
	if strings.TrimSpace(leftPath) == "" || strings.TrimSpace(rightPath) == "" {
		return writeVerifyOutput(jsonOutput, verifyOutput{OK: false, Error: "missing required --left and --right record paths"}, exitInvalidInput)
	}

	left, err := record.Load(leftPath)
	if err != nil {
		return writeVerifyOutput(jsonOutput, verifyOutput{OK: false, Error: err.Error()}, exitCodeForError(err, exitInvalidInput))
	}
	right, err := record.Load(rightPath)
	if err != nil {
		return writeVerifyOutput(jsonOutput, verifyOutput{OK: false, Error: err.Error()}, exitCodeForError(err, exitInvalidInput))
	}

	report := verify.Environments(left.EnvironmentMetadata, right.EnvironmentMetadata)
	output := verifyOutput{OK: true, Outcome: report.Outcome, Findings: report.Findings}
	return writeVerifyOutput(jsonOutput, output, exitOK)
}
