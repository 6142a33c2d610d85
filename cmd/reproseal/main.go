package main

import (
	"fmt"
	"os"
)

// version is stamped at release time via ldflags; default stays dev for local builds.
var version = "0.0.0-dev"

const (
	exitOK              = 0
	exitVerifyFailed    = 1
	exitInvalidInput    = 2
	exitInconclusive    = 3
	exitInternalFailure = 4
)

func main() {
	os.Exit(run(os.Args))
}

func run(arguments []string) int {
	if len(arguments) < 2 {
		fmt.Println("reproseal", version)
		return exitOK
	}
	if arguments[1] == "--explain" {
		return writeExplain("Reproseal is an offline CLI for sealed content snapshots, tamper-evident run records, and tri-valued bundle verification.")
	}

	switch arguments[1] {
	case "snapshot":
		return runSnapshot(arguments[2:])
	case "run":
		return runRun(arguments[2:])
	case "create-bundle":
		return runCreateBundle(arguments[2:])
	case "verify":
		return runVerify(arguments[2:])
	case "verify-record":
		return runVerifyRecord(arguments[2:])
	case "verify-bundle":
		return runVerifyBundle(arguments[2:])
	case "compare-environments":
		return runCompareEnvironments(arguments[2:])
	case "version", "--version", "-v":
		if hasExplainFlag(arguments[2:]) {
			return writeExplain("Print the CLI version.")
		}
		fmt.Println("reproseal", version)
		return exitOK
	default:
		printUsage()
		return exitInvalidInput
	}
}

func printUsage() {
	fmt.Println(`usage: reproseal <command> [flags]

commands:
  snapshot              build and seal a content manifest over a directory
  run                   execute a command and seal a provenance record
  create-bundle         assemble sealed artifacts into a bundle directory
  verify                verify a sealed snapshot, optionally against live data
  verify-record         verify a sealed provenance record
  verify-bundle         verify a bundle directory end to end
  compare-environments  diff the environment metadata of two records
  version               print the CLI version

run 'reproseal <command> --help' for command flags.`)
}
