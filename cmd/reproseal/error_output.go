package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	coreerrors "github.com/reproseal/reproseal/core/errors"
	"github.com/reproseal/reproseal/core/verify"
)

// writeJSONOutput prints the output as a single JSON object, filling the
// error envelope fields (error_code, error_category, hint) when the output
// carries an error and the command did not set them itself.
func writeJSONOutput(output any, exitCode int) int {
	encoded, err := marshalWithErrorEnvelope(output, exitCode)
	if err != nil {
		fmt.Println(`{"ok":false,"error":"failed to encode output","error_code":"encode_failed","error_category":"internal_failure"}`)
		return exitInternalFailure
	}
	fmt.Println(string(encoded))
	return exitCode
}

func marshalWithErrorEnvelope(output any, exitCode int) ([]byte, error) {
	encoded, err := json.Marshal(output)
	if err != nil {
		return nil, err
	}
	result := map[string]any{}
	if err := json.Unmarshal(encoded, &result); err != nil {
		return nil, err
	}
	errorText, _ := result["error"].(string)
	if strings.TrimSpace(errorText) == "" {
		return json.Marshal(result)
	}
	if text, _ := result["error_code"].(string); strings.TrimSpace(text) == "" {
		result["error_code"] = defaultErrorCode(exitCode)
	}
	if text, _ := result["error_category"].(string); strings.TrimSpace(text) == "" {
		result["error_category"] = string(defaultErrorCategory(exitCode))
	}
	if text, _ := result["hint"].(string); strings.TrimSpace(text) == "" {
		result["hint"] = defaultHint(exitCode)
	}
	return json.Marshal(result)
}

// writeTextError is the non-JSON error path.
func writeTextError(err error, exitCode int) int {
	fmt.Fprintln(os.Stderr, "reproseal:", err)
	if hint := coreerrors.HintOf(err); hint != "" {
		fmt.Fprintln(os.Stderr, "hint:", hint)
	}
	return exitCode
}

func exitCodeForError(err error, fallbackExit int) int {
	if err == nil {
		return exitOK
	}
	switch coreerrors.CategoryOf(err) {
	case coreerrors.CategoryInvalidInput, coreerrors.CategoryLifecycle:
		return exitInvalidInput
	case coreerrors.CategoryVerification:
		return exitVerifyFailed
	case coreerrors.CategoryInconclusive:
		return exitInconclusive
	case coreerrors.CategoryIOFailure, coreerrors.CategoryInternalFailure:
		return exitInternalFailure
	}
	return fallbackExit
}

// exitCodeForOutcome maps the tri-valued verification result onto process
// exit codes so automation can branch without parsing output.
func exitCodeForOutcome(outcome verify.Outcome) int {
	switch outcome {
	case verify.OutcomePass:
		return exitOK
	case verify.OutcomeInconclusive:
		return exitInconclusive
	default:
		return exitVerifyFailed
	}
}

func defaultErrorCategory(exitCode int) coreerrors.Category {
	switch exitCode {
	case exitInvalidInput:
		return coreerrors.CategoryInvalidInput
	case exitVerifyFailed:
		return coreerrors.CategoryVerification
	case exitInconclusive:
		return coreerrors.CategoryInconclusive
	default:
		return coreerrors.CategoryInternalFailure
	}
}

func defaultErrorCode(exitCode int) string {
	switch exitCode {
	case exitInvalidInput:
		return "invalid_input"
	case exitVerifyFailed:
		return "verification_failed"
	case exitInconclusive:
		return "verification_inconclusive"
	default:
		return "internal_failure"
	}
}

func defaultHint(exitCode int) string {
	switch exitCode {
	case exitInvalidInput:
		return "check command usage and input schema"
	case exitVerifyFailed:
		return "inspect findings for the failing paths and hashes"
	case exitInconclusive:
		return "restore the missing or unreadable artifacts and re-verify"
	default:
		return "retry after checking local environment and logs"
	}
}
