// Package verify implements tri-valued verification over sealed manifests,
// records, and bundles. Every call terminates in exactly one of Pass,
// Fail, or Inconclusive: corruption of something readable is a falsified
// claim (Fail), absence of something required is an unevaluable claim
// (Inconclusive). All applicable steps run even after the outcome is
// decided, so the finding list is complete for diagnostics.
package verify

import "sort"

type Outcome string

const (
	OutcomePass         Outcome = "pass"
	OutcomeFail         Outcome = "fail"
	OutcomeInconclusive Outcome = "inconclusive"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Step names, in evaluation order.
const (
	StepLoad       = "load"
	StepSeal       = "seal"
	StepBundle     = "bundle"
	StepProvenance = "provenance"
	StepData       = "data"
)

// Finding codes.
const (
	CodeNotFound                = "not_found"
	CodePermissionDenied        = "permission_denied"
	CodeIOError                 = "io_error"
	CodeSchemaError             = "schema_error"
	CodeHashMismatch            = "hash_mismatch"
	CodeProvenanceInconsistency = "provenance_inconsistency"
	CodeMemberMissing           = "member_missing"
	CodeFileAdded               = "file_added"
	CodeFileRemoved             = "file_removed"
	CodeFileChanged             = "file_changed"
	CodeProfileUnknown          = "profile_unknown"
	CodeEnvironmentDrift        = "environment_drift"
)

// Finding is one observation made during verification. Expected and Actual
// are set for hash comparisons.
type Finding struct {
	Step     string   `json:"step"`
	Severity Severity `json:"severity"`
	Code     string   `json:"code"`
	Path     string   `json:"path,omitempty"`
	Message  string   `json:"message"`
	Expected string   `json:"expected,omitempty"`
	Actual   string   `json:"actual,omitempty"`
}

// Report is the terminal result of one verification call. Findings are in
// canonical order: by step, then by path, so concurrent evaluation never
// changes observable output.
type Report struct {
	Outcome  Outcome   `json:"outcome"`
	Findings []Finding `json:"findings"`
}

// Errors returns only the error-severity findings.
func (report Report) Errors() []Finding {
	var errs []Finding
	for _, finding := range report.Findings {
		if finding.Severity == SeverityError {
			errs = append(errs, finding)
		}
	}
	return errs
}

var stepRank = map[string]int{
	StepLoad:       0,
	StepSeal:       1,
	StepBundle:     2,
	StepProvenance: 3,
	StepData:       4,
}

// collector accumulates findings and tracks the two error classes that
// drive the reduction rule: violated claims and unevaluable claims.
type collector struct {
	findings       []Finding
	sawViolation   bool
	sawUnevaluable bool
}

// fail records an evaluable-but-violated claim.
func (c *collector) fail(finding Finding) {
	finding.Severity = SeverityError
	c.findings = append(c.findings, finding)
	c.sawViolation = true
}

// inconclusive records a claim that could not be evaluated at all.
func (c *collector) inconclusive(finding Finding) {
	finding.Severity = SeverityError
	c.findings = append(c.findings, finding)
	c.sawUnevaluable = true
}

// warn records an advisory finding that never affects the outcome.
func (c *collector) warn(finding Finding) {
	finding.Severity = SeverityWarning
	c.findings = append(c.findings, finding)
}

// report reduces the collected findings: Fail dominates Inconclusive
// dominates Pass.
func (c *collector) report() Report {
	sort.SliceStable(c.findings, func(i, j int) bool {
		left, right := c.findings[i], c.findings[j]
		if left.Step != right.Step {
			return stepRank[left.Step] < stepRank[right.Step]
		}
		return left.Path < right.Path
	})
	outcome := OutcomePass
	switch {
	case c.sawViolation:
		outcome = OutcomeFail
	case c.sawUnevaluable:
		outcome = OutcomeInconclusive
	}
	return Report{Outcome: outcome, Findings: c.findings}
}
