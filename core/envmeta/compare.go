package envmeta

import (
	"fmt"
	"sort"

	schemarecord "github.com/reproseal/reproseal/core/schema/v1/record"
)

// Comparison reports how two environment captures relate. Differences are
// advisory: environment drift never changes a verification outcome.
type Comparison struct {
	Comparable  bool     `json:"comparable"`
	Identical   bool     `json:"identical"`
	Reason      string   `json:"reason,omitempty"`
	Differences []string `json:"differences,omitempty"`
}

// CompareMetadata compares two record-level metadata blocks by fingerprint.
func CompareMetadata(left, right *schemarecord.EnvironmentMetadata) Comparison {
	switch {
	case left == nil && right == nil:
		return Comparison{Comparable: false, Reason: "neither record carries environment metadata"}
	case left == nil || right == nil:
		return Comparison{Comparable: false, Reason: "only one record carries environment metadata"}
	case left.Plugin != right.Plugin:
		return Comparison{
			Comparable: false,
			Reason:     fmt.Sprintf("captured by different plugins: %s vs %s", left.Plugin, right.Plugin),
		}
	case left.FingerprintHash == right.FingerprintHash:
		return Comparison{Comparable: true, Identical: true}
	}
	return Comparison{
		Comparable:  true,
		Identical:   false,
		Differences: summaryDifferences(left.Summary, right.Summary),
	}
}

// CompareEnvelopes diffs two full sidecar envelopes field by field.
func CompareEnvelopes(left, right Envelope) Comparison {
	if left.CapturedBy.Plugin != right.CapturedBy.Plugin {
		return Comparison{
			Comparable: false,
			Reason:     fmt.Sprintf("captured by different plugins: %s vs %s", left.CapturedBy.Plugin, right.CapturedBy.Plugin),
		}
	}
	differences := summaryDifferences(left.Data, right.Data)
	if left.CapturedBy.PluginVersion != right.CapturedBy.PluginVersion {
		differences = append(differences, fmt.Sprintf("plugin_version: %q vs %q", left.CapturedBy.PluginVersion, right.CapturedBy.PluginVersion))
	}
	sort.Strings(differences)
	return Comparison{
		Comparable:  true,
		Identical:   len(differences) == 0,
		Differences: differences,
	}
}

func summaryDifferences(left, right map[string]any) []string {
	keys := map[string]struct{}{}
	for key := range left {
		keys[key] = struct{}{}
	}
	for key := range right {
		keys[key] = struct{}{}
	}
	var differences []string
	for key := range keys {
		leftValue, leftOK := left[key]
		rightValue, rightOK := right[key]
		switch {
		case !leftOK:
			differences = append(differences, fmt.Sprintf("%s: absent vs %v", key, rightValue))
		case !rightOK:
			differences = append(differences, fmt.Sprintf("%s: %v vs absent", key, leftValue))
		case fmt.Sprintf("%v", leftValue) != fmt.Sprintf("%v", rightValue):
			differences = append(differences, fmt.Sprintf("%s: %v vs %v", key, leftValue, rightValue))
		}
	}
	sort.Strings(differences)
	return differences
}
