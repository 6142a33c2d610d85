// Package envmeta captures opaque environment metadata through plugins.
// Plugins never influence verification outcomes: the core folds only the
// metadata's fingerprint hash into a record's seal and treats the payload
// as an uninterpreted blob. A plugin must be deterministic for a fixed
// environment, must not execute arbitrary code, and must not mutate the
// environment it describes.
package envmeta

import (
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/reproseal/reproseal/core/canon"
	"github.com/reproseal/reproseal/core/fsx"
	schemarecord "github.com/reproseal/reproseal/core/schema/v1/record"
)

const EnvelopeSchemaID = "reproseal.env.v1"

// Envelope is the full plugin output written as a bundle sidecar file.
// CapturedAt is excluded from the fingerprint so the same environment
// always yields the same hash.
type Envelope struct {
	SchemaID   string         `json:"schema_id"`
	CapturedBy CapturedBy     `json:"captured_by"`
	CapturedAt time.Time      `json:"captured_at"`
	Data       map[string]any `json:"data"`
}

type CapturedBy struct {
	Plugin        string `json:"plugin"`
	PluginVersion string `json:"plugin_version"`
}

// Plugin captures metadata about the current environment.
type Plugin interface {
	Name() string
	Version() string
	// Capture returns canonically encodable, deterministic data.
	Capture() (map[string]any, error)
}

var registry = map[string]Plugin{}

func Register(plugin Plugin) {
	registry[plugin.Name()] = plugin
}

func Lookup(name string) (Plugin, bool) {
	plugin, ok := registry[name]
	return plugin, ok
}

func PluginNames() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Fingerprint hashes the stable portion of an envelope: schema id, plugin
// identity, and data. The capture timestamp stays outside the hash.
func Fingerprint(envelope Envelope) (string, error) {
	return canon.Digest(map[string]any{
		"schema_id":   envelope.SchemaID,
		"captured_by": envelope.CapturedBy,
		"data":        envelope.Data,
	})
}

// Capture runs one registered plugin and produces record metadata plus the
// full envelope for the bundle sidecar.
func Capture(pluginName string, now time.Time) (schemarecord.EnvironmentMetadata, Envelope, error) {
	plugin, ok := Lookup(pluginName)
	if !ok {
		return schemarecord.EnvironmentMetadata{}, Envelope{}, fmt.Errorf("unknown environment plugin: %s (available: %v)", pluginName, PluginNames())
	}
	data, err := plugin.Capture()
	if err != nil {
		return schemarecord.EnvironmentMetadata{}, Envelope{}, fmt.Errorf("capture environment via %s: %w", pluginName, err)
	}
	envelope := Envelope{
		SchemaID: EnvelopeSchemaID,
		CapturedBy: CapturedBy{
			Plugin:        plugin.Name(),
			PluginVersion: plugin.Version(),
		},
		CapturedAt: now.UTC(),
		Data:       data,
	}
	fingerprint, err := Fingerprint(envelope)
	if err != nil {
		return schemarecord.EnvironmentMetadata{}, Envelope{}, fmt.Errorf("fingerprint environment: %w", err)
	}
	metadata := schemarecord.EnvironmentMetadata{
		SchemaID:        EnvelopeSchemaID,
		Plugin:          plugin.Name(),
		PluginVersion:   plugin.Version(),
		FingerprintHash: fingerprint,
		Summary:         summarize(data),
	}
	return metadata, envelope, nil
}

// SidecarName is the conventional envelope file name inside a bundle.
func SidecarName(pluginName string) string {
	return "environment_" + pluginName + ".json"
}

// WriteSidecar writes the full envelope next to a record or bundle and
// returns the file name recorded in the metadata.
func WriteSidecar(dir string, envelope Envelope) (string, error) {
	name := SidecarName(envelope.CapturedBy.Plugin)
	encoded, err := canon.Encode(envelope)
	if err != nil {
		return "", fmt.Errorf("encode environment envelope: %w", err)
	}
	if err := fsx.WriteFileAtomic(filepath.Join(dir, name), append(encoded, '\n'), 0o600); err != nil {
		return "", fmt.Errorf("write environment envelope: %w", err)
	}
	return name, nil
}

// summarize keeps a small, human-oriented view of the capture. It is
// informational only and never hashed.
func summarize(data map[string]any) map[string]any {
	summary := make(map[string]any, 3)
	for _, key := range []string{"os", "arch", "runtime_version"} {
		if value, ok := data[key]; ok {
			summary[key] = value
		}
	}
	if len(summary) == 0 {
		summary["captured"] = true
	}
	return summary
}
