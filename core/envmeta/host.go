package envmeta

import "runtime"

// hostPlugin is the built-in capture: operating system, architecture, and
// runtime version. It reads only process-local constants, so captures are
// deterministic for a fixed toolchain and machine.
type hostPlugin struct{}

func (hostPlugin) Name() string    { return "host" }
func (hostPlugin) Version() string { return "1.0.0" }

func (hostPlugin) Capture() (map[string]any, error) {
	return map[string]any{
		"os":              runtime.GOOS,
		"arch":            runtime.GOARCH,
		"runtime":         "go",
		"runtime_version": runtime.Version(),
		"cpu_count":       runtime.NumCPU(),
	}, nil
}

func init() {
	Register(hostPlugin{})
}
