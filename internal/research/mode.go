package research

import "github.com/mohammad-safakhou/deepscout/config"

// Mode selects where a research session executes
type Mode string

const (
	ModeLocal  Mode = "local"
	ModeRemote Mode = "remote"
)

// ConstrainedHostEnv marks a host that cannot spawn the subprocess-based
// agent runtime, forcing delegation to an isolated sandbox.
const ConstrainedHostEnv = "DEEPSCOUT_NO_SUBPROCESS"

// DecideMode picks the execution mode from configuration and process
// environment. Remote is chosen only when the host is constrained (or the
// override is set) and a sandbox provider is configured; local otherwise.
func DecideMode(cfg config.SandboxConfig, getenv func(string) string) Mode {
	constrained := cfg.ForceRemote || getenv(ConstrainedHostEnv) != ""
	if !constrained {
		return ModeLocal
	}
	if cfg.Provider == "" || cfg.Provider == "none" {
		return ModeLocal
	}
	return ModeRemote
}
