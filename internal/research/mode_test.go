package research

import (
	"testing"

	"github.com/mohammad-safakhou/deepscout/config"
)

func envWith(vars map[string]string) func(string) string {
	return func(key string) string { return vars[key] }
}

func TestDecideModeDefaultsToLocal(t *testing.T) {
	cfg := config.SandboxConfig{Provider: "docker"}
	if mode := DecideMode(cfg, envWith(nil)); mode != ModeLocal {
		t.Fatalf("expected local, got %s", mode)
	}
}

func TestDecideModeRemoteOnConstrainedHost(t *testing.T) {
	cfg := config.SandboxConfig{Provider: "docker"}
	env := envWith(map[string]string{ConstrainedHostEnv: "1"})
	if mode := DecideMode(cfg, env); mode != ModeRemote {
		t.Fatalf("expected remote, got %s", mode)
	}
}

func TestDecideModeConstrainedWithoutProviderStaysLocal(t *testing.T) {
	env := envWith(map[string]string{ConstrainedHostEnv: "1"})
	for _, provider := range []string{"", "none"} {
		cfg := config.SandboxConfig{Provider: provider}
		if mode := DecideMode(cfg, env); mode != ModeLocal {
			t.Fatalf("provider %q: expected local, got %s", provider, mode)
		}
	}
}

func TestDecideModeForceRemoteOverride(t *testing.T) {
	cfg := config.SandboxConfig{Provider: "docker", ForceRemote: true}
	if mode := DecideMode(cfg, envWith(nil)); mode != ModeRemote {
		t.Fatalf("expected remote, got %s", mode)
	}
}
