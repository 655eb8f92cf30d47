package version

import (
	"runtime"
	"strings"
	"testing"
)

func TestInfo(t *testing.T) {
	info := Info()
	if !strings.Contains(info, "VirtualModems") {
		t.Errorf("Info() should contain 'VirtualModems', got: %s", info)
	}
	if !strings.Contains(info, runtime.Version()) {
		t.Errorf("Info() should contain Go version, got: %s", info)
	}
}

func TestShort(t *testing.T) {
	if got := Short(); got != "dev" {
		t.Errorf("Short() = %q, want %q (default)", got, "dev")
	}
}

func TestMap(t *testing.T) {
	m := Map()
	for _, key := range []string{"version", "git_commit", "build_date", "go_version", "os", "arch"} {
		if m[key] == "" {
			t.Errorf("Map()[%q] is empty", key)
		}
	}
}
