// Package lockfile implements the single-instance guard: an advisory JSON
// state file in the system temp dir recording which profile currently owns
// the listen port. Two emulated modems answering the same integration is a
// confusing failure, so startup refuses when another live process holds it.
package lockfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// State is the on-disk lock payload.
type State struct {
	PID     int    `json:"pid"`
	Profile string `json:"profile"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
}

// Path returns the lock file location.
func Path() string {
	return filepath.Join(os.TempDir(), "virtual-modems", "active_modem.json")
}

// Acquire claims the lock for this process. The returned release func
// removes the file if this process still owns it; call it on shutdown.
func Acquire(profileName, host string, port int) (func(), error) {
	path := Path()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}

	selfPID := os.Getpid()
	if existing, err := read(path); err == nil && existing != nil {
		if existing.PID != 0 && existing.PID != selfPID && pidRunning(existing.PID) {
			return nil, fmt.Errorf(
				"another modem profile is already running: profile=%s pid=%d port=%d",
				existing.Profile, existing.PID, existing.Port)
		}
	}

	state := State{PID: selfPID, Profile: profileName, Host: host, Port: port}
	raw, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("marshal lock state: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return nil, fmt.Errorf("write lock file: %w", err)
	}

	release := func() {
		current, err := read(path)
		if err != nil || current == nil || current.PID == selfPID {
			os.Remove(path)
		}
	}
	return release, nil
}

func read(path string) (*State, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var s State
	if err := json.Unmarshal(raw, &s); err != nil {
		// A corrupt lock file is treated as stale, not fatal.
		return nil, nil
	}
	return &s, nil
}

// pidRunning probes whether pid is alive with a null signal.
func pidRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
