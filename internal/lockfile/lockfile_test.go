package lockfile

import (
	"encoding/json"
	"os"
	"testing"
)

// The lock path is derived from the system temp dir, so point TMPDIR at a
// per-test directory to isolate runs.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("TMPDIR", t.TempDir())
}

func TestAcquireAndRelease(t *testing.T) {
	isolate(t)

	release, err := Acquire("deco", "0.0.0.0", 80)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	raw, err := os.ReadFile(Path())
	if err != nil {
		t.Fatalf("read lock file: %v", err)
	}
	var s State
	if err := json.Unmarshal(raw, &s); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if s.PID != os.Getpid() || s.Profile != "deco" || s.Port != 80 {
		t.Errorf("lock state = %+v", s)
	}

	release()
	if _, err := os.Stat(Path()); !os.IsNotExist(err) {
		t.Error("release did not remove the lock file")
	}
}

func TestAcquire_RefusesLiveHolder(t *testing.T) {
	isolate(t)

	// Write a lock owned by a process that is certainly alive and not us:
	// our parent.
	s := State{PID: os.Getppid(), Profile: "archer", Host: "0.0.0.0", Port: 80}
	raw, _ := json.Marshal(s)
	if err := os.MkdirAll(Path()[:len(Path())-len("/active_modem.json")], 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(Path(), raw, 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Acquire("deco", "0.0.0.0", 80); err == nil {
		t.Error("Acquire succeeded while another live process holds the lock")
	}
}

func TestAcquire_StealsStaleLock(t *testing.T) {
	isolate(t)

	// PID 1<<22 is above the default pid_max; treat as dead.
	s := State{PID: 1 << 22, Profile: "archer", Port: 80}
	raw, _ := json.Marshal(s)
	if err := os.MkdirAll(Path()[:len(Path())-len("/active_modem.json")], 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(Path(), raw, 0o644); err != nil {
		t.Fatal(err)
	}

	release, err := Acquire("deco", "0.0.0.0", 80)
	if err != nil {
		t.Fatalf("Acquire over stale lock: %v", err)
	}
	release()
}

func TestAcquire_ToleratesCorruptLock(t *testing.T) {
	isolate(t)

	if err := os.MkdirAll(Path()[:len(Path())-len("/active_modem.json")], 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(Path(), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	release, err := Acquire("omada", "0.0.0.0", 80)
	if err != nil {
		t.Fatalf("Acquire over corrupt lock: %v", err)
	}
	release()
}
