package session

import (
	"regexp"
	"testing"
	"time"

	"github.com/mocknet/virtualmodems/internal/devcrypto"
	"github.com/mocknet/virtualmodems/internal/testutil"
)

var hexToken = regexp.MustCompile(`^[0-9a-f]{32}$`)

func TestNewHexToken(t *testing.T) {
	a := NewHexToken()
	b := NewHexToken()
	if !hexToken.MatchString(a) {
		t.Errorf("token %q is not 32 lowercase hex chars", a)
	}
	if a == b {
		t.Error("two minted tokens collided")
	}
}

func TestMintAndResolve(t *testing.T) {
	clock := testutil.NewClock()
	r := NewRegistry(StrictStateToken, clock)

	cipher, err := devcrypto.NewCBCContext("0123456789abcdef", "fedcba9876543210")
	if err != nil {
		t.Fatalf("cipher: %v", err)
	}
	s := r.Mint("deco", cipher)

	if !hexToken.MatchString(s.Token) {
		t.Errorf("bearer token %q is not 32 hex chars", s.Token)
	}
	if want := clock.Now(); !s.CreatedAt.Equal(want) {
		t.Errorf("CreatedAt = %v, want %v", s.CreatedAt, want)
	}
	if s.Cipher != cipher {
		t.Error("session lost its cipher context")
	}

	got, ok := r.Resolve(s.Token)
	if !ok || got != s {
		t.Fatalf("Resolve(%q) = %v, %v; want the minted session", s.Token, got, ok)
	}

	// One altered character must no longer resolve.
	altered := []byte(s.Token)
	if altered[0] == 'a' {
		altered[0] = 'b'
	} else {
		altered[0] = 'a'
	}
	if _, ok := r.Resolve(string(altered)); ok {
		t.Error("tampered bearer token still resolved")
	}
}

func TestMintSizedStateTokenWidth(t *testing.T) {
	r := NewRegistry(LenientStateToken, nil)
	s := r.MintSized("be230", 12, nil)

	if !regexp.MustCompile(`^be230-[0-9a-f]{12}$`).MatchString(s.StateToken) {
		t.Errorf("state token %q, want be230- plus 12 hex chars", s.StateToken)
	}

	// Out-of-range widths fall back to the default.
	s = r.MintSized("deco", 99, nil)
	if !regexp.MustCompile(`^deco-[0-9a-f]{16}$`).MatchString(s.StateToken) {
		t.Errorf("state token %q, want deco- plus 16 hex chars", s.StateToken)
	}
}

func TestStateTokensUniqueAmongLiveSessions(t *testing.T) {
	r := NewRegistry(StrictStateToken, nil)
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		s := r.Mint("deco", nil)
		if seen[s.StateToken] {
			t.Fatalf("duplicate state token %q", s.StateToken)
		}
		seen[s.StateToken] = true
	}
}

func TestValidateStateToken_Strict(t *testing.T) {
	r := NewRegistry(StrictStateToken, nil)
	s := r.Mint("deco", nil)

	if !r.ValidateStateToken(s, s.StateToken) {
		t.Error("matching state token rejected")
	}
	if r.ValidateStateToken(s, "deco-0000000000000000") {
		t.Error("stale state token accepted in strict mode")
	}
	if r.ValidateStateToken(s, "") {
		t.Error("empty state token accepted in strict mode")
	}
	if r.ValidateStateToken(nil, s.StateToken) {
		t.Error("state token accepted without a session")
	}
}

func TestValidateStateToken_Lenient(t *testing.T) {
	r := NewRegistry(LenientStateToken, nil)
	s := r.Mint("be230", nil)

	// Any non-empty token passes, including stale ones and no session.
	if !r.ValidateStateToken(s, s.StateToken) {
		t.Error("current state token rejected")
	}
	if !r.ValidateStateToken(nil, "be230-stale") {
		t.Error("lenient mode must tolerate stale cached tokens")
	}
	if r.ValidateStateToken(s, "") {
		t.Error("empty state token accepted")
	}
}

func TestSessionsSurviveTime(t *testing.T) {
	clock := testutil.NewClock()
	r := NewRegistry(StrictStateToken, clock)
	s := r.Mint("deco", nil)

	clock.Advance(24 * time.Hour)
	if _, ok := r.Resolve(s.Token); !ok {
		t.Error("sessions must live for the process lifetime; no eviction")
	}
	if r.Len() != 1 {
		t.Errorf("Len = %d, want 1", r.Len())
	}
}
