// Package session tracks authenticated clients for a device profile: an
// opaque bearer token (cookie or response field) paired with a rotating
// state token that scopes subsequent request paths. Sessions live for the
// process lifetime; real firmware in this class never evicts either.
package session

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mocknet/virtualmodems/internal/devcrypto"
	"github.com/mocknet/virtualmodems/internal/synth"
)

// Mode selects how state tokens embedded in request paths are checked.
type Mode int

const (
	// StrictStateToken requires the path token to match the one last
	// issued to the session (Deco behavior).
	StrictStateToken Mode = iota

	// LenientStateToken accepts any non-empty token. This mirrors Archer
	// firmware, which keeps stale cached ;stok= paths working across
	// re-logins; integrations rely on it, so it is deliberate, not a gap.
	LenientStateToken
)

// Session is one authenticated client.
type Session struct {
	Token      string
	StateToken string
	// Cipher is the AES-CBC context negotiated at login. Nil for profiles
	// with plain framing.
	Cipher    *devcrypto.CBCContext
	CreatedAt time.Time
}

// Registry maps bearer tokens to sessions.
type Registry struct {
	mu       sync.RWMutex
	mode     Mode
	clock    synth.Clock
	byToken  map[string]*Session
	byState  map[string]struct{}
}

// NewRegistry creates an empty registry. A nil clock falls back to the
// system clock.
func NewRegistry(mode Mode, clock synth.Clock) *Registry {
	if clock == nil {
		clock = synth.SystemClock{}
	}
	return &Registry{
		mode:    mode,
		clock:   clock,
		byToken: make(map[string]*Session),
		byState: make(map[string]struct{}),
	}
}

// NewHexToken mints a 32-character lowercase hex token, the opaque bearer
// shape both dialects deliver in cookies.
func NewHexToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Mint creates and stores a session. statePrefix names the device family in
// the state token ("deco", "be230"); cipher may be nil for plain-framing
// profiles. State tokens are unique among live sessions.
func (r *Registry) Mint(statePrefix string, cipher *devcrypto.CBCContext) *Session {
	return r.MintSized(statePrefix, 16, cipher)
}

// MintSized is Mint with a caller-chosen state-token hex length. Device
// families disagree on stok width (Deco issues 16 hex characters, Archer
// 12).
func (r *Registry) MintSized(statePrefix string, stateHex int, cipher *devcrypto.CBCContext) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	state := r.newStateTokenLocked(statePrefix, stateHex)
	s := &Session{
		Token:      NewHexToken(),
		StateToken: state,
		Cipher:     cipher,
		CreatedAt:  r.clock.Now(),
	}
	r.byToken[s.Token] = s
	r.byState[state] = struct{}{}
	return s
}

func (r *Registry) newStateTokenLocked(prefix string, stateHex int) string {
	if stateHex < 1 || stateHex > 32 {
		stateHex = 16
	}
	for {
		token := prefix + "-" + NewHexToken()[:stateHex]
		if _, taken := r.byState[token]; !taken {
			return token
		}
	}
}

// Resolve looks up a session by bearer token. Pure lookup; never mutates.
func (r *Registry) Resolve(token string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byToken[token]
	return s, ok
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byToken)
}

// ValidateStateToken checks a token extracted from a request path against
// the session it claims to belong to. Strict mode demands an exact match;
// lenient mode accepts any non-empty token (and no session at all).
func (r *Registry) ValidateStateToken(s *Session, pathToken string) bool {
	switch r.mode {
	case LenientStateToken:
		return pathToken != ""
	default:
		return s != nil && pathToken == s.StateToken
	}
}
