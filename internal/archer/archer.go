// Package archer emulates a TP-Link Archer BE230 router: plain JSON
// framing, a rotating-but-lenient state token, and flap-driven client
// presence shared across its status views.
package archer

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/mocknet/virtualmodems/internal/devcrypto"
	"github.com/mocknet/virtualmodems/internal/fixture"
	"github.com/mocknet/virtualmodems/internal/profile"
	"github.com/mocknet/virtualmodems/internal/session"
	"github.com/mocknet/virtualmodems/internal/synth"
)

//go:embed baseline.json
var baselineJSON []byte

const (
	cgiPrefix    = "/cgi-bin/luci/"
	loginRest    = ";stok=/login"
	keyBits      = 2048
	stokHexWidth = 12
)

// Module is one Archer instance.
type Module struct {
	logger   *zap.Logger
	keys     *devcrypto.KeyPair
	sessions *session.Registry

	clock synth.Clock
	rand  *synth.Source

	mu sync.Mutex
	fx fixture.Record
}

// Option adjusts a Module before Init.
type Option func(*Module)

// WithClock replaces the wall clock.
func WithClock(c synth.Clock) Option {
	return func(m *Module) { m.clock = c }
}

// WithSource replaces the random source.
func WithSource(s *synth.Source) Option {
	return func(m *Module) { m.rand = s }
}

// New creates an uninitialized Archer profile.
func New(opts ...Option) *Module {
	m := &Module{
		clock: synth.SystemClock{},
		rand:  synth.NewTimeSource(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Module) Name() string  { return "archer" }
func (m *Module) Title() string { return "Virtual TP-Link Archer BE230" }

// Init loads the baseline fixture and generates the instance key pair. The
// key export is served even though this dialect never encrypts payloads;
// integrations probe form=keys to pick their protocol version.
func (m *Module) Init(config *viper.Viper, logger *zap.Logger) error {
	m.logger = logger

	if config != nil && config.IsSet("seed") {
		m.rand = synth.NewSource(config.GetInt64("seed"))
	}

	var fx map[string]any
	if err := json.Unmarshal(baselineJSON, &fx); err != nil {
		return fmt.Errorf("archer baseline fixture: %w", err)
	}
	m.fx = fixture.Record(fx)

	keys, err := devcrypto.GenerateKeyPair(keyBits)
	if err != nil {
		return err
	}
	m.keys = keys

	m.sessions = session.NewRegistry(session.LenientStateToken, m.clock)

	m.logger.Info("archer profile initialized",
		zap.Int("smart_network_clients", len(m.fx.Map("clients").Records("smart_network"))),
	)
	return nil
}

// Routes exposes the static web stubs and the cgi-bin catch-all.
func (m *Module) Routes() []profile.Route {
	return []profile.Route{
		{Method: "GET", Path: "/{$}", Handler: m.handleRoot},
		{Method: "GET", Path: "/webpages/index.html", Handler: m.handleWebIndex},
		{Method: "GET", Path: "/login.htm", Handler: m.handleLoginPage},
		{Method: "GET", Path: "/js/lib.js", Handler: m.handleLibJS},
		{Method: "POST", Path: cgiPrefix + "{rest...}", Handler: m.handleCGI},
	}
}

// Hints returns the startup login hints.
func (m *Module) Hints() []string {
	router := m.fx.Map("router")
	return []string{
		"- host: http://<ip>",
		"- password: any value (mock)",
		fmt.Sprintf("- model: %s", router.String("model")),
		fmt.Sprintf("- hardware: %s", router.String("hardware_version")),
		fmt.Sprintf("- firmware: %s", router.String("firmware_version")),
		fmt.Sprintf("- lan ip (fixture): %s", router.String("lan_ipv4_ipaddr")),
	}
}
