// Package deco emulates a TP-Link Deco X50 mesh system: RSA/AES login
// handshake, encrypted request/response framing, and a strict
// state-token-scoped command table over mutable fixture state.
package deco

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
	cgiPrefix = "/cgi-bin/luci/"
	loginRest = ";stok=/login"
	keyBits   = 1024
)

// Module is one Deco instance. All mutable state is owned by the instance,
// so several can run side by side in one process.
type Module struct {
	logger   *zap.Logger
	keys     *devcrypto.KeyPair
	sessions *session.Registry
	seq      int

	clock synth.Clock
	rand  *synth.Source

	// guarded by mu: fixture state and runtime telemetry
	mu      sync.Mutex
	fx      fixture.Record
	catalog []fixture.Record
	runtime map[string]*clientRuntime
	ticker  *synth.Ticker

	commands map[string]commandFunc
}

// Option adjusts a Module before Init, used by tests to pin time and
// randomness.
type Option func(*Module)

// WithClock replaces the wall clock.
func WithClock(c synth.Clock) Option {
	return func(m *Module) { m.clock = c }
}

// WithSource replaces the random source.
func WithSource(s *synth.Source) Option {
	return func(m *Module) { m.rand = s }
}

// New creates an uninitialized Deco profile.
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

func (m *Module) Name() string  { return "deco" }
func (m *Module) Title() string { return "Virtual TP-Link Deco X50" }

// Init loads the baseline fixture, generates the instance key pair, and
// builds the synthetic client population.
func (m *Module) Init(config *viper.Viper, logger *zap.Logger) error {
	m.logger = logger

	if config != nil && config.IsSet("seed") {
		m.rand = synth.NewSource(config.GetInt64("seed"))
	}

	var fx map[string]any
	if err := json.Unmarshal(baselineJSON, &fx); err != nil {
		return fmt.Errorf("deco baseline fixture: %w", err)
	}
	m.fx = fixture.Record(fx)

	keys, err := devcrypto.GenerateKeyPair(keyBits)
	if err != nil {
		return err
	}
	m.keys = keys

	m.sessions = session.NewRegistry(session.StrictStateToken, m.clock)
	m.seq = 1000
	m.ticker = synth.NewTicker(m.clock)
	m.buildClientCatalog()
	m.buildClientRuntime()
	m.registerCommands()

	m.logger.Info("deco profile initialized",
		zap.Int("decos", len(m.fx.Records("decos"))),
		zap.Int("clients", len(m.catalog)),
	)
	return nil
}

// Routes exposes the Deco dialect: a landing page and a single cgi-bin
// catch-all that the command router dispatches from.
func (m *Module) Routes() []profile.Route {
	return []profile.Route{
		{Method: "GET", Path: "/{$}", Handler: m.handleRoot},
		{Method: "POST", Path: cgiPrefix + "{rest...}", Handler: m.handleCGI},
	}
}

// Hints returns the startup login hints.
func (m *Module) Hints() []string {
	master := fixture.Record{}
	if decos := m.fx.Records("decos"); len(decos) > 0 {
		master = decos[0]
	}
	return []string{
		"- host: http://<ip>",
		"- password: any value (mock)",
		fmt.Sprintf("- model: %s", master.String("device_model")),
		fmt.Sprintf("- hardware: %s", master.String("hardware_ver")),
		fmt.Sprintf("- firmware: %s", master.String("software_ver")),
		fmt.Sprintf("- lan ip (fixture): %s", master.String("ip_address")),
	}
}
