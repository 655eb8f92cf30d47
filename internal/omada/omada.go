// Package omada emulates a TP-Link Omada controller: token login against
// configurable credentials and the site-scoped v2 REST tree integrations
// poll, including lazy synthesis of clients and device details on first
// reference.
package omada

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/mocknet/virtualmodems/internal/fixture"
	"github.com/mocknet/virtualmodems/internal/profile"
	"github.com/mocknet/virtualmodems/internal/synth"
)

//go:embed baseline.json
var baselineJSON []byte

// Module is one controller instance.
type Module struct {
	logger *zap.Logger
	clock  synth.Clock

	controllerID string
	version      string
	name         string
	siteID       string
	siteName     string
	username     string
	password     string

	// guarded by mu: everything lazily ensured or patched at runtime
	mu             sync.Mutex
	devices        *fixture.Collection
	clients        *fixture.Collection
	knownClients   *fixture.Collection
	gatewayDetails map[string]fixture.Record
	switchDetails  map[string]fixture.Record
	apDetails      map[string]fixture.Record
	switchPorts    map[string][]fixture.Record
	portProfiles   []fixture.Record
	tokens         map[string]struct{}
}

// Option adjusts a Module before Init.
type Option func(*Module)

// WithClock replaces the wall clock.
func WithClock(c synth.Clock) Option {
	return func(m *Module) { m.clock = c }
}

// New creates an uninitialized Omada profile.
func New(opts ...Option) *Module {
	m := &Module{clock: synth.SystemClock{}}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Module) Name() string  { return "omada" }
func (m *Module) Title() string { return "Virtual Omada Controller" }

// Init loads the baseline fixture into the mutable collections and reads
// the admin credentials. Defaults are admin/admin; omada.username and
// omada.password override them (VMODEM_OMADA_USERNAME / _PASSWORD from the
// environment).
func (m *Module) Init(config *viper.Viper, logger *zap.Logger) error {
	m.logger = logger

	var fx map[string]any
	if err := json.Unmarshal(baselineJSON, &fx); err != nil {
		return fmt.Errorf("omada baseline fixture: %w", err)
	}
	root := fixture.Record(fx)

	controller := root.Map("controller")
	m.controllerID = controller.String("id")
	m.version = controller.String("version")
	m.name = controller.String("name")
	m.siteID = controller.String("site_id")
	m.siteName = controller.String("site_name")

	m.username = "admin"
	m.password = "admin"
	if config != nil {
		if v := config.GetString("omada.username"); v != "" {
			m.username = v
		}
		if v := config.GetString("omada.password"); v != "" {
			m.password = v
		}
	}

	m.devices = fixture.NewCollection("mac", root.Records("devices"))
	m.clients = fixture.NewCollection("mac", root.Records("clients"))
	m.knownClients = fixture.NewCollection("mac", root.Records("known_clients"))
	m.gatewayDetails = fixture.Index("mac", root.Records("gateway_details"))
	m.switchDetails = fixture.Index("mac", root.Records("switch_details"))
	m.apDetails = fixture.Index("mac", root.Records("ap_details"))

	m.switchPorts = make(map[string][]fixture.Record)
	for _, entry := range root.Records("switch_ports") {
		mac := entry.String("mac")
		if mac == "" {
			continue
		}
		ports := make([]fixture.Record, 0)
		for _, port := range entry.Records("ports") {
			ports = append(ports, port.Clone())
		}
		m.switchPorts[fixture.NormalizeMAC(mac)] = ports
	}

	m.portProfiles = nil
	for _, p := range root.Records("port_profiles") {
		m.portProfiles = append(m.portProfiles, p.Clone())
	}

	m.tokens = make(map[string]struct{})

	m.logger.Info("omada profile initialized",
		zap.String("controller_id", m.controllerID),
		zap.String("site", m.siteName),
		zap.Int("devices", m.devices.Len()),
		zap.Int("clients", m.clients.Len()),
	)
	return nil
}

// Routes lays the controller's REST tree onto the mux. The site-scoped
// handlers check {cid}/{site} against the fixture themselves; bare /api/v2
// aliases serve clients that probe before learning the controller id.
func (m *Module) Routes() []profile.Route {
	site := "/{cid}/api/v2/sites/{site}/"
	return []profile.Route{
		{Method: "GET", Path: "/{$}", Handler: m.handleRoot},
		{Method: "GET", Path: "/api/info", Handler: m.handleAPIInfo},

		{Method: "POST", Path: "/{cid}/api/v2/login", Handler: m.handleLogin},
		{Method: "POST", Path: "/api/v2/login", Handler: m.handleLogin},
		{Method: "GET", Path: "/{cid}/api/v2/loginStatus", Handler: m.handleLoginStatus},
		{Method: "GET", Path: "/api/v2/loginStatus", Handler: m.handleLoginStatus},
		{Method: "GET", Path: "/{cid}/api/v2/users/current", Handler: m.handleUsersCurrent},
		{Method: "GET", Path: "/api/v2/users/current", Handler: m.handleUsersCurrent},
		{Method: "GET", Path: "/{cid}/api/v2/maintenance/controllerStatus", Handler: m.handleControllerStatus},
		{Method: "GET", Path: "/api/v2/maintenance/controllerStatus", Handler: m.handleControllerStatus},
		{Method: "GET", Path: "/{cid}/api/v2/maintenance/uiInterface", Handler: m.handleUIInterface},
		{Method: "GET", Path: "/api/v2/maintenance/uiInterface", Handler: m.handleUIInterface},

		{Method: "GET", Path: site + "clients", Handler: m.handleListClients},
		{Method: "GET", Path: site + "clients/{mac}", Handler: m.handleGetClient},
		{Method: "PATCH", Path: site + "clients/{mac}", Handler: m.handlePatchClient},
		{Method: "GET", Path: site + "insight/clients", Handler: m.handleKnownClients},

		{Method: "GET", Path: site + "devices", Handler: m.handleListDevices},
		{Method: "GET", Path: site + "gateways/{mac}", Handler: m.handleGetGateway},
		{Method: "PATCH", Path: site + "gateways/{mac}", Handler: m.handlePatchGateway},
		{Method: "GET", Path: site + "switches/{mac}", Handler: m.handleGetSwitch},
		{Method: "PATCH", Path: site + "switches/{mac}", Handler: m.handlePatchSwitch},
		{Method: "GET", Path: site + "eaps/{mac}", Handler: m.handleGetAP},
		{Method: "PATCH", Path: site + "eaps/{mac}", Handler: m.handlePatchAP},

		{Method: "GET", Path: site + "switches/{mac}/ports", Handler: m.handleSwitchPorts},
		{Method: "GET", Path: site + "switches/{mac}/ports/{port}", Handler: m.handleGetSwitchPort},
		{Method: "PATCH", Path: site + "switches/{mac}/ports/{port}", Handler: m.handlePatchSwitchPort},
		{Method: "PATCH", Path: "/openapi/v1/{cid}/sites/{site}/switches/{mac}/ports/{port}", Handler: m.handlePatchSwitchPort},

		{Method: "GET", Path: site + "devices/{mac}/firmware", Handler: m.handleFirmware},
		{Method: "GET", Path: site + "setting/lan/profileSummary", Handler: m.handleProfileSummary},
		{Method: "GET", Path: site + "setting/wlans", Handler: m.handleWLANs},
		{Method: "GET", Path: site + "setting/wlans/{wlan}/ssids", Handler: m.handleWLANSSIDs},

		{Method: "GET", Path: site + "rfPlanning", Handler: m.handleRFPlanning},
		{Method: "GET", Path: site + "rfPlanning/result", Handler: m.handleRFPlanningResult},
		{Method: "PUT", Path: site + "rfPlanning/schedule", Handler: m.handleRFPlanningSchedule},
		{Method: "POST", Path: site + "cmd/rfPlanning/optimization", Handler: m.handleRFOptimization},

		{Method: "POST", Path: site + "cmd/clients/{mac}/{action}", Handler: m.handleClientCommand},
		{Method: "POST", Path: site + "cmd/devices/{mac}/{action}", Handler: m.handleDeviceCommand},
		{Method: "POST", Path: site + "cmd/gateways/{mac}/{action}", Handler: m.handleGatewayCommand},
	}
}

// Hints returns the startup login hints.
func (m *Module) Hints() []string {
	return []string{
		"- host: http://<ip> (protocol required)",
		fmt.Sprintf("- username: %s", m.username),
		fmt.Sprintf("- password: %s", m.password),
		fmt.Sprintf("- controller id: %s", m.controllerID),
		fmt.Sprintf("- site: %s (%s)", m.siteName, m.siteID),
	}
}
