package omada

import (
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/mocknet/virtualmodems/internal/fixture"
	"github.com/mocknet/virtualmodems/internal/synth"
)

const (
	defaultFlapPeriod = 60
	ensuredClientIP   = "10.50.0.250"
	offlinePushbackMs = 15 * 60 * 1000
)

// The port fields integrations are allowed to PATCH. Everything else on a
// port record is controller-computed state.
var writablePortFields = []string{
	"name",
	"profileId",
	"linkSpeed",
	"duplex",
	"profileOverrideEnable",
	"tagIds",
	"nativeNetworkId",
	"networkTagsSetting",
	"tagNetworkIds",
	"untagNetworkIds",
	"voiceNetworkEnable",
	"voiceNetworkId",
	"operation",
	"bandWidthCtrlType",
	"poe",
	"dot1x",
	"lldpMedEnable",
	"loopbackDetectEnable",
	"spanningTreeEnable",
	"portIsolationEnable",
	"flowControlEnable",
	"eeeEnable",
	"loopbackDetectVlanBasedEnable",
}

// -- clients --

func (m *Module) handleListClients(w http.ResponseWriter, r *http.Request) {
	if !m.requireSite(w, r) {
		return
	}
	m.mu.Lock()
	items := m.runtimeClients()
	m.mu.Unlock()

	if r.URL.Query().Get("filters.active") == "true" {
		active := items[:0]
		for _, item := range items {
			if item.Bool("active") {
				active = append(active, item)
			}
		}
		items = active
	}
	m.ok(w, paginate(items, r))
}

func (m *Module) handleGetClient(w http.ResponseWriter, r *http.Request) {
	if !m.requireSite(w, r) {
		return
	}
	m.mu.Lock()
	client := m.ensureClient(r.PathValue("mac"))
	current := client.Clone()
	current["active"] = m.clientActive(client)
	if current.Bool("active") {
		current["lastSeen"] = m.nowMillis()
	}
	m.mu.Unlock()

	m.ok(w, current)
}

func (m *Module) handlePatchClient(w http.ResponseWriter, r *http.Request) {
	if !m.requireSite(w, r) {
		return
	}
	payload := decodeBody(r)

	m.mu.Lock()
	client := m.ensureClient(r.PathValue("mac"))
	client.Merge(payload)
	snapshot := client.Clone()
	m.mu.Unlock()

	m.ok(w, snapshot)
}

func (m *Module) handleKnownClients(w http.ResponseWriter, r *http.Request) {
	if !m.requireSite(w, r) {
		return
	}
	m.mu.Lock()
	items := m.runtimeKnownClients(m.runtimeClients())
	m.mu.Unlock()

	m.ok(w, paginate(items, r))
}

// clientActive resolves a client's live presence: the stored active flag
// gated by its flap wave when one is configured.
func (m *Module) clientActive(client fixture.Record) bool {
	active := client.Bool("active")
	flap := synth.ParseFlap(client, defaultFlapPeriod)
	if flap == nil {
		return active
	}
	return active && flap.State(m.clock.Now())
}

// runtimeClients snapshots every client with live presence applied. Active
// clients read as seen right now. Callers hold m.mu.
func (m *Module) runtimeClients() []fixture.Record {
	now := m.nowMillis()
	out := make([]fixture.Record, 0, m.clients.Len())
	for _, client := range m.clients.All() {
		current := client.Clone()
		current["active"] = m.clientActive(client)
		if current.Bool("active") {
			current["lastSeen"] = now
		}
		out = append(out, current)
	}
	return out
}

// runtimeKnownClients snapshots the insight list. Flapped-offline clients
// get lastSeen pushed 15 minutes back so integrations using a disconnect
// timeout report them offline immediately. Callers hold m.mu.
func (m *Module) runtimeKnownClients(live []fixture.Record) []fixture.Record {
	now := m.nowMillis()
	activeByMAC := make(map[string]bool, len(live))
	for _, item := range live {
		if mac := item.String("mac"); mac != "" {
			activeByMAC[fixture.NormalizeMAC(mac)] = item.Bool("active")
		}
	}

	out := make([]fixture.Record, 0, m.knownClients.Len())
	for _, known := range m.knownClients.All() {
		current := known.Clone()
		if active, tracked := activeByMAC[fixture.NormalizeMAC(current.String("mac"))]; tracked {
			if active {
				current["lastSeen"] = now
			} else {
				current["lastSeen"] = now - offlinePushbackMs
			}
		}
		out = append(out, current)
	}
	return out
}

// ensureClient returns the client record for the address, synthesizing one
// from the first baseline client on first reference and mirroring it into
// the known-clients list. Callers hold m.mu.
func (m *Module) ensureClient(mac string) fixture.Record {
	if existing := m.clients.Find(mac); existing != nil {
		return existing
	}

	client := m.clients.Ensure(mac, nil, fixture.Record{
		"active":         true,
		"wireless":       true,
		"guest":          false,
		"connectType":    "wireless_user",
		"connectDevType": "ap",
		"lastSeen":       m.nowMillis(),
	})
	client.SetDefault("name", defaultClientName(mac))
	client.SetDefault("hostName", defaultClientName(mac))
	client.SetDefault("ip", ensuredClientIP)

	if m.knownClients.Find(mac) == nil {
		known := m.knownClients.Ensure(mac, nil, fixture.Record{
			"name":     client.String("name"),
			"wireless": client.Bool("wireless"),
			"guest":    client.Bool("guest"),
			"block":    false,
			"lastSeen": m.nowMillis(),
		})
		known.SetDefault("name", defaultClientName(mac))
	}
	return client
}

func defaultClientName(mac string) string {
	if len(mac) > 5 {
		return "client-" + mac[len(mac)-5:]
	}
	return "client-" + mac
}

// -- devices and details --

func (m *Module) handleListDevices(w http.ResponseWriter, r *http.Request) {
	if !m.requireSite(w, r) {
		return
	}
	m.mu.Lock()
	out := make([]fixture.Record, 0, m.devices.Len())
	for _, device := range m.devices.All() {
		out = append(out, device.Clone())
	}
	m.mu.Unlock()

	m.ok(w, out)
}

func (m *Module) handleGetGateway(w http.ResponseWriter, r *http.Request) {
	m.handleGetDetail(w, r, m.gatewayDetail)
}

func (m *Module) handlePatchGateway(w http.ResponseWriter, r *http.Request) {
	m.handlePatchDetail(w, r, m.gatewayDetail)
}

func (m *Module) handleGetSwitch(w http.ResponseWriter, r *http.Request) {
	m.handleGetDetail(w, r, m.switchDetail)
}

func (m *Module) handlePatchSwitch(w http.ResponseWriter, r *http.Request) {
	m.handlePatchDetail(w, r, m.switchDetail)
}

func (m *Module) handleGetAP(w http.ResponseWriter, r *http.Request) {
	m.handleGetDetail(w, r, m.apDetail)
}

func (m *Module) handlePatchAP(w http.ResponseWriter, r *http.Request) {
	m.handlePatchDetail(w, r, m.apDetail)
}

func (m *Module) handleGetDetail(w http.ResponseWriter, r *http.Request, detail func(string) fixture.Record) {
	if !m.requireSite(w, r) {
		return
	}
	m.mu.Lock()
	snapshot := detail(r.PathValue("mac")).Clone()
	m.mu.Unlock()

	m.ok(w, snapshot)
}

func (m *Module) handlePatchDetail(w http.ResponseWriter, r *http.Request, detail func(string) fixture.Record) {
	if !m.requireSite(w, r) {
		return
	}
	payload := decodeBody(r)

	m.mu.Lock()
	record := detail(r.PathValue("mac"))
	record.Merge(payload)
	snapshot := record.Clone()
	m.mu.Unlock()

	m.ok(w, snapshot)
}

// ensureDeviceOfType returns the site device for the address, synthesizing
// one on first reference from the first baseline device of the same type.
// An existing device referenced through a differently-typed route is
// retyped, the controller trusts the route. Callers hold m.mu.
func (m *Module) ensureDeviceOfType(mac, devType string) fixture.Record {
	device := m.devices.Ensure(mac, func(r fixture.Record) bool {
		return r.String("type") == devType
	}, fixture.Record{})

	device["type"] = devType
	device.SetDefault("name", "Virtual "+titleCase(devType))
	device.SetDefault("model", "Virtual-"+strings.ToUpper(devType))
	device.SetDefault("showModel", "Virtual-"+strings.ToUpper(devType))
	device.SetDefault("compoundModel", "Virtual "+titleCase(devType))
	device.SetDefault("ip", ensuredClientIP)
	device.SetDefault("status", 1)
	device.SetDefault("statusCategory", 0)
	device.SetDefault("needUpgrade", false)
	return device
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// gatewayDetail returns the live detail record for a gateway, synthesizing
// it from the device list on first reference. Callers hold m.mu.
func (m *Module) gatewayDetail(mac string) fixture.Record {
	norm := fixture.NormalizeMAC(mac)
	if detail, ok := m.gatewayDetails[norm]; ok {
		return detail
	}
	detail := m.ensureDeviceOfType(mac, "gateway").Clone()
	detail.SetDefault("portStats", []any{})
	detail.SetDefault("portConfigs", []any{})
	m.gatewayDetails[norm] = detail
	return detail
}

func (m *Module) switchDetail(mac string) fixture.Record {
	norm := fixture.NormalizeMAC(mac)
	if detail, ok := m.switchDetails[norm]; ok {
		return detail
	}
	detail := m.ensureDeviceOfType(mac, "switch").Clone()
	detail.SetDefault("devCap", map[string]any{
		"poeSupport": false,
		"poePortNum": 0,
		"supportBt":  false,
	})
	m.switchDetails[norm] = detail
	if _, ok := m.switchPorts[norm]; !ok {
		m.switchPorts[norm] = []fixture.Record{}
	}
	return detail
}

func (m *Module) apDetail(mac string) fixture.Record {
	norm := fixture.NormalizeMAC(mac)
	if detail, ok := m.apDetails[norm]; ok {
		return detail
	}
	detail := m.ensureDeviceOfType(mac, "ap").Clone()
	detail.SetDefault("lanPortSettings", []any{})
	m.apDetails[norm] = detail
	return detail
}

// -- switch ports --

func (m *Module) handleSwitchPorts(w http.ResponseWriter, r *http.Request) {
	if !m.requireSite(w, r) {
		return
	}
	m.mu.Lock()
	m.switchDetail(r.PathValue("mac"))
	ports := m.switchPorts[fixture.NormalizeMAC(r.PathValue("mac"))]
	out := make([]fixture.Record, 0, len(ports))
	for _, port := range ports {
		out = append(out, port.Clone())
	}
	m.mu.Unlock()

	m.ok(w, out)
}

func (m *Module) handleGetSwitchPort(w http.ResponseWriter, r *http.Request) {
	if !m.requireSite(w, r) {
		return
	}
	m.mu.Lock()
	port, ok := m.findSwitchPort(r.PathValue("mac"), r.PathValue("port"))
	var snapshot fixture.Record
	if ok {
		snapshot = port.Clone()
	}
	m.mu.Unlock()

	if !ok {
		m.portNotFound(w, "switch port not found")
		return
	}
	m.ok(w, snapshot)
}

func (m *Module) handlePatchSwitchPort(w http.ResponseWriter, r *http.Request) {
	if !m.requireSite(w, r) {
		return
	}
	payload := decodeBody(r)

	m.mu.Lock()
	port, ok := m.findSwitchPort(r.PathValue("mac"), r.PathValue("port"))
	var snapshot fixture.Record
	if ok {
		port.MergeAllowed(payload, writablePortFields)
		snapshot = port.Clone()
	}
	m.mu.Unlock()

	if !ok {
		m.portNotFound(w, "switch port not found")
		return
	}
	m.ok(w, snapshot)
}

func (m *Module) findSwitchPort(mac, portID string) (fixture.Record, bool) {
	number := queryInt(portID, -1)
	for _, port := range m.switchPorts[fixture.NormalizeMAC(mac)] {
		if port.Int("port") == number {
			return port, true
		}
	}
	return nil, false
}

// -- settings, firmware, rf planning --

func (m *Module) handleFirmware(w http.ResponseWriter, r *http.Request) {
	if !m.requireSite(w, r) {
		return
	}
	m.ok(w, map[string]any{
		"curFwVer":     "1.0.10",
		"lastFwVer":    "1.0.12",
		"fwReleaseLog": "Virtual firmware changelog",
	})
}

func (m *Module) handleProfileSummary(w http.ResponseWriter, r *http.Request) {
	if !m.requireSite(w, r) {
		return
	}
	m.mu.Lock()
	out := make([]fixture.Record, 0, len(m.portProfiles))
	for _, p := range m.portProfiles {
		out = append(out, p.Clone())
	}
	m.mu.Unlock()

	m.ok(w, map[string]any{"data": out})
}

// handleWLANs derives one WLAN group per known access point, ordered by
// address so the ids are stable across requests.
func (m *Module) handleWLANs(w http.ResponseWriter, r *http.Request) {
	if !m.requireSite(w, r) {
		return
	}
	m.mu.Lock()
	macs := make([]string, 0, len(m.apDetails))
	for mac := range m.apDetails {
		macs = append(macs, mac)
	}
	sort.Strings(macs)

	wlans := make([]map[string]any, 0, len(macs))
	for idx, mac := range macs {
		name := m.apDetails[mac].String("name")
		if name == "" {
			name = "AP"
		}
		id := "wlan-" + strconv.Itoa(idx+1)
		wlans = append(wlans, map[string]any{
			"id":     id,
			"wlanId": id,
			"name":   name + " WLAN",
		})
	}
	m.mu.Unlock()

	m.ok(w, map[string]any{"data": wlans})
}

// handleWLANSSIDs collects SSID names from the AP overrides, falling back
// to the stock trio when no AP carries overrides.
func (m *Module) handleWLANSSIDs(w http.ResponseWriter, r *http.Request) {
	if !m.requireSite(w, r) {
		return
	}
	wlanID := r.PathValue("wlan")

	m.mu.Lock()
	names := make(map[string]bool)
	for _, ap := range m.apDetails {
		for _, override := range ap.Records("ssidOverrides") {
			if name := strings.TrimSpace(override.String("globalSsid")); name != "" {
				names[name] = true
			}
		}
	}
	m.mu.Unlock()

	if len(names) == 0 {
		names = map[string]bool{"Main-2.4G": true, "Main-5G": true, "Guest-5G": true}
	}

	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)

	ssids := make([]map[string]any, 0, len(sorted))
	for idx, name := range sorted {
		ssids = append(ssids, map[string]any{
			"id":   wlanID + "-" + strconv.Itoa(idx+1),
			"name": name,
		})
	}
	m.ok(w, map[string]any{"data": ssids})
}

func (m *Module) handleRFPlanning(w http.ResponseWriter, r *http.Request) {
	if !m.requireSite(w, r) {
		return
	}
	m.ok(w, map[string]any{"scheduleEnable": true})
}

func (m *Module) handleRFPlanningResult(w http.ResponseWriter, r *http.Request) {
	if !m.requireSite(w, r) {
		return
	}
	m.ok(w, map[string]any{"status": 2})
}

func (m *Module) handleRFPlanningSchedule(w http.ResponseWriter, r *http.Request) {
	if !m.requireSite(w, r) {
		return
	}
	decodeBody(r)
	m.message(w, "rf planning schedule updated")
}

func (m *Module) handleRFOptimization(w http.ResponseWriter, r *http.Request) {
	if !m.requireSite(w, r) {
		return
	}
	m.message(w, "optimization started")
}

func (m *Module) nowMillis() int64 {
	return m.clock.Now().UnixMilli()
}
