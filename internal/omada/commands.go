package omada

import (
	"net/http"

	"github.com/mocknet/virtualmodems/internal/fixture"
)

func (m *Module) handleClientCommand(w http.ResponseWriter, r *http.Request) {
	if !m.requireSite(w, r) {
		return
	}
	mac, action := r.PathValue("mac"), r.PathValue("action")

	switch action {
	case "block", "unblock", "reconnect":
	default:
		m.unsupportedAction(w)
		return
	}

	m.mu.Lock()
	client := m.ensureClient(mac)
	switch action {
	case "block":
		client["blocked"] = true
	case "unblock":
		client["blocked"] = false
	}
	m.mu.Unlock()

	m.message(w, "client "+action)
}

func (m *Module) handleDeviceCommand(w http.ResponseWriter, r *http.Request) {
	if !m.requireSite(w, r) {
		return
	}
	action := r.PathValue("action")
	if action != "reboot" && action != "onlineUpgrade" {
		m.unsupportedAction(w)
		return
	}
	m.message(w, "device "+action)
}

// handleGatewayCommand flips a WAN port's connectivity state. The port's
// stat entry is mutated and mirrored into the matching portConfigs entry,
// which is where the detail view reads it back from.
func (m *Module) handleGatewayCommand(w http.ResponseWriter, r *http.Request) {
	if !m.requireSite(w, r) {
		return
	}
	action := r.PathValue("action")
	if action != "internetState" && action != "ipv6State" {
		m.unsupportedAction(w)
		return
	}

	payload := decodeBody(r)
	portNumber := 1
	if _, ok := payload["portId"]; ok {
		portNumber = payload.Int("portId")
	}
	mode := 1
	if _, ok := payload["operation"]; ok {
		if payload.Int("operation") != 1 {
			mode = 0
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	gateway := m.gatewayDetail(r.PathValue("mac"))
	for _, port := range gateway.Records("portStats") {
		if port.Int("port") != portNumber {
			continue
		}

		var result map[string]any
		if action == "internetState" {
			port["internetState"] = mode
			result = map[string]any{
				"port":         portNumber,
				"mode":         port.Int("mode"),
				"wanConnected": mode == 1,
			}
		} else {
			ipv6 := fixture.Record{}
			if existing := port.Map("wanPortIpv6Config"); existing != nil {
				ipv6 = existing.Clone()
			}
			ipv6["enable"] = 1
			ipv6["internetState"] = mode
			port["wanPortIpv6Config"] = map[string]any(ipv6)
			result = map[string]any{
				"port":             portNumber,
				"mode":             port.Int("mode"),
				"wanConnected":     port.Int("internetState") == 1,
				"wanIpv6Enabled":   true,
				"ipv6WanConnected": mode == 1,
			}
		}

		for _, cfg := range gateway.Records("portConfigs") {
			if cfg.Int("port") == portNumber {
				cfg["portStat"] = map[string]any(port.Clone())
			}
		}
		m.ok(w, result)
		return
	}

	m.portNotFound(w, "gateway port not found")
}
