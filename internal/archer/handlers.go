package archer

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/mocknet/virtualmodems/internal/devcrypto"
	"github.com/mocknet/virtualmodems/internal/fixture"
)

func (m *Module) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeHTML(w, "<html><body><h1>Archer BE230 Virtual Router</h1></body></html>")
}

func (m *Module) handleWebIndex(w http.ResponseWriter, r *http.Request) {
	writeHTML(w, "<html><body>Archer BE230 Admin</body></html>")
}

func (m *Module) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	writeHTML(w, "<html><body>Router Login</body></html>")
}

func (m *Module) handleLibJS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/javascript")
	fmt.Fprint(w, "console.log('virtual router');")
}

// handleCGI routes every POST under /cgi-bin/luci/. The dialect matches
// endpoints by prefix, not exactly, and accepts any non-empty stok,
// including values from sessions that no longer exist. Integrations cache
// ;stok= paths across re-logins and real firmware keeps them working.
func (m *Module) handleCGI(w http.ResponseWriter, r *http.Request) {
	rest := r.PathValue("rest")
	form := r.URL.Query().Get("form")
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		m.writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"data":    map[string]any{},
			"error":   "unreadable body",
		})
		return
	}
	body := devcrypto.ParseFormBody(raw)

	if rest == loginRest {
		switch form {
		case "keys":
			m.success(w, map[string]any{
				"password": []string{m.keys.NHex(), m.keys.EHex()},
			})
			return
		case "auth":
			m.success(w, map[string]any{
				"seq": 1000,
				"key": []string{m.keys.NHex(), m.keys.EHex()},
			})
			return
		case "login":
			m.handleLogin(w)
			return
		}
	}

	if rest == ";stok=/device_config" {
		m.writeJSON(w, http.StatusOK, map[string]any{
			"data": map[string]any{"certification": []string{"NONE"}},
		})
		return
	}

	endpoint, ok := extractEndpoint(rest)
	if ok {
		m.mu.Lock()
		defer m.mu.Unlock()

		switch {
		case strings.HasPrefix(endpoint, "admin/status") && form == "all":
			m.success(w, m.statusAll())
		case strings.HasPrefix(endpoint, "admin/status") && form == "perf":
			m.success(w, m.statusPerf())
		case strings.HasPrefix(endpoint, "admin/firmware"):
			router := m.fx.Map("router")
			m.success(w, map[string]any{
				"hardware_version": router.String("hardware_version"),
				"model":            router.String("model"),
				"firmware_version": router.String("firmware_version"),
			})
		case strings.HasPrefix(endpoint, "admin/network"):
			m.success(w, m.networkIPv4())
		case strings.HasPrefix(endpoint, "admin/wireless") && form == "statistics":
			m.success(w, m.runtimeWirelessStats(m.onlineMACs()))
		case strings.HasPrefix(endpoint, "admin/smart_network"):
			m.success(w, m.runtimeSmartNetwork())
		case strings.HasPrefix(endpoint, "admin/system") && form == "reboot":
			m.success(w, map[string]any{"reboot": "ok"})
		case strings.HasPrefix(endpoint, "admin/system") && form == "logout":
			m.success(w, map[string]any{"logout": "ok"})
		case strings.HasPrefix(endpoint, "admin/wireless") && body["operation"] == "write":
			m.handleWifiToggle(w, form, body)
		case strings.HasPrefix(endpoint, "admin/openvpn"), strings.HasPrefix(endpoint, "admin/pptpd"):
			m.success(w, map[string]any{"enabled": "off"})
		case strings.HasPrefix(endpoint, "admin/vpnconn"):
			m.success(w, []any{})
		default:
			m.unsupported(w)
		}
		return
	}

	m.unsupported(w)
}

// handleLogin rotates the stok and sysauth cookie. Previously issued stok
// values stay valid; the lenient registry never forgets them.
func (m *Module) handleLogin(w http.ResponseWriter) {
	sess := m.sessions.MintSized("be230", stokHexWidth, nil)
	m.logger.Info("login", zap.String("stok", sess.StateToken))

	http.SetCookie(w, &http.Cookie{
		Name:     "sysauth",
		Value:    sess.Token,
		Path:     "/",
		HttpOnly: true,
	})
	m.success(w, map[string]any{
		"stok":      sess.StateToken,
		"errorcode": 0,
	})
}

// handleWifiToggle flips <form>_enable on the status block. Values other
// than on/off are ignored; a write without a form name still succeeds, some
// firmwares post those.
func (m *Module) handleWifiToggle(w http.ResponseWriter, form string, body map[string]string) {
	if form != "" {
		key := form + "_enable"
		if v := body[key]; v == "on" || v == "off" {
			m.fx.Map("status")[key] = v
		}
	}
	m.success(w, map[string]any{"updated": true})
}

// extractEndpoint splits ";stok=<token>/<endpoint>" and enforces only that
// the token is non-empty.
func extractEndpoint(rest string) (string, bool) {
	if !strings.HasPrefix(rest, ";stok=") {
		return "", false
	}
	token, endpoint, found := strings.Cut(strings.TrimPrefix(rest, ";stok="), "/")
	if !found || token == "" || endpoint == "" {
		return "", false
	}
	return endpoint, true
}

// -- payload builders (callers hold m.mu) --

func (m *Module) statusAll() map[string]any {
	router := m.fx.Map("router")
	clients := m.fx.Map("clients")
	smartNetwork := m.runtimeSmartNetwork()

	online := make(map[string]bool, len(smartNetwork))
	for _, item := range smartNetwork {
		online[fixture.NormalizeMAC(fixture.Record(item).String("mac"))] = true
	}

	payload := map[string]any{
		"wan_macaddr":                   router.String("wan_macaddr"),
		"lan_macaddr":                   router.String("lan_macaddr"),
		"wan_ipv4_ipaddr":               router.String("wan_ipv4_ipaddr"),
		"lan_ipv4_ipaddr":               router.String("lan_ipv4_ipaddr"),
		"wan_ipv4_gateway":              router.String("wan_ipv4_gateway"),
		"wan_ipv4_uptime":               175000,
		"access_devices_wired":          filterByMAC(clients.Records("wired"), online),
		"access_devices_wireless_host":  filterByMAC(clients.Records("host"), online),
		"access_devices_wireless_guest": filterByMAC(clients.Records("guest"), online),
	}
	for k, v := range m.fx.Map("status").Clone() {
		payload[k] = v
	}
	return payload
}

func (m *Module) statusPerf() map[string]any {
	status := m.fx.Map("status")
	cpu := m.rand.Jitter(status.Int("cpu_usage"), 0.45, 2)
	mem := m.rand.Jitter(status.Int("mem_usage"), 0.35, 5)
	return map[string]any{
		"cpu_usage": clamp(cpu, 2, 95),
		"mem_usage": clamp(mem, 5, 95),
	}
}

func (m *Module) networkIPv4() map[string]any {
	router := m.fx.Map("router")
	return map[string]any{
		"wan_macaddr":          router.String("wan_macaddr"),
		"wan_ipv4_ipaddr":      router.String("wan_ipv4_ipaddr"),
		"wan_ipv4_gateway":     router.String("wan_ipv4_gateway"),
		"wan_ipv4_conntype":    "dhcp",
		"wan_ipv4_netmask":     "255.255.255.0",
		"wan_ipv4_pridns":      "1.1.1.1",
		"wan_ipv4_snddns":      "8.8.8.8",
		"lan_macaddr":          router.String("lan_macaddr"),
		"lan_ipv4_ipaddr":      router.String("lan_ipv4_ipaddr"),
		"lan_ipv4_dhcp_enable": "on",
		"lan_ipv4_netmask":     "255.255.255.0",
	}
}

// filterByMAC keeps the entries whose macaddr is currently online. An empty
// presence set means no flap data applies and every entry passes.
func filterByMAC(entries []fixture.Record, online map[string]bool) []map[string]any {
	out := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		if len(online) > 0 && !online[fixture.NormalizeMAC(entry.String("macaddr"))] {
			continue
		}
		out = append(out, entry.Clone())
	}
	return out
}

// -- response plumbing --

func (m *Module) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		m.logger.Warn("write response", zap.Error(err))
	}
}

func (m *Module) success(w http.ResponseWriter, data any) {
	m.writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": data})
}

func (m *Module) unsupported(w http.ResponseWriter) {
	m.writeJSON(w, http.StatusNotFound, map[string]any{
		"success": false,
		"data":    map[string]any{},
		"error":   "unsupported",
	})
}

func writeHTML(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, body)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
