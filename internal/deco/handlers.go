package deco

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/mocknet/virtualmodems/internal/devcrypto"
	"github.com/mocknet/virtualmodems/internal/fixture"
	"github.com/mocknet/virtualmodems/internal/session"
)

// Dialect error codes mirrored from the firmware's login CGI.
const (
	codeMissingCredential = -1
	codeInvalidSign       = -2
	codeInvalidPayload    = -3
	codeInvalidOperation  = -4
)

// commandFunc handles one authenticated operation and returns the inner
// payload object, which is then encrypted into the response envelope.
type commandFunc func(payload fixture.Record) (any, error)

// registerCommands builds the (endpoint, form) dispatch table. Exact
// matches only; anything else is an unsupported-endpoint error that echoes
// the pair, which keeps debugging against real client traffic logs sane.
func (m *Module) registerCommands() {
	m.commands = map[string]commandFunc{
		"admin/device::device_list":  m.cmdDeviceList,
		"admin/network::wan_ipv4":    m.cmdWANIPv4,
		"admin/network::performance": m.cmdPerformance,
		"admin/wireless::wlan":       m.cmdWLAN,
		"admin/client::client_list":  m.cmdClientList,
		"admin/device::system":       m.cmdSystem,
		"admin/system::logout":       m.cmdLogout,
	}
}

func (m *Module) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, "<html><body><h1>Virtual TP-Link Deco X50</h1>"+
		"<p>Use this URL as host in <code>ha-tplink-deco</code> integration.</p>"+
		"</body></html>")
}

// handleCGI is the single entry point of the Deco dialect. Login forms are
// served unauthenticated; everything else needs a resolvable sysauth cookie
// and an exact state-token match in the path.
func (m *Module) handleCGI(w http.ResponseWriter, r *http.Request) {
	rest := r.PathValue("rest")
	form := r.URL.Query().Get("form")
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		m.plainError(w, http.StatusBadRequest, codeMissingCredential, "unreadable body")
		return
	}

	if rest == loginRest {
		switch form {
		case "keys":
			m.plainJSON(w, http.StatusOK, map[string]any{
				"error_code": 0,
				"result": map[string]any{
					"password": []string{m.keys.NHex(), m.keys.EHex()},
				},
			})
			return
		case "auth":
			m.plainJSON(w, http.StatusOK, map[string]any{
				"error_code": 0,
				"result": map[string]any{
					"seq": m.seq,
					"key": []string{m.keys.NHex(), m.keys.EHex()},
				},
			})
			return
		case "login":
			m.handleLogin(w, raw)
			return
		}
	}

	sess := m.sessionFromRequest(r)
	if sess == nil {
		m.plainError(w, http.StatusForbidden, 403, "unauthorized")
		return
	}

	stokPart, endpoint, found := strings.Cut(rest, "/")
	stok := strings.TrimPrefix(stokPart, ";stok=")
	if !found || !strings.HasPrefix(stokPart, ";stok=") || !m.sessions.ValidateStateToken(sess, stok) {
		m.plainError(w, http.StatusNotFound, 404, "bad stok")
		return
	}

	payload, err := m.readPayload(sess, raw)
	if err != nil {
		m.plainError(w, http.StatusBadRequest, codeInvalidPayload,
			fmt.Sprintf("invalid encrypted payload: %v", err))
		return
	}

	cmd, ok := m.commands[endpoint+"::"+form]
	if !ok {
		m.plainError(w, http.StatusNotFound, 404,
			fmt.Sprintf("unsupported endpoint %s::%s", endpoint, form))
		return
	}

	m.mu.Lock()
	result, err := cmd(payload)
	m.mu.Unlock()
	if err != nil {
		m.plainError(w, http.StatusBadRequest, codeInvalidOperation, err.Error())
		return
	}

	m.encryptedJSON(w, sess, map[string]any{"error_code": 0, "result": result})
}

// handleLogin performs the key-exchange login: recover the AES key/IV from
// the RSA-chunked sign blob, decrypt the data payload with it, and require
// operation=login before minting a session.
func (m *Module) handleLogin(w http.ResponseWriter, raw []byte) {
	signHex, dataB64 := devcrypto.ParseSignPayload(raw)
	if signHex == "" || dataB64 == "" {
		m.plainError(w, http.StatusBadRequest, codeMissingCredential, "missing sign/data")
		return
	}

	signText, err := m.keys.DecryptSignChunks(signHex)
	if err != nil {
		m.plainError(w, http.StatusBadRequest, codeInvalidSign,
			fmt.Sprintf("invalid sign payload: %v", err))
		return
	}
	signFields := devcrypto.ParseSignFields(signText)
	key, iv := signFields["k"], signFields["i"]
	if key == "" || iv == "" {
		m.plainError(w, http.StatusBadRequest, codeInvalidSign, "invalid sign")
		return
	}

	cipher, err := devcrypto.NewCBCContext(key, iv)
	if err != nil {
		m.plainError(w, http.StatusBadRequest, codeInvalidPayload,
			fmt.Sprintf("invalid encrypted payload: %v", err))
		return
	}
	payload, err := decryptJSON(cipher, dataB64)
	if err != nil {
		m.plainError(w, http.StatusBadRequest, codeInvalidPayload,
			fmt.Sprintf("invalid encrypted payload: %v", err))
		return
	}

	if payload.String("operation") != "login" {
		m.plainError(w, http.StatusBadRequest, codeInvalidOperation, "invalid operation")
		return
	}

	sess := m.sessions.Mint("deco", cipher)
	m.logger.Info("login", zap.String("stok", sess.StateToken))

	inner := map[string]any{
		"error_code": 0,
		"result":     map[string]any{"stok": sess.StateToken},
	}
	http.SetCookie(w, &http.Cookie{
		Name:     "sysauth",
		Value:    sess.Token,
		Path:     "/",
		HttpOnly: true,
	})
	m.encryptedJSON(w, sess, inner)
}

func (m *Module) sessionFromRequest(r *http.Request) *session.Session {
	cookie, err := r.Cookie("sysauth")
	if err != nil {
		return nil
	}
	sess, ok := m.sessions.Resolve(cookie.Value)
	if !ok {
		return nil
	}
	return sess
}

// readPayload decrypts the optional data field of an authenticated request
// body. An absent field is an empty payload, not an error.
func (m *Module) readPayload(sess *session.Session, raw []byte) (fixture.Record, error) {
	_, dataB64 := devcrypto.ParseSignPayload(raw)
	if dataB64 == "" {
		return fixture.Record{}, nil
	}
	return decryptJSON(sess.Cipher, dataB64)
}

func decryptJSON(cipher *devcrypto.CBCContext, dataB64 string) (fixture.Record, error) {
	plain, err := cipher.DecryptB64(dataB64)
	if err != nil {
		return nil, err
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(plain), &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", devcrypto.ErrInvalidPayload, err)
	}
	return fixture.Record(payload), nil
}

// -- command handlers --

func (m *Module) cmdDeviceList(fixture.Record) (any, error) {
	devices := make([]map[string]any, 0, len(m.fx.Records("decos")))
	for _, deco := range m.fx.Records("decos") {
		name := strings.TrimSpace(deco.String("name"))
		if name == "" {
			name = deco.String("device_model")
		}
		if name == "" {
			name = "Deco"
		}

		groupStatus := "connected"
		if v, ok := deco["online"]; ok && v == false {
			groupStatus = "disconnected"
		}
		inetStatus := "online"
		if v, ok := deco["internet_online"]; ok && v == false {
			inetStatus = "offline"
		}

		devices = append(devices, map[string]any{
			"mac":             deco.String("mac"),
			"nickname":        strings.ReplaceAll(strings.ToLower(name), " ", "_"),
			"custom_nickname": deco["custom_nickname"],
			"role":            stringOr(deco, "role", "slave"),
			"device_model":    stringOr(deco, "device_model", "Deco"),
			"hardware_ver":    stringOr(deco, "hardware_ver", "1.0"),
			"software_ver":    stringOr(deco, "software_ver", "1.0.0"),
			"device_ip":       stringOr(deco, "ip_address", "10.68.0.1"),
			"group_status":    groupStatus,
			"inet_status":     inetStatus,
			"connection_type": stringOr(deco, "connection_type", "wired"),
			"bssid_2g":        deco["bssid_band2_4"],
			"bssid_5g":        deco["bssid_band5"],
			"signal_level": map[string]any{
				"band2_4": deco["signal_band2_4"],
				"band5":   deco["signal_band5"],
			},
		})
	}
	return map[string]any{"device_list": devices}, nil
}

func (m *Module) cmdWANIPv4(fixture.Record) (any, error) {
	return m.fx.Map("network").Clone(), nil
}

// cmdPerformance returns the fixture cpu/mem figures with per-read jitter,
// clamped to plausible utilization ranges.
func (m *Module) cmdPerformance(fixture.Record) (any, error) {
	perf := m.fx.Map("performance").Clone()
	cpu := perf.Int("cpu_usage")
	if cpu == 0 {
		cpu = 12
	}
	mem := perf.Int("mem_usage")
	if mem == 0 {
		mem = 24
	}
	perf["cpu_usage"] = clamp(int(float64(cpu)*m.rand.Uniform(0.7, 1.45)), 2, 95)
	perf["mem_usage"] = clamp(int(float64(mem)*m.rand.Uniform(0.75, 1.35)), 5, 95)
	return perf, nil
}

// cmdWLAN reads the wireless block; a write operation toggles the enable
// flag per band/group. Only the enable flag is writable, and only for
// bands and groups already present in the fixture.
func (m *Module) cmdWLAN(payload fixture.Record) (any, error) {
	wireless := m.fx.Map("wireless")
	if payload.String("operation") == "write" {
		params := payload.Map("params")
		for bandKey := range params {
			band := wireless.Map(bandKey)
			value := params.Map(bandKey)
			if band == nil || value == nil {
				continue
			}
			for groupName := range value {
				group := band.Map(groupName)
				groupPayload := value.Map(groupName)
				if group == nil || groupPayload == nil {
					continue
				}
				if enable, ok := groupPayload["enable"]; ok {
					group["enable"] = truthy(enable)
				}
			}
		}
	}
	return wireless.Clone(), nil
}

func (m *Module) cmdClientList(fixture.Record) (any, error) {
	return map[string]any{"client_list": m.runtimeClientList()}, nil
}

func (m *Module) cmdSystem(fixture.Record) (any, error) {
	return map[string]any{"reboot": "ok"}, nil
}

func (m *Module) cmdLogout(fixture.Record) (any, error) {
	return map[string]any{"logout": true}, nil
}

// -- response plumbing --

func (m *Module) plainJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		m.logger.Warn("write response", zap.Error(err))
	}
}

func (m *Module) plainError(w http.ResponseWriter, status, code int, msg string) {
	m.plainJSON(w, status, map[string]any{"error_code": code, "msg": msg})
}

// encryptedJSON wraps an inner payload in the encrypted envelope:
// {"error_code":0,"data":"<AES-CBC+base64>"}.
func (m *Module) encryptedJSON(w http.ResponseWriter, sess *session.Session, inner any) {
	plain, err := json.Marshal(inner)
	if err != nil {
		m.plainError(w, http.StatusInternalServerError, -1, "marshal response")
		return
	}
	m.plainJSON(w, http.StatusOK, map[string]any{
		"error_code": 0,
		"data":       sess.Cipher.EncryptB64(string(plain)),
	})
}

// -- small helpers --

func stringOr(r fixture.Record, key, fallback string) string {
	if s := r.String(key); s != "" {
		return s
	}
	return fallback
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

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t == "true" || t == "on" || t == "1"
	default:
		return false
	}
}
