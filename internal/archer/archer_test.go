package archer

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mocknet/virtualmodems/internal/synth"
	"github.com/mocknet/virtualmodems/internal/testutil"
)

func newTestModule(t *testing.T) (*Module, *testutil.Clock) {
	t.Helper()
	clock := testutil.NewClock()
	m := New(WithClock(clock), WithSource(synth.NewSource(11)))
	require.NoError(t, m.Init(nil, testutil.Logger()))
	return m, clock
}

func newTestServer(t *testing.T) (*Module, *testutil.Clock, *httptest.Server) {
	t.Helper()
	m, clock := newTestModule(t)
	mux := http.NewServeMux()
	for _, route := range m.Routes() {
		mux.HandleFunc(route.Method+" "+route.Path, route.Handler)
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return m, clock, srv
}

func postJSON(t *testing.T, base, path string, form url.Values) (int, map[string]any) {
	t.Helper()
	resp, err := http.Post(base+path, "application/x-www-form-urlencoded",
		strings.NewReader(form.Encode()))
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func successData(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	require.Equal(t, true, body["success"], "expected success envelope, got %v", body)
	data, _ := body["data"].(map[string]any)
	return data
}

func TestStaticPages(t *testing.T) {
	_, _, srv := newTestServer(t)
	for _, path := range []string{"/", "/webpages/index.html", "/login.htm", "/js/lib.js"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, "GET %s", path)
	}
}

func TestKeysAndAuth(t *testing.T) {
	_, _, srv := newTestServer(t)

	_, body := postJSON(t, srv.URL, "/cgi-bin/luci/;stok=/login?form=keys", nil)
	data := successData(t, body)
	pair := data["password"].([]any)
	require.Len(t, pair, 2)
	assert.Regexp(t, "^[0-9a-f]+$", pair[0].(string))

	_, body = postJSON(t, srv.URL, "/cgi-bin/luci/;stok=/login?form=auth", nil)
	data = successData(t, body)
	assert.EqualValues(t, 1000, data["seq"])
	assert.Len(t, data["key"].([]any), 2)
}

type brokenBody struct{}

func (brokenBody) Read([]byte) (int, error) { return 0, errors.New("connection reset") }
func (brokenBody) Close() error             { return nil }

func TestCGIUnreadableBody(t *testing.T) {
	m, _ := newTestModule(t)

	req := httptest.NewRequest(http.MethodPost,
		"/cgi-bin/luci/;stok=abc123/admin/status?form=all", brokenBody{})
	req.SetPathValue("rest", ";stok=abc123/admin/status")
	rec := httptest.NewRecorder()

	m.handleCGI(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "unreadable body", body["error"])
}

func TestLoginRotatesStok(t *testing.T) {
	_, _, srv := newTestServer(t)
	stokPattern := regexp.MustCompile(`^be230-[0-9a-f]{12}$`)

	login := func() (string, string) {
		resp, err := http.Post(srv.URL+"/cgi-bin/luci/;stok=/login?form=login",
			"application/x-www-form-urlencoded", strings.NewReader("operation=login"))
		require.NoError(t, err)
		defer resp.Body.Close()

		var body map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		data := successData(t, body)

		cookie := ""
		for _, ck := range resp.Cookies() {
			if ck.Name == "sysauth" {
				cookie = ck.Value
			}
		}
		return data["stok"].(string), cookie
	}

	stok1, cookie1 := login()
	stok2, cookie2 := login()
	assert.Regexp(t, stokPattern, stok1)
	assert.Regexp(t, stokPattern, stok2)
	assert.NotEqual(t, stok1, stok2)
	assert.NotEqual(t, cookie1, cookie2)

	// Both the old and the new stok keep working.
	for _, stok := range []string{stok1, stok2} {
		status, body := postJSON(t, srv.URL, "/cgi-bin/luci/;stok="+stok+"/admin/firmware?form=firmware", nil)
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, true, body["success"])
	}
}

func TestStaleStokAccepted(t *testing.T) {
	_, _, srv := newTestServer(t)
	status, body := postJSON(t, srv.URL, "/cgi-bin/luci/;stok=never-issued/admin/firmware?form=firmware", nil)
	assert.Equal(t, http.StatusOK, status)
	data := successData(t, body)
	assert.Equal(t, "Archer BE230", data["model"])
}

func TestDeviceConfig(t *testing.T) {
	_, _, srv := newTestServer(t)
	_, body := postJSON(t, srv.URL, "/cgi-bin/luci/;stok=/device_config", nil)
	data := body["data"].(map[string]any)
	assert.Equal(t, []any{"NONE"}, data["certification"].([]any))
}

func TestStatusAll(t *testing.T) {
	_, _, srv := newTestServer(t)
	_, body := postJSON(t, srv.URL, "/cgi-bin/luci/;stok=abc/admin/status?form=all", nil)
	data := successData(t, body)

	assert.Equal(t, "9C-53-22-AB-10-00", data["wan_macaddr"])
	assert.Equal(t, "192.168.0.1", data["lan_ipv4_ipaddr"])
	assert.EqualValues(t, 175000, data["wan_ipv4_uptime"])
	assert.Equal(t, "on", data["wireless_2g_enable"])
	assert.NotNil(t, data["cpu_usage"])

	wired := data["access_devices_wired"].([]any)
	require.Len(t, wired, 1)
	assert.Equal(t, "NAS", wired[0].(map[string]any)["hostname"])
}

func TestStatusAllFlapFiltersClients(t *testing.T) {
	_, clock, srv := newTestServer(t)

	// At the pinned epoch every flap phase is 0: all clients online.
	_, body := postJSON(t, srv.URL, "/cgi-bin/luci/;stok=abc/admin/status?form=all", nil)
	data := successData(t, body)
	assert.Len(t, data["access_devices_wireless_host"].([]any), 2)
	assert.Len(t, data["access_devices_wireless_guest"].([]any), 1)

	// 153s later the thermostat's 90s/0.7 wave is off while the guest
	// phone's 150s/0.4(+45s) wave is on.
	clock.Advance(153 * time.Second)
	_, body = postJSON(t, srv.URL, "/cgi-bin/luci/;stok=abc/admin/status?form=all", nil)
	data = successData(t, body)

	host := data["access_devices_wireless_host"].([]any)
	require.Len(t, host, 1)
	assert.Equal(t, "Living-Room-TV", host[0].(map[string]any)["hostname"])
	assert.Len(t, data["access_devices_wireless_guest"].([]any), 1)
}

func TestStatusPerfBounded(t *testing.T) {
	_, _, srv := newTestServer(t)
	for i := 0; i < 20; i++ {
		_, body := postJSON(t, srv.URL, "/cgi-bin/luci/;stok=abc/admin/status?form=perf", nil)
		data := successData(t, body)
		cpu := data["cpu_usage"].(float64)
		mem := data["mem_usage"].(float64)
		assert.GreaterOrEqual(t, cpu, float64(2))
		assert.LessOrEqual(t, cpu, float64(95))
		assert.GreaterOrEqual(t, mem, float64(5))
		assert.LessOrEqual(t, mem, float64(95))
	}
}

func TestNetworkIPv4(t *testing.T) {
	_, _, srv := newTestServer(t)
	_, body := postJSON(t, srv.URL, "/cgi-bin/luci/;stok=abc/admin/network?form=wan_ipv4", nil)
	data := successData(t, body)
	assert.Equal(t, "dhcp", data["wan_ipv4_conntype"])
	assert.Equal(t, "203.0.113.42", data["wan_ipv4_ipaddr"])
	assert.Equal(t, "on", data["lan_ipv4_dhcp_enable"])
}

func TestSmartNetworkRuntime(t *testing.T) {
	_, _, srv := newTestServer(t)
	_, body := postJSON(t, srv.URL, "/cgi-bin/luci/;stok=abc/admin/smart_network?form=client_list", nil)
	require.Equal(t, true, body["success"])
	items := body["data"].([]any)
	require.Len(t, items, 4)

	for _, raw := range items {
		item := raw.(map[string]any)
		assert.NotContains(t, item, "flap", "flap descriptors must not leak")
		assert.Greater(t, item["onlineTime"].(float64), float64(0))
		assert.Greater(t, item["trafficUsage"].(float64), float64(0))
		if signal, ok := item["signal"].(float64); ok {
			assert.GreaterOrEqual(t, signal, float64(-92))
			assert.LessOrEqual(t, signal, float64(-35))
		}
	}
}

func TestSmartNetworkOnlineTimeAdvances(t *testing.T) {
	_, _, srv := newTestServer(t)
	read := func(mac string) float64 {
		_, body := postJSON(t, srv.URL, "/cgi-bin/luci/;stok=abc/admin/smart_network?form=client_list", nil)
		for _, raw := range body["data"].([]any) {
			item := raw.(map[string]any)
			if item["mac"] == mac {
				return item["onlineTime"].(float64)
			}
		}
		t.Fatalf("client %s missing from smart_network", mac)
		return 0
	}

	first := read("00-1B-A9-AA-03-30")
	second := read("00-1B-A9-AA-03-30")
	assert.Greater(t, second, first)
}

func TestWirelessStatistics(t *testing.T) {
	_, _, srv := newTestServer(t)
	_, body := postJSON(t, srv.URL, "/cgi-bin/luci/;stok=abc/admin/wireless?form=statistics", nil)
	require.Equal(t, true, body["success"])
	stats := body["data"].([]any)
	require.Len(t, stats, 3)

	for _, raw := range stats {
		item := raw.(map[string]any)
		assert.NotEmpty(t, item["mac"])
		assert.Greater(t, item["txpkts"].(float64), float64(0))
		assert.Greater(t, item["rxpkts"].(float64), float64(0))
	}
}

func TestWirelessStatisticsBumpNotPersisted(t *testing.T) {
	m, _, srv := newTestServer(t)
	baseline := m.fx.Map("clients").Records("wireless_stats")[0].Int("txpkts")

	postJSON(t, srv.URL, "/cgi-bin/luci/;stok=abc/admin/wireless?form=statistics", nil)
	postJSON(t, srv.URL, "/cgi-bin/luci/;stok=abc/admin/wireless?form=statistics", nil)

	assert.Equal(t, baseline, m.fx.Map("clients").Records("wireless_stats")[0].Int("txpkts"))
}

func TestWifiToggle(t *testing.T) {
	m, _, srv := newTestServer(t)

	_, body := postJSON(t, srv.URL, "/cgi-bin/luci/;stok=abc/admin/wireless?form=guest_2g", url.Values{
		"operation":       {"write"},
		"guest_2g_enable": {"on"},
	})
	data := successData(t, body)
	assert.Equal(t, true, data["updated"])
	assert.Equal(t, "on", m.fx.Map("status").String("guest_2g_enable"))

	// Toggling back off works and is idempotent.
	for i := 0; i < 2; i++ {
		postJSON(t, srv.URL, "/cgi-bin/luci/;stok=abc/admin/wireless?form=guest_2g", url.Values{
			"operation":       {"write"},
			"guest_2g_enable": {"off"},
		})
		assert.Equal(t, "off", m.fx.Map("status").String("guest_2g_enable"))
	}
}

func TestWifiToggleIgnoresInvalidValue(t *testing.T) {
	m, _, srv := newTestServer(t)
	postJSON(t, srv.URL, "/cgi-bin/luci/;stok=abc/admin/wireless?form=wireless_2g", url.Values{
		"operation":          {"write"},
		"wireless_2g_enable": {"maybe"},
	})
	assert.Equal(t, "on", m.fx.Map("status").String("wireless_2g_enable"))
}

func TestWifiWriteWithoutFormStillSucceeds(t *testing.T) {
	_, _, srv := newTestServer(t)
	status, body := postJSON(t, srv.URL, "/cgi-bin/luci/;stok=abc/admin/wireless", url.Values{
		"operation": {"write"},
	})
	assert.Equal(t, http.StatusOK, status)
	data := successData(t, body)
	assert.Equal(t, true, data["updated"])
}

func TestVPNEndpoints(t *testing.T) {
	_, _, srv := newTestServer(t)

	for _, path := range []string{"admin/openvpn", "admin/pptpd"} {
		_, body := postJSON(t, srv.URL, "/cgi-bin/luci/;stok=abc/"+path+"?form=config", nil)
		data := successData(t, body)
		assert.Equal(t, "off", data["enabled"])
	}

	_, body := postJSON(t, srv.URL, "/cgi-bin/luci/;stok=abc/admin/vpnconn?form=list", nil)
	require.Equal(t, true, body["success"])
	assert.Equal(t, []any{}, body["data"])
}

func TestSystemEndpoints(t *testing.T) {
	_, _, srv := newTestServer(t)

	_, body := postJSON(t, srv.URL, "/cgi-bin/luci/;stok=abc/admin/system?form=reboot", nil)
	assert.Equal(t, "ok", successData(t, body)["reboot"])

	_, body = postJSON(t, srv.URL, "/cgi-bin/luci/;stok=abc/admin/system?form=logout", nil)
	assert.Equal(t, "ok", successData(t, body)["logout"])
}

func TestUnsupportedEndpoint(t *testing.T) {
	_, _, srv := newTestServer(t)
	status, body := postJSON(t, srv.URL, "/cgi-bin/luci/;stok=abc/admin/nonsense?form=x", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "unsupported", body["error"])
}
