package archer

import (
	"github.com/mocknet/virtualmodems/internal/fixture"
	"github.com/mocknet/virtualmodems/internal/synth"
)

const defaultFlapPeriod = 120

// Runtime caps for a ~1 Gbps wired / BE-class wireless environment, in
// bits per second (speeds) and kbps (link rates).
const (
	wiredDownCapMin = 45_000_000
	wiredDownCapMax = 125_000_000
	wiredUpCapMin   = 20_000_000
	wiredUpCapMax   = 95_000_000
	wiredRateMin    = 900_000
	wiredRateMax    = 1_050_000

	wifiDownCapMin = 400_000
	wifiDownCapMax = 95_000_000
	wifiUpCapMin   = 150_000
	wifiUpCapMax   = 65_000_000
	wifiRateMin    = 72_000
	wifiRateMax    = 2_401_000
)

// onlineMACs evaluates the smart_network flap descriptors without touching
// runtime figures, for views that only need presence.
func (m *Module) onlineMACs() map[string]bool {
	now := m.clock.Now()
	online := make(map[string]bool)
	for _, entry := range m.fx.Map("clients").Records("smart_network") {
		if flap := synth.ParseFlap(entry, defaultFlapPeriod); flap != nil && !flap.State(now) {
			continue
		}
		online[fixture.NormalizeMAC(entry.String("mac"))] = true
	}
	return online
}

// runtimeSmartNetwork renders the smart_network view: flapped-offline
// entries disappear entirely, the rest get fresh runtime figures. The flap
// block itself never leaves the fixture. Callers hold m.mu.
func (m *Module) runtimeSmartNetwork() []map[string]any {
	now := m.clock.Now()
	items := make([]map[string]any, 0)
	for _, entry := range m.fx.Map("clients").Records("smart_network") {
		if flap := synth.ParseFlap(entry, defaultFlapPeriod); flap != nil && !flap.State(now) {
			continue
		}
		cloned := entry.Clone()
		delete(cloned, "flap")
		m.randomizeRuntimeClient(cloned)
		items = append(items, cloned)
	}
	return items
}

// randomizeRuntimeClient advances one smart_network entry: speeds and link
// rates jitter under a per-tag cap, online time grows 2-35s, traffic usage
// grows by a burst derived from the current speeds, and signal wanders
// within [-92, -35] dBm. Mutates the clone in place.
func (m *Module) randomizeRuntimeClient(item fixture.Record) {
	var downCap, upCap, txCap, rxCap int
	if item.String("deviceTag") == "wired" {
		downCap = m.rand.IntBetween(wiredDownCapMin, wiredDownCapMax)
		upCap = m.rand.IntBetween(wiredUpCapMin, wiredUpCapMax)
		txCap = m.rand.IntBetween(wiredRateMin, wiredRateMax)
		rxCap = m.rand.IntBetween(wiredRateMin, wiredRateMax)
	} else {
		downCap = m.rand.IntBetween(wifiDownCapMin, wifiDownCapMax)
		upCap = m.rand.IntBetween(wifiUpCapMin, wifiUpCapMax)
		txCap = m.rand.IntBetween(wifiRateMin, wifiRateMax)
		rxCap = m.rand.IntBetween(wifiRateMin, wifiRateMax)
	}

	item["downloadSpeed"] = min(downCap, m.rand.Jitter(intOr(item, "downloadSpeed", downCap), 0.42, 0))
	item["uploadSpeed"] = min(upCap, m.rand.Jitter(intOr(item, "uploadSpeed", upCap), 0.42, 0))
	item["txRate"] = min(txCap, m.rand.Jitter(intOr(item, "txRate", txCap), 0.35, 1_000))
	item["rxRate"] = min(rxCap, m.rand.Jitter(intOr(item, "rxRate", rxCap), 0.35, 1_000))

	onlineTime := item.Int("onlineTime") + m.rand.IntBetween(2, 35)
	if onlineTime < 1 {
		onlineTime = 1
	}
	item["onlineTime"] = onlineTime

	burst := int(float64(item.Int("downloadSpeed")+item.Int("uploadSpeed")) * m.rand.Uniform(0.2, 0.9))
	item["trafficUsage"] = item.Int("trafficUsage") + burst

	if _, ok := item["signal"]; ok {
		signal := item.Int("signal")
		if signal == 0 {
			signal = -60
		}
		item["signal"] = clamp(signal+m.rand.IntBetween(-2, 2), -92, -35)
	}
}

// runtimeWirelessStats renders per-station packet counters, filtered to the
// currently online MACs and bumped per read. The bump lands on the response
// snapshot only; the fixture keeps its baseline. Callers hold m.mu.
func (m *Module) runtimeWirelessStats(online map[string]bool) []map[string]any {
	out := make([]map[string]any, 0)
	for _, entry := range m.fx.Map("clients").Records("wireless_stats") {
		if len(online) > 0 && !online[fixture.NormalizeMAC(entry.String("mac"))] {
			continue
		}
		cloned := entry.Clone()
		cloned["txpkts"] = cloned.Int("txpkts") + m.rand.IntBetween(20, 5_000)
		cloned["rxpkts"] = cloned.Int("rxpkts") + m.rand.IntBetween(20, 6_000)
		out = append(out, cloned)
	}
	return out
}

func intOr(r fixture.Record, key string, fallback int) int {
	if v := r.Int(key); v > 0 {
		return v
	}
	return fallback
}
