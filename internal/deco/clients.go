package deco

import (
	"encoding/base64"
	"fmt"

	"github.com/mocknet/virtualmodems/internal/fixture"
	"github.com/mocknet/virtualmodems/internal/synth"
)

// clientRuntime is the mutable telemetry of one catalog client. Presence
// follows either a flap descriptor (deterministic) or the per-class Markov
// model; throughput random-walks inside the class envelope while online.
type clientRuntime struct {
	class     synth.TrafficClass
	flap      *synth.FlapDescriptor
	online    bool
	downKB    int
	upKB      int
	downBytes int64
	upBytes   int64
}

// clientGroup describes one batch of generated clients that pad the
// baseline fixture out to a realistically busy mesh.
type clientGroup struct {
	label          string
	count          int
	class          synth.TrafficClass
	wireType       string
	connectionType string
	iface          string
	decoMAC        string
}

var generatedGroups = []clientGroup{
	{"wired-desktop", 8, synth.ClassWired, "wired", "wired", "main", "10-27-F5-7A-10-C0"},
	{"wifi-5g", 14, synth.ClassWiFi5, "wireless", "band5", "main", "10-27-F5-7A-10-C0"},
	{"wifi-6g", 8, synth.ClassWiFi6, "wireless", "band6", "main", "10-27-F5-7A-22-A0"},
	{"iot-sensor", 10, synth.ClassIoT, "wireless", "band2_4", "iot", "10-27-F5-7A-22-A0"},
	{"guest-phone", 8, synth.ClassGuest, "wireless", "band5", "guest", "10-27-F5-7A-10-C0"},
	{"guest-2g", 4, synth.ClassGuest, "wireless", "band2_4", "guest", "10-27-F5-7A-22-A0"},
}

const defaultFlapPeriod = 120

// buildClientCatalog combines the baseline fixture clients with the
// generated population. Addressing is deterministic: generated hosts are
// numbered per group, take 10.68.1.x from .61, and carry MACs under the
// 0A-DE-50 prefix, so repeated runs produce the same inventory.
func (m *Module) buildClientCatalog() {
	m.catalog = nil
	for _, client := range m.fx.Records("clients") {
		m.catalog = append(m.catalog, client.Clone())
	}

	ipOctet := 61
	for gi, group := range generatedGroups {
		for i := 1; i <= group.count; i++ {
			name := fmt.Sprintf("vm-%s-%02d", group.label, i)
			m.catalog = append(m.catalog, fixture.Record{
				"name":            base64.StdEncoding.EncodeToString([]byte(name)),
				"mac":             fmt.Sprintf("0A-DE-50-00-%02X-%02X", gi+1, i),
				"ip":              fmt.Sprintf("10.68.1.%d", ipOctet),
				"online":          true,
				"wire_type":       group.wireType,
				"connection_type": group.connectionType,
				"interface":       group.iface,
				"deco_mac":        group.decoMAC,
			})
			ipOctet++
		}
	}
}

// buildClientRuntime seeds per-client telemetry from the catalog. Baseline
// throughput figures are respected; zero or absent figures get a fresh draw
// inside the class envelope, and cumulative counters start from a plausible
// mid-life value so the first poll does not look like a factory reset.
func (m *Module) buildClientRuntime() {
	m.runtime = make(map[string]*clientRuntime, len(m.catalog))
	for _, client := range m.catalog {
		key := fixture.NormalizeMAC(client.String("mac"))
		class := classifyClient(client)
		bounds := synth.Bounds(class)

		rt := &clientRuntime{
			class:     class,
			flap:      synth.ParseFlap(client, defaultFlapPeriod),
			online:    true,
			downKB:    client.Int("down_kilobytes_per_s"),
			upKB:      client.Int("up_kilobytes_per_s"),
			downBytes: m.rand.Int64Between(250_000_000, 18_000_000_000),
			upBytes:   m.rand.Int64Between(180_000_000, 9_000_000_000),
		}
		if v, ok := client["online"]; ok {
			rt.online = v != false
		}
		if rt.downKB <= 0 {
			rt.downKB = m.rand.IntBetween(bounds.DownMin, bounds.DownMax)
		}
		if rt.upKB <= 0 {
			rt.upKB = m.rand.IntBetween(bounds.UpMin, bounds.UpMax)
		}
		m.runtime[key] = rt
	}
}

// classifyClient maps a catalog entry to its traffic class from the
// interface and band fields the Deco dialect carries.
func classifyClient(client fixture.Record) synth.TrafficClass {
	if client.String("wire_type") == "wired" || client.String("connection_type") == "wired" {
		return synth.ClassWired
	}
	switch client.String("interface") {
	case "guest":
		return synth.ClassGuest
	case "iot":
		return synth.ClassIoT
	}
	switch client.String("connection_type") {
	case "band2_4":
		return synth.ClassWiFi24
	case "band6":
		return synth.ClassWiFi6
	}
	return synth.ClassWiFi5
}

// runtimeClientList advances every client's telemetry one observation tick
// and renders the Deco client_list payload. Offline clients stay in the
// list with zeroed speeds; their cumulative counters hold still until the
// presence model brings them back. Callers hold m.mu.
func (m *Module) runtimeClientList() []map[string]any {
	now := m.clock.Now()
	elapsed := m.ticker.Tick()

	list := make([]map[string]any, 0, len(m.catalog))
	for _, client := range m.catalog {
		key := fixture.NormalizeMAC(client.String("mac"))
		rt := m.runtime[key]
		if rt == nil {
			continue
		}

		if rt.flap != nil {
			rt.online = rt.flap.State(now)
		} else {
			rt.online = m.rand.NextOnline(rt.class, rt.online)
		}

		if rt.online {
			bounds := synth.Bounds(rt.class)
			rt.downKB = m.rand.RateStep(rt.downKB, bounds.DownMin, bounds.DownMax)
			rt.upKB = m.rand.RateStep(rt.upKB, bounds.UpMin, bounds.UpMax)
		} else {
			rt.downKB = 0
			rt.upKB = 0
		}
		rt.downBytes = synth.AccumulateTraffic(rt.downBytes, rt.downKB, elapsed)
		rt.upBytes = synth.AccumulateTraffic(rt.upBytes, rt.upKB, elapsed)

		list = append(list, map[string]any{
			"name":            client.String("name"),
			"mac":             client.String("mac"),
			"ip":              client.String("ip"),
			"online":          rt.online,
			"wire_type":       client.String("wire_type"),
			"connection_type": client.String("connection_type"),
			"interface":       client.String("interface"),
			"down_speed":      rt.downKB,
			"up_speed":        rt.upKB,
			"traffic_down":    rt.downBytes,
			"traffic_up":      rt.upBytes,
			"traffic_usage":   rt.downBytes + rt.upBytes,
			"deco_mac":        client.String("deco_mac"),
		})
	}
	return list
}
