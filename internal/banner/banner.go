// Package banner prints the human-facing startup summary: the URLs a test
// client can reach the emulated device on, plus per-profile login hints.
// Best-effort output; it never blocks or fails startup.
package banner

import (
	"fmt"
	"net"
	"os"
	"sort"
	"strings"

	"github.com/mocknet/virtualmodems/internal/profile"
)

// PrintStartup writes the banner for an active profile to stdout.
func PrintStartup(p profile.Profile, host string, port int) {
	addrs := []string{host}
	if host == "0.0.0.0" || host == "::" {
		addrs = localIPv4Candidates()
	}

	fmt.Println()
	fmt.Printf("[virtualmodems] profile=%s (%s) started\n", p.Name(), p.Title())
	fmt.Println("[virtualmodems] accessible URLs:")
	for _, addr := range addrs {
		fmt.Printf("  - %s\n", formatURL(addr, port))
	}
	for _, hint := range p.Hints() {
		fmt.Printf("  %s\n", hint)
	}
	fmt.Println()
}

func formatURL(addr string, port int) string {
	if port == 80 {
		return fmt.Sprintf("http://%s/", addr)
	}
	return fmt.Sprintf("http://%s:%d/", addr, port)
}

// localIPv4Candidates discovers plausible local addresses: loopback, the
// outward-facing address, and hostname resolutions. Localhost sorts first,
// the rest numerically, so output is stable across runs.
func localIPv4Candidates() []string {
	seen := map[string]bool{"127.0.0.1": true}

	// Best effort: discover the outward-facing local address.
	if conn, err := net.Dial("udp", "8.8.8.8:80"); err == nil {
		if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok && addr.IP.To4() != nil {
			seen[addr.IP.String()] = true
		}
		conn.Close()
	}

	if hostname, err := os.Hostname(); err == nil {
		if resolved, err := net.LookupIP(hostname); err == nil {
			for _, ip := range resolved {
				if v4 := ip.To4(); v4 != nil {
					seen[v4.String()] = true
				}
			}
		}
	}

	candidates := make([]string, 0, len(seen))
	for ip := range seen {
		candidates = append(candidates, ip)
	}
	sort.Slice(candidates, func(i, j int) bool {
		return sortKey(candidates[i]) < sortKey(candidates[j])
	})
	return candidates
}

// sortKey orders loopback first, then dotted quads numerically.
func sortKey(ip string) string {
	if ip == "127.0.0.1" {
		return "0"
	}
	parts := strings.Split(ip, ".")
	if len(parts) != 4 {
		return "2" + ip
	}
	var b strings.Builder
	b.WriteString("1")
	for _, p := range parts {
		fmt.Fprintf(&b, "%03s", p)
	}
	return b.String()
}
