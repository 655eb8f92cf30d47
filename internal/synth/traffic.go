package synth

// TrafficClass groups clients with similar link behavior. Each class
// carries plausible throughput bounds (kilobytes per second) and the
// disconnect/reconnect probabilities of its presence model.
type TrafficClass string

const (
	ClassWired  TrafficClass = "wired"
	ClassWiFi6  TrafficClass = "wifi6"
	ClassWiFi5  TrafficClass = "wifi5"
	ClassWiFi24 TrafficClass = "wifi24"
	ClassIoT    TrafficClass = "iot"
	ClassGuest  TrafficClass = "guest"
)

// RateBounds are per-class throughput envelopes in KB/s.
type RateBounds struct {
	DownMin, DownMax int
	UpMin, UpMax     int
}

type classProfile struct {
	bounds         RateBounds
	disconnectProb float64
	reconnectProb  float64
}

// Values mirror observed consumer-network behavior: wired links barely
// flap, guest wifi churns the most.
var classProfiles = map[TrafficClass]classProfile{
	ClassWired:  {RateBounds{6_000, 120_000, 4_000, 95_000}, 0.004, 0.35},
	ClassWiFi6:  {RateBounds{2_000, 95_000, 1_200, 62_000}, 0.015, 0.28},
	ClassWiFi5:  {RateBounds{400, 65_000, 220, 42_000}, 0.02, 0.25},
	ClassWiFi24: {RateBounds{30, 7_500, 18, 4_000}, 0.025, 0.22},
	ClassIoT:    {RateBounds{5, 1_400, 3, 800}, 0.01, 0.18},
	ClassGuest:  {RateBounds{60, 19_000, 35, 11_500}, 0.03, 0.24},
}

var defaultClassProfile = classProfile{RateBounds{30, 7_500, 18, 4_000}, 0.02, 0.22}

func profileFor(class TrafficClass) classProfile {
	if p, ok := classProfiles[class]; ok {
		return p
	}
	return defaultClassProfile
}

// Bounds returns the throughput envelope for a class.
func Bounds(class TrafficClass) RateBounds {
	return profileFor(class).bounds
}

// NextOnline applies one observation tick of the per-class presence model:
// an online client disconnects with the class's disconnect probability, an
// offline one reconnects with its reconnect probability.
func (s *Source) NextOnline(class TrafficClass, currentOnline bool) bool {
	p := profileFor(class)
	if currentOnline {
		return s.Float64() >= p.disconnectProb
	}
	return s.Float64() < p.reconnectProb
}
