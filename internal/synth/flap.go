package synth

import (
	"time"

	"github.com/mocknet/virtualmodems/internal/fixture"
)

// FlapDescriptor defines a deterministic on/off presence oscillation: a
// square wave with the given period, duty cycle, and phase offset. It is a
// pure function of wall-clock time, so two reads inside the same sub-period
// always agree.
type FlapDescriptor struct {
	PeriodSeconds int
	OnRatio       float64
	OffsetSeconds int
}

// ParseFlap reads an optional "flap" block from a fixture record. Returns
// nil when the record has no descriptor. Period is floored at 2s and the
// on-ratio clamped into [0, 1]; defaultPeriod fills an absent period
// (dialects disagree on the default).
func ParseFlap(r fixture.Record, defaultPeriod int) *FlapDescriptor {
	block := r.Map("flap")
	if block == nil {
		return nil
	}

	period := block.Int("period_seconds")
	if period == 0 {
		period = defaultPeriod
	}
	if period < 2 {
		period = 2
	}

	ratio := 0.5
	if _, ok := block["on_ratio"]; ok {
		ratio = block.Float("on_ratio")
	}
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}

	return &FlapDescriptor{
		PeriodSeconds: period,
		OnRatio:       ratio,
		OffsetSeconds: block.Int("offset_seconds"),
	}
}

// State evaluates the square wave at now:
// ((now + offset) mod period) / period < on_ratio.
func (d *FlapDescriptor) State(now time.Time) bool {
	phase := float64((now.Unix()+int64(d.OffsetSeconds))%int64(d.PeriodSeconds)) / float64(d.PeriodSeconds)
	return phase < d.OnRatio
}
