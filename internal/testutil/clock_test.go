package testutil

import (
	"testing"
	"time"
)

func TestClock(t *testing.T) {
	c := NewClock()
	start := c.Now()

	c.Advance(90 * time.Second)
	if got := c.Now().Sub(start); got != 90*time.Second {
		t.Errorf("Advance moved clock by %v, want 90s", got)
	}

	fixed := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	c.Set(fixed)
	if !c.Now().Equal(fixed) {
		t.Errorf("Set: Now() = %v, want %v", c.Now(), fixed)
	}
}
