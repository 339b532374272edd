package stats

import "testing"

func TestCounterIncIsNoopWhenStatsDisabled(t *testing.T) {
	var c Counter_t
	c.Inc()
	c.Inc()
	if Stats {
		t.Skip("Stats is enabled in this build; Inc is expected to count")
	}
	if c != 0 {
		t.Fatalf("Counter_t.Inc should be a no-op when Stats is false, got %d", c)
	}
}

func TestCyclesAddIsNoopWhenTimingDisabled(t *testing.T) {
	var c Cycles_t
	c.Add(Rdtsc())
	if Timing {
		t.Skip("Timing is enabled in this build; Add is expected to count")
	}
	if c != 0 {
		t.Fatalf("Cycles_t.Add should be a no-op when Timing is false, got %d", c)
	}
}

func TestStats2StringEmptyWhenDisabled(t *testing.T) {
	type counters struct {
		Hits Counter_t
	}
	s := Stats2String(counters{Hits: 5})
	if Stats {
		t.Skip("Stats is enabled in this build; Stats2String is expected to format")
	}
	if s != "" {
		t.Fatalf("Stats2String() = %q, want empty string when Stats is false", s)
	}
}
