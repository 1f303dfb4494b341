package domain

import "time"

// CounterSnapshot is one observation of cumulative counters, keyed by the
// raw server variable name (e.g. Com_select).
type CounterSnapshot struct {
	ObservedAt time.Time
	Counters   map[string]uint64
}

// ObservationTime strips the monotonic reading and anything finer than a
// microsecond, the resolution a persisted baseline keeps. Elapsed time is
// then the same whether the previous snapshot came from memory or disk.
func ObservationTime(t time.Time) time.Time {
	return t.Round(0).Truncate(time.Microsecond)
}

// PersistedState is the baseline used for rate math. Counters are keyed by
// the output rate name (e.g. select, total_qps).
type PersistedState struct {
	Version    int
	ObservedAt time.Time
	Counters   map[string]uint64
}

// RateResult is a derived per-second rate for one tracked counter.
type RateResult struct {
	Name      string
	PerSecond float64
}
