package rate

import (
	"mysql-collector/internal/domain"
)

// ComputeRates turns two counter observations into per-second rates.
//
// Elapsed time is the absolute difference of the two timestamps and floors
// to one second when they are equal. The delta of each counter is taken as
// an absolute value so that a counter reset (server restart) still yields a
// non-negative rate. That heuristic cannot tell a reset from a 64-bit
// rollover or an upstream bug; both are rated as |current - previous|.
//
// Tracked counters missing from current are skipped and their previous
// baseline is carried into the returned state. The caller persists the
// returned state.
func ComputeRates(previous domain.PersistedState, current domain.CounterSnapshot, tracked Mapping) ([]domain.RateResult, domain.PersistedState) {
	elapsed := current.ObservedAt.Sub(previous.ObservedAt).Seconds()
	if elapsed < 0 {
		elapsed = -elapsed
	}
	if elapsed == 0 {
		elapsed = 1
	}

	next := domain.PersistedState{
		Version:    previous.Version,
		ObservedAt: current.ObservedAt,
		Counters:   make(map[string]uint64, len(previous.Counters)),
	}
	for name, v := range previous.Counters {
		next.Counters[name] = v
	}

	results := make([]domain.RateResult, 0, len(tracked))
	for _, t := range tracked {
		value, ok := current.Counters[t.Counter]
		if !ok {
			continue
		}
		results = append(results, domain.RateResult{
			Name:      t.Output,
			PerSecond: float64(absDiff(value, previous.Counters[t.Output])) / elapsed,
		})
		next.Counters[t.Output] = value
	}
	return results, next
}

func absDiff(a, b uint64) uint64 {
	if a >= b {
		return a - b
	}
	return b - a
}
