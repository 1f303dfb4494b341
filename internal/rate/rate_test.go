package rate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mysql-collector/internal/domain"
)

func stateAt(ts time.Time, counters map[string]uint64) domain.PersistedState {
	return domain.PersistedState{Version: 1, ObservedAt: ts, Counters: counters}
}

func TestComputeRates_Basic(t *testing.T) {
	t0 := time.Unix(1700000000, 0)

	previous := stateAt(t0, map[string]uint64{"delete": 10, "insert": 20, "update": 30, "select": 100, "total_qps": 1000})
	current := domain.CounterSnapshot{
		ObservedAt: t0.Add(10 * time.Second),
		Counters: map[string]uint64{
			"Com_delete": 20,
			"Com_insert": 70,
			"Com_update": 30,
			"Com_select": 160,
			"Questions":  1500,
			"Uptime":     99,
		},
	}

	results, next := ComputeRates(previous, current, DefaultMapping())

	require.Len(t, results, 5)
	assert.Equal(t, []domain.RateResult{
		{Name: "delete", PerSecond: 1},
		{Name: "insert", PerSecond: 5},
		{Name: "update", PerSecond: 0},
		{Name: "select", PerSecond: 6},
		{Name: "total_qps", PerSecond: 50},
	}, results)

	assert.Equal(t, current.ObservedAt, next.ObservedAt)
	assert.Equal(t, map[string]uint64{"delete": 20, "insert": 70, "update": 30, "select": 160, "total_qps": 1500}, next.Counters)
	assert.Equal(t, 1, next.Version)
}

func TestComputeRates_NonNegative(t *testing.T) {
	t0 := time.Unix(1700000000, 0)
	cases := []struct {
		prev, cur uint64
	}{
		{0, 0}, {0, 10}, {10, 0}, {1 << 40, 3}, {^uint64(0), 0}, {7, 7},
	}
	for _, c := range cases {
		previous := stateAt(t0, map[string]uint64{"select": c.prev})
		current := domain.CounterSnapshot{
			ObservedAt: t0.Add(3 * time.Second),
			Counters:   map[string]uint64{"Com_select": c.cur},
		}
		results, _ := ComputeRates(previous, current, DefaultMapping())
		require.Len(t, results, 1)
		assert.GreaterOrEqual(t, results[0].PerSecond, 0.0)
	}
}

func TestComputeRates_CounterReset(t *testing.T) {
	t0 := time.Unix(1700000000, 0)
	previous := stateAt(t0, map[string]uint64{"select": 1000})
	current := domain.CounterSnapshot{
		ObservedAt: t0.Add(10 * time.Second),
		Counters:   map[string]uint64{"Com_select": 5},
	}

	results, next := ComputeRates(previous, current, DefaultMapping())

	require.Len(t, results, 1)
	assert.Equal(t, "select", results[0].Name)
	assert.InDelta(t, 99.5, results[0].PerSecond, 1e-9)
	assert.Equal(t, uint64(5), next.Counters["select"])
}

func TestComputeRates_ZeroElapsed(t *testing.T) {
	t0 := time.Unix(1700000000, 0)
	previous := stateAt(t0, map[string]uint64{"insert": 4})
	current := domain.CounterSnapshot{
		ObservedAt: t0,
		Counters:   map[string]uint64{"Com_insert": 10},
	}

	results, _ := ComputeRates(previous, current, DefaultMapping())

	require.Len(t, results, 1)
	assert.Equal(t, 6.0, results[0].PerSecond)
}

func TestComputeRates_ClockStepBack(t *testing.T) {
	t0 := time.Unix(1700000000, 0)
	previous := stateAt(t0, map[string]uint64{"select": 0})
	current := domain.CounterSnapshot{
		ObservedAt: t0.Add(-4 * time.Second),
		Counters:   map[string]uint64{"Com_select": 8},
	}

	results, _ := ComputeRates(previous, current, DefaultMapping())

	require.Len(t, results, 1)
	assert.Equal(t, 2.0, results[0].PerSecond)
}

func TestComputeRates_MissingCounterSkipped(t *testing.T) {
	t0 := time.Unix(1700000000, 0)
	previous := stateAt(t0, map[string]uint64{"delete": 3, "select": 10})
	current := domain.CounterSnapshot{
		ObservedAt: t0.Add(2 * time.Second),
		Counters:   map[string]uint64{"Com_select": 14},
	}

	results, next := ComputeRates(previous, current, DefaultMapping())

	assert.Equal(t, []domain.RateResult{{Name: "select", PerSecond: 2}}, results)
	assert.Equal(t, uint64(3), next.Counters["delete"], "baseline for an absent counter is carried forward")
	assert.Equal(t, uint64(14), next.Counters["select"])
}

func TestComputeRates_DoesNotMutateInputs(t *testing.T) {
	t0 := time.Unix(1700000000, 0)
	prevCounters := map[string]uint64{"select": 1}
	previous := stateAt(t0, prevCounters)
	current := domain.CounterSnapshot{
		ObservedAt: t0.Add(time.Second),
		Counters:   map[string]uint64{"Com_select": 2},
	}

	ComputeRates(previous, current, DefaultMapping())

	assert.Equal(t, map[string]uint64{"select": 1}, prevCounters)
}

func TestComputeRates_SequenceMatchesRestart(t *testing.T) {
	t0 := time.Unix(1700000000, 0)
	snaps := []domain.CounterSnapshot{
		{ObservedAt: t0.Add(10 * time.Second), Counters: map[string]uint64{"Com_select": 100, "Questions": 200}},
		{ObservedAt: t0.Add(20 * time.Second), Counters: map[string]uint64{"Com_select": 160, "Questions": 260}},
		{ObservedAt: t0.Add(35 * time.Second), Counters: map[string]uint64{"Com_select": 190, "Questions": 410}},
	}
	start := stateAt(t0, map[string]uint64{})

	var continuous [][]domain.RateResult
	st := start
	for _, s := range snaps {
		var r []domain.RateResult
		r, st = ComputeRates(st, s, DefaultMapping())
		continuous = append(continuous, r)
	}

	// A copy of the state between cycles stands in for a process restart.
	st = start
	for i, s := range snaps {
		restored := domain.PersistedState{Version: st.Version, ObservedAt: st.ObservedAt, Counters: map[string]uint64{}}
		for k, v := range st.Counters {
			restored.Counters[k] = v
		}
		var r []domain.RateResult
		r, st = ComputeRates(restored, s, DefaultMapping())
		assert.Equal(t, continuous[i], r)
	}
}

func TestParseMapping(t *testing.T) {
	m, err := ParseMapping("Com_select = select, Questions=total_qps,")
	require.NoError(t, err)
	assert.Equal(t, Mapping{{Counter: "Com_select", Output: "select"}, {Counter: "Questions", Output: "total_qps"}}, m)
	assert.Equal(t, "Com_select=select,Questions=total_qps", m.String())
	assert.Equal(t, []string{"Com_select", "Questions"}, m.Counters())
	assert.Equal(t, []string{"select", "total_qps"}, m.Outputs())

	_, err = ParseMapping("Com_select")
	assert.Error(t, err)

	_, err = ParseMapping("a=x,b=x")
	assert.Error(t, err)

	_, err = ParseMapping(" , ")
	assert.Error(t, err)
}
