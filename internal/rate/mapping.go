package rate

import (
	"fmt"
	"strings"
)

// Track binds a raw server counter to the name its rate is emitted under.
type Track struct {
	Counter string
	Output  string
}

// Mapping is the ordered list of tracked counters. Rates are produced in
// this order.
type Mapping []Track

// DefaultMapping returns the statement counters tracked in a standard
// deployment.
func DefaultMapping() Mapping {
	return Mapping{
		{Counter: "Com_delete", Output: "delete"},
		{Counter: "Com_insert", Output: "insert"},
		{Counter: "Com_update", Output: "update"},
		{Counter: "Com_select", Output: "select"},
		{Counter: "Questions", Output: "total_qps"},
	}
}

// ParseMapping reads a comma separated list of counter=output pairs, e.g.
// "Com_select=select,Questions=total_qps".
func ParseMapping(s string) (Mapping, error) {
	var m Mapping
	seen := make(map[string]bool)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		counter, output, ok := strings.Cut(part, "=")
		counter = strings.TrimSpace(counter)
		output = strings.TrimSpace(output)
		if !ok || counter == "" || output == "" {
			return nil, fmt.Errorf("invalid rate mapping %q: want counter=output", part)
		}
		if seen[output] {
			return nil, fmt.Errorf("duplicate rate output %q", output)
		}
		seen[output] = true
		m = append(m, Track{Counter: counter, Output: output})
	}
	if len(m) == 0 {
		return nil, fmt.Errorf("rate mapping is empty")
	}
	return m, nil
}

// Counters returns the raw counter names, in order.
func (m Mapping) Counters() []string {
	names := make([]string, 0, len(m))
	for _, t := range m {
		names = append(names, t.Counter)
	}
	return names
}

// Outputs returns the rate output names, in order.
func (m Mapping) Outputs() []string {
	names := make([]string, 0, len(m))
	for _, t := range m {
		names = append(names, t.Output)
	}
	return names
}

func (m Mapping) String() string {
	parts := make([]string, 0, len(m))
	for _, t := range m {
		parts = append(parts, t.Counter+"="+t.Output)
	}
	return strings.Join(parts, ",")
}
