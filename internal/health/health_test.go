package health

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvaluate(t *testing.T) {
	cases := []struct {
		name                           string
		connections, warning, critical int
		want                           Severity
	}{
		{"below warning", 350, 400, 500, OK},
		{"at warning", 400, 400, 500, Warning},
		{"warning band", 420, 400, 500, Warning},
		{"at critical", 500, 400, 500, Critical},
		{"above critical", 501, 400, 500, Critical},
		{"inverted thresholds", 600, 500, 400, Critical},
		{"inverted thresholds between", 450, 500, 400, Critical},
		{"inverted thresholds below", 100, 500, 400, OK},
		{"zero", 0, 0, 0, Critical},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, Evaluate(c.connections, c.warning, c.critical))
		})
	}
}

func TestSeverityExitCode(t *testing.T) {
	assert.Equal(t, 0, OK.ExitCode())
	assert.Equal(t, 1, Warning.ExitCode())
	assert.Equal(t, 2, Critical.ExitCode())
	assert.Equal(t, ExitUnknown, Severity(9).ExitCode())

	assert.Equal(t, "OK", OK.String())
	assert.Equal(t, "WARNING", Warning.String())
	assert.Equal(t, "CRITICAL", Critical.String())
	assert.Equal(t, "UNKNOWN", Severity(-1).String())
}
