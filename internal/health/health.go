package health

// Severity is the outcome of a connection-count check.
type Severity int

const (
	OK Severity = iota
	Warning
	Critical
)

// ExitUnknown is the exit code used when the check could not be evaluated,
// e.g. the monitored server was unreachable.
const ExitUnknown = 3

// ExitConfig is the exit code for invalid settings or an unreadable state
// file; neither is fixed by retrying.
const ExitConfig = 4

func (s Severity) String() string {
	switch s {
	case OK:
		return "OK"
	case Warning:
		return "WARNING"
	case Critical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// ExitCode maps the severity to the alerting exit status.
func (s Severity) ExitCode() int {
	switch s {
	case OK:
		return 0
	case Warning:
		return 1
	case Critical:
		return 2
	default:
		return ExitUnknown
	}
}

// Evaluate compares connections against the warning and critical thresholds.
// The critical rule is checked first, so with warning >= critical anything at
// or above critical is CRITICAL and the warning band is empty.
func Evaluate(connections, warning, critical int) Severity {
	switch {
	case connections >= critical:
		return Critical
	case connections >= warning:
		return Warning
	default:
		return OK
	}
}
