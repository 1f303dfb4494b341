package domain

import "fmt"

// ConnectionError reports a failure to reach the monitored server or the
// metrics sink.
type ConnectionError struct {
	Op     string
	Target string
	Err    error
}

func (e *ConnectionError) Error() string {
	if e == nil || e.Err == nil {
		return "connection error"
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Target, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// CorruptStateError reports a persisted state file that cannot be trusted as
// a rate baseline.
type CorruptStateError struct {
	Path string
	Err  error
}

func (e *CorruptStateError) Error() string {
	if e == nil || e.Err == nil {
		return "corrupt state file"
	}
	return fmt.Sprintf("corrupt state file %s: %v", e.Path, e.Err)
}

func (e *CorruptStateError) Unwrap() error { return e.Err }

// ConfigurationError reports a missing or invalid setting.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Field, e.Reason)
}
