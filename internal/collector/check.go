package collector

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"mysql-collector/internal/health"
	"mysql-collector/internal/status"
	"mysql-collector/internal/util"
)

// CheckResult is the outcome of a one-shot connection check.
type CheckResult struct {
	Connections int
	Sleeping    int
	Severity    health.Severity
}

func (r CheckResult) String() string {
	return fmt.Sprintf("Threads_connected: %d, Threads_sleeping: %d", r.Connections, r.Sleeping)
}

// Check takes one reading of the connection count and grades it against
// the thresholds. The sleeping thread count is also sent to the sink; a
// sink failure does not change the result.
func (c *Collector) Check(ctx context.Context, warning, critical int) (CheckResult, error) {
	values, err := status.GlobalStatus(ctx, c.opts.Source, []string{"Threads_connected"})
	if err != nil {
		return CheckResult{}, err
	}
	raw, ok := values["Threads_connected"]
	if !ok {
		return CheckResult{}, ErrNoConnectionCount
	}
	connections, err := strconv.Atoi(raw)
	if err != nil {
		return CheckResult{}, fmt.Errorf("parse Threads_connected %q: %w", raw, err)
	}

	sleeping, err := status.SleepingThreads(ctx, c.opts.Source)
	if err != nil {
		return CheckResult{}, fmt.Errorf("processlist: %w", err)
	}
	c.emit(ctx, "Threads_sleeping", float64(sleeping))

	result := CheckResult{
		Connections: connections,
		Sleeping:    sleeping,
		Severity:    health.Evaluate(connections, warning, critical),
	}
	c.log(util.LOG_LEVEL_DEBUG, "connection check",
		zap.Int("connections", connections),
		zap.Int("sleeping", sleeping),
		zap.Stringer("severity", result.Severity))
	return result, nil
}
