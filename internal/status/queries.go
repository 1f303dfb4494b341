package status

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"mysql-collector/internal/domain"
)

var variableName = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// GlobalStatus reads the named global status variables.
func GlobalStatus(ctx context.Context, src domain.StatusSource, names []string) (map[string]string, error) {
	if len(names) == 0 {
		return map[string]string{}, nil
	}
	for _, n := range names {
		if !variableName.MatchString(n) {
			return nil, fmt.Errorf("invalid status variable name %q", n)
		}
	}
	q := "SHOW GLOBAL STATUS WHERE Variable_name IN ('" + strings.Join(names, "','") + "')"
	rows, err := src.Query(ctx, q, true)
	if err != nil {
		return nil, err
	}
	return keyValues(rows), nil
}

// StatusLike reads global status variables matching a LIKE pattern.
func StatusLike(ctx context.Context, src domain.StatusSource, pattern string) (map[string]string, error) {
	if !variableName.MatchString(strings.ReplaceAll(pattern, "%", "")) {
		return nil, fmt.Errorf("invalid status pattern %q", pattern)
	}
	rows, err := src.Query(ctx, "SHOW GLOBAL STATUS LIKE '"+pattern+"'", false)
	if err != nil {
		return nil, err
	}
	return keyValues(rows), nil
}

// SleepingThreads counts processlist entries whose command is Sleep.
func SleepingThreads(ctx context.Context, src domain.StatusSource) (int, error) {
	rows, err := src.Query(ctx, "SHOW FULL PROCESSLIST", true)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, r := range rows {
		if r.Columns["Command"] == "Sleep" {
			n++
		}
	}
	return n, nil
}

// ReplicaLag returns Seconds_Behind_Master. ok is false when the server is
// not a replica or the lag is unknown (replication stopped).
func ReplicaLag(ctx context.Context, src domain.StatusSource) (lag int64, ok bool, err error) {
	rows, err := src.Query(ctx, "SHOW SLAVE STATUS", true)
	if err != nil {
		return 0, false, err
	}
	if len(rows) == 0 {
		return 0, false, nil
	}
	v := rows[0].Columns["Seconds_Behind_Master"]
	if v == "" {
		return 0, false, nil
	}
	lag, err = strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parse Seconds_Behind_Master %q: %w", v, err)
	}
	return lag, true, nil
}

func keyValues(rows []domain.Row) map[string]string {
	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[r.Key] = r.Value
	}
	return out
}
