package state

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"mysql-collector/internal/domain"
)

// CurrentVersion is the newest state file layout this build understands.
const CurrentVersion = 1

const (
	keyVersion  = "version"
	keyUnixtime = "unixtime"
)

// Fields written by older collectors that carry no counter value.
var legacyKeys = map[string]bool{
	"file_path": true,
	"uid":       true,
	"gid":       true,
}

// encode renders the state as a single JSON object followed by a newline:
//
//	{"delete":0,"insert":0,"select":0,"total_qps":0,"unixtime":1700000000.25,"update":0,"version":1}
func encode(st domain.PersistedState) ([]byte, error) {
	obj := make(map[string]interface{}, len(st.Counters)+2)
	for name, v := range st.Counters {
		if name == keyVersion || name == keyUnixtime || legacyKeys[name] {
			return nil, fmt.Errorf("counter name %q is reserved", name)
		}
		obj[name] = v
	}
	version := st.Version
	if version == 0 {
		version = CurrentVersion
	}
	obj[keyVersion] = version
	obj[keyUnixtime] = toUnix(st.ObservedAt)

	data, err := json.Marshal(obj)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// decode parses a state file. Files without a version field are read as
// version 1. Non-numeric fields other than the tracked counters are
// metadata and skipped; a tracked counter must be an unsigned integer.
func decode(data []byte, tracked []string) (domain.PersistedState, error) {
	var raw map[string]json.RawMessage
	dec := json.NewDecoder(bytes.NewReader(bytes.TrimSpace(data)))
	if err := dec.Decode(&raw); err != nil {
		return domain.PersistedState{}, err
	}
	if raw == nil {
		return domain.PersistedState{}, fmt.Errorf("state is not an object")
	}

	st := domain.PersistedState{
		Version:  1,
		Counters: make(map[string]uint64, len(raw)),
	}

	if v, ok := raw[keyVersion]; ok {
		n, err := strconv.Atoi(string(v))
		if err != nil {
			return domain.PersistedState{}, fmt.Errorf("invalid version %s", v)
		}
		if n < 1 || n > CurrentVersion {
			return domain.PersistedState{}, fmt.Errorf("unsupported state version %d", n)
		}
		st.Version = n
	}

	ts, ok := raw[keyUnixtime]
	if !ok {
		return domain.PersistedState{}, fmt.Errorf("missing %s", keyUnixtime)
	}
	secs, err := strconv.ParseFloat(string(ts), 64)
	if err != nil || math.IsNaN(secs) || math.IsInf(secs, 0) {
		return domain.PersistedState{}, fmt.Errorf("invalid %s %s", keyUnixtime, ts)
	}
	st.ObservedAt = fromUnix(secs)

	isTracked := make(map[string]bool, len(tracked))
	for _, name := range tracked {
		isTracked[name] = true
	}
	for name, v := range raw {
		if name == keyVersion || name == keyUnixtime || legacyKeys[name] {
			continue
		}
		if !isNumber(v) && !isTracked[name] {
			continue
		}
		n, err := strconv.ParseUint(string(v), 10, 64)
		if err != nil {
			return domain.PersistedState{}, fmt.Errorf("counter %s: invalid value %s", name, v)
		}
		st.Counters[name] = n
	}
	return st, nil
}

func isNumber(v json.RawMessage) bool {
	v = bytes.TrimSpace(v)
	return len(v) > 0 && (v[0] == '-' || (v[0] >= '0' && v[0] <= '9'))
}

func toUnix(t time.Time) float64 {
	return float64(t.UnixMicro()) / 1e6
}

// fromUnix keeps microsecond precision, which is what toUnix writes.
func fromUnix(secs float64) time.Time {
	return time.UnixMicro(int64(math.Round(secs * 1e6)))
}
