package collector

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"mysql-collector/internal/domain"
	"mysql-collector/internal/rate"
	"mysql-collector/internal/status"
	"mysql-collector/internal/telemetry"
	"mysql-collector/internal/util"
)

// DefaultInterval is the pause between two poll cycles.
const DefaultInterval = 10 * time.Second

// BufferPoolPattern selects the InnoDB buffer pool gauges.
const BufferPoolPattern = "Innodb_buffer_pool%"

// DefaultGauges are point-in-time status variables emitted as they are.
func DefaultGauges() []string {
	return []string{
		"Threads_connected",
		"Created_tmp_disk_tables",
		"Handler_read_first",
		"Innodb_buffer_pool_wait_free",
		"Key_reads",
		"Max_used_connections",
		"Open_tables",
		"Select_full_join",
		"Slow_queries",
		"Uptime",
	}
}

// StateStore persists the rate baseline between cycles and restarts.
type StateStore interface {
	Load() (domain.PersistedState, error)
	Save(st domain.PersistedState) error
}

// Pruner is implemented by point stores that can drop old history.
type Pruner interface {
	Prune(ctx context.Context, before int64) (int64, error)
}

type Options struct {
	Source   domain.StatusSource
	Sink     domain.MetricSink
	State    StateStore
	Mapping  rate.Mapping
	Gauges   []string
	Interval time.Duration
	Debug    bool

	// History, when set, receives a copy of every point the sink accepted.
	History          domain.PointStore
	HistoryRetention time.Duration

	Telemetry *telemetry.Metrics
	Pool      *sqlx.DB
	Logger    *util.MetricsLogger
	Now       func() time.Time
}

// Collector drives the poll loop and the one-shot health check.
type Collector struct {
	opts      Options
	lastPrune time.Time
}

func New(opts Options) *Collector {
	if opts.Mapping == nil {
		opts.Mapping = rate.DefaultMapping()
	}
	if opts.Gauges == nil {
		opts.Gauges = DefaultGauges()
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Collector{opts: opts}
}

// Run loads the rate baseline and polls until ctx is cancelled. A failed
// poll emits nothing for that cycle; the next one runs after the normal
// interval. Only a state file that cannot be loaded ends the loop early.
func (c *Collector) Run(ctx context.Context) error {
	st, err := c.opts.State.Load()
	if err != nil {
		return fmt.Errorf("load rate baseline: %w", err)
	}
	c.log(util.LOG_LEVEL_INFO, "collector started",
		zap.Duration("interval", c.opts.Interval),
		zap.Stringer("rates", c.opts.Mapping),
		zap.Bool("debug", c.opts.Debug))

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			c.log(util.LOG_LEVEL_INFO, "collector stopping")
			return nil
		case <-timer.C:
		}

		next, err := c.Cycle(ctx, st)
		switch {
		case err == nil:
			st = next
			c.countCycle("ok")
		case ctx.Err() != nil:
			c.log(util.LOG_LEVEL_INFO, "collector stopping")
			return nil
		default:
			c.countCycle("fetch_error")
			c.log(util.LOG_LEVEL_ERROR, "poll cycle failed", zap.Error(err))
		}

		if c.opts.Telemetry != nil && c.opts.Pool != nil {
			c.opts.Telemetry.RecordConnectionStats(c.opts.Pool)
		}
		timer.Reset(c.opts.Interval)
	}
}

// sample is everything read from the server in one cycle.
type sample struct {
	bufferPool map[string]float64
	gauges     map[string]float64
	sleeping   int
	lag        int64
	hasLag     bool
	counters   domain.CounterSnapshot
}

// Cycle runs one fetch, compute and emit pass against the baseline st and
// returns the new baseline. Nothing is emitted and st is returned unchanged
// when fetching fails.
func (c *Collector) Cycle(ctx context.Context, st domain.PersistedState) (domain.PersistedState, error) {
	s, err := c.fetch(ctx)
	if err != nil {
		return st, err
	}

	rates, next := rate.ComputeRates(st, s.counters, c.opts.Mapping)
	if err := c.opts.State.Save(next); err != nil {
		if c.opts.Telemetry != nil {
			c.opts.Telemetry.StateErrors.Inc()
		}
		c.log(util.LOG_LEVEL_ERROR, "saving rate baseline failed", zap.Error(err))
	}

	for _, name := range sortedKeys(s.bufferPool) {
		c.emit(ctx, name, s.bufferPool[name])
	}
	for _, name := range c.opts.Gauges {
		if v, ok := s.gauges[name]; ok {
			c.emit(ctx, name, v)
		}
	}
	c.emit(ctx, "Threads_sleeping", float64(s.sleeping))
	for _, r := range rates {
		c.emit(ctx, r.Name, r.PerSecond)
		if c.opts.Telemetry != nil {
			c.opts.Telemetry.LastRate.WithLabelValues(r.Name).Set(r.PerSecond)
		}
	}
	if s.hasLag {
		c.emit(ctx, "Seconds_Behind_Master", float64(s.lag))
	}

	if c.opts.Telemetry != nil {
		c.opts.Telemetry.LastCycle.Set(float64(s.counters.ObservedAt.Unix()))
	}
	if c.opts.Debug {
		c.log(util.LOG_LEVEL_INFO, "debug cycle state",
			zap.Any("gauges", s.gauges),
			zap.Any("buffer_pool", s.bufferPool),
			zap.Int("threads_sleeping", s.sleeping),
			zap.Any("rates", rates),
			zap.Any("baseline", next.Counters),
			zap.Time("observed_at", next.ObservedAt))
	}
	c.prune(ctx)
	return next, nil
}

func (c *Collector) fetch(ctx context.Context) (sample, error) {
	var s sample
	src := c.opts.Source

	bp, err := status.StatusLike(ctx, src, BufferPoolPattern)
	if err != nil {
		return s, fmt.Errorf("buffer pool status: %w", err)
	}
	s.bufferPool = numeric(bp)

	gauges, err := status.GlobalStatus(ctx, src, c.opts.Gauges)
	if err != nil {
		return s, fmt.Errorf("global status: %w", err)
	}
	s.gauges = numeric(gauges)

	s.sleeping, err = status.SleepingThreads(ctx, src)
	if err != nil {
		return s, fmt.Errorf("processlist: %w", err)
	}

	raw, err := status.GlobalStatus(ctx, src, c.opts.Mapping.Counters())
	if err != nil {
		return s, fmt.Errorf("statement counters: %w", err)
	}
	s.counters = domain.CounterSnapshot{
		ObservedAt: domain.ObservationTime(c.opts.Now()),
		Counters:   make(map[string]uint64, len(raw)),
	}
	for name, v := range raw {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			c.log(util.LOG_LEVEL_WARN, "skipping non-integer counter", zap.String("counter", name), zap.String("value", v))
			continue
		}
		s.counters.Counters[name] = n
	}

	// Replica status needs privileges the monitoring user may lack; a
	// failure here only drops the lag gauge.
	s.lag, s.hasLag, err = status.ReplicaLag(ctx, src)
	if err != nil {
		if ctx.Err() != nil {
			return s, ctx.Err()
		}
		c.log(util.LOG_LEVEL_DEBUG, "replica status unavailable", zap.Error(err))
	}
	return s, nil
}

func (c *Collector) emit(ctx context.Context, name string, value float64) {
	point, err := c.opts.Sink.Send(ctx, name, value)
	if err != nil {
		if c.opts.Telemetry != nil {
			c.opts.Telemetry.SinkErrors.Inc()
		}
		c.log(util.LOG_LEVEL_WARN, "sending metric failed", zap.String("metric", name), zap.Error(err))
		return
	}
	if c.opts.Telemetry != nil {
		c.opts.Telemetry.PointsSent.Inc()
	}
	if c.opts.History != nil {
		if err := c.opts.History.StorePoint(ctx, point); err != nil {
			c.log(util.LOG_LEVEL_WARN, "recording metric history failed", zap.String("metric", name), zap.Error(err))
		}
	}
}

func (c *Collector) prune(ctx context.Context) {
	pruner, ok := c.opts.History.(Pruner)
	if !ok || c.opts.HistoryRetention <= 0 {
		return
	}
	now := c.opts.Now()
	if !c.lastPrune.IsZero() && now.Sub(c.lastPrune) < time.Hour {
		return
	}
	c.lastPrune = now
	n, err := pruner.Prune(ctx, now.Add(-c.opts.HistoryRetention).Unix())
	if err != nil {
		c.log(util.LOG_LEVEL_WARN, "pruning metric history failed", zap.Error(err))
		return
	}
	if n > 0 {
		c.log(util.LOG_LEVEL_DEBUG, "pruned metric history", zap.Int64("points", n))
	}
}

func (c *Collector) countCycle(result string) {
	if c.opts.Telemetry != nil {
		c.opts.Telemetry.Cycles.WithLabelValues(result).Inc()
	}
}

func (c *Collector) log(level int, msg string, fields ...zap.Field) {
	c.opts.Logger.LogFields(level, msg, fields...)
}

// ErrNoConnectionCount is returned by Check when the server does not report
// Threads_connected.
var ErrNoConnectionCount = errors.New("server did not report Threads_connected")

func numeric(values map[string]string) map[string]float64 {
	out := make(map[string]float64, len(values))
	for name, v := range values {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			continue
		}
		out[name] = f
	}
	return out
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
