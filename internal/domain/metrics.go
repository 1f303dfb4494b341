package domain

import "context"

// MetricPoint is one line handed to the metrics sink.
type MetricPoint struct {
	Path      string  `json:"path"`
	Value     float64 `json:"value"`
	Timestamp int64   `json:"timestamp"`
}

// PointStore keeps a local history of emitted points.
type PointStore interface {
	Init() error
	StorePoint(ctx context.Context, point MetricPoint) error
	GetPoints(ctx context.Context, path string, startTime, endTime int64, limit, offset int) ([]MetricPoint, error)
	Close() error
}

// MetricSink accepts (name, value) pairs and stamps them with the send time.
// It returns the point that was written so callers can mirror it elsewhere.
type MetricSink interface {
	Send(ctx context.Context, name string, value float64) (MetricPoint, error)
}
