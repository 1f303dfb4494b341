package domain

import "context"

// Row is a single result row. Key and Value hold the first two columns, which
// is all the positional form carries. Columns is only set for labeled rows.
type Row struct {
	Key     string
	Value   string
	Columns map[string]string
}

// StatusSource runs a fixed textual query against the monitored server.
type StatusSource interface {
	Query(ctx context.Context, query string, labeled bool) ([]Row, error)
}
