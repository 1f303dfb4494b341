package repository

import (
	"context"
	"database/sql"
	"fmt"

	"mysql-collector/internal/domain"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore mirrors every point handed to the metrics sink so recent
// history can be inspected without the remote collector.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{dbPath: path}
}

func (s *SQLiteStore) Init() error {
	var err error

	s.db, err = sql.Open("sqlite3", s.dbPath)
	if err != nil {
		return fmt.Errorf("error opening database: %w", err)
	}

	if err = s.db.Ping(); err != nil {
		return fmt.Errorf("error connecting to database: %w", err)
	}

	createTableSQL := `
	CREATE TABLE IF NOT EXISTS points (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		path TEXT NOT NULL,
		value REAL NOT NULL,
		timestamp INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_points_path_ts ON points(path, timestamp);
	CREATE INDEX IF NOT EXISTS idx_points_ts ON points(timestamp);`

	_, err = s.db.Exec(createTableSQL)
	if err != nil {
		return fmt.Errorf("error creating table: %w", err)
	}
	return nil
}

func (s *SQLiteStore) StorePoint(ctx context.Context, point domain.MetricPoint) error {
	_, err := s.db.ExecContext(ctx, "INSERT INTO points(path, value, timestamp) VALUES(?, ?, ?)", point.Path, point.Value, point.Timestamp)
	if err != nil {
		return fmt.Errorf("error inserting point: %w", err)
	}
	return nil
}

// GetPoints returns points in [startTime, endTime] ordered by time. An empty
// path matches every path; limit <= 0 means no limit.
func (s *SQLiteStore) GetPoints(ctx context.Context, path string, startTime, endTime int64, limit, offset int) ([]domain.MetricPoint, error) {
	query := "SELECT path, value, timestamp FROM points WHERE timestamp >= ? AND timestamp <= ?"
	args := []interface{}{startTime, endTime}

	if path != "" {
		query += " AND path = ?"
		args = append(args, path)
	}
	query += " ORDER BY timestamp ASC, id ASC"

	if limit <= 0 {
		limit = -1
	}
	query += " LIMIT ?"
	args = append(args, limit)

	if offset < 0 {
		offset = 0
	}
	query += " OFFSET ?"
	args = append(args, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying database: %w", err)
	}
	defer rows.Close()

	var fetched []domain.MetricPoint
	for rows.Next() {
		var p domain.MetricPoint
		if err := rows.Scan(&p.Path, &p.Value, &p.Timestamp); err != nil {
			return nil, fmt.Errorf("error scanning row: %w", err)
		}
		fetched = append(fetched, p)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return fetched, nil
}

// Prune deletes points older than before and reports how many were removed.
func (s *SQLiteStore) Prune(ctx context.Context, before int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM points WHERE timestamp < ?", before)
	if err != nil {
		return 0, fmt.Errorf("error pruning points: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
