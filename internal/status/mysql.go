package status

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"mysql-collector/internal/domain"
)

// Options describe how to reach the monitored server. Socket wins over
// Host/Port when set.
type Options struct {
	User     string
	Password string
	Host     string
	Port     int
	Socket   string
	Timeout  time.Duration
}

// DSN renders the driver connection string. Timeout bounds dialing as well
// as each read and write on the connection.
func (o Options) DSN() string {
	cfg := mysql.NewConfig()
	cfg.User = o.User
	cfg.Passwd = o.Password
	if o.Socket != "" {
		cfg.Net = "unix"
		cfg.Addr = o.Socket
	} else {
		port := o.Port
		if port == 0 {
			port = 3306
		}
		cfg.Net = "tcp"
		cfg.Addr = net.JoinHostPort(o.Host, strconv.Itoa(port))
	}
	if o.Timeout > 0 {
		cfg.Timeout = o.Timeout
		cfg.ReadTimeout = o.Timeout
		cfg.WriteTimeout = o.Timeout
	}
	return cfg.FormatDSN()
}

func (o Options) target() string {
	if o.Socket != "" {
		return o.Socket
	}
	return o.Host
}

// MySQL is a StatusSource backed by a small connection pool.
type MySQL struct {
	db      *sqlx.DB
	target  string
	timeout time.Duration
}

// Open prepares the pool. No connection is made until the first query.
func Open(opts Options) (*MySQL, error) {
	db, err := sqlx.Open("mysql", opts.DSN())
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &MySQL{db: db, target: opts.target(), timeout: opts.Timeout}, nil
}

// DB exposes the pool for connection statistics.
func (m *MySQL) DB() *sqlx.DB {
	return m.db
}

// Query runs q and returns its rows. Labeled rows carry every column by
// name; positional rows only the first two columns as Key and Value.
func (m *MySQL) Query(ctx context.Context, q string, labeled bool) ([]domain.Row, error) {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	rows, err := m.db.QueryxContext(ctx, q)
	if err != nil {
		return nil, &domain.ConnectionError{Op: "query", Target: m.target, Err: err}
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, &domain.ConnectionError{Op: "query", Target: m.target, Err: err}
	}

	var result []domain.Row
	for rows.Next() {
		var row domain.Row
		if labeled {
			raw := make(map[string]interface{}, len(cols))
			if err := rows.MapScan(raw); err != nil {
				return nil, &domain.ConnectionError{Op: "scan", Target: m.target, Err: err}
			}
			row.Columns = make(map[string]string, len(raw))
			for k, v := range raw {
				row.Columns[k] = toString(v)
			}
			row.Key = row.Columns[cols[0]]
			if len(cols) > 1 {
				row.Value = row.Columns[cols[1]]
			}
		} else {
			values, err := rows.SliceScan()
			if err != nil {
				return nil, &domain.ConnectionError{Op: "scan", Target: m.target, Err: err}
			}
			if len(values) > 0 {
				row.Key = toString(values[0])
			}
			if len(values) > 1 {
				row.Value = toString(values[1])
			}
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.ConnectionError{Op: "query", Target: m.target, Err: err}
	}
	return result, nil
}

func (m *MySQL) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}

func toString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(t)
	case string:
		return t
	case time.Time:
		return t.Format(time.RFC3339)
	default:
		return fmt.Sprint(t)
	}
}
