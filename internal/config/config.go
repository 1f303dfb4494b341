package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"mysql-collector/internal/domain"
	"mysql-collector/internal/rate"
)

const envPrefix = "MYSQL_COLLECTOR"

// Config holds every setting of the collector binary.
type Config struct {
	// Monitored server
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Socket   string        `mapstructure:"socket"`
	Timeout  time.Duration `mapstructure:"timeout"`

	// One-shot check
	Warning  int `mapstructure:"warning-threshold"`
	Critical int `mapstructure:"critical-threshold"`

	// Metrics sink
	Graphite       bool   `mapstructure:"graphite"`
	GraphiteServer string `mapstructure:"graphite-server"`
	GraphitePort   int    `mapstructure:"graphite-port"`
	Namespace      string `mapstructure:"namespace"`
	PathOverride   string `mapstructure:"path-override"`

	// Poll loop
	Interval   time.Duration `mapstructure:"interval"`
	Rates      string        `mapstructure:"rates"`
	StateFile  string        `mapstructure:"state-file"`
	StateOwner string        `mapstructure:"state-owner"`
	PIDFile    string        `mapstructure:"pid-file"`
	IgnoreLock bool          `mapstructure:"ignore-lock"`
	Debug      bool          `mapstructure:"debug"`

	// Optional extras
	HistoryDB        string        `mapstructure:"history-db"`
	HistoryRetention time.Duration `mapstructure:"history-retention"`
	TelemetryListen  string        `mapstructure:"telemetry-listen"`

	LogLevel string `mapstructure:"log-level"`
	LogFile  string `mapstructure:"log-file"`

	mapping rate.Mapping
}

// Load reads configuration from (in decreasing priority) command-line
// flags, MYSQL_COLLECTOR_* environment variables, and an optional yaml file
// given by --config or found as mysql-collector.yaml in /etc/mysql-collector
// or the working directory. pflag.ErrHelp is returned for -h/--help.
func Load(args []string) (*Config, error) {
	fs := pflag.NewFlagSet("mysql-collector", pflag.ContinueOnError)

	fs.StringP("user", "u", "", "The MySQL username to login as.")
	fs.StringP("password", "p", "", "The MySQL password to login as.")
	fs.StringP("host", "H", "127.0.0.1", "The MySQL host to monitor.")
	fs.Int("port", 3306, "The MySQL port.")
	fs.String("socket", "", "The MySQL unix socket; overrides host and port.")
	fs.Duration("timeout", 5*time.Second, "Timeout for MySQL queries and metric delivery.")
	fs.IntP("warning-threshold", "w", 400, "Threads threshold for Nagios level WARNING.")
	fs.IntP("critical-threshold", "c", 500, "Threads threshold for Nagios level CRITICAL.")
	fs.BoolP("graphite", "G", false, "Store metrics in graphite continuously instead of running the Nagios check.")
	fs.StringP("graphite-server", "S", "127.0.0.1", "Graphite hostname for storing metrics.")
	fs.Int("graphite-port", 2003, "Graphite plaintext port.")
	fs.String("namespace", "mysql", "First segment of every metric path.")
	fs.String("path-override", "", "Metric path used instead of the host segments.")
	fs.Duration("interval", 10*time.Second, "Pause between poll cycles.")
	fs.String("rates", rate.DefaultMapping().String(), "Tracked counters as counter=rate pairs.")
	fs.String("state-file", "/var/tmp/mysql-collector.qps.txt", "Where the rate baseline is kept.")
	fs.String("state-owner", "root", "Account that owns the state file.")
	fs.String("pid-file", "/var/run/mysql-collector.pid", "Singleton lock file.")
	fs.BoolP("ignore-lock", "I", false, "Ignore the lock file. Only for testing: two collectors corrupt each other's rates.")
	fs.BoolP("debug", "d", false, "Print metrics instead of sending them and log cycle state.")
	fs.String("history-db", "", "SQLite file mirroring emitted points; empty disables it.")
	fs.Duration("history-retention", 7*24*time.Hour, "How long mirrored points are kept.")
	fs.String("telemetry-listen", "", "Address serving collector self metrics; empty disables it.")
	fs.String("log-level", "info", "debug|info|warn|error")
	fs.String("log-file", "", "Log file; empty logs to stderr.")
	configFile := fs.String("config", "", "Optional yaml config file.")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v, err := newViper(fs, *configFile, "mysql-collector")
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("cannot decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Mapping returns the parsed rate mapping.
func (c *Config) Mapping() rate.Mapping {
	return c.mapping
}

// ThresholdsInverted reports a warning threshold at or above the critical
// one. Such a configuration is accepted: the critical rule wins and the
// warning band is empty.
func (c *Config) ThresholdsInverted() bool {
	return c.Warning >= c.Critical
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.User) == "" {
		return &domain.ConfigurationError{Field: "user", Reason: "must not be empty"}
	}
	if c.Password == "" {
		return &domain.ConfigurationError{Field: "password", Reason: "must not be empty"}
	}
	if c.Socket == "" && c.Host == "" {
		return &domain.ConfigurationError{Field: "host", Reason: "host or socket is required"}
	}
	if c.Warning < 0 {
		return &domain.ConfigurationError{Field: "warning-threshold", Reason: "must not be negative"}
	}
	if c.Critical < 0 {
		return &domain.ConfigurationError{Field: "critical-threshold", Reason: "must not be negative"}
	}
	if c.Interval <= 0 {
		return &domain.ConfigurationError{Field: "interval", Reason: "must be positive"}
	}
	if c.Timeout <= 0 {
		return &domain.ConfigurationError{Field: "timeout", Reason: "must be positive"}
	}
	if c.Graphite && c.GraphiteServer == "" && !c.Debug {
		return &domain.ConfigurationError{Field: "graphite-server", Reason: "required in graphite mode"}
	}
	if c.StateFile == "" {
		return &domain.ConfigurationError{Field: "state-file", Reason: "must not be empty"}
	}
	m, err := rate.ParseMapping(c.Rates)
	if err != nil {
		return &domain.ConfigurationError{Field: "rates", Reason: err.Error()}
	}
	c.mapping = m
	return nil
}

// APIConfig holds the settings of the history API binary.
type APIConfig struct {
	HistoryDB string `mapstructure:"history-db"`
	Listen    string `mapstructure:"listen"`
	LogLevel  string `mapstructure:"log-level"`
	LogFile   string `mapstructure:"log-file"`
}

// LoadAPI reads the history API configuration the same way Load does.
func LoadAPI(args []string) (*APIConfig, error) {
	fs := pflag.NewFlagSet("mysql-collector-api", pflag.ContinueOnError)
	fs.String("history-db", "/var/lib/mysql-collector/history.db", "SQLite file written by the collector.")
	fs.String("listen", ":8080", "HTTP listen address.")
	fs.String("log-level", "info", "debug|info|warn|error")
	fs.String("log-file", "", "Log file; empty logs to stderr.")
	configFile := fs.String("config", "", "Optional yaml config file.")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	v, err := newViper(fs, *configFile, "mysql-collector-api")
	if err != nil {
		return nil, err
	}

	var cfg APIConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("cannot decode config: %w", err)
	}
	if cfg.HistoryDB == "" {
		return nil, &domain.ConfigurationError{Field: "history-db", Reason: "must not be empty"}
	}
	return &cfg, nil
}

func newViper(fs *pflag.FlagSet, configFile, name string) (*viper.Viper, error) {
	v := viper.New()

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", configFile, err)
		}
		return v, nil
	}

	v.SetConfigName(name)
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/mysql-collector")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}
