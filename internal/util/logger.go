package util

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const LOG_BUFFER_SIZE = 1000

var ErrLogNotInitialized = errors.New("log object is not initialized yet")

const (
	LOG_LEVEL_ERROR = iota + 1
	LOG_LEVEL_WARN
	LOG_LEVEL_INFO
	LOG_LEVEL_DEBUG
)

// MetricsLogger writes log entries through a single background goroutine so
// that lines from the poll loop and the signal handler never interleave.
// The zero value is usable and drops everything.
type MetricsLogger struct {
	logBuffer         chan LeveledLogger
	handle            *os.File
	wg                *sync.WaitGroup
	loggerInitialized bool
	zapLogger         *zap.Logger
	level             zapcore.Level
}

type LeveledLogger struct {
	level  int
	logMsg string
	fields []zap.Field
}

// Init opens the log destination. An empty logFile logs to stderr, otherwise
// the file is created (with its folder) and appended to unless rewrite is set.
// level is a zap level name: debug, info, warn or error.
func (m *MetricsLogger) Init(logFile string, rewrite bool, level string) error {
	if err := m.level.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}

	m.wg = new(sync.WaitGroup)
	m.logBuffer = make(chan LeveledLogger, LOG_BUFFER_SIZE)

	var writer zapcore.WriteSyncer
	if logFile == "" {
		writer = zapcore.Lock(zapcore.AddSync(os.Stderr))
	} else {
		if err := CheckAndCreateLogFolder(filepath.Dir(logFile)); err != nil {
			return err
		}
		flags := os.O_RDWR | os.O_CREATE | os.O_APPEND
		if rewrite {
			flags = os.O_RDWR | os.O_CREATE | os.O_TRUNC
		}
		handle, err := os.OpenFile(logFile, flags, 0640)
		if err != nil {
			return err
		}
		m.handle = handle
		writer = zapcore.AddSync(m.handle)
	}

	m.zapLoggerInit(writer)

	m.wg.Add(1)
	go m.logWritter()

	m.loggerInitialized = true
	return nil
}

func (m *MetricsLogger) zapLoggerInit(writer zapcore.WriteSyncer) {
	config := zap.NewProductionEncoderConfig()
	config.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncodeLevel = zapcore.CapitalLevelEncoder //To Print level in Uppercase.
	encoder := zapcore.NewConsoleEncoder(config)     //To Print Lines in non json format.

	m.zapLogger = zap.New(zapcore.NewCore(encoder, writer, m.level))
}

// Debug reports whether debug entries are written.
func (m *MetricsLogger) Debug() bool {
	return m != nil && m.loggerInitialized && m.level.Enabled(zapcore.DebugLevel)
}

func (m *MetricsLogger) logWritter() {
	for logdata := range m.logBuffer {
		switch logdata.level {
		case LOG_LEVEL_ERROR:
			m.zapLogger.Error(logdata.logMsg, logdata.fields...)
		case LOG_LEVEL_WARN:
			m.zapLogger.Warn(logdata.logMsg, logdata.fields...)
		case LOG_LEVEL_DEBUG:
			m.zapLogger.Debug(logdata.logMsg, logdata.fields...)
		default:
			m.zapLogger.Info(logdata.logMsg, logdata.fields...)
		}
	}
	m.wg.Done()
}

// LogEvent logs its arguments joined by spaces. If the first argument is one
// of the LOG_LEVEL constants it selects the level, otherwise INFO is used.
func (m *MetricsLogger) LogEvent(v ...interface{}) error {
	level := LOG_LEVEL_INFO
	if len(v) > 1 {
		if l, ok := v[0].(int); ok && l >= LOG_LEVEL_ERROR && l <= LOG_LEVEL_DEBUG {
			level = l
			v = v[1:]
		}
	}
	return m.enqueue(LeveledLogger{level: level, logMsg: strings.TrimSuffix(fmt.Sprintln(v...), "\n")})
}

// LogFields logs msg with structured zap fields.
func (m *MetricsLogger) LogFields(level int, msg string, fields ...zap.Field) error {
	return m.enqueue(LeveledLogger{level: level, logMsg: msg, fields: fields})
}

func (m *MetricsLogger) enqueue(entry LeveledLogger) error {
	if m == nil || !m.loggerInitialized {
		return ErrLogNotInitialized
	}
	if entry.level == LOG_LEVEL_DEBUG && !m.level.Enabled(zapcore.DebugLevel) {
		return nil
	}
	m.logBuffer <- entry
	return nil
}

// DeInit drains the buffer and closes the log file.
func (m *MetricsLogger) DeInit() {
	if !m.loggerInitialized {
		return
	}
	m.loggerInitialized = false
	close(m.logBuffer)
	m.wg.Wait()

	_ = m.zapLogger.Sync()
	if m.handle != nil {
		m.handle.Close()
	}
}

func CheckAndCreateLogFolder(FolderNameWithPath string) error {
	_, err := os.Stat(FolderNameWithPath)

	if os.IsNotExist(err) {
		if err := os.MkdirAll(FolderNameWithPath, 0755); err != nil {
			return fmt.Errorf("create log folder %s: %w", FolderNameWithPath, err)
		}
	}
	return nil
}
