package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/small-frappuccino/modwarden/pkg/util"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Category selects which log stream a record is written to.
type Category int

const (
	Application Category = iota
	DiscordEvents
	Database
	Errors
)

var categoryFiles = map[Category]string{
	Application:   "application.log",
	DiscordEvents: "discord_events.log",
	Database:      "database.log",
	Errors:        "error.log",
}

// Logger owns one slog.Logger per category plus the rotating files behind them.
type Logger struct {
	loggers map[Category]*slog.Logger
	files   []*lumberjack.Logger
	level   *slog.LevelVar
}

var (
	setupMu sync.Mutex
	// GlobalLogger is nil until SetupLogger succeeds; the accessors fall back to slog.Default.
	GlobalLogger *Logger
)

// SetupLogger configures the category loggers under the platform log directory.
// Calling it again after a successful setup is a no-op.
func SetupLogger() error {
	setupMu.Lock()
	defer setupMu.Unlock()
	if GlobalLogger != nil {
		return nil
	}

	dir := filepath.Dir(util.GetLogFilePath())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create log directory %s: %w", dir, err)
	}
	GlobalLogger = newLogger(dir, os.Stdout, os.Stderr)
	return nil
}

// NewLoggerForDir builds a Logger writing under dir without touching the global.
func NewLoggerForDir(dir string, stdout, stderr io.Writer) *Logger {
	return newLogger(dir, stdout, stderr)
}

func newLogger(dir string, stdout, stderr io.Writer) *Logger {
	level := new(slog.LevelVar)
	level.Set(parseLevel(os.Getenv("MODWARDEN_LOG_LEVEL")))

	l := &Logger{loggers: make(map[Category]*slog.Logger, len(categoryFiles)), level: level}
	for cat, name := range categoryFiles {
		file := &lumberjack.Logger{
			Filename:   filepath.Join(dir, name),
			MaxSize:    20,
			MaxBackups: 5,
			MaxAge:     28,
			Compress:   true,
		}
		l.files = append(l.files, file)

		console := stdout
		if cat == Errors {
			console = stderr
		}
		var w io.Writer = file
		if console != nil {
			w = io.MultiWriter(console, file)
		}
		h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
		l.loggers[cat] = slog.New(h).With("category", categoryName(cat))
	}
	return l
}

// Get returns the logger for a category.
func (l *Logger) Get(cat Category) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	if lg, ok := l.loggers[cat]; ok {
		return lg
	}
	return l.loggers[Application]
}

// SetLevel changes the minimum level for every category.
func (l *Logger) SetLevel(level slog.Level) {
	if l == nil {
		return
	}
	l.level.Set(level)
}

// Sync closes the rotating files. Safe on a nil Logger.
func (l *Logger) Sync() error {
	if l == nil {
		return nil
	}
	var firstErr error
	for _, f := range l.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func ApplicationLogger() *slog.Logger { return GlobalLogger.Get(Application) }
func DiscordLogger() *slog.Logger     { return GlobalLogger.Get(DiscordEvents) }
func DatabaseLogger() *slog.Logger    { return GlobalLogger.Get(Database) }
func ErrorLoggerRaw() *slog.Logger    { return GlobalLogger.Get(Errors) }

// Error logs msg on the error stream.
func Error(msg string, args ...any) {
	ErrorLoggerRaw().Error(msg, args...)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func categoryName(c Category) string {
	switch c {
	case DiscordEvents:
		return "discord"
	case Database:
		return "database"
	case Errors:
		return "error"
	default:
		return "application"
	}
}
