// Package logger provides the package-level structured logger every other
// package calls into: severity levels beyond slog's default four, a
// text/JSON handler choice, and optional on-disk rotation.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Severity levels. TRACE and OFF extend slog's built-in four so operators
// can ask for noisier or fully silent output.
const (
	LevelTrace = slog.Level(-8)
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
	LevelOff   = slog.Level(16)
)

var severityNames = map[slog.Level]string{
	LevelTrace: "TRACE",
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARNING",
	LevelError: "ERROR",
}

// Config is the subset of cfg.Config that governs logging.
type Config struct {
	FilePath        string
	Format          string // "text" or "json"; anything else behaves as "json"
	Severity        string // TRACE, DEBUG, INFO, WARNING, ERROR, OFF
	MaxFileSizeMB   int
	BackupFileCount int
	Compress        bool
}

type factory struct {
	level  *slog.LevelVar
	format string
	file   io.WriteCloser
}

func (f *factory) handler(w io.Writer) slog.Handler {
	opts := &slog.HandlerOptions{Level: f.level, ReplaceAttr: replaceSeverity}
	if f.format == "text" {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

func replaceSeverity(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		if level, ok := a.Value.Any().(slog.Level); ok {
			if name, ok := severityNames[level]; ok {
				a.Value = slog.StringValue(name)
			}
		}
		a.Key = "severity"
	}
	return a
}

var (
	defaultFactory = &factory{level: newLevelVar(LevelInfo), format: "text"}
	defaultLogger  = slog.New(defaultFactory.handler(os.Stderr))
)

func newLevelVar(l slog.Level) *slog.LevelVar {
	v := new(slog.LevelVar)
	v.Set(l)
	return v
}

// Init reconfigures the package-level logger. If cfg.FilePath is set, output
// is written there through a lumberjack.Logger so it rotates at
// MaxFileSizeMB, keeping BackupFileCount backups, compressed if requested.
func Init(cfg Config) error {
	var out io.Writer = os.Stderr
	if cfg.FilePath != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxFileSizeMB,
			MaxBackups: cfg.BackupFileCount,
			Compress:   cfg.Compress,
		}
		defaultFactory.file = rotator
		out = rotator
	}

	defaultFactory.format = cfg.Format
	setLevel(cfg.Severity, defaultFactory.level)
	defaultLogger = slog.New(defaultFactory.handler(out))
	return nil
}

func setLevel(severity string, v *slog.LevelVar) {
	switch strings.ToUpper(severity) {
	case "TRACE":
		v.Set(LevelTrace)
	case "DEBUG":
		v.Set(LevelDebug)
	case "WARNING", "WARN":
		v.Set(LevelWarn)
	case "ERROR":
		v.Set(LevelError)
	case "OFF":
		v.Set(LevelOff)
	default:
		v.Set(LevelInfo)
	}
}

// Default exposes the package-level *slog.Logger for callers (dispatch, fs)
// that want structured key/value attributes rather than a format string.
func Default() *slog.Logger { return defaultLogger }

func Tracef(format string, args ...any) {
	defaultLogger.Log(context.Background(), LevelTrace, fmt.Sprintf(format, args...))
}

func Debugf(format string, args ...any) { defaultLogger.Debug(fmt.Sprintf(format, args...)) }
func Infof(format string, args ...any)  { defaultLogger.Info(fmt.Sprintf(format, args...)) }
func Warnf(format string, args ...any)  { defaultLogger.Warn(fmt.Sprintf(format, args...)) }
func Errorf(format string, args ...any) { defaultLogger.Error(fmt.Sprintf(format, args...)) }
