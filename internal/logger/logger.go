// internal/logger/logger.go
//
// Structured JSON logger (Zap + Lumberjack).
//
// Context
// -------
// SitePress writes lifecycle, publish, and error events to one JSON log per
// day under `<dir>/YYYY-MM-DD.log`.  When running in an interactive TTY the
// same events are teed, human-readable, to stdout.  Rotation, compression,
// and retention are handled by Lumberjack; no external log-rotate job is
// required.
//
// Usage
// -----
//
//	log, err := logger.New(logger.Options{Dir: root + "/logs", Tee: tty})
//	if err != nil { … }
//	log.Infow("unit published", "kind", "page", "unit", 42)
//
// Notes
// -----
//   - Zap core uses ISO-8601 timestamps and lowercase levels.
//   - Errors are written to the same sink via `ErrorOutput`.
//   - Oxford commas, two spaces after periods.
package logger

import (
	"os"
	"path/filepath"
	"time"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options selects sink, level, and retention.  Zero values fall back to
// info level, 50 MB files, seven backups, and fourteen days.
type Options struct {
	Dir        string
	Level      string // debug, info, warn, error
	Tee        bool
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// New returns a *zap.SugaredLogger that writes JSON to Dir/YYYY-MM-DD.log.
// When opts.Tee is set, a console core is also attached.  The logger is
// installed as the process-wide default via zap.ReplaceGlobals.
func New(opts Options) (*zap.SugaredLogger, error) {
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, err
	}
	level, err := zapcore.ParseLevel(orDefault(opts.Level, "info"))
	if err != nil {
		return nil, err
	}

	fileName := time.Now().Format("2006-01-02") + ".log"
	fileSink := &lumberjack.Logger{
		Filename:   filepath.Join(opts.Dir, fileName),
		MaxSize:    orDefaultInt(opts.MaxSizeMB, 50),
		MaxBackups: orDefaultInt(opts.MaxBackups, 7),
		MaxAge:     orDefaultInt(opts.MaxAgeDays, 14),
		Compress:   true,
	}

	encCfg := zapcore.EncoderConfig{
		TimeKey:      "ts",
		LevelKey:     "level",
		MessageKey:   "msg",
		CallerKey:    "caller",
		EncodeTime:   zapcore.ISO8601TimeEncoder,
		EncodeLevel:  zapcore.LowercaseLevelEncoder,
		EncodeCaller: zapcore.ShortCallerEncoder,
	}

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(fileSink), level),
	}
	if opts.Tee {
		consoleCfg := encCfg
		consoleCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(consoleCfg),
			zapcore.AddSync(os.Stdout),
			level,
		))
	}

	z := zap.New(
		zapcore.NewTee(cores...),
		zap.AddCaller(),
		zap.ErrorOutput(zapcore.AddSync(fileSink)),
	).Sugar()

	// Make this the global logger so zap.S() works everywhere after startup.
	zap.ReplaceGlobals(z.Desugar())

	z.Infow("logger online", "tee", opts.Tee, "level", level.String())
	return z, nil
}

// Bootstrap installs a console logger for the window before config is
// loaded.
func Bootstrap() *zap.SugaredLogger {
	z, err := zap.NewDevelopment()
	if err != nil {
		z = zap.NewNop()
	}
	zap.ReplaceGlobals(z)
	return z.Sugar()
}

// RunningInTTY reports whether stdout is a character device.
func RunningInTTY() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func orDefaultInt(n, def int) int {
	if n <= 0 {
		return def
	}
	return n
}
