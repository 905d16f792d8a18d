// Package cnlog is the logger of node, wrapper and cli.
//
// Log calls go through package level functions which are rebound whenever the output,
// the level or the component source changes.
package cnlog

import (
	"io"
	"runtime/debug"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level is a log level
type Level zapcore.Level

const (
	DebugLevel = Level(zapcore.DebugLevel)
	InfoLevel  = Level(zapcore.InfoLevel)
	WarnLevel  = Level(zapcore.WarnLevel)
	ErrorLevel = Level(zapcore.ErrorLevel)
	PanicLevel = Level(zapcore.PanicLevel)
	FatalLevel = Level(zapcore.FatalLevel)
)

type logFormatFunc func(format string, args ...interface{})

var (
	Debugf logFormatFunc
	Infof  logFormatFunc
	Warnf  logFormatFunc
	Errorf logFormatFunc
	// Panicf logs and panics
	Panicf logFormatFunc
	// Fatalf logs and exits the process
	Fatalf logFormatFunc
	Panic  func(args ...interface{})
	Fatal  func(args ...interface{})
)

var (
	level   = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	encoder = zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		MessageKey:     "message",
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}
	sink   zapcore.WriteSyncer
	source string
	logger *zap.Logger
	sugar  *zap.SugaredLogger
)

func init() {
	SetOutput([]string{"stderr"})
}

func bind() {
	logger = zap.New(zapcore.NewCore(zapcore.NewConsoleEncoder(encoder), sink, level))
	if source != "" {
		logger = logger.With(zap.String("source", source))
	}
	sugar = logger.Sugar()
	Debugf = sugar.Debugf
	Infof = sugar.Infof
	Warnf = sugar.Warnf
	Errorf = sugar.Errorf
	Panicf = sugar.Panicf
	Fatalf = sugar.Fatalf
	Panic = sugar.Panic
	Fatal = sugar.Fatal
}

// SetSource tags every entry with the component name (node, wrapper, cli)
func SetSource(component string) {
	source = component
	bind()
}

func SetLevel(lv Level) {
	level.SetLevel(zapcore.Level(lv))
}

func GetLevel() Level {
	return Level(level.Level())
}

// SetOutput sends log output to the paths, which may be files, stderr or stdout
func SetOutput(paths []string) {
	ws, _, err := zap.Open(paths...)
	if err != nil {
		panic(err)
	}
	sink = ws
	bind()
}

// SetWriter sends log output to w, e.g. a rotating log file
func SetWriter(w io.Writer) {
	sink = zapcore.Lock(zapcore.AddSync(w))
	bind()
}

// Sync flushes buffered entries
func Sync() {
	_ = logger.Sync()
}

// Error logs its arguments without formatting
func Error(args ...interface{}) {
	sugar.Error(args...)
}

// TraceError logs the current stack followed by the message
func TraceError(format string, args ...interface{}) {
	Error(string(debug.Stack()))
	Errorf(format, args...)
}

// ParseLevel converts a level name, unknown names are debug
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "info":
		return InfoLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	case "panic":
		return PanicLevel
	case "fatal":
		return FatalLevel
	case "debug":
		return DebugLevel
	}
	Errorf("unknown log level %q, using debug", s)
	return DebugLevel
}
