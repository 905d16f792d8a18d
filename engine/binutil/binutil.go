package binutil

import (
	"fmt"
	"io"
	"net/http"
	_ "net/http/pprof"
	"os"
	"path/filepath"

	"github.com/natefinch/lumberjack"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/cnlog"
	"golang.org/x/net/websocket"
)

// SetupHTTPServer starts the HTTP server for go tool pprof and websockets
func SetupHTTPServer(ip string, port int, wsHandler func(ws *websocket.Conn)) {
	if port == 0 {
		// pprof not enabled
		cnlog.Infof("pprof server not enabled")
		return
	}

	httpHost := fmt.Sprintf("%s:%d", ip, port)
	cnlog.Infof("http server listening on %s", httpHost)
	cnlog.Infof("pprof http://%s/debug/pprof/ ... available commands: ", httpHost)
	cnlog.Infof("    go tool pprof http://%s/debug/pprof/heap", httpHost)
	cnlog.Infof("    go tool pprof http://%s/debug/pprof/profile", httpHost)

	if wsHandler != nil {
		http.Handle("/ws", websocket.Handler(wsHandler))
	}

	go func() {
		if err := http.ListenAndServe(httpHost, nil); err != nil {
			cnlog.Errorf("http server on %s stopped: %v", httpHost, err)
		}
	}()
}

// LogOptions configures the rotating log file of a component
type LogOptions struct {
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// DefaultLogOptions are the rotation settings of the node
var DefaultLogOptions = LogOptions{MaxSizeMB: 100, MaxBackups: 100, MaxAgeDays: 30, Compress: true}

// SetupLog sets up the cnlog of a component: level, rotating log file and stderr
func SetupLog(component string, logLevel string, logFile string, logStderr bool) {
	SetupLogWithOptions(component, logLevel, logFile, logStderr, DefaultLogOptions)
}

// SetupLogWithOptions is SetupLog with explicit rotation settings
func SetupLogWithOptions(component string, logLevel string, logFile string, logStderr bool, options LogOptions) {
	cnlog.SetSource(component)
	cnlog.Infof("Set log level to %s", logLevel)
	cnlog.SetLevel(cnlog.ParseLevel(logLevel))

	outputWriters := make([]io.Writer, 0, 2)
	if logFile != "" {
		if dir := filepath.Dir(logFile); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				cnlog.Errorf("create log directory %s failed: %v", dir, err)
			}
		}
		logFileWriter := &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    options.MaxSizeMB, // megabytes
			MaxBackups: options.MaxBackups,
			MaxAge:     options.MaxAgeDays, //days
			Compress:   options.Compress,
		}
		logFileWriter.Rotate() // rotate immediately
		outputWriters = append(outputWriters, logFileWriter)
	}

	if logStderr {
		outputWriters = append(outputWriters, os.Stderr)
	}

	switch len(outputWriters) {
	case 0:
		cnlog.SetWriter(io.Discard)
	case 1:
		cnlog.SetWriter(outputWriters[0])
	default:
		cnlog.SetWriter(io.MultiWriter(outputWriters...))
	}
}
