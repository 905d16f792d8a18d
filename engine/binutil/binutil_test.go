package binutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/JavaProjektDEV/CloudNet-v3/engine/cnlog"
	"github.com/bmizerany/assert"
)

func TestSetupLogWritesFile(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), ".wrapper", "logs", "wrapper.log")
	SetupLogWithOptions("wrapper", "debug", logFile, false, LogOptions{MaxSizeMB: 8, MaxBackups: 3})
	cnlog.Infof("wrapper log line")
	cnlog.Sync()

	data, err := os.ReadFile(logFile)
	assert.Equal(t, nil, err)
	assert.T(t, strings.Contains(string(data), "wrapper log line"))
	assert.Equal(t, cnlog.DebugLevel, cnlog.GetLevel())

	cnlog.SetWriter(os.Stderr)
}
