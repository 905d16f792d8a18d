package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bmizerany/assert"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/cnlog"
)

func init() {
	SetConfigFile("../../cloudnet.ini.sample")
}

func TestLoad(t *testing.T) {
	config := Get()
	if config == nil {
		t.FailNow()
	}
	cnlog.Debugf("cloudnet config: \n%s", DumpPretty(config))
	assert.Equal(t, "Node-1", config.Node.UniqueId)
	assert.Equal(t, 1410, config.Node.Port)
	assert.Equal(t, 4096, config.Node.MaxMemoryMB)
	assert.Equal(t, "lz4", config.Node.CompressFormat)
	assert.Equal(t, ".wrapper/logs/wrapper.log", config.Wrapper.LogFile)
	assert.Equal(t, "memory", config.KVDB.Type)
	assert.Equal(t, "local/templates", config.Storage.Directory)
	assert.Equal(t, "modules", config.Modules.Directory)
}

func TestReload(t *testing.T) {
	Get()
	config := Reload()
	assert.T(t, config != nil)
}

func TestClusterNodes(t *testing.T) {
	assert.Equal(t, []int{1}, GetClusterNodeIDs())
	node := GetClusterNode(1)
	assert.Equal(t, "Node-2", node.UniqueId)
	assert.Equal(t, "10.0.0.2:1410", node.Address)
	assert.Equal(t, 8192, node.MaxMemoryMB)
	assert.T(t, GetClusterNode(2) == nil)
}

func TestGetters(t *testing.T) {
	assert.T(t, GetNode() != nil)
	assert.T(t, GetWrapper() != nil)
	assert.T(t, GetStorage() != nil)
	assert.T(t, GetKVDB() != nil)
	assert.T(t, GetModules() != nil)
}

func withConfig(t *testing.T, content string) {
	file := filepath.Join(t.TempDir(), "cloudnet.ini")
	if err := os.WriteFile(file, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	old := GetConfigFilePath()
	SetConfigFile(file)
	t.Cleanup(func() {
		SetConfigFile(old)
		configLock.Lock()
		cloudNetConfig = nil
		configLock.Unlock()
	})
}

func assertPanics(t *testing.T, f func()) {
	defer func() {
		if recover() == nil {
			t.Errorf("should panic")
		}
	}()
	f()
}

func TestDefaults(t *testing.T) {
	withConfig(t, "[node]\nunique_id = Node-9\n[kvdb]\ntype = redis\nurl = 127.0.0.1:6379\n")
	config := Reload()
	assert.Equal(t, 1410, config.Node.Port)
	assert.Equal(t, "temp/services", config.Node.ServicesDir)
	assert.Equal(t, "0", config.KVDB.DB)
	assert.Equal(t, "tcp", config.Wrapper.Transport)
	assert.Equal(t, 0, len(config.Nodes))
}

func TestInvalidConfigPanics(t *testing.T) {
	withConfig(t, "[node]\nunique_id = Node-1\nunknown_key = 1\n")
	assertPanics(t, func() { Reload() })

	withConfig(t, "[node]\nport = 1410\n")
	assertPanics(t, func() { Reload() })

	withConfig(t, "[node]\nunique_id = Node-1\n[node1]\nunique_id = Node-1\naddress = 127.0.0.1:1411\n")
	assertPanics(t, func() { Reload() })

	withConfig(t, "[node]\nunique_id = Node-1\n[kvdb]\ntype = redis_cluster\n")
	assertPanics(t, func() { Reload() })
}

func TestSetConfigFile(t *testing.T) {
	old := GetConfigFilePath()
	SetConfigFile("conf/cloudnet.ini")
	assert.Equal(t, "conf/", GetConfigDir())
	SetConfigFile(old)
}
