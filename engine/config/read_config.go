package config

import (
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/go-ini/ini"
	"github.com/pkg/errors"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/cnlog"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/common"
)

const (
	_DEFAULT_CONFIG_FILE     = "cloudnet.ini"
	_DEFAULT_LOCALHOST_IP    = "127.0.0.1"
	_DEFAULT_BIND_IP         = "0.0.0.0"
	_DEFAULT_NODE_PORT       = 1410
	_DEFAULT_HTTP_IP         = "127.0.0.1"
	_DEFAULT_LOG_LEVEL       = "debug"
	_DEFAULT_WRAPPER_LOG     = ".wrapper/logs/wrapper.log"
	_DEFAULT_TEMPLATES_DIR   = "local/templates"
	_DEFAULT_SERVICES_DIR    = "temp/services"
	_DEFAULT_MODULES_DIR     = "modules"
	_DEFAULT_KVDB_DB         = "cloudnet"
	_DEFAULT_KVDB_COLLECTION = "__kv__"
	_DEFAULT_JAVA_COMMAND    = "java"
	_DEFAULT_WRAPPER_COMMAND = "cloudnet-wrapper"
)

var (
	configFilePath = _DEFAULT_CONFIG_FILE
	cloudNetConfig *CloudNetConfig
	configLock     sync.Mutex
)

// NodeConfig defines fields of the local node
type NodeConfig struct {
	UniqueId       string
	Ip             string // ip the node is reachable on by other nodes and wrappers
	BindIp         string
	Port           int
	KCPPort        int // 0 disables the KCP listener
	HTTPIp         string
	HTTPPort       int // pprof and websocket listener, 0 disables it
	MaxMemoryMB    int // 0 uses the memory of the machine
	Token          string
	CompressFormat string // lz4, zstd or "" for no compression
	LogFile        string
	LogStderr      bool
	LogLevel       string
	GoMaxProcs     int
	ServicesDir    string
	JavaCommand    string
	WrapperCommand string
}

// WrapperConfig defines fields shared by all wrapper processes of the node
type WrapperConfig struct {
	LogFile     string
	LogStderr   bool
	LogLevel    string
	Transport   string // tcp, kcp or websocket
	JavaCommand string
}

// ClusterNodeConfig describes another node of the cluster
type ClusterNodeConfig struct {
	UniqueId    string
	Address     string
	MaxMemoryMB int
}

// StorageConfig defines the template storages
type StorageConfig struct {
	Directory string // of the local storage
	MongoName string // name of the GridFS storage, "" disables it
	Url       string // mongodb
	DB        string // mongodb
}

// KVDBConfig defines the key/value store of the group and task registry
type KVDBConfig struct {
	Type       string // memory, redis, redis_cluster or mongodb
	Url        string // mongodb url or redis host
	DB         string // mongodb database or redis db index
	Collection string // mongodb
	StartNodes common.StringSet
}

// ModulesConfig defines where modules are loaded from
type ModulesConfig struct {
	Directory string
	UserAgent string
}

// CloudNetConfig defines the total cloudnet.ini structure
type CloudNetConfig struct {
	Node    NodeConfig
	Wrapper WrapperConfig
	Nodes   map[int]*ClusterNodeConfig
	Storage StorageConfig
	KVDB    KVDBConfig
	Modules ModulesConfig
}

// SetConfigFile sets the config file path (cloudnet.ini by default)
func SetConfigFile(f string) {
	configFilePath = f
}

// GetConfigDir returns the directory of cloudnet.ini
func GetConfigDir() string {
	dir, _ := path.Split(configFilePath)
	return dir
}

// GetConfigFilePath returns the config file path
func GetConfigFilePath() string {
	return configFilePath
}

// Get returns the total config
func Get() *CloudNetConfig {
	configLock.Lock()
	defer configLock.Unlock()
	if cloudNetConfig == nil {
		cloudNetConfig = readCloudNetConfig()
	}
	return cloudNetConfig
}

// Reload forces the config file to be read again
func Reload() *CloudNetConfig {
	configLock.Lock()
	cloudNetConfig = nil
	configLock.Unlock()

	return Get()
}

// GetNode returns the config of the local node
func GetNode() *NodeConfig {
	return &Get().Node
}

// GetWrapper returns the wrapper config
func GetWrapper() *WrapperConfig {
	return &Get().Wrapper
}

// GetClusterNodeIDs returns the ids of the configured cluster nodes
func GetClusterNodeIDs() []int {
	cfg := Get()
	ids := make([]int, 0, len(cfg.Nodes))
	for id := range cfg.Nodes {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// GetClusterNode returns the config of a cluster node
func GetClusterNode(id int) *ClusterNodeConfig {
	return Get().Nodes[id]
}

// GetStorage returns the storage config
func GetStorage() *StorageConfig {
	return &Get().Storage
}

// GetKVDB returns the KVDB config
func GetKVDB() *KVDBConfig {
	return &Get().KVDB
}

// GetModules returns the modules config
func GetModules() *ModulesConfig {
	return &Get().Modules
}

// DumpPretty format config to string in pretty format
func DumpPretty(cfg interface{}) string {
	s, err := json.MarshalIndent(cfg, "", "    ")
	if err != nil {
		return err.Error()
	}
	return string(s)
}

func readCloudNetConfig() *CloudNetConfig {
	config := CloudNetConfig{
		Nodes: map[int]*ClusterNodeConfig{},
	}
	cnlog.Infof("Using config file: %s", configFilePath)
	iniFile, err := ini.Load(configFilePath)
	checkConfigError(err, "")

	readNodeConfig(iniFile.Section("node"), &config.Node)
	readWrapperConfig(iniFile.Section("wrapper"), &config.Wrapper)
	readStorageConfig(iniFile.Section("storage"), &config.Storage)
	readKVDBConfig(iniFile.Section("kvdb"), &config.KVDB)
	readModulesConfig(iniFile.Section("modules"), &config.Modules)

	for _, sec := range iniFile.Sections() {
		if sec.Name() == ini.DefaultSection {
			continue
		}
		secName := strings.ToLower(sec.Name())
		if secName == "node" || secName == "wrapper" || secName == "storage" ||
			secName == "kvdb" || secName == "modules" {
			continue
		}
		if len(secName) > 4 && secName[:4] == "node" {
			id, err := strconv.Atoi(secName[4:])
			checkConfigError(err, fmt.Sprintf("invalid node name: %s", secName))
			config.Nodes[id] = readClusterNodeConfig(sec)
		} else {
			cnlog.Errorf("unknown section: %s", secName)
		}
	}

	validateConfig(&config)
	return &config
}

func readNodeConfig(sec *ini.Section, nc *NodeConfig) {
	nc.Ip = _DEFAULT_LOCALHOST_IP
	nc.BindIp = _DEFAULT_BIND_IP
	nc.Port = _DEFAULT_NODE_PORT
	nc.HTTPIp = _DEFAULT_HTTP_IP
	nc.LogFile = "node.log"
	nc.LogStderr = true
	nc.LogLevel = _DEFAULT_LOG_LEVEL
	nc.ServicesDir = _DEFAULT_SERVICES_DIR
	nc.JavaCommand = _DEFAULT_JAVA_COMMAND
	nc.WrapperCommand = _DEFAULT_WRAPPER_COMMAND

	for _, key := range sec.Keys() {
		name := strings.ToLower(key.Name())
		switch name {
		case "unique_id":
			nc.UniqueId = key.MustString(nc.UniqueId)
		case "ip":
			nc.Ip = key.MustString(nc.Ip)
		case "bind_ip":
			nc.BindIp = key.MustString(nc.BindIp)
		case "port":
			nc.Port = key.MustInt(nc.Port)
		case "kcp_port":
			nc.KCPPort = key.MustInt(nc.KCPPort)
		case "http_ip":
			nc.HTTPIp = key.MustString(nc.HTTPIp)
		case "http_port":
			nc.HTTPPort = key.MustInt(nc.HTTPPort)
		case "max_memory":
			nc.MaxMemoryMB = key.MustInt(nc.MaxMemoryMB)
		case "token":
			nc.Token = key.MustString(nc.Token)
		case "compress_format":
			nc.CompressFormat = key.MustString(nc.CompressFormat)
		case "log_file":
			nc.LogFile = key.MustString(nc.LogFile)
		case "log_stderr":
			nc.LogStderr = key.MustBool(nc.LogStderr)
		case "log_level":
			nc.LogLevel = key.MustString(nc.LogLevel)
		case "gomaxprocs":
			nc.GoMaxProcs = key.MustInt(nc.GoMaxProcs)
		case "services_dir":
			nc.ServicesDir = key.MustString(nc.ServicesDir)
		case "java_command":
			nc.JavaCommand = key.MustString(nc.JavaCommand)
		case "wrapper_command":
			nc.WrapperCommand = key.MustString(nc.WrapperCommand)
		default:
			cnlog.Panicf("section %s has unknown key: %s", sec.Name(), key.Name())
		}
	}
}

func readWrapperConfig(sec *ini.Section, wc *WrapperConfig) {
	wc.LogFile = _DEFAULT_WRAPPER_LOG
	wc.LogLevel = _DEFAULT_LOG_LEVEL
	wc.Transport = "tcp"
	wc.JavaCommand = _DEFAULT_JAVA_COMMAND

	for _, key := range sec.Keys() {
		name := strings.ToLower(key.Name())
		switch name {
		case "log_file":
			wc.LogFile = key.MustString(wc.LogFile)
		case "log_stderr":
			wc.LogStderr = key.MustBool(wc.LogStderr)
		case "log_level":
			wc.LogLevel = key.MustString(wc.LogLevel)
		case "transport":
			wc.Transport = key.MustString(wc.Transport)
		case "java_command":
			wc.JavaCommand = key.MustString(wc.JavaCommand)
		default:
			cnlog.Panicf("section %s has unknown key: %s", sec.Name(), key.Name())
		}
	}
}

func readClusterNodeConfig(sec *ini.Section) *ClusterNodeConfig {
	var nc ClusterNodeConfig
	for _, key := range sec.Keys() {
		name := strings.ToLower(key.Name())
		switch name {
		case "unique_id":
			nc.UniqueId = key.MustString(nc.UniqueId)
		case "address":
			nc.Address = key.MustString(nc.Address)
		case "max_memory":
			nc.MaxMemoryMB = key.MustInt(nc.MaxMemoryMB)
		default:
			cnlog.Panicf("section %s has unknown key: %s", sec.Name(), key.Name())
		}
	}
	return &nc
}

func readStorageConfig(sec *ini.Section, config *StorageConfig) {
	config.Directory = _DEFAULT_TEMPLATES_DIR
	config.DB = _DEFAULT_KVDB_DB

	for _, key := range sec.Keys() {
		name := strings.ToLower(key.Name())
		switch name {
		case "directory":
			config.Directory = key.MustString(config.Directory)
		case "mongo_name":
			config.MongoName = key.MustString(config.MongoName)
		case "url":
			config.Url = key.MustString(config.Url)
		case "db":
			config.DB = key.MustString(config.DB)
		default:
			cnlog.Panicf("section %s has unknown key: %s", sec.Name(), key.Name())
		}
	}

	validateStorageConfig(config)
}

func readKVDBConfig(sec *ini.Section, config *KVDBConfig) {
	config.Type = "memory"
	config.StartNodes = common.StringSet{}
	for _, key := range sec.Keys() {
		name := strings.ToLower(key.Name())
		if name == "type" {
			config.Type = key.MustString(config.Type)
		} else if name == "url" {
			config.Url = key.MustString(config.Url)
		} else if name == "db" {
			config.DB = key.MustString(config.DB)
		} else if name == "collection" {
			config.Collection = key.MustString(config.Collection)
		} else if strings.HasPrefix(name, "start_nodes_") {
			config.StartNodes.Add(key.MustString(""))
		} else {
			cnlog.Panicf("section %s has unknown key: %s", sec.Name(), key.Name())
		}
	}

	if config.Type == "mongodb" {
		if config.DB == "" {
			config.DB = _DEFAULT_KVDB_DB
		}
		if config.Collection == "" {
			config.Collection = _DEFAULT_KVDB_COLLECTION
		}
	} else if config.Type == "redis" {
		if config.DB == "" {
			config.DB = "0"
		}
	}

	validateKVDBConfig(config)
}

func readModulesConfig(sec *ini.Section, config *ModulesConfig) {
	config.Directory = _DEFAULT_MODULES_DIR
	config.UserAgent = "CloudNet"
	for _, key := range sec.Keys() {
		name := strings.ToLower(key.Name())
		switch name {
		case "directory":
			config.Directory = key.MustString(config.Directory)
		case "user_agent":
			config.UserAgent = key.MustString(config.UserAgent)
		default:
			cnlog.Panicf("section %s has unknown key: %s", sec.Name(), key.Name())
		}
	}
}

func validateKVDBConfig(config *KVDBConfig) {
	switch config.Type {
	case "memory":
	case "mongodb":
		if config.Url == "" {
			cnlog.Panicf("invalid %s KVDB config: %s", config.Type, DumpPretty(config))
		}
	case "redis":
		if config.Url == "" {
			cnlog.Panicf("invalid %s KVDB config: %s", config.Type, DumpPretty(config))
		}
		if _, err := strconv.Atoi(config.DB); err != nil {
			cnlog.Panic(errors.Wrap(err, "redis db must be integer"))
		}
	case "redis_cluster":
		if len(config.StartNodes) == 0 {
			cnlog.Panicf("must have at least 1 start_nodes for [kvdb].redis_cluster")
		}
		for s := range config.StartNodes {
			if s == "" {
				cnlog.Panicf("start_nodes must not be empty")
			}
		}
	default:
		cnlog.Panicf("unknown kvdb type: %s", config.Type)
	}
}

func validateStorageConfig(config *StorageConfig) {
	if config.Directory == "" {
		cnlog.Panicf("directory is not set in storage config")
	}
	if config.MongoName != "" {
		if config.MongoName == "local" {
			cnlog.Panicf("storage name local is reserved")
		}
		if config.Url == "" {
			cnlog.Panicf("url is not set for storage %s", config.MongoName)
		}
	}
}

func checkConfigError(err error, msg string) {
	if err != nil {
		if msg == "" {
			msg = err.Error()
		}
		cnlog.Panicf("read config error: %s", msg)
	}
}

func validateConfig(config *CloudNetConfig) {
	if config.Node.UniqueId == "" {
		cnlog.Panicf("unique_id is not set in [node]")
	}
	if config.Node.Port <= 0 {
		cnlog.Panicf("invalid port in [node]: %d", config.Node.Port)
	}
	switch config.Node.CompressFormat {
	case "", "lz4", "zstd":
	default:
		cnlog.Panicf("unknown compress_format in [node]: %s", config.Node.CompressFormat)
	}

	seen := common.StringSet{}
	seen.Add(config.Node.UniqueId)
	for id, nc := range config.Nodes {
		if nc.UniqueId == "" || nc.Address == "" {
			cnlog.Panicf("node%d: unique_id and address must be set", id)
		}
		if seen.Contains(nc.UniqueId) {
			cnlog.Panicf("node%d: duplicate unique_id %s", id, nc.UniqueId)
		}
		seen.Add(nc.UniqueId)
	}
}
