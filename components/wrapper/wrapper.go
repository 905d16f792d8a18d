package main

import (
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/natefinch/lumberjack"
	"github.com/spf13/pflag"

	"github.com/JavaProjektDEV/CloudNet-v3/engine/binutil"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/cloudservice"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/cnlog"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/consts"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/post"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/storage"
)

var (
	args struct {
		transport   string
		logLevel    string
		logFile     string
		logStderr   bool
		javaCommand string
	}
	wrapper    *Wrapper
	signalChan = make(chan os.Signal, 1)
)

func parseArgs() {
	pflag.StringVar(&args.transport, "transport", "tcp", "transport to the node: tcp, kcp or websocket")
	pflag.StringVar(&args.logLevel, "log", "debug", "set log level")
	pflag.StringVar(&args.logFile, "logfile", filepath.Join(consts.WRAPPER_DIR, "logs", "wrapper.log"), "set log file")
	pflag.BoolVar(&args.logStderr, "logstderr", false, "also log to stderr")
	pflag.StringVar(&args.javaCommand, "java", "java", "java command of the service process")
	pflag.Parse()
}

func main() {
	parseArgs()
	binutil.SetupLogWithOptions("wrapper", args.logLevel, args.logFile, args.logStderr, binutil.LogOptions{
		MaxSizeMB:  consts.WRAPPER_LOG_MAX_SIZE_MB,
		MaxBackups: 3,
		MaxAgeDays: 7,
	})

	cfgFile := os.Getenv(consts.ENV_SERVICE_CONFIG)
	cfg, err := cloudservice.LoadConfiguration(cfgFile)
	if err != nil {
		cnlog.Fatalf("read service configuration %s failed: %v", cfgFile, err)
	}

	st, err := storage.Open(storage.Options{
		Directory: os.Getenv(consts.ENV_STORAGE_DIR),
		MongoName: os.Getenv(consts.ENV_STORAGE_MONGO),
		MongoURL:  os.Getenv(consts.ENV_STORAGE_MONGO_URL),
		MongoDB:   os.Getenv(consts.ENV_STORAGE_MONGO_DB),
	})
	if err != nil {
		cnlog.Fatalf("open template storages failed: %v", err)
	}

	processLog := &lumberjack.Logger{
		Filename:   filepath.Join(consts.WRAPPER_DIR, "logs", "process.log"),
		MaxSize:    consts.WRAPPER_LOG_MAX_SIZE_MB,
		MaxBackups: 3,
	}
	defer processLog.Close()

	wrapper = newWrapper(cfg, wrapperOptions{
		Transport:    args.transport,
		NodeAddress:  os.Getenv(consts.ENV_NODE_ADDRESS),
		Token:        os.Getenv(consts.ENV_NODE_TOKEN),
		Compress:     os.Getenv(consts.ENV_NODE_COMPRESS),
		WorkDir:      ".",
		Storage:      st,
		StartProcess: javaStarter(args.javaCommand, processLog),
	})
	if err := wrapper.start(); err != nil {
		cnlog.Fatalf("wrapper of %s can not start: %+v", cfg.ServiceId, err)
	}
	setupSignals()
	wrapper.run()
	cnlog.Sync()
}

func setupSignals() {
	signal.Ignore(syscall.SIGPIPE, syscall.SIGHUP)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		for sig := range signalChan {
			cnlog.Infof("%s received, stopping %s ...", sig, wrapper.name())
			post.Post(wrapper.terminate)
		}
	}()
}
