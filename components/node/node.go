package main

import (
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/JavaProjektDEV/CloudNet-v3/engine/binutil"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/cnlog"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/config"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/post"
	_ "github.com/JavaProjektDEV/CloudNet-v3/ext/bridge"
)

var (
	args struct {
		configFile      string
		logLevel        string
		runInDaemonMode bool
		pidFile         string
	}
	cloudNet   *CloudNet
	signalChan = make(chan os.Signal, 1)
)

func parseArgs() {
	pflag.StringVar(&args.configFile, "configfile", "", "set config file path")
	pflag.StringVar(&args.logLevel, "log", "", "set log level, will override log level in config")
	pflag.BoolVarP(&args.runInDaemonMode, "daemon", "d", false, "run in daemon mode")
	pflag.StringVar(&args.pidFile, "pidfile", "", "write the pid of the daemon to this file")
	pflag.Parse()
}

func main() {
	parseArgs()
	if args.configFile != "" {
		config.SetConfigFile(args.configFile)
	}

	if args.runInDaemonMode {
		daemoncontext := binutil.Daemonize(args.pidFile)
		defer daemoncontext.Release()
	}

	cfg := config.Get()
	nodeConfig := &cfg.Node
	if args.logLevel != "" {
		nodeConfig.LogLevel = args.logLevel
	}
	binutil.SetupLog("node", nodeConfig.LogLevel, nodeConfig.LogFile, nodeConfig.LogStderr)
	if nodeConfig.GoMaxProcs > 0 {
		cnlog.Infof("SET GOMAXPROCS = %d", nodeConfig.GoMaxProcs)
		runtime.GOMAXPROCS(nodeConfig.GoMaxProcs)
	}
	cnlog.Infof("Read node config: \n%s\n", config.DumpPretty(nodeConfig))

	var err error
	cloudNet, err = newCloudNet(cfg, nil)
	if err != nil {
		cnlog.Fatalf("node %s can not start: %+v", nodeConfig.UniqueId, err)
	}
	if err := cloudNet.start(); err != nil {
		cnlog.Fatalf("node %s can not start: %+v", nodeConfig.UniqueId, err)
	}
	setupSignals()
	cloudNet.run()
}

func setupSignals() {
	cnlog.Infof("Setup signals ...")
	signal.Ignore(syscall.SIGPIPE, syscall.SIGHUP)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		for {
			sig := <-signalChan
			if sig == syscall.SIGINT || sig == syscall.SIGTERM {
				cnlog.Infof("Terminating node %s ...", cloudNet.nodeId())
				post.Post(func() {
					cloudNet.terminate()
				})

				cloudNet.terminated.Wait()
				cnlog.Infof("Node %s terminated gracefully.", cloudNet.nodeId())
				cnlog.Sync()
				os.Exit(0)
			} else {
				cnlog.Errorf("unexpected signal: %s", sig)
			}
		}
	}()
}
