// Command cloudnet starts, stops and inspects the node processes of this machine.
//
//	cloudnet [--node path] [--configfile cloudnet.ini] start|stop|kill|status
package main

import (
	"os"
	"strings"

	"github.com/spf13/pflag"
)

var args struct {
	nodeBinary string
	configFile string
	pidFile    string
}

func parseArgs() {
	pflag.StringVar(&args.nodeBinary, "node", "./node"+BinaryExtension, "path of the node binary")
	pflag.StringVar(&args.configFile, "configfile", "cloudnet.ini", "config file of the node")
	pflag.StringVar(&args.pidFile, "pidfile", "", "pid file of the node daemon")
	pflag.Parse()
}

func main() {
	parseArgs()
	cmdArgs := pflag.Args()
	showMsg("arguments: %s", strings.Join(cmdArgs, " "))

	if len(cmdArgs) != 1 {
		showMsg("should specify one command")
		pflag.Usage()
		os.Exit(1)
	}

	switch cmd := cmdArgs[0]; cmd {
	case "start":
		start()
	case "stop":
		stop(StopSignal)
	case "kill":
		stop(killSignal)
	case "status":
		status()
	default:
		showMsgAndQuit("unknown command: %s", cmd)
	}
}
