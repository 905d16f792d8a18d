package cloudservice

import (
	"io"
	"time"

	"github.com/JavaProjektDEV/CloudNet-v3/engine/consts"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/process"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/service"
)

// ServiceProcess is the running wrapper process of a service
type ServiceProcess interface {
	Pid() int
	Done() <-chan struct{}
	Stop(grace time.Duration) error
	Kill() error
}

// Launcher starts the wrapper of a service whose working directory is materialized
type Launcher interface {
	Launch(cfg service.ServiceConfiguration, workDir string) (ServiceProcess, error)
}

// WrapperLauncher starts the wrapper binary inside the working directory of the service. The wrapper
// finds its configuration and the node through environment variables.
type WrapperLauncher struct {
	Command     []string
	NodeAddress string
	Token       string
	Compress    string
	// StorageDir is the absolute directory of the local template storage
	StorageDir string
	MongoName  string
	MongoURL   string
	MongoDB    string
	Output     io.Writer
}

// Launch starts the wrapper process
func (l *WrapperLauncher) Launch(cfg service.ServiceConfiguration, workDir string) (ServiceProcess, error) {
	p, err := process.Start(process.Options{
		Dir:     workDir,
		Command: append([]string{}, l.Command...),
		Env: []string{
			consts.ENV_SERVICE_CONFIG + "=" + ConfigurationFile("."),
			consts.ENV_NODE_ADDRESS + "=" + l.NodeAddress,
			consts.ENV_NODE_TOKEN + "=" + l.Token,
			consts.ENV_NODE_COMPRESS + "=" + l.Compress,
			consts.ENV_STORAGE_DIR + "=" + l.StorageDir,
			consts.ENV_STORAGE_MONGO + "=" + l.MongoName,
			consts.ENV_STORAGE_MONGO_URL + "=" + l.MongoURL,
			consts.ENV_STORAGE_MONGO_DB + "=" + l.MongoDB,
		},
		Output: l.Output,
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}
