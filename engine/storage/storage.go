// Package storage holds the template storages of the node. Templates name their storage, the
// registry dispatches template operations to it.
package storage

import (
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/JavaProjektDEV/CloudNet-v3/engine/async"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/cnlog"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/common"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/opmon"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/service"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/storage/backend/filesystem"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/storage/backend/mongodb"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/storage/storage_common"
)

// LOCAL is the name of the storage every node has
const LOCAL = "local"

// Options configures the storages of a node
type Options struct {
	Directory string // of the local storage
	MongoName string // name of the GridFS storage, "" disables it
	MongoURL  string
	MongoDB   string
}

// Registry holds the template storages by name
type Registry struct {
	lock     sync.RWMutex
	storages map[string]storagecommon.TemplateStorage
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{storages: map[string]storagecommon.TemplateStorage{}}
}

// Open creates the registry with the configured storages
func Open(options Options) (*Registry, error) {
	r := NewRegistry()
	local, err := templatestoragefilesystem.OpenDirectory(LOCAL, options.Directory)
	if err != nil {
		return nil, err
	}
	r.Register(local)

	if options.MongoName != "" {
		ts, err := templatestoragemongodb.OpenMongoDB(options.MongoName, options.MongoURL, options.MongoDB)
		if err != nil {
			r.Close()
			return nil, errors.Wrapf(err, "open template storage %s", options.MongoName)
		}
		r.Register(ts)
	}
	return r, nil
}

// Register adds or replaces a storage
func (r *Registry) Register(ts storagecommon.TemplateStorage) {
	r.lock.Lock()
	r.storages[ts.Name()] = ts
	r.lock.Unlock()
	cnlog.Infof("template storage %s registered", ts.Name())
}

// Get returns the storage of the name
func (r *Registry) Get(name string) (storagecommon.TemplateStorage, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	ts, ok := r.storages[name]
	if !ok {
		return nil, errors.Wrapf(common.ErrNotFound, "template storage %s", name)
	}
	return ts, nil
}

// Names returns the sorted storage names
func (r *Registry) Names() []string {
	r.lock.RLock()
	names := make([]string, 0, len(r.storages))
	for name := range r.storages {
		names = append(names, name)
	}
	r.lock.RUnlock()
	sort.Strings(names)
	return names
}

// CopyTemplate copies the template from its storage into targetDir
func (r *Registry) CopyTemplate(template service.ServiceTemplate, targetDir string) error {
	ts, err := r.Get(template.Storage)
	if err != nil {
		return err
	}
	op := opmon.StartOperation("storage.copyTemplate")
	defer op.Finish(time.Second)
	return ts.CopyTemplate(template, targetDir)
}

// UploadDeployment uploads sourceDir into the storage of the deployment template
func (r *Registry) UploadDeployment(deployment service.ServiceDeployment, sourceDir string) error {
	ts, err := r.Get(deployment.Template.Storage)
	if err != nil {
		return err
	}
	op := opmon.StartOperation("storage.uploadDeployment")
	defer op.Finish(time.Second * 5)
	return ts.UploadDeployment(deployment, sourceDir)
}

// UploadDeploymentAsync queues the upload on the worker of the storage
func (r *Registry) UploadDeploymentAsync(deployment service.ServiceDeployment, sourceDir string) *async.Task[bool] {
	task := async.NewTask[bool]()
	async.Run("storage:"+deployment.Template.Storage, func() {
		if err := r.UploadDeployment(deployment, sourceDir); err != nil {
			task.Fail(err)
		} else {
			task.Complete(true)
		}
	})
	return task
}

// Templates lists the templates of all storages
func (r *Registry) Templates() ([]service.ServiceTemplate, error) {
	var templates []service.ServiceTemplate
	for _, name := range r.Names() {
		ts, err := r.Get(name)
		if err != nil {
			continue
		}
		list, err := ts.Templates()
		if err != nil {
			return nil, errors.Wrapf(err, "list templates of %s", name)
		}
		templates = append(templates, list...)
	}
	return templates, nil
}

// Close closes all storages
func (r *Registry) Close() {
	r.lock.Lock()
	defer r.lock.Unlock()
	for name, ts := range r.storages {
		ts.Close()
		delete(r.storages, name)
	}
}
