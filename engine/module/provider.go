package module

import (
	"context"
	"path/filepath"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/cnlog"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/common"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/event"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/module/types"
)

// ModuleInfo is a snapshot of a registered module
type ModuleInfo struct {
	Descriptor *types.ModuleDescriptor
	LifeCycle  types.ModuleLifeCycle
	Scope      *Scope
}

type moduleWrapper struct {
	descriptor *types.ModuleDescriptor
	lifeCycle  types.ModuleLifeCycle
	scope      *Scope
	instance   Module
	ctx        *ModuleContext
}

func (mw *moduleWrapper) info() ModuleInfo {
	return ModuleInfo{Descriptor: mw.descriptor, LifeCycle: mw.lifeCycle, Scope: mw.scope}
}

// Provider owns all loaded modules.
//
// Downloads happen outside of the registry lock: a slow download never blocks queries about other
// modules. Lifecycle changes (start, stop, unload) are serialized.
type Provider struct {
	dir   string
	cache *ArtifactCache
	bus   *event.Bus

	registryLock sync.RWMutex
	modules      map[string]*moduleWrapper

	lifecycleLock sync.Mutex

	servicesLock sync.RWMutex
	services     map[string]interface{}
}

// NewProvider creates a module provider keeping module data in dir and artifacts in dir/.libs
func NewProvider(dir string, downloader Downloader, bus *event.Bus) *Provider {
	return &Provider{
		dir:      dir,
		cache:    NewArtifactCache(filepath.Join(dir, ".libs"), downloader),
		bus:      bus,
		modules:  map[string]*moduleWrapper{},
		services: map[string]interface{}{},
	}
}

// Cache returns the shared artifact cache
func (p *Provider) Cache() *ArtifactCache {
	return p.cache
}

// Provide makes a node service available to modules through ModuleContext.Service
func (p *Provider) Provide(name string, service interface{}) {
	p.servicesLock.Lock()
	p.services[name] = service
	p.servicesLock.Unlock()
}

func (p *Provider) service(name string) interface{} {
	p.servicesLock.RLock()
	defer p.servicesLock.RUnlock()
	return p.services[name]
}

// Modules returns snapshots of all registered modules sorted by name
func (p *Provider) Modules() []ModuleInfo {
	p.registryLock.RLock()
	infos := make([]ModuleInfo, 0, len(p.modules))
	for _, mw := range p.modules {
		infos = append(infos, mw.info())
	}
	p.registryLock.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Descriptor.Name < infos[j].Descriptor.Name
	})
	return infos
}

// Module returns the snapshot of the named module
func (p *Provider) Module(name string) (ModuleInfo, bool) {
	p.registryLock.RLock()
	defer p.registryLock.RUnlock()
	mw, ok := p.modules[name]
	if !ok {
		return ModuleInfo{}, false
	}
	return mw.info(), true
}

// LoadModuleFile loads the module described by a module.yml or module.json file
func (p *Provider) LoadModuleFile(ctx context.Context, path string) error {
	descriptor, err := LoadDescriptorFile(path)
	if err != nil {
		return err
	}
	return p.LoadModule(ctx, descriptor)
}

// LoadModule loads one module. Its prerequisite modules must already be loaded.
func (p *Provider) LoadModule(ctx context.Context, descriptor *types.ModuleDescriptor) error {
	return p.LoadModules(ctx, []*types.ModuleDescriptor{descriptor})
}

// LoadModules loads a batch of modules in the order of their prerequisites.
//
// The prerequisite graph of the batch is checked before any artifact is downloaded: a cycle fails
// with common.ErrDependencyCycle and a prerequisite which is neither in the batch nor loaded fails with
// common.ErrPrerequisiteNotReady. Loading stops at the first module that fails; modules of the batch
// loaded before it stay loaded.
func (p *Provider) LoadModules(ctx context.Context, descriptors []*types.ModuleDescriptor) error {
	order, err := p.resolveOrder(descriptors)
	if err != nil {
		return err
	}
	for _, d := range order {
		if err := p.loadModule(ctx, d); err != nil {
			return err
		}
	}
	return nil
}

// resolveOrder sorts the batch so that prerequisites come first
func (p *Provider) resolveOrder(descriptors []*types.ModuleDescriptor) ([]*types.ModuleDescriptor, error) {
	batch := map[string]*types.ModuleDescriptor{}
	for _, d := range descriptors {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if _, ok := batch[d.Name]; ok {
			return nil, errors.Wrapf(common.ErrAlreadyExists, "module %s is given twice", d.Name)
		}
		batch[d.Name] = d
	}

	p.registryLock.RLock()
	defer p.registryLock.RUnlock()

	var order []*types.ModuleDescriptor
	visited := map[string]bool{}
	inStack := map[string]bool{}
	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		if inStack[name] {
			return errors.Wrapf(common.ErrDependencyCycle, "%v -> %s", path, name)
		}
		if visited[name] {
			return nil
		}
		d, ok := batch[name]
		if !ok {
			if mw, loaded := p.modules[name]; loaded && mw.lifeCycle != types.UNLOADED {
				visited[name] = true
				return nil
			}
			return errors.Wrapf(common.ErrPrerequisiteNotReady, "module %s requires %s which is not loaded", path[len(path)-1], name)
		}
		inStack[name] = true
		for _, dep := range d.DependsOnModules {
			if err := visit(dep, append(path, name)); err != nil {
				return err
			}
		}
		inStack[name] = false
		visited[name] = true
		order = append(order, d)
		return nil
	}

	for _, d := range descriptors {
		if err := visit(d.Name, nil); err != nil {
			return nil, err
		}
	}
	return order, nil
}

func (p *Provider) loadModule(ctx context.Context, d *types.ModuleDescriptor) error {
	p.registryLock.RLock()
	_, exists := p.modules[d.Name]
	for _, dep := range d.DependsOnModules {
		if _, ok := p.modules[dep]; !ok {
			p.registryLock.RUnlock()
			return errors.Wrapf(common.ErrPrerequisiteNotReady, "module %s requires %s", d.Name, dep)
		}
	}
	p.registryLock.RUnlock()
	if exists {
		return errors.Wrapf(common.ErrAlreadyExists, "module %s", d.Name)
	}

	var instance Module
	if d.Main != "" {
		factory := getFactory(d.Main)
		if factory == nil {
			return errors.Errorf("module %s: main %s is not registered", d, d.Main)
		}
		instance = factory()
	}

	scope, err := p.resolveDependencies(ctx, d)
	if err != nil {
		return err
	}

	mw := &moduleWrapper{
		descriptor: d,
		lifeCycle:  types.LOADED,
		scope:      scope,
		instance:   instance,
	}
	mw.ctx = &ModuleContext{
		Descriptor: d,
		Scope:      scope,
		DataDir:    filepath.Join(p.dir, d.Name),
		Bus:        p.bus,
		provider:   p,
	}

	p.registryLock.Lock()
	if _, ok := p.modules[d.Name]; ok {
		p.registryLock.Unlock()
		return errors.Wrapf(common.ErrAlreadyExists, "module %s", d.Name)
	}
	p.modules[d.Name] = mw
	p.registryLock.Unlock()

	cnlog.Infof("module %s loaded with %d artifacts", d, scope.Len())
	p.publishLifeCycle(d, types.LOADED)
	return nil
}

// resolveDependencies makes sure all artifacts of the module are cached and binds them to a new scope
func (p *Provider) resolveDependencies(ctx context.Context, d *types.ModuleDescriptor) (*Scope, error) {
	scope := newScope(d.Name)
	for i := range d.Dependencies {
		dep := d.Dependencies[i]
		if !p.cache.Has(dep) && p.bus != nil {
			cancelled := p.bus.Publish(&event.Event{
				Kind:       event.MODULE_PRE_INSTALL_DEPENDENCY,
				Module:     d,
				Dependency: &dep,
			})
			if cancelled {
				if !p.cache.Has(dep) {
					return nil, errors.Wrapf(common.ErrDependencyResolutionFailed, "module %s: installation of %s was cancelled", d, dep)
				}
				scope.bind(dep, p.cache.Path(dep))
				continue
			}
		}

		path, err := p.cache.Fetch(ctx, dep, d.DownloadURL(dep))
		if err != nil {
			return nil, errors.Wrapf(common.ErrDependencyResolutionFailed, "module %s: %s: %v", d, dep, err)
		}
		scope.bind(dep, path)
	}
	return scope, nil
}

// StartModule starts a loaded or stopped module. All its prerequisites must be started.
func (p *Provider) StartModule(name string) error {
	p.lifecycleLock.Lock()
	defer p.lifecycleLock.Unlock()
	return p.startModule(name)
}

func (p *Provider) startModule(name string) error {
	p.registryLock.RLock()
	mw, ok := p.modules[name]
	if !ok {
		p.registryLock.RUnlock()
		return errors.Wrapf(common.ErrNotFound, "module %s", name)
	}
	lifeCycle := mw.lifeCycle
	for _, dep := range mw.descriptor.DependsOnModules {
		if pm, ok := p.modules[dep]; !ok || pm.lifeCycle != types.STARTED {
			p.registryLock.RUnlock()
			return errors.Wrapf(common.ErrPrerequisiteNotReady, "module %s requires %s to be started", name, dep)
		}
	}
	p.registryLock.RUnlock()

	switch lifeCycle {
	case types.STARTED:
		return nil
	case types.LOADED, types.STOPPED:
	default:
		return errors.Wrapf(common.ErrInvalidLifecycleTransition, "module %s: %s -> %s", name, lifeCycle, types.STARTED)
	}

	if mw.instance != nil {
		if err := mw.instance.Start(mw.ctx); err != nil {
			return errors.Wrapf(err, "start module %s", name)
		}
	}
	p.setLifeCycle(mw, types.STARTED)
	cnlog.Infof("module %s started", mw.descriptor)
	return nil
}

// StopModule stops a started module, stopping the started modules requiring it first
func (p *Provider) StopModule(name string) error {
	p.lifecycleLock.Lock()
	defer p.lifecycleLock.Unlock()
	return p.stopModule(name)
}

func (p *Provider) stopModule(name string) error {
	p.registryLock.RLock()
	mw, ok := p.modules[name]
	p.registryLock.RUnlock()
	if !ok {
		return errors.Wrapf(common.ErrNotFound, "module %s", name)
	}

	for _, dependent := range p.dependentsOf(name) {
		if err := p.stopModule(dependent); err != nil {
			return err
		}
	}

	if mw.lifeCycle != types.STARTED {
		return nil
	}
	if mw.instance != nil {
		if err := mw.instance.Stop(); err != nil {
			// a module failing to stop is still considered stopped
			cnlog.Errorf("stop module %s failed: %v", name, err)
		}
	}
	p.setLifeCycle(mw, types.STOPPED)
	cnlog.Infof("module %s stopped", mw.descriptor)
	return nil
}

// UnloadModule stops and unregisters a module together with all modules requiring it
func (p *Provider) UnloadModule(name string) error {
	p.lifecycleLock.Lock()
	defer p.lifecycleLock.Unlock()
	return p.unloadModule(name)
}

func (p *Provider) unloadModule(name string) error {
	if err := p.stopModule(name); err != nil {
		return err
	}
	for _, dependent := range p.dependentsOf(name) {
		if err := p.unloadModule(dependent); err != nil {
			return err
		}
	}

	p.registryLock.Lock()
	mw, ok := p.modules[name]
	if ok {
		mw.lifeCycle = types.UNLOADED
		delete(p.modules, name)
	}
	p.registryLock.Unlock()
	if !ok {
		return nil
	}
	cnlog.Infof("module %s unloaded", mw.descriptor)
	p.publishLifeCycle(mw.descriptor, types.UNLOADED)
	return nil
}

// StartAll starts all registered modules, prerequisites first
func (p *Provider) StartAll() error {
	p.lifecycleLock.Lock()
	defer p.lifecycleLock.Unlock()
	for _, name := range p.topologicalOrder() {
		if err := p.startModule(name); err != nil {
			return err
		}
	}
	return nil
}

// StopAll stops all started modules, dependents first
func (p *Provider) StopAll() {
	p.lifecycleLock.Lock()
	defer p.lifecycleLock.Unlock()
	order := p.topologicalOrder()
	for i := len(order) - 1; i >= 0; i-- {
		if err := p.stopModule(order[i]); err != nil {
			cnlog.Errorf("stop module %s failed: %v", order[i], err)
		}
	}
}

// topologicalOrder returns the names of the registered modules, prerequisites first
func (p *Provider) topologicalOrder() []string {
	p.registryLock.RLock()
	defer p.registryLock.RUnlock()

	names := make([]string, 0, len(p.modules))
	for name := range p.modules {
		names = append(names, name)
	}
	sort.Strings(names)

	var order []string
	visited := map[string]bool{}
	var visit func(name string)
	visit = func(name string) {
		mw, ok := p.modules[name]
		if visited[name] || !ok {
			return
		}
		visited[name] = true
		for _, dep := range mw.descriptor.DependsOnModules {
			visit(dep)
		}
		order = append(order, name)
	}
	for _, name := range names {
		visit(name)
	}
	return order
}

// dependentsOf returns the sorted names of the registered modules directly requiring the module
func (p *Provider) dependentsOf(name string) []string {
	p.registryLock.RLock()
	defer p.registryLock.RUnlock()
	var dependents []string
	for other, mw := range p.modules {
		for _, dep := range mw.descriptor.DependsOnModules {
			if dep == name {
				dependents = append(dependents, other)
				break
			}
		}
	}
	sort.Strings(dependents)
	return dependents
}

func (p *Provider) setLifeCycle(mw *moduleWrapper, lifeCycle types.ModuleLifeCycle) {
	p.registryLock.Lock()
	mw.lifeCycle = lifeCycle
	p.registryLock.Unlock()
	p.publishLifeCycle(mw.descriptor, lifeCycle)
}

func (p *Provider) publishLifeCycle(d *types.ModuleDescriptor, lifeCycle types.ModuleLifeCycle) {
	if p.bus == nil {
		return
	}
	p.bus.Publish(&event.Event{
		Kind:            event.MODULE_LIFECYCLE,
		Module:          d,
		ModuleLifeCycle: lifeCycle,
	})
}
