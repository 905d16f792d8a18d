// Package module loads node extension modules.
//
// Module code is linked into the node binary and registered with RegisterFactory under the main name
// of its descriptor. Loading a module resolves its artifacts into the shared artifact cache and binds
// them into a scope private to the module, so two modules may use different versions of one artifact.
package module

import (
	"sort"
	"sync"

	"github.com/JavaProjektDEV/CloudNet-v3/engine/cnlog"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/event"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/module/types"
)

// Module is the code of a loaded module
type Module interface {
	Start(ctx *ModuleContext) error
	Stop() error
}

// Factory creates the instance of a module
type Factory func() Module

var (
	factoriesLock sync.RWMutex
	factories     = map[string]Factory{}
)

// RegisterFactory registers module code under the main name used by descriptors
func RegisterFactory(main string, factory Factory) {
	factoriesLock.Lock()
	defer factoriesLock.Unlock()
	if _, ok := factories[main]; ok {
		cnlog.Panicf("module factory %s is already registered", main)
	}
	factories[main] = factory
}

func getFactory(main string) Factory {
	factoriesLock.RLock()
	defer factoriesLock.RUnlock()
	return factories[main]
}

// RegisteredFactories returns the sorted main names of all registered factories
func RegisteredFactories() []string {
	factoriesLock.RLock()
	defer factoriesLock.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ModuleContext is handed to Module.Start
type ModuleContext struct {
	Descriptor *types.ModuleDescriptor
	Scope      *Scope
	DataDir    string
	Bus        *event.Bus

	provider *Provider
}

// Name returns the module name
func (ctx *ModuleContext) Name() string {
	return ctx.Descriptor.Name
}

// Service returns the node service registered with Provider.Provide, or nil
func (ctx *ModuleContext) Service(name string) interface{} {
	return ctx.provider.service(name)
}
