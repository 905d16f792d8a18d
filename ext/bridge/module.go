package bridge

import (
	"github.com/pkg/errors"

	"github.com/JavaProjektDEV/CloudNet-v3/engine/kvdb"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/messenger"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/module"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/query"
)

func init() {
	module.RegisterFactory(MODULE_MAIN, func() module.Module { return &bridgeModule{} })
}

// bridgeModule runs the PlayerRegistry inside the node
type bridgeModule struct {
	registry   *PlayerRegistry
	unregister func()
}

func (bm *bridgeModule) Start(ctx *module.ModuleContext) error {
	db, _ := ctx.Service("kvdb").(*kvdb.KVDB)
	queries, _ := ctx.Service("queries").(*query.Provider)
	m, _ := ctx.Service("messenger").(*messenger.Messenger)
	if db == nil || queries == nil || m == nil {
		return errors.Errorf("%s: node services kvdb, queries and messenger are required", ctx.Name())
	}

	registry, err := NewPlayerRegistry(db)
	if err != nil {
		return err
	}
	bm.registry = registry
	bm.unregister = registry.Register(queries, m, ctx.Bus)
	return nil
}

func (bm *bridgeModule) Stop() error {
	if bm.unregister != nil {
		bm.unregister()
		bm.unregister = nil
	}
	return nil
}
