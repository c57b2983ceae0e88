package app

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/trellis/internal/adapters/cas"     //nolint:depguard // Wired in app layer
	"go.trai.ch/trellis/internal/adapters/config"  //nolint:depguard // Wired in app layer
	"go.trai.ch/trellis/internal/adapters/httpapi" //nolint:depguard // Wired in app layer
	"go.trai.ch/trellis/internal/adapters/logger"  //nolint:depguard // Wired in app layer
	"go.trai.ch/trellis/internal/adapters/shell"   //nolint:depguard // Wired in app layer
	"go.trai.ch/trellis/internal/adapters/watcher" //nolint:depguard // Wired in app layer
	"go.trai.ch/trellis/internal/core/ports"
)

const (
	// AppNodeID is the unique identifier for the main App Graft node.
	AppNodeID graft.ID = "app.main"
	// ComponentsNodeID is the unique identifier for the App components Graft node.
	ComponentsNodeID graft.ID = "app.components"
)

func init() {
	// App Node
	graft.Register(graft.Node[*App]{
		ID:        AppNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			config.NodeID,
			shell.NodeID,
			logger.NodeID,
			cas.RunStoreNodeID,
			cas.CounterStoreNodeID,
			cas.ArtifactStoreNodeID,
			cas.ReleaseStoreNodeID,
			cas.LockerNodeID,
			watcher.NodeID,
			httpapi.NodeID,
		},
		Run: runAppNode,
	})

	// Components Node
	graft.Register(graft.Node[*Components]{
		ID:        ComponentsNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			AppNodeID,
			logger.NodeID,
			config.NodeID,
		},
		Run: runComponentsNode,
	})
}

func runAppNode(ctx context.Context) (*App, error) {
	loader, err := graft.Dep[ports.ConfigLoader](ctx)
	if err != nil {
		return nil, err
	}

	executor, err := graft.Dep[ports.Executor](ctx)
	if err != nil {
		return nil, err
	}

	log, err := graft.Dep[ports.Logger](ctx)
	if err != nil {
		return nil, err
	}

	var stores Stores
	if stores.Runs, err = graft.Dep[ports.RunStore](ctx); err != nil {
		return nil, err
	}
	if stores.Counters, err = graft.Dep[ports.CounterStore](ctx); err != nil {
		return nil, err
	}
	if stores.Artifacts, err = graft.Dep[ports.ArtifactStore](ctx); err != nil {
		return nil, err
	}
	if stores.Releases, err = graft.Dep[ports.ReleaseStore](ctx); err != nil {
		return nil, err
	}
	if stores.Locks, err = graft.Dep[ports.Locker](ctx); err != nil {
		return nil, err
	}

	fsWatcher, err := graft.Dep[ports.Watcher](ctx)
	if err != nil {
		return nil, err
	}

	api, err := graft.Dep[*httpapi.Factory](ctx)
	if err != nil {
		return nil, err
	}

	return New(loader, executor, log, stores, fsWatcher, api), nil
}

func runComponentsNode(ctx context.Context) (*Components, error) {
	app, err := graft.Dep[*App](ctx)
	if err != nil {
		return nil, err
	}

	log, err := graft.Dep[ports.Logger](ctx)
	if err != nil {
		return nil, err
	}

	loader, err := graft.Dep[ports.ConfigLoader](ctx)
	if err != nil {
		return nil, err
	}

	return NewComponents(app, log, loader), nil
}
