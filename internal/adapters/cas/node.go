package cas

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/trellis/internal/core/ports"
)

const (
	// NodeID is the unique identifier for the state store Graft node.
	NodeID graft.ID = "adapter.state_store"
	// RunStoreNodeID exposes the store as ports.RunStore.
	RunStoreNodeID graft.ID = "adapter.run_store"
	// CounterStoreNodeID exposes the store as ports.CounterStore.
	CounterStoreNodeID graft.ID = "adapter.counter_store"
	// ReleaseStoreNodeID exposes the store as ports.ReleaseStore.
	ReleaseStoreNodeID graft.ID = "adapter.release_store"
	// ArtifactStoreNodeID exposes the store as ports.ArtifactStore.
	ArtifactStoreNodeID graft.ID = "adapter.artifact_store"
	// LockerNodeID exposes the store as ports.Locker.
	LockerNodeID graft.ID = "adapter.locker"
)

func init() {
	graft.Register(graft.Node[*Store]{
		ID:        NodeID,
		Cacheable: true,
		Run: func(_ context.Context) (*Store, error) {
			return NewStore(), nil
		},
	})

	graft.Register(graft.Node[ports.RunStore]{
		ID:        RunStoreNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{NodeID},
		Run: func(ctx context.Context) (ports.RunStore, error) {
			store, err := graft.Dep[*Store](ctx)
			if err != nil {
				return nil, err
			}
			return store, nil
		},
	})

	graft.Register(graft.Node[ports.CounterStore]{
		ID:        CounterStoreNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{NodeID},
		Run: func(ctx context.Context) (ports.CounterStore, error) {
			store, err := graft.Dep[*Store](ctx)
			if err != nil {
				return nil, err
			}
			return store, nil
		},
	})

	graft.Register(graft.Node[ports.ReleaseStore]{
		ID:        ReleaseStoreNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{NodeID},
		Run: func(ctx context.Context) (ports.ReleaseStore, error) {
			store, err := graft.Dep[*Store](ctx)
			if err != nil {
				return nil, err
			}
			return store, nil
		},
	})

	graft.Register(graft.Node[ports.ArtifactStore]{
		ID:        ArtifactStoreNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{NodeID},
		Run: func(ctx context.Context) (ports.ArtifactStore, error) {
			store, err := graft.Dep[*Store](ctx)
			if err != nil {
				return nil, err
			}
			return store, nil
		},
	})

	graft.Register(graft.Node[ports.Locker]{
		ID:        LockerNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{NodeID},
		Run: func(ctx context.Context) (ports.Locker, error) {
			store, err := graft.Dep[*Store](ctx)
			if err != nil {
				return nil, err
			}
			return store, nil
		},
	})
}
