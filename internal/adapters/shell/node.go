package shell

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/trellis/internal/adapters/secrets"
	"go.trai.ch/trellis/internal/core/ports"
)

// NodeID is the unique identifier for the executor Graft node.
const NodeID graft.ID = "adapter.executor"

func init() {
	graft.Register(graft.Node[ports.Executor]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{secrets.NodeID},
		Run: func(ctx context.Context) (ports.Executor, error) {
			resolver, err := graft.Dep[ports.SecretResolver](ctx)
			if err != nil {
				return nil, err
			}
			return NewExecutor(resolver), nil
		},
	})
}
