package secrets

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/trellis/internal/core/ports"
)

// NodeID is the unique identifier for the secret resolver Graft node.
const NodeID graft.ID = "adapter.secrets"

func init() {
	graft.Register(graft.Node[ports.SecretResolver]{
		ID:        NodeID,
		Cacheable: true,
		Run: func(_ context.Context) (ports.SecretResolver, error) {
			return NewResolver(), nil
		},
	})
}
