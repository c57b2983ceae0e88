package httpapi

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/trellis/internal/adapters/cas"
	"go.trai.ch/trellis/internal/adapters/logger"
	"go.trai.ch/trellis/internal/core/domain"
	"go.trai.ch/trellis/internal/core/ports"
)

// NodeID is the unique identifier for the status API factory Graft node.
const NodeID graft.ID = "adapter.httpapi"

// Factory builds a Server once the pipeline is loaded.
type Factory struct {
	runs     ports.RunStore
	releases ports.ReleaseStore
	logger   ports.Logger
}

// NewFactory creates a Factory.
func NewFactory(runs ports.RunStore, releases ports.ReleaseStore, logger ports.Logger) *Factory {
	return &Factory{runs: runs, releases: releases, logger: logger}
}

// Server returns a Server for the loaded pipeline.
func (f *Factory) Server(pipeline *domain.Pipeline) *Server {
	return NewServer(pipeline, f.runs, f.releases, f.logger)
}

func init() {
	graft.Register(graft.Node[*Factory]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{cas.RunStoreNodeID, cas.ReleaseStoreNodeID, logger.NodeID},
		Run: func(ctx context.Context) (*Factory, error) {
			runs, err := graft.Dep[ports.RunStore](ctx)
			if err != nil {
				return nil, err
			}
			releases, err := graft.Dep[ports.ReleaseStore](ctx)
			if err != nil {
				return nil, err
			}
			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}
			return NewFactory(runs, releases, log), nil
		},
	})
}
