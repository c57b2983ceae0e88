package ports

import (
	"context"

	"go.trai.ch/trellis/internal/core/domain"
)

// AgentLease is exclusive use of one agent until Release is called.
type AgentLease interface {
	Agent() *domain.Agent
	Release()
}

// AgentPool hands out agents whose parameters satisfy a job's requirements.
//
//go:generate mockgen -source=agent.go -destination=mocks/mock_agent.go -package=mocks
type AgentPool interface {
	// Acquire blocks until a compatible agent is free. It returns
	// domain.ErrNoCompatibleAgent immediately when no agent in the pool
	// can ever satisfy reqs.
	Acquire(ctx context.Context, reqs []domain.Requirement) (AgentLease, error)
}
