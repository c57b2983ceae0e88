package agent_test

import (
	"context"
	"strconv"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/trellis/internal/adapters/agent"
	"go.trai.ch/trellis/internal/core/domain"
	"go.trai.ch/trellis/internal/core/ports"
)

func agents() []domain.Agent {
	return []domain.Agent{
		{Name: "linux-1", Params: map[string]string{domain.AgentOSParam: "Linux", domain.AgentMemoryParam: "8192"}},
		{Name: "win-1", Params: map[string]string{domain.AgentOSParam: "Windows", domain.AgentMemoryParam: "4096"}},
	}
}

func TestPool_AcquireMatchesRequirements(t *testing.T) {
	pool := agent.NewPool(agents())

	lease, err := pool.Acquire(context.Background(), []domain.Requirement{domain.PlatformRequirement("Windows")})
	require.NoError(t, err)
	assert.Equal(t, "win-1", lease.Agent().Name)
	lease.Release()
	lease.Release()
}

func TestPool_NoCompatibleAgent(t *testing.T) {
	pool := agent.NewPool(agents())

	_, err := pool.Acquire(context.Background(), []domain.Requirement{domain.PlatformRequirement("Mac OS X")})
	require.ErrorContains(t, err, "no compatible agent")

	mem, err := domain.NewRequirement(domain.AgentMemoryParam, "no-less-than", "16384")
	require.NoError(t, err)
	_, err = pool.Acquire(context.Background(), []domain.Requirement{mem})
	require.ErrorContains(t, err, "no compatible agent")
}

func TestPool_AcquireWaitsForRelease(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		pool := agent.NewPool(agents())
		linux := []domain.Requirement{domain.PlatformRequirement("Linux")}

		first, err := pool.Acquire(t.Context(), linux)
		require.NoError(t, err)

		acquired := make(chan ports.AgentLease)
		go func() {
			second, err := pool.Acquire(t.Context(), linux)
			if err == nil {
				acquired <- second
			}
		}()

		synctest.Wait()
		select {
		case <-acquired:
			t.Fatal("second lease granted while the agent was busy")
		default:
		}

		time.Sleep(time.Second)
		first.Release()

		second := <-acquired
		assert.Equal(t, "linux-1", second.Agent().Name)
		second.Release()
	})
}

func TestPool_AcquireCanceled(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		pool := agent.NewPool(agents())
		linux := []domain.Requirement{domain.PlatformRequirement("Linux")}

		lease, err := pool.Acquire(t.Context(), linux)
		require.NoError(t, err)
		defer lease.Release()

		ctx, cancel := context.WithTimeout(t.Context(), time.Minute)
		defer cancel()
		_, err = pool.Acquire(ctx, linux)
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestPool_LocalAgent(t *testing.T) {
	local := agent.LocalAgent()
	assert.NotEmpty(t, local.Params[domain.AgentOSParam])
	assert.Equal(t, local.Name, local.Params[domain.AgentNameParam])

	mb, err := strconv.ParseUint(local.Params[domain.AgentMemoryParam], 10, 64)
	require.NoError(t, err)
	assert.Positive(t, mb)
}

func TestPool_LocalAgentMeetsMemoryRequirement(t *testing.T) {
	pool := agent.NewPool(nil)

	mem, err := domain.NewRequirement(domain.AgentMemoryParam, "no-less-than", "1")
	require.NoError(t, err)
	lease, err := pool.Acquire(t.Context(), []domain.Requirement{mem})
	require.NoError(t, err)
	defer lease.Release()
	assert.Equal(t, agent.LocalAgent().Name, lease.Agent().Name)

	huge, err := domain.NewRequirement(domain.AgentMemoryParam, "no-less-than", "1e12")
	require.NoError(t, err)
	_, err = pool.Acquire(t.Context(), []domain.Requirement{huge})
	require.ErrorContains(t, err, "no compatible agent")
}
