// Package agent implements the agent pool handing out exclusive agent leases.
package agent

import (
	"context"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/pbnjay/memory"
	"go.trai.ch/trellis/internal/core/domain"
	"go.trai.ch/trellis/internal/core/ports"
	"go.trai.ch/zerr"
)

// Pool implements ports.AgentPool over a fixed set of agents.
type Pool struct {
	mu     sync.Mutex
	agents []domain.Agent
	busy   []bool
	// freed is closed and replaced whenever a lease is released.
	freed chan struct{}
}

// NewPool creates a pool of agents. An empty list yields a pool holding the
// local machine only.
func NewPool(agents []domain.Agent) *Pool {
	if len(agents) == 0 {
		agents = []domain.Agent{LocalAgent()}
	}
	return &Pool{
		agents: agents,
		busy:   make([]bool, len(agents)),
		freed:  make(chan struct{}),
	}
}

// LocalAgent describes the machine trellis runs on.
func LocalAgent() domain.Agent {
	name, err := os.Hostname()
	if err != nil || name == "" {
		name = "local"
	}
	params := map[string]string{
		domain.AgentNameParam: name,
		domain.AgentOSParam:   osName(runtime.GOOS),
		"os.arch":             runtime.GOARCH,
		"cpu.count":           strconv.Itoa(runtime.NumCPU()),
	}
	// TotalMemory reports 0 on platforms it cannot query.
	if total := memory.TotalMemory(); total > 0 {
		params[domain.AgentMemoryParam] = strconv.FormatUint(total/bytesPerMB, 10)
	}
	return domain.Agent{Name: name, Params: params}
}

const bytesPerMB = 1 << 20

func osName(goos string) string {
	switch goos {
	case "linux":
		return "Linux"
	case "windows":
		return "Windows"
	case "darwin":
		return "Mac OS X"
	default:
		return goos
	}
}

// Acquire blocks until a compatible agent is free.
func (p *Pool) Acquire(ctx context.Context, reqs []domain.Requirement) (ports.AgentLease, error) {
	for {
		p.mu.Lock()
		compatible := false
		for i := range p.agents {
			if !p.agents[i].Satisfies(reqs) {
				continue
			}
			compatible = true
			if !p.busy[i] {
				p.busy[i] = true
				p.mu.Unlock()
				return &lease{pool: p, index: i}, nil
			}
		}
		freed := p.freed
		p.mu.Unlock()

		if !compatible {
			return nil, zerr.With(domain.ErrNoCompatibleAgent, "requirements", describe(reqs))
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-freed:
		}
	}
}

func (p *Pool) release(index int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.busy[index] = false
	close(p.freed)
	p.freed = make(chan struct{})
}

type lease struct {
	pool  *Pool
	index int
	once  sync.Once
}

func (l *lease) Agent() *domain.Agent {
	return &l.pool.agents[l.index]
}

func (l *lease) Release() {
	l.once.Do(func() { l.pool.release(l.index) })
}

func describe(reqs []domain.Requirement) string {
	parts := make([]string, len(reqs))
	for i, r := range reqs {
		parts[i] = r.String()
	}
	return strings.Join(parts, ", ")
}
