// Package health provides a registry of named subsystem health checkers.
package health

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mbd888/basemcp/internal/circuitbreaker"
)

// Status represents the health of a single subsystem.
type Status struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}

// Checker is a function that checks the health of a subsystem.
type Checker func(ctx context.Context) Status

// Registry holds named health checkers and runs them on demand.
type Registry struct {
	mu       sync.RWMutex
	checkers []namedChecker
	timeout  time.Duration
}

type namedChecker struct {
	name  string
	check Checker
}

// NewRegistry creates a registry whose checks are each bounded by 3s.
func NewRegistry() *Registry {
	return &Registry{timeout: 3 * time.Second}
}

// Register adds a named health checker.
func (r *Registry) Register(name string, check Checker) {
	r.mu.Lock()
	r.checkers = append(r.checkers, namedChecker{name: name, check: check})
	r.mu.Unlock()
}

// CheckAll runs all registered checkers and returns the aggregate health
// status plus individual subsystem results.
func (r *Registry) CheckAll(ctx context.Context) (healthy bool, statuses []Status) {
	r.mu.RLock()
	checkers := make([]namedChecker, len(r.checkers))
	copy(checkers, r.checkers)
	r.mu.RUnlock()

	healthy = true
	statuses = make([]Status, len(checkers))

	for i, nc := range checkers {
		cctx, cancel := context.WithTimeout(ctx, r.timeout)
		statuses[i] = nc.check(cctx)
		cancel()
		if statuses[i].Name == "" {
			statuses[i].Name = nc.name
		}
		if !statuses[i].Healthy {
			healthy = false
		}
	}

	return healthy, statuses
}

// BlockNumberer is the slice of an RPC client needed to probe a node.
type BlockNumberer interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

// RPCChecker reports whether the chain node answers eth_blockNumber.
func RPCChecker(name string, client BlockNumberer) Checker {
	return func(ctx context.Context) Status {
		n, err := client.BlockNumber(ctx)
		if err != nil {
			return Status{Name: name, Healthy: false, Detail: err.Error()}
		}
		return Status{Name: name, Healthy: true, Detail: fmt.Sprintf("block %d", n)}
	}
}

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// DBChecker reports whether the database accepts connections.
func DBChecker(name string, db Pinger) Checker {
	return func(ctx context.Context) Status {
		if err := db.PingContext(ctx); err != nil {
			return Status{Name: name, Healthy: false, Detail: err.Error()}
		}
		return Status{Name: name, Healthy: true}
	}
}

// BreakerChecker is always healthy; an open provider circuit degrades a
// single tool, not the process. Open circuits are listed in Detail.
func BreakerChecker(name string, b *circuitbreaker.Breaker) Checker {
	return func(context.Context) Status {
		var open []string
		for _, ks := range b.Snapshot() {
			if ks.State != circuitbreaker.StateClosed {
				open = append(open, ks.Key+"="+ks.State.String())
			}
		}
		if len(open) == 0 {
			return Status{Name: name, Healthy: true}
		}
		return Status{Name: name, Healthy: true, Detail: strings.Join(open, ",")}
	}
}
