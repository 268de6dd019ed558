package health

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/basemcp/internal/circuitbreaker"
)

func TestRegistryEmpty(t *testing.T) {
	r := NewRegistry()
	healthy, statuses := r.CheckAll(context.Background())
	assert.True(t, healthy)
	assert.Empty(t, statuses)
}

func TestRegistryAllHealthy(t *testing.T) {
	r := NewRegistry()
	r.Register("db", func(_ context.Context) Status {
		return Status{Name: "db", Healthy: true}
	})
	r.Register("rpc", func(_ context.Context) Status {
		return Status{Healthy: true, Detail: "ok"}
	})

	healthy, statuses := r.CheckAll(context.Background())
	assert.True(t, healthy)
	require.Len(t, statuses, 2)
	assert.Equal(t, "rpc", statuses[1].Name, "name defaults to registration name")
}

func TestRegistryOneUnhealthy(t *testing.T) {
	r := NewRegistry()
	r.Register("db", func(_ context.Context) Status {
		return Status{Name: "db", Healthy: true}
	})
	r.Register("rpc", func(_ context.Context) Status {
		return Status{Name: "rpc", Healthy: false, Detail: "connection refused"}
	})

	healthy, statuses := r.CheckAll(context.Background())
	assert.False(t, healthy)
	assert.Equal(t, "connection refused", statuses[1].Detail)
}

func TestRegistryChecksHaveDeadline(t *testing.T) {
	r := NewRegistry()
	r.Register("slow", func(ctx context.Context) Status {
		_, ok := ctx.Deadline()
		return Status{Healthy: ok}
	})
	healthy, _ := r.CheckAll(context.Background())
	assert.True(t, healthy)
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			r.Register("x", func(context.Context) Status { return Status{Healthy: true} })
		}()
		go func() {
			defer wg.Done()
			r.CheckAll(context.Background())
		}()
	}
	wg.Wait()
	_, statuses := r.CheckAll(context.Background())
	assert.Len(t, statuses, 10)
}

type fakeRPC struct {
	n   uint64
	err error
}

func (f fakeRPC) BlockNumber(context.Context) (uint64, error) { return f.n, f.err }

func TestRPCChecker(t *testing.T) {
	st := RPCChecker("rpc", fakeRPC{n: 42})(context.Background())
	assert.True(t, st.Healthy)
	assert.Equal(t, "block 42", st.Detail)

	st = RPCChecker("rpc", fakeRPC{err: errors.New("dial tcp")})(context.Background())
	assert.False(t, st.Healthy)
	assert.Equal(t, "dial tcp", st.Detail)
}

type fakePinger struct{ err error }

func (f fakePinger) PingContext(context.Context) error { return f.err }

func TestDBChecker(t *testing.T) {
	assert.True(t, DBChecker("db", fakePinger{})(context.Background()).Healthy)
	assert.False(t, DBChecker("db", fakePinger{err: errors.New("down")})(context.Background()).Healthy)
}

func TestBreakerChecker(t *testing.T) {
	b := circuitbreaker.New(1, time.Minute)
	st := BreakerChecker("upstreams", b)(context.Background())
	assert.True(t, st.Healthy)
	assert.Empty(t, st.Detail)

	b.RecordFailure("binance")
	st = BreakerChecker("upstreams", b)(context.Background())
	assert.True(t, st.Healthy)
	assert.Equal(t, "binance=open", st.Detail)
}
