package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/basemcp/internal/circuitbreaker"
	"github.com/mbd888/basemcp/internal/config"
	"github.com/mbd888/basemcp/internal/retry"
)

func fastOpts(attempts int) Options {
	return Options{
		Timeout: 2 * time.Second,
		Retry:   retry.Policy{MaxAttempts: attempts, BaseDelay: time.Millisecond},
	}
}

func TestGetJSON_DecodesAndSendsHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/thing", r.URL.Path)
		assert.Equal(t, "x", r.URL.Query().Get("q"))
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))
		_, _ = w.Write([]byte(`{"value":42}`))
	}))
	defer srv.Close()

	c := New("test", srv.URL+"/", fastOpts(1)).WithHeader("x-api-key", "secret")
	var out struct {
		Value int `json:"value"`
	}
	require.NoError(t, c.GetJSON(context.Background(), "/v2/thing", url.Values{"q": {"x"}}, &out))
	assert.Equal(t, 42, out.Value)
	assert.Equal(t, "test", c.Provider())
}

func TestDo_StatusErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"message field", `{"message":"Invalid API key"}`, "API error (401): Invalid API key"},
		{"binance msg", `{"code":-1121,"msg":"Invalid symbol."}`, "API error (401): Invalid symbol."},
		{"error string", `{"error":"not allowed"}`, "API error (401): not allowed"},
		{"plain body", "nope", "API error (401): nope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := New("test", srv.URL, fastOpts(1)).Do(context.Background(), http.MethodGet, "/", nil, nil)
			require.Error(t, err)
			assert.Equal(t, tt.want, err.Error())
		})
	}
}

func TestDo_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	raw, err := New("test", srv.URL, fastOpts(3)).Do(context.Background(), http.MethodGet, "/", nil, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(raw))
	assert.Equal(t, int32(2), calls.Load())
}

func TestDo_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := New("test", srv.URL, fastOpts(3)).Do(context.Background(), http.MethodGet, "/", nil, nil)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestPostJSON_SingleAttempt(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "{ vaults }", body["query"])
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := New("test", srv.URL, fastOpts(3)).PostJSON(context.Background(), "/graphql", map[string]any{"query": "{ vaults }"}, nil)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDo_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	base := srv.URL
	srv.Close()

	_, err := New("test", base, fastOpts(1)).Do(context.Background(), http.MethodGet, "/", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request failed")
}

func TestDo_BreakerOpensAndFailsFast(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	opts := fastOpts(1)
	opts.Breaker = circuitbreaker.New(2, time.Minute)
	c := New("flaky", srv.URL, opts)

	for i := 0; i < 2; i++ {
		_, err := c.Do(context.Background(), http.MethodGet, "/", nil, nil)
		require.Error(t, err)
	}

	_, err := c.Do(context.Background(), http.MethodGet, "/", nil, nil)
	assert.True(t, errors.Is(err, ErrCircuitOpen))
	assert.Equal(t, int32(2), calls.Load())
}

func TestDo_ClientErrorsDoNotTripBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	opts := fastOpts(1)
	opts.Breaker = circuitbreaker.New(1, time.Minute)
	c := New("dex", srv.URL, opts)
	for i := 0; i < 3; i++ {
		_, _ = c.Do(context.Background(), http.MethodGet, "/", nil, nil)
	}
	assert.Equal(t, circuitbreaker.StateClosed, opts.Breaker.State("dex"))
}

func TestGetJSON_DecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	var out map[string]any
	err := New("test", srv.URL, fastOpts(1)).GetJSON(context.Background(), "/", nil, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode response")
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := &config.Config{UpstreamTimeout: 5 * time.Second, UpstreamMaxAttempts: 4}
	b := circuitbreaker.New(3, time.Second)
	opts := OptionsFromConfig(cfg, b)
	assert.Equal(t, 5*time.Second, opts.Timeout)
	assert.Equal(t, 4, opts.Retry.MaxAttempts)
	assert.Same(t, b, opts.Breaker)
}
