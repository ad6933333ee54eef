package httpserver_test

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/launchkit/pkg/httpserver"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func waitUp(t *testing.T, addr string) {
	t.Helper()
	var err error
	for range 50 {
		var resp *http.Response
		resp, err = http.Get("http://" + addr)
		if err == nil {
			_ = resp.Body.Close()
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	require.NoError(t, err, "server did not start")
}

func TestRunStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	addr := freeAddr(t)
	var hookCalled atomic.Bool
	srv := httpserver.New(
		httpserver.WithAddr(addr),
		httpserver.WithShutdownTimeout(200*time.Millisecond),
		httpserver.WithStopHook(func(context.Context) error {
			hookCalled.Store(true)
			return nil
		}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- srv.Run(ctx, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))
	}()

	waitUp(t, addr)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		require.Fail(t, "run did not return")
	}
	assert.True(t, hookCalled.Load())
	assert.NoError(t, srv.Shutdown(context.Background()), "repeated shutdown is a no-op")
}

func TestRunInvalidAddr(t *testing.T) {
	t.Parallel()

	srv := httpserver.New(httpserver.WithAddr(":invalid"))
	err := srv.Run(context.Background(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, httpserver.ErrStart)
}

func TestStopHookError(t *testing.T) {
	t.Parallel()

	addr := freeAddr(t)
	hookErr := errors.New("drain failed")
	srv := httpserver.New(
		httpserver.WithAddr(addr),
		httpserver.WithStopHook(func(context.Context) error { return hookErr }),
	)

	done := make(chan error, 1)
	go func() { done <- srv.Run(context.Background(), http.NewServeMux()) }()
	waitUp(t, addr)

	err := srv.Shutdown(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, httpserver.ErrShutdown)
	assert.ErrorIs(t, err, hookErr)
	require.NoError(t, <-done)
}

func TestOptionPanics(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { httpserver.WithAddr("") })
	assert.Panics(t, func() { httpserver.WithReadTimeout(0) })
	assert.Panics(t, func() { httpserver.WithStopHook(nil) })
}

func TestHealthHandlers(t *testing.T) {
	t.Parallel()

	t.Run("liveness", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()
		httpserver.LivenessHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "ALIVE", rec.Body.String())
	})

	t.Run("ready", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()
		h := httpserver.ReadinessHandler(nil, time.Second, httpserver.Check{
			Name: "pg", Fn: func(context.Context) error { return nil },
		})
		h(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "READY", rec.Body.String())
	})

	t.Run("not ready", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()
		h := httpserver.ReadinessHandler(nil, time.Second,
			httpserver.Check{Name: "pg", Fn: func(context.Context) error { return nil }},
			httpserver.Check{Name: "redis", Fn: func(context.Context) error { return errors.New("down") }},
		)
		h(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "NOT_READY", rec.Body.String())
	})
}
