package async_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/launchkit/pkg/async"
)

func TestGo(t *testing.T) {
	t.Parallel()

	t.Run("result", func(t *testing.T) {
		t.Parallel()
		f := async.Go(context.Background(), func(context.Context) (int, error) { return 42, nil })
		v, err := f.Await()
		require.NoError(t, err)
		assert.Equal(t, 42, v)
	})

	t.Run("error", func(t *testing.T) {
		t.Parallel()
		boom := errors.New("boom")
		_, err := async.Go(context.Background(), func(context.Context) (int, error) { return 0, boom }).Await()
		assert.ErrorIs(t, err, boom)
	})

	t.Run("panic", func(t *testing.T) {
		t.Parallel()
		_, err := async.Go(context.Background(), func(context.Context) (int, error) { panic("nope") }).Await()
		assert.ErrorIs(t, err, async.ErrPanic)
	})

	t.Run("cancelled before start", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		called := false
		_, err := async.Go(ctx, func(context.Context) (int, error) {
			called = true
			return 1, nil
		}).Await()
		assert.ErrorIs(t, err, context.Canceled)
		assert.False(t, called)
	})
}

func TestAwaitWithTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	defer close(release)
	f := async.Go(context.Background(), func(context.Context) (string, error) {
		<-release
		return "late", nil
	})

	_, err := f.AwaitWithTimeout(10 * time.Millisecond)
	assert.ErrorIs(t, err, async.ErrTimeout)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = f.AwaitContext(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWaitAll(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	ctx := context.Background()
	results, err := async.WaitAll(
		async.Go(ctx, func(context.Context) (int, error) { return 1, nil }),
		async.Go(ctx, func(context.Context) (int, error) { return 0, boom }),
		async.Go(ctx, func(context.Context) (int, error) { return 3, nil }),
	)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []int{1, 0, 3}, results)
}
