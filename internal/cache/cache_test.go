package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedis(rdb, "insights"), mr
}

func TestRedisGetSet(t *testing.T) {
	c, mr := newRedis(t)
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	assert.True(t, mr.Exists("insights:k"))

	bs, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", string(bs))

	mr.FastForward(2 * time.Minute)
	_, ok, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisGetError(t *testing.T) {
	c, mr := newRedis(t)
	mr.Close()

	_, _, err := c.Get(context.Background(), "k")
	assert.Error(t, err)
}

type point struct {
	X int `json:"x"`
}

func TestRememberHitMasksNewData(t *testing.T) {
	c, _ := newRedis(t)
	var hits, misses int
	m := NewMemo(c, 10*time.Minute, func(hit bool) {
		if hit {
			hits++
		} else {
			misses++
		}
	})

	n := 1
	compute := func(context.Context) (point, error) { return point{X: n}, nil }

	first, err := Remember(context.Background(), m, "p", compute)
	require.NoError(t, err)
	n = 2
	second, err := Remember(context.Background(), m, "p", compute)
	require.NoError(t, err)

	assert.Equal(t, point{X: 1}, first)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, hits)
	assert.Equal(t, 1, misses)
}

func TestRememberExpires(t *testing.T) {
	c, mr := newRedis(t)
	m := NewMemo(c, time.Minute, nil)

	n := 1
	compute := func(context.Context) (point, error) { return point{X: n}, nil }

	_, err := Remember(context.Background(), m, "p", compute)
	require.NoError(t, err)
	n = 2
	mr.FastForward(2 * time.Minute)

	got, err := Remember(context.Background(), m, "p", compute)
	require.NoError(t, err)
	assert.Equal(t, 2, got.X)
}

func TestRememberComputeErrorIsNotCached(t *testing.T) {
	c, mr := newRedis(t)
	m := NewMemo(c, time.Minute, nil)
	boom := errors.New("boom")

	_, err := Remember(context.Background(), m, "p", func(context.Context) (point, error) { return point{}, boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists("insights:p"))
}

func TestRememberCacheErrorSurfaces(t *testing.T) {
	c, mr := newRedis(t)
	m := NewMemo(c, time.Minute, nil)
	mr.Close()

	_, err := Remember(context.Background(), m, "p", func(context.Context) (point, error) { return point{X: 1}, nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cache get p")
}

func TestRememberCollapsesConcurrentMisses(t *testing.T) {
	m := NewMemo(Nop{}, time.Minute, nil)
	var calls atomic.Int32
	release := make(chan struct{})

	compute := func(context.Context) (point, error) {
		calls.Add(1)
		<-release
		return point{X: 7}, nil
	}

	var wg sync.WaitGroup
	results := make([]point, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = Remember(context.Background(), m, "same", compute)
		}(i)
	}
	// Let the goroutines pile up on the in-flight call before releasing it.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, r := range results {
		assert.Equal(t, 7, r.X)
	}
}

func TestRememberCallerCancelDoesNotFailOthers(t *testing.T) {
	m := NewMemo(Nop{}, time.Minute, nil)
	started := make(chan struct{})
	release := make(chan struct{})
	var computeErr error

	compute := func(ctx context.Context) (point, error) {
		close(started)
		<-release
		computeErr = ctx.Err()
		return point{X: 9}, nil
	}

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := Remember(ctxA, m, "k", compute)
		errA <- err
	}()
	<-started

	type result struct {
		p   point
		err error
	}
	resB := make(chan result, 1)
	go func() {
		p, err := Remember(context.Background(), m, "k", compute)
		resB <- result{p, err}
	}()
	// Give B time to join the in-flight call.
	time.Sleep(50 * time.Millisecond)

	cancelA()
	assert.ErrorIs(t, <-errA, context.Canceled)

	close(release)
	b := <-resB
	require.NoError(t, b.err)
	assert.Equal(t, 9, b.p.X)
	assert.NoError(t, computeErr)
}

func TestRememberSharedWorkIsBounded(t *testing.T) {
	m := NewMemo(Nop{}, time.Minute, nil)
	m.SetComputeTimeout(50 * time.Millisecond)

	_, err := Remember(context.Background(), m, "slow", func(ctx context.Context) (point, error) {
		<-ctx.Done()
		return point{}, ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNopAlwaysMisses(t *testing.T) {
	var c Nop
	require.NoError(t, c.Set(context.Background(), "k", []byte("v"), time.Minute))
	_, ok, err := c.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, ok)
}
