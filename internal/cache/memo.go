package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultComputeTimeout bounds a shared lookup when no other limit is set.
const DefaultComputeTimeout = 10 * time.Second

// Memo runs cache-through lookups. Concurrent misses for one key share a
// single computation. The shared work runs detached from any one caller,
// so a caller that gives up only abandons its own wait.
type Memo struct {
	cache   Cache
	ttl     time.Duration
	timeout time.Duration
	group   singleflight.Group
	observe func(hit bool)
}

// NewMemo wraps c. observe, if non-nil, is called once per lookup that
// reached the cache.
func NewMemo(c Cache, ttl time.Duration, observe func(hit bool)) *Memo {
	if c == nil {
		c = Nop{}
	}
	return &Memo{cache: c, ttl: ttl, timeout: DefaultComputeTimeout, observe: observe}
}

// SetComputeTimeout bounds the shared get, compute and set of one key.
func (m *Memo) SetComputeTimeout(d time.Duration) {
	if d > 0 {
		m.timeout = d
	}
}

func (m *Memo) record(hit bool) {
	if m.observe != nil {
		m.observe(hit)
	}
}

// Remember returns the value cached under key, or computes, stores and
// returns it. A cached value is returned unchanged until its TTL expires.
func Remember[T any](ctx context.Context, m *Memo, key string, compute func(context.Context) (T, error)) (T, error) {
	var zero T

	ch := m.group.DoChan(key, func() (any, error) {
		// Values are kept from the first caller, cancellation is not.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.timeout)
		defer cancel()

		bs, ok, err := m.cache.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("cache get %s: %w", key, err)
		}
		if ok {
			m.record(true)
			return bs, nil
		}
		m.record(false)

		v, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		bs, err = json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("cache encode %s: %w", key, err)
		}
		if err := m.cache.Set(ctx, key, bs, m.ttl); err != nil {
			return nil, fmt.Errorf("cache set %s: %w", key, err)
		}
		return bs, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return zero, ctx.Err()
	}
	if res.Err != nil {
		return zero, res.Err
	}

	var out T
	if err := json.Unmarshal(res.Val.([]byte), &out); err != nil {
		return zero, fmt.Errorf("cache decode %s: %w", key, err)
	}
	return out, nil
}
