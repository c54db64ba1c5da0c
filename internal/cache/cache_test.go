package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestGetOrCompute_SingleFlight(t *testing.T) {
	c := New(16)

	var computes int64
	compute := func(ctx context.Context) (any, error) {
		atomic.AddInt64(&computes, 1)
		time.Sleep(50 * time.Millisecond)
		return "result", nil
	}

	var wg sync.WaitGroup
	results := make([]any, 50)
	errs := make([]error, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.GetOrCompute(context.Background(), "k", time.Minute, compute)
		}(i)
	}
	wg.Wait()

	if n := atomic.LoadInt64(&computes); n != 1 {
		t.Errorf("expected exactly 1 computation, got %d", n)
	}
	for i := range results {
		if errs[i] != nil {
			t.Fatalf("caller %d failed: %v", i, errs[i])
		}
		if results[i] != "result" {
			t.Errorf("caller %d got %v", i, results[i])
		}
	}
}

func TestGetOrCompute_HitSkipsCompute(t *testing.T) {
	c := New(16)

	var computes int64
	compute := func(ctx context.Context) (any, error) {
		atomic.AddInt64(&computes, 1)
		return 42, nil
	}

	for i := 0; i < 3; i++ {
		v, err := c.GetOrCompute(context.Background(), "k", time.Minute, compute)
		if err != nil {
			t.Fatalf("call %d failed: %v", i, err)
		}
		if v != 42 {
			t.Errorf("call %d got %v", i, v)
		}
	}

	if computes != 1 {
		t.Errorf("expected 1 computation, got %d", computes)
	}
}

func TestGetOrCompute_FailureNotCached(t *testing.T) {
	c := New(16)

	var calls int64
	boom := errors.New("store down")
	failing := func(ctx context.Context) (any, error) {
		atomic.AddInt64(&calls, 1)
		return nil, boom
	}

	if _, err := c.GetOrCompute(context.Background(), "k", time.Minute, failing); !errors.Is(err, boom) {
		t.Fatalf("expected compute error, got %v", err)
	}
	if c.Len() != 0 {
		t.Error("failed computation populated the cache")
	}

	ok := func(ctx context.Context) (any, error) {
		atomic.AddInt64(&calls, 1)
		return "recovered", nil
	}
	v, err := c.GetOrCompute(context.Background(), "k", time.Minute, ok)
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if v != "recovered" {
		t.Errorf("got %v", v)
	}
	if calls != 2 {
		t.Errorf("expected retry to recompute, calls=%d", calls)
	}
}

func TestGetOrCompute_TTLExpiry(t *testing.T) {
	c := New(16)
	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }

	var computes int64
	compute := func(ctx context.Context) (any, error) {
		return atomic.AddInt64(&computes, 1), nil
	}

	v, _ := c.GetOrCompute(context.Background(), "k", time.Minute, compute)
	if v != int64(1) {
		t.Fatalf("got %v", v)
	}

	now = now.Add(30 * time.Second)
	v, _ = c.GetOrCompute(context.Background(), "k", time.Minute, compute)
	if v != int64(1) {
		t.Errorf("entry expired early: %v", v)
	}

	now = now.Add(31 * time.Second)
	v, _ = c.GetOrCompute(context.Background(), "k", time.Minute, compute)
	if v != int64(2) {
		t.Errorf("expected recompute after expiry, got %v", v)
	}
}

func TestEviction_OldestHalf(t *testing.T) {
	c := New(4)
	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		key := fmt.Sprintf("k%d", i)
		_, err := c.GetOrCompute(context.Background(), key, time.Hour, func(ctx context.Context) (any, error) {
			return key, nil
		})
		if err != nil {
			t.Fatalf("compute %d failed: %v", i, err)
		}
		now = now.Add(time.Second)
	}

	// Inserting the 5th entry trips the bound; the oldest two go.
	if c.Len() != 3 {
		t.Fatalf("expected 3 entries after eviction, got %d", c.Len())
	}
	if _, ok := c.get("k0"); ok {
		t.Error("k0 should have been evicted")
	}
	if _, ok := c.get("k1"); ok {
		t.Error("k1 should have been evicted")
	}
	if _, ok := c.get("k4"); !ok {
		t.Error("k4 should have survived")
	}
}

func TestGetOrCompute_CancelDetachesCaller(t *testing.T) {
	c := New(16)

	release := make(chan struct{})
	var computes int64
	slow := func(ctx context.Context) (any, error) {
		atomic.AddInt64(&computes, 1)
		<-release
		return "done", nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := c.GetOrCompute(ctx, "k", time.Minute, slow)
		errCh <- err
	}()

	// Let the computation start, then abandon the caller.
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("cancelled caller did not return")
	}

	// The shared computation keeps running and still populates the cache.
	close(release)
	deadline := time.After(time.Second)
	for c.Len() == 0 {
		select {
		case <-deadline:
			t.Fatal("computation did not complete after caller detached")
		case <-time.After(5 * time.Millisecond):
		}
	}

	v, err := c.GetOrCompute(context.Background(), "k", time.Minute, slow)
	if err != nil {
		t.Fatalf("follow-up call failed: %v", err)
	}
	if v != "done" {
		t.Errorf("got %v", v)
	}
	if n := atomic.LoadInt64(&computes); n != 1 {
		t.Errorf("expected the original computation to be reused, computes=%d", n)
	}
}
