package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jmhodges/clock"
)

func counter(val string, err error) (func(context.Context) (string, error), *int) {
	n := 0
	return func(context.Context) (string, error) {
		n++
		if err != nil {
			return "", err
		}
		return val, nil
	}, &n
}

func TestCacheHitWithinTTL(t *testing.T) {
	fc := clock.NewFake()
	c := New[string](Options{TTL: time.Minute, Clock: fc})
	fetch, calls := counter("v1", nil)

	for i := 0; i < 3; i++ {
		v, err := c.GetOrFetch(context.Background(), fetch)
		if err != nil || v != "v1" {
			t.Fatalf("GetOrFetch = %q, %v", v, err)
		}
		fc.Add(20 * time.Second)
	}
	if *calls != 1 {
		t.Fatalf("fetch calls = %d, want 1", *calls)
	}
}

func TestCacheRefreshesAfterTTL(t *testing.T) {
	fc := clock.NewFake()
	c := New[string](Options{TTL: time.Minute, Clock: fc})
	fetch, calls := counter("v", nil)

	if _, err := c.GetOrFetch(context.Background(), fetch); err != nil {
		t.Fatal(err)
	}
	fc.Add(time.Minute)
	if _, err := c.GetOrFetch(context.Background(), fetch); err != nil {
		t.Fatal(err)
	}
	if *calls != 2 {
		t.Fatalf("fetch calls = %d, want 2", *calls)
	}
}

func TestCacheFailureLeavesSlotUntouched(t *testing.T) {
	fc := clock.NewFake()
	c := New[string](Options{Name: "test", TTL: time.Minute, Clock: fc})
	ok, _ := counter("good", nil)
	if _, err := c.GetOrFetch(context.Background(), ok); err != nil {
		t.Fatal(err)
	}
	fc.Add(2 * time.Minute)

	cause := errors.New("boom")
	bad, _ := counter("", cause)
	_, err := c.GetOrFetch(context.Background(), bad)
	if !errors.Is(err, ErrFetch) || !errors.Is(err, cause) {
		t.Fatalf("err = %v, want ErrFetch wrapping cause", err)
	}
	var fe *FetchError
	if !errors.As(err, &fe) || fe.Cache != "test" {
		t.Fatalf("err = %#v, want *FetchError for test", err)
	}

	// The stale value is still stored, not replaced, but it is not fresh.
	c.mu.RLock()
	got := c.value
	c.mu.RUnlock()
	if got != "good" {
		t.Fatalf("slot = %q, want previous value", got)
	}
	if _, fresh := c.Peek(); fresh {
		t.Fatal("failed fetch refreshed the timestamp")
	}
}

func TestCacheConcurrentMissesAllFetch(t *testing.T) {
	c := New[int](Options{TTL: time.Minute, Clock: clock.NewFake()})
	var mu sync.Mutex
	calls := 0
	start := make(chan struct{})
	release := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, _ = c.GetOrFetch(context.Background(), func(context.Context) (int, error) {
				mu.Lock()
				calls++
				mu.Unlock()
				<-release
				return 1, nil
			})
		}()
	}
	close(start)
	// Wait until every goroutine is inside fetch.
	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := calls
		mu.Unlock()
		if n == 3 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("fetch calls = %d, want 3 concurrent fetches", n)
		}
		time.Sleep(time.Millisecond)
	}
	close(release)
	wg.Wait()
}

func TestKeyedMissOnDifferentKey(t *testing.T) {
	fc := clock.NewFake()
	c := NewKeyed[string, string](Options{TTL: time.Minute, Clock: fc})
	calls := map[string]int{}
	fetch := func(_ context.Context, k string) (string, error) {
		calls[k]++
		return "v-" + k, nil
	}

	v, err := c.GetOrFetch(context.Background(), "a", fetch)
	if err != nil || v != "v-a" {
		t.Fatalf("a = %q, %v", v, err)
	}
	if v, _ := c.GetOrFetch(context.Background(), "a", fetch); v != "v-a" {
		t.Fatalf("a again = %q", v)
	}
	if v, _ := c.GetOrFetch(context.Background(), "b", fetch); v != "v-b" {
		t.Fatalf("b = %q", v)
	}
	// Single slot: b replaced a.
	if _, ok := c.Peek("a"); ok {
		t.Fatal("a still cached after b was stored")
	}
	if calls["a"] != 1 || calls["b"] != 1 {
		t.Fatalf("calls = %v", calls)
	}

	fc.Add(time.Minute)
	if _, ok := c.Peek("b"); ok {
		t.Fatal("b fresh past TTL")
	}
}

func TestKeyedFailureKeepsPreviousKey(t *testing.T) {
	c := NewKeyed[int, string](Options{TTL: time.Minute, Clock: clock.NewFake()})
	_, _ = c.GetOrFetch(context.Background(), 1, func(context.Context, int) (string, error) { return "one", nil })

	_, err := c.GetOrFetch(context.Background(), 2, func(context.Context, int) (string, error) {
		return "", errors.New("down")
	})
	if !errors.Is(err, ErrFetch) {
		t.Fatalf("err = %v", err)
	}
	if v, ok := c.Peek(1); !ok || v != "one" {
		t.Fatalf("Peek(1) = %q, %v", v, ok)
	}
}

func TestInvalidate(t *testing.T) {
	c := New[string](Options{TTL: time.Hour, Clock: clock.NewFake()})
	fetch, calls := counter("x", nil)
	_, _ = c.GetOrFetch(context.Background(), fetch)
	c.Invalidate()
	_, _ = c.GetOrFetch(context.Background(), fetch)
	if *calls != 2 {
		t.Fatalf("fetch calls = %d, want 2", *calls)
	}
}
