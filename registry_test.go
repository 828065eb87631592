package layerz

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zoobzio/clockz"
)

func TestRegistryLookupCreatesOnce(t *testing.T) {
	registry := New()
	defer registry.Close()

	ctx, req := registry.Lookup(context.Background())
	if req == nil {
		t.Fatal("Expected a request to be created")
	}
	if req.ID == "" {
		t.Error("Expected a request ID")
	}

	again, same := registry.Lookup(ctx)
	if same != req {
		t.Error("Expected the same request for the same execution unit")
	}

	// Derived contexts belong to the same execution unit.
	derived, cancel := context.WithTimeout(again, time.Second)
	defer cancel()
	if _, r := registry.Lookup(derived); r != req {
		t.Error("Expected derived context to see the bound request")
	}

	if registry.Active() != 1 {
		t.Errorf("Expected 1 active request, got %d", registry.Active())
	}

	registry.Discard(ctx)
	if registry.Active() != 0 {
		t.Errorf("Expected 0 active requests, got %d", registry.Active())
	}
	if !req.Finished() {
		t.Error("Expected discarded request to be finished")
	}
}

func TestRegistryCurrent(t *testing.T) {
	registry := New()
	defer registry.Close()

	if _, ok := registry.Current(context.Background()); ok {
		t.Error("Expected no request on a bare context")
	}
	//nolint:staticcheck // nil context is tolerated
	if _, ok := registry.Current(nil); ok {
		t.Error("Expected no request on a nil context")
	}

	ctx, req := registry.Lookup(context.Background())
	got, ok := registry.Current(ctx)
	if !ok || got != req {
		t.Error("Expected Current to return the bound request")
	}

	registry.Discard(ctx)
	if _, ok := registry.Current(ctx); ok {
		t.Error("Expected no request after discard")
	}

	// A new lookup in the same unit starts a fresh request in a derived
	// context; the discarded context stays unbound.
	nextCtx, next := registry.Lookup(ctx)
	if next == req {
		t.Error("Expected a new request after discard")
	}
	if _, ok := registry.Current(ctx); ok {
		t.Error("Expected the discarded context to stay unbound")
	}
	registry.Discard(nextCtx)
	if registry.Active() != 0 {
		t.Errorf("Expected 0 active requests, got %d", registry.Active())
	}
}

func TestRegistryDiscardRacingUnitsCompleteOnce(t *testing.T) {
	registry := New()
	defer registry.Close()

	var completed atomic.Int32
	registry.OnRequestComplete(func(*Request) { completed.Add(1) })

	ctx, _ := registry.Lookup(context.Background())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			registry.Discard(ctx)
		}()
	}
	wg.Wait()

	if completed.Load() != 1 {
		t.Errorf("Expected exactly one completion, got %d", completed.Load())
	}
	if registry.Active() != 0 {
		t.Errorf("Expected 0 active requests, got %d", registry.Active())
	}
}

func TestRegistryPanicHookSwappedDuringCompletion(t *testing.T) {
	registry := New()
	defer registry.Close()
	if err := registry.EnableWorkerPool(2, 64); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	var hooked atomic.Int32
	registry.OnRequestCompleteAsync(func(*Request) { panic("async failure") })

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			registry.SetPanicHook(func(uint64, interface{}) { hooked.Add(1) })
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			_ = registry.Track(context.Background(), func(context.Context) error { return nil })
		}
	}()
	wg.Wait()

	registry.Close()
	if registry.Active() != 0 {
		t.Errorf("Expected 0 active requests, got %d", registry.Active())
	}
}

func TestRegistryDiscardWithoutBinding(t *testing.T) {
	registry := New()
	defer registry.Close()

	registry.Discard(context.Background())
	//nolint:staticcheck // nil context is tolerated
	registry.Discard(nil)

	if registry.Active() != 0 {
		t.Errorf("Expected 0 active requests, got %d", registry.Active())
	}
}

func TestRegistriesAreIsolated(t *testing.T) {
	a := New()
	b := New()
	defer a.Close()
	defer b.Close()

	ctx, reqA := a.Lookup(context.Background())
	if _, ok := b.Current(ctx); ok {
		t.Error("Expected registry b not to see registry a's binding")
	}

	ctx, reqB := b.Lookup(ctx)
	if reqA == reqB {
		t.Error("Expected distinct requests per registry")
	}

	a.Discard(ctx)
	b.Discard(ctx)
}

func TestRegistryTrackDiscardsOnReturn(t *testing.T) {
	registry := New()
	defer registry.Close()

	var seen *Request
	err := registry.Track(context.Background(), func(ctx context.Context) error {
		seen, _ = registry.Current(ctx)
		return nil
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if seen == nil || !seen.Finished() {
		t.Error("Expected tracked request to be finished")
	}
	if registry.Active() != 0 {
		t.Errorf("Expected 0 active requests, got %d", registry.Active())
	}
}

func TestRegistryTrackReturnsErrorUnchanged(t *testing.T) {
	registry := New()
	defer registry.Close()

	boom := errors.New("boom")
	err := registry.Track(context.Background(), func(context.Context) error {
		return boom
	})
	if err != boom {
		t.Errorf("Expected the original error, got %v", err)
	}
	if registry.Active() != 0 {
		t.Errorf("Expected 0 active requests, got %d", registry.Active())
	}
}

func TestRegistryTrackDiscardsOnPanic(t *testing.T) {
	registry := New()
	defer registry.Close()

	func() {
		defer func() {
			if r := recover(); r != "kaboom" {
				t.Errorf("Expected the original panic value, got %v", r)
			}
		}()
		_ = registry.Track(context.Background(), func(context.Context) error {
			panic("kaboom")
		})
	}()

	if registry.Active() != 0 {
		t.Errorf("Expected 0 active requests after panic, got %d", registry.Active())
	}
}

func TestRegistryTrackNestedKeepsOuterOwnership(t *testing.T) {
	registry := New()
	defer registry.Close()

	_ = registry.Track(context.Background(), func(ctx context.Context) error {
		outer, _ := registry.Current(ctx)

		_ = registry.Track(ctx, func(inner context.Context) error {
			if r, _ := registry.Current(inner); r != outer {
				t.Error("Expected nested Track to reuse the outer request")
			}
			return nil
		})

		if outer.Finished() {
			t.Error("Expected nested Track not to discard the outer request")
		}
		return nil
	})
}

func TestRegistryUsesClock(t *testing.T) {
	clock := clockz.NewFakeClock()
	registry := New().WithClock(clock)
	defer registry.Close()

	start := clock.Now()
	var req *Request
	_ = registry.Track(context.Background(), func(ctx context.Context) error {
		req, _ = registry.Current(ctx)
		clock.Advance(250 * time.Millisecond)
		return nil
	})

	if !req.StartTime.Equal(start) {
		t.Errorf("Expected start %v, got %v", start, req.StartTime)
	}
	if req.Duration() != 250*time.Millisecond {
		t.Errorf("Expected 250ms, got %v", req.Duration())
	}
}

func TestRegistryHandlers(t *testing.T) {
	registry := New()
	defer registry.Close()

	var got []*Request
	id := registry.OnRequestComplete(func(req *Request) {
		got = append(got, req)
	})

	_ = registry.Track(context.Background(), func(context.Context) error { return nil })
	if len(got) != 1 {
		t.Fatalf("Expected 1 completed request, got %d", len(got))
	}
	if !got[0].Finished() {
		t.Error("Expected handlers to receive finished requests")
	}

	registry.RemoveHandler(id)
	_ = registry.Track(context.Background(), func(context.Context) error { return nil })
	if len(got) != 1 {
		t.Errorf("Expected removed handler not to fire, got %d calls", len(got))
	}

	if registry.OnRequestComplete(nil) != 0 {
		t.Error("Expected nil handler to be rejected")
	}
}

func TestRegistryAsyncHandlerWithWorkerPool(t *testing.T) {
	registry := New()
	defer registry.Close()

	if err := registry.EnableWorkerPool(2, 16); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := registry.EnableWorkerPool(2, 16); err == nil {
		t.Error("Expected enabling twice to fail")
	}

	var wg sync.WaitGroup
	var count atomic.Int32
	wg.Add(3)
	registry.OnRequestCompleteAsync(func(*Request) {
		count.Add(1)
		wg.Done()
	})

	for i := 0; i < 3; i++ {
		_ = registry.Track(context.Background(), func(context.Context) error { return nil })
	}
	wg.Wait()

	if count.Load() != 3 {
		t.Errorf("Expected 3 async calls, got %d", count.Load())
	}
}

func TestRegistryWorkerPoolValidation(t *testing.T) {
	registry := New()
	defer registry.Close()

	if err := registry.EnableWorkerPool(0, 1); err == nil {
		t.Error("Expected error for zero workers")
	}
	if err := registry.EnableWorkerPool(1, 0); err == nil {
		t.Error("Expected error for zero queue size")
	}
}

func TestRegistryPanicHook(t *testing.T) {
	registry := New()
	defer registry.Close()

	var hooked interface{}
	registry.SetPanicHook(func(_ uint64, r interface{}) {
		hooked = r
	})
	registry.OnRequestComplete(func(*Request) {
		panic("handler failure")
	})

	err := registry.Track(context.Background(), func(context.Context) error { return nil })
	if err != nil {
		t.Errorf("Expected handler panic to be absorbed, got %v", err)
	}
	if hooked != "handler failure" {
		t.Errorf("Expected panic hook to receive the value, got %v", hooked)
	}
}

func TestRegistryCollector(t *testing.T) {
	registry := New()
	defer registry.Close()

	collector := NewCollector("test", 10)
	collector.SetSyncMode(true)
	defer collector.Close()
	registry.AddCollector(collector)

	for i := 0; i < 3; i++ {
		_ = registry.Track(context.Background(), func(ctx context.Context) error {
			req, _ := registry.Current(ctx)
			req.Annotate("n", fmt.Sprint(i))
			return nil
		})
	}

	reqs := collector.Export()
	if len(reqs) != 3 {
		t.Fatalf("Expected 3 collected requests, got %d", len(reqs))
	}
	for i, req := range reqs {
		if v, _ := req.Annotation("n"); v != fmt.Sprint(i) {
			t.Errorf("Expected completion order, got %s at %d", v, i)
		}
	}
}

// Each execution unit only ever sees the layers it pushed itself.
func TestRegistryConcurrentUnitsIsolated(t *testing.T) {
	registry := New()
	defer registry.Close()

	const units = 50
	results := make([]*Request, units)

	var wg sync.WaitGroup
	for i := 0; i < units; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = registry.Track(context.Background(), func(ctx context.Context) error {
				req, _ := registry.Current(ctx)
				results[i] = req
				req.Annotate("unit", fmt.Sprint(i))

				for j := 0; j < 5; j++ {
					req.StartLayer(NewLayer(CategoryJob, fmt.Sprintf("unit-%d/step-%d", i, j)))
				}
				for j := 0; j < 5; j++ {
					req.StopLayer()
				}
				return nil
			})
		}(i)
	}
	wg.Wait()

	for i, req := range results {
		if v, _ := req.Annotation("unit"); v != fmt.Sprint(i) {
			t.Errorf("Unit %d saw annotation %q", i, v)
		}
		count := 0
		for _, root := range req.Layers() {
			root.Walk(func(_ int, l *Layer) {
				count++
				want := fmt.Sprintf("unit-%d/", i)
				if len(l.Name) < len(want) || l.Name[:len(want)] != want {
					t.Errorf("Unit %d captured foreign layer %s", i, l.Name)
				}
			})
		}
		if count != 5 {
			t.Errorf("Unit %d expected 5 layers, got %d", i, count)
		}
	}

	if registry.Active() != 0 {
		t.Errorf("Expected no leaked requests, got %d", registry.Active())
	}
}
