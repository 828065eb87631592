package benchmarks

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/zoobzio/layerz"
	"github.com/zoobzio/layerz/instruments/controller"
)

func noop(context.Context) error { return nil }

// BenchmarkTrack measures bind plus discard of an empty request.
func BenchmarkTrack(b *testing.B) {
	registry := layerz.New()
	defer registry.Close()
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = registry.Track(ctx, noop)
	}
}

// BenchmarkAroundNested measures a controller layer with one child.
func BenchmarkAroundNested(b *testing.B) {
	registry := layerz.New()
	defer registry.Close()
	binder := layerz.NewBinder(registry)
	ctx := context.Background()

	outer := layerz.Entry{Category: layerz.CategoryController, Name: "bench"}
	inner := layerz.Entry{Category: layerz.CategoryRedis, Name: "get"}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = binder.Around(ctx, outer, func(ctx context.Context) error {
			return binder.Around(ctx, inner, noop)
		})
	}
}

// BenchmarkAroundParallel measures isolated execution units running at once.
func BenchmarkAroundParallel(b *testing.B) {
	registry := layerz.New()
	defer registry.Close()
	binder := layerz.NewBinder(registry)
	entry := layerz.Entry{Category: layerz.CategoryJob, Name: "bench"}

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		ctx := context.Background()
		for pb.Next() {
			_ = binder.Around(ctx, entry, noop)
		}
	})
}

// BenchmarkMetalHandler measures the bare net/http variant end to end.
func BenchmarkMetalHandler(b *testing.B) {
	registry := layerz.New()
	defer registry.Close()
	binder := layerz.NewBinder(registry)

	h := controller.Wrap(binder, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}), nil)
	r := httptest.NewRequest(http.MethodGet, "/bench?token=x", nil)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		h.ServeHTTP(httptest.NewRecorder(), r)
	}
}
