// Package layerz provides the request-tracing core of an APM agent.
//
// Every logical unit of work (an HTTP request, a background job) owns a
// Request holding a nested stack of timed layers. Instrumented entry points
// push a layer when they are entered and pop it when they return, producing
// a call tree that is handed to exporters once the unit of work completes.
//
// Core Components:.
//   - Layer: A single timed operation (controller action, cache call).
//   - LayerStack: Strictly nested push/pop of active layers.
//   - Request: One unit of work with its layers, annotations and flags.
//   - Registry: Binds requests to the executing goroutine chain.
//   - Binder: Installs instrumentation variants once and wraps their calls.
//   - Gate: Honors the instant-trace cookie.
//   - Collector: Buffers completed requests for export.
//
// Basic Usage:.
//
//	registry := layerz.New().WithConfig(cfg)
//	defer registry.Close()
//
//	binder := layerz.NewBinder(registry)
//	binder.InstallAll(variants...)
//
//	err := registry.Track(ctx, func(ctx context.Context) error {
//		return binder.Around(ctx, layerz.Entry{
//			Category: layerz.CategoryJob,
//			Name:     "mailer/deliver",
//		}, deliver)
//	})
//
// Execution Units:.
//
// The execution unit is the goroutine chain that carries a context.Context.
// Registry.Lookup stores a per-registry slot in the returned context; every
// lookup through that context or one derived from it sees the same Request
// until Registry.Discard runs. Requests are NOT safe for concurrent use -
// do not hand the same context to goroutines that record layers in parallel.
//
// Resource Cleanup:.
//
// Use Registry.Track (or Binder.Around, which acquires a scope when none is
// bound) so every request is discarded on return, error and panic.
// Registry.Active reports bindings that were never discarded.
package layerz

// Category represents a layer category.
type Category = string

// Well-known layer categories.
const (
	CategoryController Category = "Controller"
	CategoryRedis      Category = "Redis"
	CategoryJob        Category = "Job"
)

// Well-known annotation and user-context keys.
const (
	AnnotationURI = "uri"
	UserIP        = "ip"
)
