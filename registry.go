package layerz

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/rs/xid"
	"github.com/zoobzio/clockz"
)

// slotKey is the per-registry context key for execution-unit storage.
type slotKey struct {
	registry *Registry
}

// slot is the execution-unit binding. A slot is never rebound: once its
// request is discarded a later lookup binds a new slot in a derived context.
type slot struct {
	req  *Request
	root frame
	done atomic.Bool
}

// frameKey is the per-registry context key for the innermost call frame.
type frameKey struct {
	registry *Registry
}

// frame is one position in a request's call tree: the request root or an
// open layer. At most one call runs directly under a frame at a time; a
// second caller arriving while the frame is held is executing concurrently
// on another goroutine.
type frame struct {
	req   *Request
	layer *Layer
	busy  atomic.Bool
}

// enter claims the frame for one call. It fails when another call holds the
// frame or the request is already finished.
func (f *frame) enter() bool {
	if f.req.Finished() {
		return false
	}
	return f.busy.CompareAndSwap(false, true)
}

func (f *frame) leave() {
	f.busy.Store(false)
}

// RequestHandler is called when a request completes.
type RequestHandler func(req *Request)

type handlerEntry struct {
	handler RequestHandler
	id      uint64
	async   bool
}

// Registry binds requests to execution units and fans completed requests
// out to handlers and collectors.
// Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field order optimized for functionality over memory
type Registry struct {
	handlers        []handlerEntry
	collectors      []*Collector
	panicHook       func(handlerID uint64, r interface{})
	workers         *workerPool
	idPool          *IDPool
	clock           clockz.Clock
	logger          *slog.Logger
	config          Config
	profiler        Profiler
	handlersLock    sync.RWMutex
	idPoolOnce      sync.Once
	nextID          atomic.Uint64
	active          atomic.Int64
	droppedRequests atomic.Uint64
}

// New creates a new registry.
// Uses the real clock, an empty configuration, no profiler and a discarding
// logger until told otherwise.
func New() *Registry {
	return &Registry{
		handlers: make([]handlerEntry, 0),
		clock:    clockz.RealClock,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		config:   MapConfig{},
		profiler: NopProfiler{},
	}
}

// WithClock sets the clock used to stamp requests and layers.
// Enables clock injection for deterministic testing.
func (r *Registry) WithClock(clock clockz.Clock) *Registry {
	r.clock = clock
	return r
}

// WithLogger sets the structured logger.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	if logger != nil {
		r.logger = logger
	}
	return r
}

// WithConfig sets the configuration provider.
func (r *Registry) WithConfig(cfg Config) *Registry {
	if cfg != nil {
		r.config = cfg
	}
	return r
}

// WithProfiler sets the profiler collaborator.
func (r *Registry) WithProfiler(p Profiler) *Registry {
	if p != nil {
		r.profiler = p
	}
	return r
}

// Logger returns the registry logger.
func (r *Registry) Logger() *slog.Logger {
	return r.logger
}

// Config returns the configuration provider.
func (r *Registry) Config() Config {
	return r.config
}

// ensureIDPool initializes the request ID pool if not already created.
func (r *Registry) ensureIDPool() {
	r.idPoolOnce.Do(func() {
		// Pool size based on number of CPUs for optimal contention balance.
		r.idPool = NewIDPool(runtime.NumCPU()*100, func() string {
			return xid.New().String()
		})
	})
}

// Lookup returns the request bound to the execution unit carried by ctx,
// creating and binding a new one when none is bound. Use the returned
// context downstream so nested lookups find the same request.
// A request created here must be released with Discard; prefer Track.
func (r *Registry) Lookup(ctx context.Context) (context.Context, *Request) {
	ctx, req, _ := r.acquire(ctx)
	return ctx, req
}

// Current returns the request bound to ctx without creating one.
func (r *Registry) Current(ctx context.Context) (*Request, bool) {
	if ctx == nil {
		return nil, false
	}
	s, ok := ctx.Value(slotKey{r}).(*slot)
	if !ok || s.done.Load() {
		return nil, false
	}
	return s.req, true
}

// acquire is Lookup that also reports whether the caller created the binding
// and therefore owns its discard.
func (r *Registry) acquire(ctx context.Context) (context.Context, *Request, bool) {
	if ctx == nil {
		ctx = context.Background()
	}
	if s, ok := ctx.Value(slotKey{r}).(*slot); ok && !s.done.Load() {
		return ctx, s.req, false
	}
	ctx, req := r.bind(ctx, "")
	return ctx, req, true
}

// bind creates a request and binds it in a context derived from ctx.
// parentID links a request detached from a concurrently executing one.
func (r *Registry) bind(ctx context.Context, parentID string) (context.Context, *Request) {
	r.ensureIDPool()
	s := &slot{req: newRequest(r.idPool.Get(), r.clock, r.logger)}
	s.req.ParentID = parentID
	s.root.req = s.req

	ctx = context.WithValue(ctx, slotKey{r}, s)
	ctx = context.WithValue(ctx, frameKey{r}, &s.root)
	r.active.Add(1)
	return ctx, s.req
}

// frameOf returns the innermost call frame carried by ctx.
func (r *Registry) frameOf(ctx context.Context) *frame {
	f, _ := ctx.Value(frameKey{r}).(*frame)
	return f
}

// withFrame opens a frame for layer under req.
func (r *Registry) withFrame(ctx context.Context, req *Request, layer *Layer) context.Context {
	return context.WithValue(ctx, frameKey{r}, &frame{req: req, layer: layer})
}

// Discard unbinds the request from the execution unit carried by ctx,
// freezes it and hands it to handlers and collectors.
// No-op when nothing is bound or the request was already discarded.
func (r *Registry) Discard(ctx context.Context) {
	if ctx == nil {
		return
	}
	s, ok := ctx.Value(slotKey{r}).(*slot)
	if !ok || !s.done.CompareAndSwap(false, true) {
		return
	}
	r.active.Add(-1)

	s.req.finish()
	r.complete(s.req)
}

// Track runs fn inside a request scope.
// When ctx carries no bound request one is created and discarded on every
// exit path of fn, including panics. When a request is already bound, fn
// runs inside it and the outer scope keeps ownership.
func (r *Registry) Track(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, _, owned := r.acquire(ctx)
	if owned {
		defer r.Discard(ctx)
	}
	return fn(ctx)
}

// Active returns the number of requests bound and not yet discarded.
func (r *Registry) Active() int64 {
	return r.active.Load()
}

// OnRequestComplete registers a synchronous handler called when requests complete.
func (r *Registry) OnRequestComplete(handler RequestHandler) uint64 {
	return r.registerHandler(handler, false)
}

// OnRequestCompleteAsync registers an asynchronous handler called when requests complete.
func (r *Registry) OnRequestCompleteAsync(handler RequestHandler) uint64 {
	return r.registerHandler(handler, true)
}

func (r *Registry) registerHandler(handler RequestHandler, async bool) uint64 {
	if handler == nil {
		return 0
	}

	id := r.nextID.Add(1)

	r.handlersLock.Lock()
	defer r.handlersLock.Unlock()

	r.handlers = append(r.handlers, handlerEntry{
		id:      id,
		handler: handler,
		async:   async,
	})

	return id
}

// RemoveHandler removes a handler by ID.
func (r *Registry) RemoveHandler(id uint64) {
	r.handlersLock.Lock()
	defer r.handlersLock.Unlock()

	// Preserve order
	for i, h := range r.handlers {
		if h.id == id {
			copy(r.handlers[i:], r.handlers[i+1:])
			r.handlers = r.handlers[:len(r.handlers)-1]
			return
		}
	}
}

// AddCollector routes every completed request to collector.
func (r *Registry) AddCollector(collector *Collector) {
	if collector == nil {
		return
	}
	r.handlersLock.Lock()
	defer r.handlersLock.Unlock()
	r.collectors = append(r.collectors, collector)
}

// SetPanicHook sets a function to be called when a handler panics.
func (r *Registry) SetPanicHook(hook func(handlerID uint64, r interface{})) {
	r.handlersLock.Lock()
	defer r.handlersLock.Unlock()
	r.panicHook = hook
}

// complete fans a finished request out to collectors and handlers.
func (r *Registry) complete(req *Request) {
	r.handlersLock.RLock()
	if len(r.handlers) == 0 && len(r.collectors) == 0 {
		r.handlersLock.RUnlock()
		return
	}

	handlers := make([]handlerEntry, len(r.handlers))
	copy(handlers, r.handlers)
	collectors := make([]*Collector, len(r.collectors))
	copy(collectors, r.collectors)
	workers, hook := r.workers, r.panicHook
	r.handlersLock.RUnlock()

	for _, c := range collectors {
		c.Collect(req)
	}

	for _, h := range handlers {
		if h.async {
			// Make a copy of h for closure
			entry := h
			if workers != nil {
				workers.submit(func() {
					r.safeCall(entry, req, hook)
				})
			} else {
				go r.safeCall(entry, req, hook)
			}
		} else {
			r.safeCall(h, req, hook)
		}
	}
}

func (r *Registry) safeCall(entry handlerEntry, req *Request, hook func(uint64, interface{})) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("request handler panicked", "handler", entry.id, "panic", rec)
			if hook != nil {
				hook(entry.id, rec)
			}
		}
	}()
	entry.handler(req)
}

// EnableWorkerPool creates a bounded worker pool for async handlers.
func (r *Registry) EnableWorkerPool(workers, queueSize int) error {
	r.handlersLock.Lock()
	defer r.handlersLock.Unlock()

	if r.workers != nil {
		return errors.New("worker pool already enabled")
	}
	if workers <= 0 {
		return errors.New("workers must be > 0")
	}
	if queueSize <= 0 {
		return errors.New("queueSize must be > 0")
	}

	r.workers = &workerPool{
		tasks:   make(chan func(), queueSize),
		stop:    make(chan struct{}),
		dropped: &r.droppedRequests,
	}

	r.workers.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go r.workers.run()
	}

	return nil
}

// DroppedRequests returns the number of requests dropped due to a full worker queue.
func (r *Registry) DroppedRequests() uint64 {
	return r.droppedRequests.Load()
}

// Close shuts down the registry gracefully and cleans up resources.
// Requests still bound are not discarded; their owners must do that.
func (r *Registry) Close() {
	// Stop new handler executions
	r.handlersLock.Lock()
	r.handlers = nil
	r.collectors = nil
	workers := r.workers
	r.workers = nil
	r.handlersLock.Unlock()

	// Wait for in-flight async tasks
	if workers != nil {
		workers.shutdown()
	}

	if r.idPool != nil {
		r.idPool.Close()
	}
}

// workerPool manages a fixed number of workers for processing async handlers.
//
//nolint:govet // Field order optimized for functionality over memory
type workerPool struct {
	tasks   chan func()
	stop    chan struct{}
	dropped *atomic.Uint64
	wg      sync.WaitGroup
}

func (w *workerPool) run() {
	defer w.wg.Done()
	for {
		select {
		case task := <-w.tasks:
			task()
		case <-w.stop:
			return
		}
	}
}

func (w *workerPool) submit(task func()) {
	select {
	case w.tasks <- task:
	default:
		w.dropped.Add(1)
	}
}

func (w *workerPool) shutdown() {
	close(w.stop)
	w.wg.Wait()
}
