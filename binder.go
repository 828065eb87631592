package layerz

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"sync"
)

// ErrVariantNotAvailable is returned by variants whose target is absent.
var ErrVariantNotAvailable = errors.New("instrumentation target not available")

// Variant is one target implementation exposing an entry point to wrap.
type Variant interface {
	// Tag names the variant, e.g. "base", "metal", "api", "redis".
	Tag() string
	// Available reports whether the target is present.
	Available() bool
	// Install wraps the target's entry point with Binder.Around.
	Install(b *Binder) error
}

// Entry describes an inbound call as seen by a variant.
type Entry struct {
	Category  Category
	Name      string
	RootClass string
	// Provisional marks Name as a placeholder. A nested call of the same
	// category replaces it with its own name instead of starting a layer.
	Provisional bool
	// Profile allows deep-profiling attribution for this variant.
	Profile bool
	// Request is the inbound HTTP request, nil for non-HTTP entry points.
	Request *http.Request
}

// Binder installs variants at most once each and provides the shared
// wrapping behavior they install.
// Safe for concurrent use by multiple goroutines.
type Binder struct {
	registry  *Registry
	gate      *Gate
	installed map[string]bool
	mu        sync.Mutex

	// onCallDone observes the state path of every wrapped call.
	onCallDone func(path []string)
}

// NewBinder creates a binder recording into registry.
func NewBinder(registry *Registry) *Binder {
	return &Binder{
		registry:  registry,
		gate:      NewGate(registry.Config(), registry.Logger()),
		installed: make(map[string]bool),
	}
}

// Registry returns the registry the binder records into.
func (b *Binder) Registry() *Registry {
	return b.registry
}

// DetectAvailableTargets returns the sorted tags of variants whose target is present.
func DetectAvailableTargets(variants ...Variant) []string {
	tags := make([]string, 0, len(variants))
	for _, v := range variants {
		if v != nil && v.Available() {
			tags = append(tags, v.Tag())
		}
	}
	sort.Strings(tags)
	return tags
}

// Install installs v unless a variant with the same tag is already
// installed. An absent target is a silent no-op. It reports whether this
// call installed the variant.
func (b *Binder) Install(v Variant) bool {
	if v == nil {
		return false
	}
	tag := v.Tag()

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.installed[tag] {
		return false
	}
	if !v.Available() {
		b.registry.Logger().Debug("instrumentation target absent", "variant", tag)
		return false
	}
	if err := v.Install(b); err != nil {
		b.registry.Logger().Warn("instrumentation install failed", "variant", tag, "error", err)
		return false
	}

	b.installed[tag] = true
	b.registry.Logger().Info("instrumenting variant", "variant", tag)
	return true
}

// InstallAll installs every available variant and returns the newly
// installed tags.
func (b *Binder) InstallAll(variants ...Variant) []string {
	var tags []string
	for _, v := range variants {
		if b.Install(v) {
			tags = append(tags, v.Tag())
		}
	}
	return tags
}

// Installed reports whether the variant with tag has been installed.
func (b *Binder) Installed(tag string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.installed[tag]
}

// Around runs call inside a layer described by e.
//
// The request bound to ctx is resolved (a scope is acquired and later
// discarded when none is bound), the instant-trace gate runs, and unless the
// enclosing layer already has e's category a new layer is started around
// call. An error returned by call flags the layer and request and is
// returned unchanged. A panic flags them too and keeps unwinding
// unrecovered. The layer is stopped on every path.
//
// A request is never shared by calls running at the same time: when ctx
// carries a request whose current frame is held by a call on another
// goroutine, call runs in its own request whose ParentID names the first.
func (b *Binder) Around(ctx context.Context, e Entry, call func(ctx context.Context) error) (err error) {
	logger := b.registry.Logger()
	state := newCallState(logger)

	ctx, req, owned := b.registry.acquire(ctx)
	parent := b.registry.frameOf(ctx)
	if !parent.enter() {
		logger.Debug("concurrent call detached", "request", req.ID, "layer", e.Name)
		ctx, req = b.registry.bind(ctx, req.ID)
		parent = b.registry.frameOf(ctx)
		parent.enter()
		owned = true
	}
	if owned {
		defer b.registry.Discard(ctx)
	}
	defer parent.leave()
	state.fire(eventResolve)

	if e.Request != nil {
		b.gate.Check(req, e.Request)
	}

	var layer *Layer
	if enclosing := parent.layer; enclosing != nil && enclosing.Category == e.Category {
		state.fire(eventSkip)
		req.refineName(enclosing, e.Name)
		ctx = b.registry.withFrame(ctx, req, enclosing)
	} else {
		layer = b.startLayer(ctx, req, parent.layer, e)
		state.fire(eventStart)
		ctx = b.registry.withFrame(ctx, req, layer)
	}

	returned := false
	defer func() {
		switch {
		case !returned, err != nil:
			if layer != nil {
				req.errorLayer(layer)
			}
			state.fire(eventFail)
		default:
			state.fire(eventComplete)
		}

		if layer != nil {
			req.stopLayer(layer)
		}
		state.fire(eventStop)

		if b.onCallDone != nil {
			b.onCallDone(state.Path())
		}
	}()

	state.fire(eventExecute)
	err = call(ctx)
	returned = true
	return err
}

// startLayer annotates req from the inbound call and pushes its layer.
func (b *Binder) startLayer(ctx context.Context, req *Request, parent *Layer, e Entry) *Layer {
	cfg := b.registry.Config()

	if r := e.Request; r != nil {
		req.Annotate(AnnotationURI, TransactionURI(r, cfg))

		if Bool(cfg, ConfigCollectRemoteIP) {
			if ip, err := RemoteIP(r); err != nil {
				b.registry.Logger().Debug("remote ip lookup failed", "request", req.ID, "error", err)
			} else {
				req.AddUser(UserIP, ip)
			}
		}
		req.SetHeaders(r.Header)
	}

	layer := NewLayer(e.Category, e.Name)
	layer.provisional = e.Provisional

	profiler := b.registry.profiler
	if e.Profile && Bool(cfg, ConfigProfile) && profiler.Enabled() && profiler.Installed() {
		req.EnableProfiled()
		layer.SetRootClass(e.RootClass)
		layer.MarkTraced()
		layer.restore = profiler.MarkProfiled(ctx, req)
	}

	req.startLayerUnder(parent, layer)
	return layer
}
