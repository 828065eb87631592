package layerz

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/zoobzio/clockz"
)

// Request is the aggregate state of one logical unit of work.
// A Request is owned by the execution unit it is bound to; its methods are
// safe to call from other goroutines, but layers are only pushed by the
// owning unit. Once finished, every mutator becomes a no-op.
//
//nolint:govet // Field order optimized for readability
type Request struct {
	ID string
	// ParentID is the request this one was detached from when it started on
	// a goroutine running concurrently with its parent's call.
	ParentID  string
	StartTime time.Time
	StopTime  time.Time

	mu          sync.Mutex
	stack       LayerStack
	roots       []*Layer
	annotations map[string]string
	headers     http.Header
	user        map[string]string
	instantKey  string
	profiled    bool
	errored     bool
	finished    bool

	clock  clockz.Clock
	logger *slog.Logger
}

func newRequest(id string, clock clockz.Clock, logger *slog.Logger) *Request {
	return &Request{
		ID:        id,
		StartTime: clock.Now(),
		clock:     clock,
		logger:    logger,
	}
}

// StartLayer pushes layer, stamping its start time if unset.
// The layer becomes a child of the current layer, or a root layer when the
// stack is empty, and is the new current layer.
func (r *Request) StartLayer(layer *Layer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.push(r.stack.Current(), layer)
}

// startLayerUnder pushes layer as a child of parent (a root when nil).
func (r *Request) startLayerUnder(parent, layer *Layer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.push(parent, layer)
}

func (r *Request) push(parent, layer *Layer) {
	if r.finished || layer == nil {
		return
	}
	if layer.StartTime.IsZero() {
		layer.StartTime = r.clock.Now()
	}

	if parent != nil {
		parent.Children = append(parent.Children, layer)
	} else {
		r.roots = append(r.roots, layer)
	}
	r.stack.Push(layer)
}

// StopLayer pops the current layer, stamps its stop time and returns it.
// On an empty stack it logs the underflow and returns nil.
func (r *Request) StopLayer() *Layer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pop()
}

func (r *Request) pop() *Layer {
	layer, err := r.stack.Pop()
	if err != nil {
		r.logger.Warn("layer stack underflow", "request", r.ID, "error", err)
		return nil
	}
	r.stopped(layer)
	return layer
}

// stopLayer stops exactly layer. When a call started on another goroutine
// under layer is still open, layer is taken out from beneath it.
func (r *Request) stopLayer(layer *Layer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finished {
		return
	}
	if r.stack.Current() == layer {
		r.pop()
		return
	}
	if !r.stack.Remove(layer) {
		return
	}
	r.logger.Debug("layer stopped below open layers", "request", r.ID, "layer", layer.Name)
	r.stopped(layer)
}

func (r *Request) stopped(layer *Layer) {
	layer.stop(r.clock.Now())
	if layer.Errored {
		r.errored = true
	}
}

// CurrentLayer returns the innermost open layer or nil.
func (r *Request) CurrentLayer() *Layer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stack.Current()
}

// Depth returns the number of open layers.
func (r *Request) Depth() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stack.Depth()
}

// Layers returns the root layers of the call tree.
func (r *Request) Layers() []*Layer {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Layer, len(r.roots))
	copy(out, r.roots)
	return out
}

// Annotate records a single request annotation.
func (r *Request) Annotate(key, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished {
		return
	}
	if r.annotations == nil {
		r.annotations = make(map[string]string)
	}
	r.annotations[key] = value
}

// AnnotateRequest records several annotations at once.
func (r *Request) AnnotateRequest(annotations map[string]string) {
	for k, v := range annotations {
		r.Annotate(k, v)
	}
}

// Annotation returns a single annotation.
func (r *Request) Annotation(key string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	value, ok := r.annotations[key]
	return value, ok
}

// Annotations returns a copy of all annotations.
func (r *Request) Annotations() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string, len(r.annotations))
	for k, v := range r.annotations {
		out[k] = v
	}
	return out
}

// SetHeaders stores a copy of the inbound headers.
func (r *Request) SetHeaders(h http.Header) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished {
		return
	}
	r.headers = h.Clone()
}

// Headers returns the stored inbound headers.
func (r *Request) Headers() http.Header {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.headers
}

// AddUser records user context such as the remote IP.
func (r *Request) AddUser(key, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished {
		return
	}
	if r.user == nil {
		r.user = make(map[string]string)
	}
	r.user[key] = value
}

// User returns a copy of the recorded user context.
func (r *Request) User() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string, len(r.user))
	for k, v := range r.user {
		out[k] = v
	}
	return out
}

// SetInstantKey marks the request for full-detail capture.
// The key is set at most once; later calls and empty keys are ignored.
func (r *Request) SetInstantKey(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished || key == "" || r.instantKey != "" {
		return false
	}
	r.instantKey = key
	return true
}

// InstantKey returns the instant-trace key, empty when unset.
func (r *Request) InstantKey() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.instantKey
}

// EnableProfiled records that the executing goroutine is being profiled.
func (r *Request) EnableProfiled() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished {
		return
	}
	r.profiled = true
}

// Profiled reports whether deep profiling was enabled for the request.
func (r *Request) Profiled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.profiled
}

// Error flags the request and its current layer as errored.
func (r *Request) Error() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished {
		return
	}
	r.errored = true
	if layer := r.stack.Current(); layer != nil {
		layer.Error()
	}
}

// refineName replaces the provisional name of an open layer.
func (r *Request) refineName(layer *Layer, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished || name == "" || !layer.provisional || layer.Stopped() {
		return
	}
	layer.Name = name
	layer.provisional = false
}

// errorLayer flags the request and exactly layer as errored.
func (r *Request) errorLayer(layer *Layer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished {
		return
	}
	r.errored = true
	layer.Error()
}

// Errored reports whether the request or any of its popped layers errored.
func (r *Request) Errored() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errored
}

// Finished reports whether the request has been discarded from its registry.
func (r *Request) Finished() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finished
}

// Duration returns the elapsed time of a finished request.
func (r *Request) Duration() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.finished {
		return 0
	}
	return r.StopTime.Sub(r.StartTime)
}

// finish closes any layers left open and freezes the request.
func (r *Request) finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished {
		return
	}
	for r.stack.Depth() > 0 {
		r.pop()
	}
	r.StopTime = r.clock.Now()
	r.finished = true
}
