package layerz

import (
	"time"
)

// Layer represents a single timed operation inside a request.
// Layers are NOT thread-safe - they belong to the request that pushed them.
//
//nolint:govet // Field alignment optimized for JSON serialization order
type Layer struct {
	Category  Category      `json:"category"`
	Name      string        `json:"name"`
	StartTime time.Time     `json:"start_time"`
	StopTime  time.Time     `json:"stop_time,omitempty"`
	Duration  time.Duration `json:"duration"`
	Errored   bool          `json:"errored,omitempty"`
	Traced    bool          `json:"traced,omitempty"`
	RootClass string        `json:"root_class,omitempty"`
	Children  []*Layer      `json:"children,omitempty"`

	// restore undoes profiler goroutine labels when the layer stops.
	restore func()
	// provisional names may be replaced by a nested call of the same category.
	provisional bool
}

// NewLayer creates a layer that has not started yet.
// The start time is stamped when the layer is pushed.
func NewLayer(category Category, name string) *Layer {
	return &Layer{
		Category: category,
		Name:     name,
	}
}

// Error flags the layer as errored.
// Allowed until and during stop; the flag is the only field that may change
// once the layer has stopped.
func (l *Layer) Error() {
	l.Errored = true
}

// MarkTraced records that deep profiling was active for this layer.
func (l *Layer) MarkTraced() {
	if l.Stopped() {
		return
	}
	l.Traced = true
}

// SetRootClass tags the layer with the type that originated it so profiled
// stack frames can be attributed.
func (l *Layer) SetRootClass(rootClass string) {
	if l.Stopped() {
		return
	}
	l.RootClass = rootClass
}

// Stopped reports whether the stop time has been stamped.
func (l *Layer) Stopped() bool {
	return !l.StopTime.IsZero()
}

// stop stamps the stop time exactly once.
// A clock reading earlier than the start is clamped to the start.
func (l *Layer) stop(now time.Time) bool {
	if l.Stopped() {
		return false
	}
	if now.Before(l.StartTime) {
		now = l.StartTime
	}
	l.StopTime = now
	l.Duration = now.Sub(l.StartTime)

	if l.restore != nil {
		l.restore()
		l.restore = nil
	}
	return true
}

// Walk visits the layer and its descendants depth first.
func (l *Layer) Walk(visit func(depth int, layer *Layer)) {
	l.walk(0, visit)
}

func (l *Layer) walk(depth int, visit func(int, *Layer)) {
	visit(depth, l)
	for _, child := range l.Children {
		child.walk(depth+1, visit)
	}
}
