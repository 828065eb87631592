package layerz

import (
	"context"
	"runtime/pprof"
	"sync/atomic"
)

// ProfileLabelRequest is the pprof label carrying the profiled request ID.
const ProfileLabelRequest = "layerz.request_id"

// Profiler is the stack-sampling profiler collaborator.
type Profiler interface {
	// Enabled reports whether profiling is compiled in and switched on.
	Enabled() bool
	// Installed reports whether the sampler is actually running.
	Installed() bool
	// MarkProfiled attributes samples taken on the calling goroutine to req
	// and returns a function that undoes it.
	MarkProfiled(ctx context.Context, req *Request) (restore func())
}

// NopProfiler never profiles.
type NopProfiler struct{}

// Enabled implements Profiler.
func (NopProfiler) Enabled() bool { return false }

// Installed implements Profiler.
func (NopProfiler) Installed() bool { return false }

// MarkProfiled implements Profiler.
func (NopProfiler) MarkProfiled(context.Context, *Request) func() { return func() {} }

// PprofProfiler attributes CPU profile samples to requests with goroutine
// labels, so a pprof CPU profile can be sliced by request ID.
type PprofProfiler struct {
	installed atomic.Bool
}

// NewPprofProfiler returns an enabled profiler. It reports Installed once
// Start has been called.
func NewPprofProfiler() *PprofProfiler {
	return &PprofProfiler{}
}

// Start marks the sampler as running. The CPU profile itself is started by
// the owner with pprof.StartCPUProfile.
func (p *PprofProfiler) Start() {
	p.installed.Store(true)
}

// Stop marks the sampler as stopped.
func (p *PprofProfiler) Stop() {
	p.installed.Store(false)
}

// Enabled implements Profiler.
func (p *PprofProfiler) Enabled() bool { return true }

// Installed implements Profiler.
func (p *PprofProfiler) Installed() bool { return p.installed.Load() }

// MarkProfiled implements Profiler.
// The labels of ctx are restored on the goroutine when restore runs.
func (p *PprofProfiler) MarkProfiled(ctx context.Context, req *Request) func() {
	if ctx == nil {
		ctx = context.Background()
	}
	active := pprof.WithLabels(ctx, pprof.Labels(ProfileLabelRequest, req.ID))
	pprof.SetGoroutineLabels(active)
	return func() {
		pprof.SetGoroutineLabels(ctx)
	}
}
