package integration

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/zoobzio/layerz"
)

// MockCollector wraps a real collector with test utilities.
// Provides synchronous collection and verification helpers.
type MockCollector struct {
	*layerz.Collector
	t *testing.T
}

// NewMockCollector creates a synchronous collector registered on registry.
func NewMockCollector(t *testing.T, registry *layerz.Registry) *MockCollector {
	collector := layerz.NewCollector(t.Name(), 1024)
	collector.SetSyncMode(true)
	registry.AddCollector(collector)
	t.Cleanup(collector.Close)
	return &MockCollector{Collector: collector, t: t}
}

// WaitForRequests waits for the expected number of requests with timeout.
func (m *MockCollector) WaitForRequests(expected int, timeout time.Duration) []*layerz.Request {
	var got []*layerz.Request
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		got = append(got, m.Export()...)
		if len(got) >= expected {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	m.t.Errorf("Timeout waiting for requests: expected %d, got %d", expected, len(got))
	return got
}

// AssertNoLeaks fails when any request is still bound.
func AssertNoLeaks(t *testing.T, registry *layerz.Registry) {
	t.Helper()
	if n := registry.Active(); n != 0 {
		t.Errorf("Expected no active requests, got %d", n)
	}
}

// PrintLayers formats the call tree of req for debugging.
func PrintLayers(req *layerz.Request) string {
	var sb strings.Builder
	for _, root := range req.Layers() {
		root.Walk(func(depth int, l *layerz.Layer) {
			fmt.Fprintf(&sb, "%s%s/%s (%.2fms)\n",
				strings.Repeat("  ", depth), l.Category, l.Name, l.Duration.Seconds()*1000)
		})
	}
	return sb.String()
}

// Shape flattens the call tree of req into "depth:Category/Name" entries.
func Shape(req *layerz.Request) []string {
	var out []string
	for _, root := range req.Layers() {
		root.Walk(func(depth int, l *layerz.Layer) {
			out = append(out, fmt.Sprintf("%d:%s/%s", depth, l.Category, l.Name))
		})
	}
	return out
}
