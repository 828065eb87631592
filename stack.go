package layerz

import (
	"errors"
)

// ErrStackUnderflow is returned when popping an empty LayerStack.
var ErrStackUnderflow = errors.New("layer stack underflow")

// LayerStack is the ordered set of layers that are currently executing.
// The top of the stack is the current layer. Push and Pop are strictly
// nested: only the most recently pushed layer can be popped.
// Not safe for concurrent use.
type LayerStack struct {
	layers []*Layer
}

// Push makes layer the current layer.
func (s *LayerStack) Push(layer *Layer) {
	s.layers = append(s.layers, layer)
}

// Pop removes and returns the current layer.
func (s *LayerStack) Pop() (*Layer, error) {
	n := len(s.layers)
	if n == 0 {
		return nil, ErrStackUnderflow
	}

	layer := s.layers[n-1]
	s.layers[n-1] = nil
	s.layers = s.layers[:n-1]
	return layer, nil
}

// Current returns the most recently pushed layer that has not been popped,
// or nil when the stack is empty.
func (s *LayerStack) Current() *Layer {
	if len(s.layers) == 0 {
		return nil
	}
	return s.layers[len(s.layers)-1]
}

// Depth returns the number of open layers.
func (s *LayerStack) Depth() int {
	return len(s.layers)
}

// Remove takes layer out of the stack wherever it sits and reports whether
// it was present. Layers above it stay open in order.
func (s *LayerStack) Remove(layer *Layer) bool {
	for i := len(s.layers) - 1; i >= 0; i-- {
		if s.layers[i] != layer {
			continue
		}
		copy(s.layers[i:], s.layers[i+1:])
		s.layers[len(s.layers)-1] = nil
		s.layers = s.layers[:len(s.layers)-1]
		return true
	}
	return false
}
