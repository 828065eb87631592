package layerz

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"
	"github.com/tebeka/atexit"
)

// Collector buffers completed requests for batch export.
// Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field alignment optimized for readability over memory efficiency
type Collector struct {
	backlog      *queue.Queue
	requestsCh   chan *Request
	stopCh       chan struct{}
	done         chan struct{}
	droppedCount atomic.Int64
	name         string
	mu           sync.Mutex
	closeOnce    sync.Once
	closed       atomic.Bool // Track if collector is closed.
	syncMode     bool        // Bypass channel for synchronous collection.
}

// NewCollector creates a new collector with the specified name and buffer size.
func NewCollector(name string, bufferSize int) *Collector {
	c := &Collector{
		name:       name,
		backlog:    queue.New(),
		requestsCh: make(chan *Request, bufferSize),
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
	}
	go c.start()
	return c
}

// Name returns the collector name.
func (c *Collector) Name() string {
	return c.name
}

// start runs the collector's main loop, receiving requests from the channel.
func (c *Collector) start() {
	defer close(c.done)

	for {
		select {
		case <-c.stopCh:
			// Drain remaining requests before shutdown.
			for {
				select {
				case req := <-c.requestsCh:
					c.buffer(req)
				default:
					return
				}
			}
		case req := <-c.requestsCh:
			c.buffer(req)
		}
	}
}

// Close shuts down the collector gracefully. Buffered requests stay
// available to Export.
func (c *Collector) Close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.stopCh)
		select {
		case <-c.done:
		case <-time.After(100 * time.Millisecond):
		}
	})
}

// Collect buffers a finished request with backpressure protection.
// If the internal channel is full, or the collector is closed, the request
// is dropped and the drop counter is incremented. Unfinished requests are
// dropped since their contents may still change.
func (c *Collector) Collect(req *Request) {
	if req == nil || !req.Finished() || c.closed.Load() {
		c.droppedCount.Add(1)
		return
	}

	if c.syncMode {
		// Direct synchronous collection for tests.
		c.buffer(req)
		return
	}

	select {
	case c.requestsCh <- req:
	default:
		// Channel full - drop request to prevent blocking.
		c.droppedCount.Add(1)
	}
}

func (c *Collector) buffer(req *Request) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.backlog.Add(req)
}

// Export returns all buffered requests in completion order and clears the
// buffer.
func (c *Collector) Export() []*Request {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := c.backlog.Length()
	if n == 0 {
		return nil
	}

	result := make([]*Request, 0, n)
	for c.backlog.Length() > 0 {
		result = append(result, c.backlog.Remove().(*Request))
	}
	return result
}

// Count returns the current number of buffered requests.
func (c *Collector) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.backlog.Length()
}

// DroppedCount returns the total number of requests dropped.
func (c *Collector) DroppedCount() int64 {
	return c.droppedCount.Load()
}

// SetSyncMode enables synchronous collection for testing.
// When enabled, requests are buffered directly without using the channel.
func (c *Collector) SetSyncMode(sync bool) {
	c.syncMode = sync
}

// Reset clears all buffered requests and resets the drop counter.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.backlog = queue.New()
	c.droppedCount.Store(0)
}

// FlushOnExit hands whatever is still buffered to flush when the process
// exits through atexit.Exit.
func (c *Collector) FlushOnExit(flush func([]*Request)) {
	atexit.Register(func() {
		c.Close()
		if reqs := c.Export(); len(reqs) > 0 {
			flush(reqs)
		}
	})
}
