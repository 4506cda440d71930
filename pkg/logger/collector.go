package logger

import (
	"context"
	"fmt"
	"sync"
)

type collectorKey struct{}

// Collector accumulates the debug lines emitted while serving one request so
// they can be returned to the caller alongside the response.
type Collector struct {
	mu    sync.Mutex
	lines []string
}

// WithCollector returns a context carrying a fresh Collector.
func WithCollector(ctx context.Context) (context.Context, *Collector) {
	c := &Collector{}
	return context.WithValue(ctx, collectorKey{}, c), c
}

// CollectorFrom returns the Collector attached to ctx, or nil.
func CollectorFrom(ctx context.Context) *Collector {
	c, _ := ctx.Value(collectorKey{}).(*Collector)
	return c
}

func (c *Collector) add(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, line)
}

// Lines returns a copy of the collected lines. A nil Collector yields an empty slice.
func (c *Collector) Lines() []string {
	if c == nil {
		return []string{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.lines))
	copy(out, c.lines)
	return out
}

// Debugf logs at debug level and records the formatted line on the request
// collector, if any.
func Debugf(ctx context.Context, format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	if c := CollectorFrom(ctx); c != nil {
		c.add(line)
	}
	G(ctx).Debug(line)
}
