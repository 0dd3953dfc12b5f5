// Package progress tracks completion of a known number of steps and reports
// each whole-percent increase to a Sink.
package progress

import (
	"github.com/rewired-gh/quakedisagg/internal/logger"
)

// Sink receives textual percentage-complete notifications
type Sink interface {
	Progress(task string, percent int)
}

// SinkFunc adapts a function to a Sink
type SinkFunc func(task string, percent int)

// Progress implements Sink
func (f SinkFunc) Progress(task string, percent int) { f(task, percent) }

// LogSink writes progress to the default logger
type LogSink struct{}

// Progress implements Sink
func (LogSink) Progress(task string, percent int) {
	logger.Info("> %s %3d%% complete", task, percent)
}

// Multi fans a notification out to several sinks
type Multi []Sink

// Progress implements Sink
func (m Multi) Progress(task string, percent int) {
	for _, s := range m {
		if s != nil {
			s.Progress(task, percent)
		}
	}
}

// Counter counts completed steps out of a fixed total. It belongs to the
// goroutine that created it and is not safe for concurrent use.
type Counter struct {
	task    string
	total   int
	done    int
	percent int
	sink    Sink
}

// NewCounter creates a counter for total steps. A nil sink discards notifications.
func NewCounter(task string, total int, sink Sink) *Counter {
	return &Counter{task: task, total: total, sink: sink}
}

// Step records one completed step and notifies the sink when the floor of
// the completed percentage increases
func (c *Counter) Step() {
	c.Add(1)
}

// Add records n completed steps
func (c *Counter) Add(n int) {
	if c == nil || c.total <= 0 || n <= 0 {
		return
	}
	c.done += n
	if c.done > c.total {
		c.done = c.total
	}
	percent := c.done * 100 / c.total
	if percent > c.percent {
		c.percent = percent
		if c.sink != nil {
			c.sink.Progress(c.task, percent)
		}
	}
}

// Done returns the number of completed steps
func (c *Counter) Done() int { return c.done }

// Total returns the number of expected steps
func (c *Counter) Total() int { return c.total }

// Percent returns the last reported percentage
func (c *Counter) Percent() int { return c.percent }
