/*
Copyright The ORAS Authors.
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package progress reports the progress of download runs, both at the item
// level through a Reporter and at the byte level through a Manager.
package progress

import (
	"sync"

	"github.com/rigpull/rigpull/asset"
)

// EventType is the type of a run event.
type EventType int

// Registered event types.
const (
	EventTotalKnown EventType = iota + 1 // number of selected items known
	EventProgress                        // an item completed
	EventFinished                        // run completed or cancelled
	EventAborted                         // run failed as a whole
)

// String returns the name of the event type.
func (t EventType) String() string {
	switch t {
	case EventTotalKnown:
		return "total"
	case EventProgress:
		return "progress"
	case EventFinished:
		return "finished"
	case EventAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Failure is an item which could not be downloaded.
type Failure struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// Summary is the outcome of a run.
type Summary struct {
	// Succeeded is the number of items downloaded.
	Succeeded int `json:"succeeded"`

	// Failed lists the items which could not be downloaded, in run order.
	Failed []Failure `json:"failed"`

	// Completed is the number of items processed, failed ones included.
	Completed int `json:"completed"`

	// Total is the number of selected items.
	Total int `json:"total"`

	// Cancelled is true if the run was stopped before processing all the
	// selected items.
	Cancelled bool `json:"cancelled"`

	// Artifacts lists the written files, in run order.
	Artifacts []asset.Artifact `json:"artifacts"`
}

// Event is a run event delivered to the controlling surface.
type Event struct {
	Type EventType

	// Total is the number of selected items, set from EventTotalKnown on.
	Total int

	// Completed is the number of processed items.
	Completed int

	// Summary is set on EventFinished.
	Summary *Summary

	// Err is set on EventAborted.
	Err error
}

// Reporter receives the events of a run.
// Events of a run are reported in order from a single goroutine: one
// TotalKnown, any number of Progress, then exactly one of Finished or
// Aborted. A run aborted before filtering reports Aborted only.
type Reporter interface {
	TotalKnown(total int)
	Progress(completed, total int)
	Finished(summary Summary)
	Aborted(err error)
}

// ReporterFunc is an adapter to allow the use of an ordinary function as a
// Reporter.
type ReporterFunc func(Event)

// TotalKnown reports the number of selected items.
func (f ReporterFunc) TotalKnown(total int) {
	f(Event{Type: EventTotalKnown, Total: total})
}

// Progress reports the number of processed items.
func (f ReporterFunc) Progress(completed, total int) {
	f(Event{Type: EventProgress, Total: total, Completed: completed})
}

// Finished reports the end of the run.
func (f ReporterFunc) Finished(summary Summary) {
	f(Event{Type: EventFinished, Total: summary.Total, Completed: summary.Completed, Summary: &summary})
}

// Aborted reports a run-level failure.
func (f ReporterFunc) Aborted(err error) {
	f(Event{Type: EventAborted, Err: err})
}

// Discard is a Reporter dropping all events.
var Discard Reporter = ReporterFunc(func(Event) {})

// ChannelReporter delivers the events of a run on a channel, in order.
// Reporting never blocks the run: events are queued until received. The
// channel is closed after the terminal event has been received.
type ChannelReporter struct {
	ReporterFunc

	ch     chan Event
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Event
	closed bool
}

// NewChannelReporter creates a ChannelReporter and starts delivering
// events.
func NewChannelReporter() *ChannelReporter {
	r := &ChannelReporter{
		ch: make(chan Event),
	}
	r.cond = sync.NewCond(&r.mu)
	r.ReporterFunc = r.publish
	go r.deliver()
	return r
}

// Events returns the channel the events are delivered on.
func (r *ChannelReporter) Events() <-chan Event {
	return r.ch
}

// publish queues an event. Terminal events close the reporter.
func (r *ChannelReporter) publish(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.queue = append(r.queue, e)
	if e.Type == EventFinished || e.Type == EventAborted {
		r.closed = true
	}
	r.cond.Signal()
}

// deliver sends the queued events until the terminal one.
func (r *ChannelReporter) deliver() {
	for {
		r.mu.Lock()
		for len(r.queue) == 0 && !r.closed {
			r.cond.Wait()
		}
		if len(r.queue) == 0 {
			r.mu.Unlock()
			close(r.ch)
			return
		}
		e := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()

		r.ch <- e
	}
}
