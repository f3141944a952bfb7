package live

import (
	"sync"

	"github.com/dkoosis/testrig/pkg/report"
	"github.com/dkoosis/testrig/pkg/runner"
)

// EventKind identifies an observer callback.
type EventKind int

const (
	SuiteStarted EventKind = iota
	TestStarted
	TestFinished
	SuiteFinished
)

// Event is one observer callback, flattened for transport over a channel.
type Event struct {
	Kind      EventKind
	Suite     string
	Instances int
	Test      runner.TestID
	Result    report.TestResult
}

// Events forwards observer callbacks onto a channel so a consumer on another
// goroutine (the terminal view) can follow the run. Sends block while the
// buffer is full until Stop is called, after which events are dropped.
type Events struct {
	ch   chan Event
	done chan struct{}

	closeOnce sync.Once
	stopOnce  sync.Once
}

// NewEvents returns an observer with the given channel buffer.
func NewEvents(buffer int) *Events {
	return &Events{ch: make(chan Event, buffer), done: make(chan struct{})}
}

var _ runner.Observer = (*Events)(nil)

// C is the event stream. It is closed by Close.
func (e *Events) C() <-chan Event { return e.ch }

// Close marks the end of the run. Call it after Runner.Run returns.
func (e *Events) Close() { e.closeOnce.Do(func() { close(e.ch) }) }

// Stop releases blocked senders when the consumer goes away.
func (e *Events) Stop() { e.stopOnce.Do(func() { close(e.done) }) }

func (e *Events) send(ev Event) {
	select {
	case <-e.done:
		return
	default:
	}
	select {
	case e.ch <- ev:
	case <-e.done:
	}
}

func (e *Events) SuiteStarted(suite string, instances int) {
	e.send(Event{Kind: SuiteStarted, Suite: suite, Instances: instances})
}

func (e *Events) TestStarted(id runner.TestID) {
	e.send(Event{Kind: TestStarted, Suite: id.Suite, Test: id})
}

func (e *Events) TestFinished(r report.TestResult) {
	e.send(Event{Kind: TestFinished, Suite: r.Suite, Result: r})
}

func (e *Events) SuiteFinished(suite string) {
	e.send(Event{Kind: SuiteFinished, Suite: suite})
}
