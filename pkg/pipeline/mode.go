package pipeline

import (
	"context"
	"sync/atomic"
)

// Mode selects between development and production behaviour.
type Mode int32

const (
	Development Mode = iota
	Production
)

func (m Mode) String() string {
	if m == Production {
		return "production"
	}
	return "development"
}

// ReloadKind tells connected browsers how to apply a change.
type ReloadKind int

const (
	// ReloadPage asks the browser to reload the whole page.
	ReloadPage ReloadKind = iota
	// ReloadCSS asks the browser to swap style sheets in place.
	ReloadCSS
)

// Reloader receives the files written by a task so they can be pushed to browsers.
type Reloader interface {
	Publish(kind ReloadKind, path string)
}

// Run holds the state of a single invocation. It is passed to every task and replaces the
// process-wide production flag: the mode starts as Development and can only be flipped once.
type Run struct {
	mode     atomic.Int32
	reloader Reloader
	metrics  *Metrics
}

// RunOption configures a Run.
type RunOption func(*Run)

// WithReloader routes published outputs to the given reloader.
func WithReloader(r Reloader) RunOption {
	return func(run *Run) {
		run.reloader = r
	}
}

// WithMetrics records task timings in m.
func WithMetrics(m *Metrics) RunOption {
	return func(run *Run) {
		run.metrics = m
	}
}

// NewRun creates a Run in development mode.
func NewRun(opts ...RunOption) *Run {
	r := &Run{}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Mode returns the mode at the time of the call.
func (r *Run) Mode() Mode {
	return Mode(r.mode.Load())
}

// IsProd reports whether production mode is active.
func (r *Run) IsProd() bool {
	return r.Mode() == Production
}

// SetProduction switches the run into production mode. There is no way back.
func (r *Run) SetProduction() {
	r.mode.Store(int32(Production))
}

// Publish forwards a written file to the reloader, if any.
func (r *Run) Publish(kind ReloadKind, path string) {
	if r.reloader != nil {
		r.reloader.Publish(kind, path)
	}
}

// ToProd returns the step that flips a run into production mode.
func ToProd() *Task {
	return &Task{
		Short:  "to-prod",
		Desc:   "switch the current run to production mode",
		Hidden: true,
		Fn: func(_ context.Context, r *Run) error {
			r.SetProduction()
			return nil
		},
	}
}
