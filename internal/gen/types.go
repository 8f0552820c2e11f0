package gen

import (
	"sync"
	"time"
)

// Stage is one step of a generator run.
type Stage string

const (
	StageResolve Stage = "resolve"
	StageLayout  Stage = "layout"
	StageMarshal Stage = "marshal"
	StageEmit    Stage = "emit"
	StageWrite   Stage = "write"
)

// Stages lists every stage in execution order.
var Stages = []Stage{StageResolve, StageLayout, StageMarshal, StageEmit, StageWrite}

// Status is the progress state of a stage.
type Status string

const (
	StatusQueued  Status = "queued"
	StatusWorking Status = "working"
	StatusDone    Status = "done"
	StatusError   Status = "error"
)

// Event reports progress of one request, identified by its Unit label.
type Event struct {
	Unit    string
	Stage   Stage
	Status  Status
	Err     error
	Elapsed time.Duration
}

// ProgressSink consumes progress events. Sinks may be called from several
// goroutines when requests run concurrently.
type ProgressSink interface {
	OnEvent(Event)
}

// ChannelSink forwards events into a channel.
type ChannelSink struct {
	Ch chan<- Event
}

func (s ChannelSink) OnEvent(evt Event) {
	if s.Ch == nil {
		return
	}
	s.Ch <- evt
}

// FuncSink adapts a function to ProgressSink.
type FuncSink func(Event)

func (f FuncSink) OnEvent(evt Event) { f(evt) }

// Timings holds stage durations of one run.
type Timings struct {
	mu     sync.Mutex
	stages map[Stage]time.Duration
}

func (t *Timings) Set(stage Stage, dur time.Duration) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stages == nil {
		t.stages = make(map[Stage]time.Duration)
	}
	t.stages[stage] = dur
}

func (t *Timings) Has(stage Stage) bool {
	if t == nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.stages[stage]
	return ok
}

func (t *Timings) Duration(stage Stage) time.Duration {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stages[stage]
}

// Sum adds the durations of stages, or of all stages when none are given.
func (t *Timings) Sum(stages ...Stage) time.Duration {
	if t == nil {
		return 0
	}
	if len(stages) == 0 {
		stages = Stages
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	var total time.Duration
	for _, stage := range stages {
		total += t.stages[stage]
	}
	return total
}
