package trace

import "time"

// Kind is the type of a trace event.
type Kind uint8

const (
	KindSpanBegin Kind = iota + 1
	KindSpanEnd
	KindPoint // instant event
)

func (k Kind) String() string {
	switch k {
	case KindSpanBegin:
		return "begin"
	case KindSpanEnd:
		return "end"
	case KindPoint:
		return "point"
	default:
		return "unknown"
	}
}

// Scope is the granularity of an event. Lower values are coarser.
type Scope uint8

const (
	ScopeRun     Scope = iota + 1 // one CLI invocation
	ScopeStage                    // resolve, layout, marshal, emit, write
	ScopeProfile                  // one ABI profile within a stage
	ScopeEntry                    // one catalog entry
)

func (s Scope) String() string {
	switch s {
	case ScopeRun:
		return "run"
	case ScopeStage:
		return "stage"
	case ScopeProfile:
		return "profile"
	case ScopeEntry:
		return "entry"
	default:
		return "unknown"
	}
}

// Event is a single trace record.
type Event struct {
	Time     time.Time
	Seq      uint64 // global, monotonic
	Kind     Kind
	Scope    Scope
	SpanID   uint64
	ParentID uint64 // 0 for roots
	GID      uint64 // goroutine that emitted the event
	Name     string // e.g. "layout", "profile:windows-386"
	Detail   string
	Extra    map[string]string
}
