package trace

import "fmt"

// Level controls tracing verbosity.
type Level uint8

const (
	LevelOff     Level = iota
	LevelError         // ring buffer only, dumped when a run fails
	LevelStage         // run and stage boundaries
	LevelProfile       // per-profile work
	LevelDebug         // everything including single entries
)

func (l Level) String() string {
	switch l {
	case LevelOff:
		return "off"
	case LevelError:
		return "error"
	case LevelStage:
		return "stage"
	case LevelProfile:
		return "profile"
	case LevelDebug:
		return "debug"
	default:
		return "unknown"
	}
}

// ParseLevel converts a flag value to a Level.
func ParseLevel(s string) (Level, error) {
	switch s {
	case "off", "OFF":
		return LevelOff, nil
	case "error", "ERROR":
		return LevelError, nil
	case "stage", "STAGE":
		return LevelStage, nil
	case "profile", "PROFILE":
		return LevelProfile, nil
	case "debug", "DEBUG":
		return LevelDebug, nil
	default:
		return LevelOff, fmt.Errorf("invalid trace level: %q (expected: off|error|stage|profile|debug)", s)
	}
}

// ShouldEmit reports whether events of scope are recorded at this level.
func (l Level) ShouldEmit(scope Scope) bool {
	switch l {
	case LevelError:
		return true // the ring keeps everything for the failure dump
	case LevelStage:
		return scope <= ScopeStage
	case LevelProfile:
		return scope <= ScopeProfile
	case LevelDebug:
		return true
	}
	return false
}
