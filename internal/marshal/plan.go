package marshal

import (
	"fmt"
	"strings"

	"winapigen/internal/catalog"
)

// ParamPlan is the marshalling decision for one parameter.
type ParamPlan struct {
	Name       string
	Index      int
	Type       catalog.TypeRef
	Underlying catalog.TypeRef
	Strategy   Strategy
	Ownership  catalog.Ownership
	Release    string
	Optional   bool
	Retained   bool
	Dir        catalog.Dir

	Buffer *catalog.Buffer
	// SizeFor is the buffer parameter a BufferSize parameter belongs to.
	SizeFor string
	// SizeOf is the struct parameter a StructSize parameter measures.
	SizeOf string
	// Struct is the pointee or value struct for the Struct* strategies.
	Struct string
	// SizeField is the struct field set to the struct size before the call.
	SizeField string
	// StructBytes is the native size of a by-value struct on the profile.
	StructBytes int

	Slots []Slot
}

// Owned reports whether a successful call hands the caller a resource that
// must be released exactly once.
func (p *ParamPlan) Owned() bool {
	return p.Ownership == catalog.CallerFrees && p.Release != ""
}

// ReturnPlan is the marshalling decision for the native return value.
type ReturnPlan struct {
	Type       catalog.TypeRef
	Underlying catalog.TypeRef
	Strategy   Strategy
	Ownership  catalog.Ownership
	Release    string
	// Joined is set when the value comes back split over r1 (low) and r2
	// (high).
	Joined bool
	// Exposed is set when the wrapper returns the value to its caller.
	Exposed bool
}

// Plan is the complete marshalling plan of a function or callback for one
// ABI profile.
type Plan struct {
	Name      string
	Kind      catalog.Kind
	Profile   string
	GOARCH    string
	DLL       string
	CallConv  catalog.CallConv
	Failure   catalog.Failure
	LastError catalog.LastErrorMode
	Params    []ParamPlan
	Return    ReturnPlan
	// Fallible is set when the wrapper has an error result.
	Fallible bool
	// Scoped is set when the wrapper takes a *bindrt.Scope for owned results.
	Scoped bool
}

// Param returns the plan of the parameter called name.
func (p *Plan) Param(name string) *ParamPlan {
	for i := range p.Params {
		if p.Params[i].Name == name {
			return &p.Params[i]
		}
	}
	return nil
}

// SlotCount is the number of native argument slots the call uses.
func (p *Plan) SlotCount() int {
	n := 0
	for i := range p.Params {
		n += len(p.Params[i].Slots)
	}
	return n
}

// Retained lists the retained callback parameters.
func (p *Plan) Retained() []*ParamPlan {
	var out []*ParamPlan
	for i := range p.Params {
		if p.Params[i].Strategy == Callback && p.Params[i].Retained {
			out = append(out, &p.Params[i])
		}
	}
	return out
}

// Lowering is a compact description of the native slot layout, used to decide
// whether two profiles can share one rendering.
func (p *Plan) Lowering() string {
	var sb strings.Builder
	for i, pp := range p.Params {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(pp.Name)
		sb.WriteByte('=')
		for j, s := range pp.Slots {
			if j > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(s.Kind.String())
			if s.Kind == SlotStructWord {
				fmt.Fprintf(&sb, "%d", s.Word)
			}
		}
	}
	if p.Return.Joined {
		sb.WriteString(" ret=joined")
	}
	return sb.String()
}

// Set holds the plans of one resolved model for one profile.
type Set struct {
	Profile   string
	GOARCH    string
	Functions map[string]*Plan
	Callbacks map[string]*Plan
}

func newSet(profile, goarch string) *Set {
	return &Set{
		Profile:   profile,
		GOARCH:    goarch,
		Functions: make(map[string]*Plan),
		Callbacks: make(map[string]*Plan),
	}
}
