// Package layout computes native memory layouts of catalog structs and unions
// for an ABI profile, and how to spell them in Go so both agree byte for byte.
package layout

import (
	"winapigen/internal/catalog"
)

// Source resolves catalog names. *catalog.Catalog implements it.
type Source interface {
	Lookup(name string) (*catalog.Entry, bool)
}

// FieldLayout places one field.
type FieldLayout struct {
	Name   string
	Type   catalog.TypeRef
	Offset int
	Size   int
	Align  int // effective native alignment after packing

	// Go representation.
	GoAlign int  // alignment of the rendered Go type
	Pad     int  // explicit padding bytes emitted before the field
	Raw     bool // rendered as [Size]byte because Go cannot place the type at Offset
}

// TypeLayout is the ABI layout of a type for a specific Target.
type TypeLayout struct {
	Size  int
	Align int

	// Struct and union only:
	Union   bool
	Pack    int
	Fields  []FieldLayout
	GoAlign int
	TailPad int
}

// FieldOffset returns the offset of the named field.
func (l TypeLayout) FieldOffset(name string) (int, bool) {
	for _, f := range l.Fields {
		if f.Name == name {
			return f.Offset, true
		}
	}
	return 0, false
}

// LayoutEngine computes memory layout for catalog types. Not safe for
// concurrent use; create one per run and target.
type LayoutEngine struct {
	Target Target
	Types  Source

	cache *cache
}

// New creates a new LayoutEngine for the specified target.
func New(target Target, types Source) *LayoutEngine {
	return &LayoutEngine{
		Target: target,
		Types:  types,
		cache:  newCache(),
	}
}

type layoutState struct {
	stack []string
	index map[string]int
}

func newLayoutState() *layoutState {
	return &layoutState{index: make(map[string]int, 16)}
}

// LayoutOf computes the layout of t. Named layouts are cached.
func (e *LayoutEngine) LayoutOf(t catalog.TypeRef) (TypeLayout, error) {
	l, err := e.layoutOf(t, newLayoutState())
	if err != nil {
		return l, err
	}
	return l, nil
}

// LayoutNamed is LayoutOf for a catalog entry name.
func (e *LayoutEngine) LayoutNamed(name string) (TypeLayout, error) {
	return e.LayoutOf(catalog.Named(name))
}

// SizeOf returns the size of a type in bytes.
func (e *LayoutEngine) SizeOf(t catalog.TypeRef) (int, error) {
	l, err := e.LayoutOf(t)
	return l.Size, err
}

// AlignOf returns the alignment requirement of a type in bytes.
func (e *LayoutEngine) AlignOf(t catalog.TypeRef) (int, error) {
	l, err := e.LayoutOf(t)
	return l.Align, err
}

func (e *LayoutEngine) layoutOf(t catalog.TypeRef, state *layoutState) (TypeLayout, *LayoutError) {
	if t.Kind != catalog.TNamed {
		return e.computeLayout(t, state)
	}
	name := t.Name
	if cached, ok := e.cache.get(name); ok {
		return cached.Layout, cached.Err
	}

	if idx, ok := state.index[name]; ok {
		cycle := append([]string(nil), state.stack[idx:]...)
		cycle = append(cycle, name)
		err := &LayoutError{
			Kind:    LayoutErrRecursiveUnsized,
			Type:    name,
			Profile: e.Target.Profile,
			Cycle:   cycle,
		}
		e.cache.put(name, &cacheEntry{Layout: TypeLayout{Size: 0, Align: 1}, Err: err})
		return TypeLayout{Size: 0, Align: 1}, err
	}

	state.index[name] = len(state.stack)
	state.stack = append(state.stack, name)
	layout, err := e.computeLayout(t, state)
	state.stack = state.stack[:len(state.stack)-1]
	delete(state.index, name)

	e.cache.put(name, &cacheEntry{Layout: layout, Err: err})
	return layout, err
}
