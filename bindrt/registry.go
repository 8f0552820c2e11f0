package bindrt

import (
	"fmt"
	"sync"
)

// Registry maps the fixed native entry points of one callback type to the Go
// functions currently registered for them. Each slot gets its entry point on
// first use and keeps it forever; slots are reused after release.
type Registry[F any] struct {
	name   string
	conv   CallConv
	bridge func(r *Registry[F], slot int) any

	mu    sync.RWMutex
	slots []registrySlot[F]
}

type registrySlot[F any] struct {
	fn    F
	used  bool
	gen   uint64
	entry uintptr
}

// NewRegistry creates a registry with slots entry points. bridge returns the
// function installed as the native entry point of a slot; it must take and
// return uintptr values only and look the Go function up with r.Lookup(slot).
func NewRegistry[F any](name string, slots int, conv CallConv, bridge func(r *Registry[F], slot int) any) *Registry[F] {
	return &Registry[F]{
		name:   name,
		conv:   conv,
		bridge: bridge,
		slots:  make([]registrySlot[F], slots),
	}
}

func (r *Registry[F]) Name() string { return r.name }

func (r *Registry[F]) Cap() int { return len(r.slots) }

// Register installs fn in a free slot.
func (r *Registry[F]) Register(fn F) (*Registration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.slots {
		s := &r.slots[i]
		if s.used {
			continue
		}
		if s.entry == 0 {
			s.entry = newCallback(r.bridge(r, i), r.conv)
		}
		s.fn = fn
		s.used = true
		s.gen++
		slot, gen := i, s.gen
		return &Registration{
			slot:    slot,
			entry:   s.entry,
			release: func() { r.release(slot, gen) },
		}, nil
	}
	return nil, fmt.Errorf("%s: %w (%d in use)", r.name, ErrNoFreeSlot, len(r.slots))
}

// Lookup returns the function registered in slot. It is safe to call from any
// thread.
func (r *Registry[F]) Lookup(slot int) (F, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if slot < 0 || slot >= len(r.slots) || !r.slots[slot].used {
		var zero F
		return zero, false
	}
	return r.slots[slot].fn, true
}

// InUse counts occupied slots.
func (r *Registry[F]) InUse() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for i := range r.slots {
		if r.slots[i].used {
			n++
		}
	}
	return n
}

// Bridge returns the entry point function of slot, for driving callbacks
// without native code.
func (r *Registry[F]) Bridge(slot int) any {
	return r.bridge(r, slot)
}

func (r *Registry[F]) release(slot int, gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := &r.slots[slot]
	if !s.used || s.gen != gen {
		return
	}
	var zero F
	s.fn = zero
	s.used = false
}

// Registration is one occupied callback slot.
type Registration struct {
	slot    int
	entry   uintptr
	once    sync.Once
	release func()
}

// Entry is the native address to hand to the callee.
func (g *Registration) Entry() uintptr {
	if g == nil {
		return 0
	}
	return g.entry
}

func (g *Registration) Slot() int { return g.slot }

// Release frees the slot. It is idempotent and nil-safe.
func (g *Registration) Release() {
	if g == nil {
		return
	}
	g.once.Do(g.release)
}
