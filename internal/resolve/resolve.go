// Package resolve computes the transitive closure of requested catalog names
// and orders it so every entry follows the entries it refers to.
package resolve

import (
	"fmt"
	"sort"
	"strings"

	"winapigen/internal/catalog"
	"winapigen/internal/dag"
	"winapigen/internal/diag"
)

// Source resolves catalog names. *catalog.Catalog implements it.
type Source interface {
	Lookup(name string) (*catalog.Entry, bool)
}

// Model is the resolved closure of one request.
type Model struct {
	Entries   map[string]*catalog.Entry
	Requested map[string]bool
	Order     []string   // dependencies first
	Tiers     [][]string // mutually independent entries, each tier sorted
	Refs      map[string][]string
	// Via records the entry through which a transitive name entered the closure.
	Via map[string]string
}

// Entry returns the closure entry called name.
func (m *Model) Entry(name string) (*catalog.Entry, bool) {
	e, ok := m.Entries[name]
	return e, ok
}

// Lookup makes a Model usable wherever a catalog is expected, restricted to
// the closure.
func (m *Model) Lookup(name string) (*catalog.Entry, bool) {
	return m.Entry(name)
}

func (m *Model) Len() int { return len(m.Order) }

// RequestedNames returns the requested names, sorted.
func (m *Model) RequestedNames() []string {
	out := make([]string, 0, len(m.Requested))
	for name := range m.Requested {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// OfKind returns the closure entries of kind k in resolution order.
func (m *Model) OfKind(k catalog.Kind) []*catalog.Entry {
	var out []*catalog.Entry
	for _, name := range m.Order {
		if e := m.Entries[name]; e.Kind == k {
			out = append(out, e)
		}
	}
	return out
}

// Resolve returns the closure of names over src. Unknown names, requested or
// reached through another entry, fail with diag.ErrUnknownSymbol; all of them
// are reported, not only the first.
func Resolve(src Source, names []string) (*Model, error) {
	requested := make(map[string]bool, len(names))
	queue := make([]string, 0, len(names))
	for _, raw := range names {
		name := strings.TrimSpace(raw)
		if name == "" || requested[name] {
			continue
		}
		requested[name] = true
		queue = append(queue, name)
	}
	if len(queue) == 0 {
		return nil, diag.Errorf(diag.ErrConfiguration, diag.ResEmptyRequest, "", "no symbols requested")
	}
	sort.Strings(queue)

	m := &Model{
		Entries:   make(map[string]*catalog.Entry, len(queue)*4),
		Requested: requested,
		Refs:      make(map[string][]string, len(queue)*4),
		Via:       make(map[string]string),
	}
	bag := diag.NewBag(catalog.MaxDiagnostics)
	reporter := diag.BagReporter{Bag: bag}
	missing := make(map[string]struct{})

	for _, name := range queue {
		e, ok := src.Lookup(name)
		if !ok {
			missing[name] = struct{}{}
			diag.ReportError(reporter, diag.ResUnknownSymbol, name, fmt.Sprintf("%q is not in the catalog", name)).Emit()
			continue
		}
		m.Entries[name] = e
	}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		e, ok := m.Entries[cur]
		if !ok {
			continue
		}
		refs := dedup(e.Refs())
		m.Refs[cur] = refs
		for _, ref := range refs {
			if _, ok := m.Entries[ref]; ok {
				continue
			}
			if _, miss := missing[ref]; miss {
				continue
			}
			dep, ok := src.Lookup(ref)
			if !ok {
				missing[ref] = struct{}{}
				diag.ReportError(reporter, diag.ResUnknownSymbol, ref, fmt.Sprintf("%q is not in the catalog", ref)).
					WithNote(cur, fmt.Sprintf("referenced by %s", cur)).
					Emit()
				continue
			}
			m.Entries[ref] = dep
			m.Via[ref] = cur
			queue = append(queue, ref)
		}
	}
	if err := diag.FromBag(diag.ErrUnknownSymbol, bag); err != nil {
		return nil, err
	}

	m.order(reporter)
	if err := diag.FromBag(diag.ErrConfiguration, bag); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Model) order(r diag.Reporter) {
	names := make([]string, 0, len(m.Entries))
	for name := range m.Entries {
		names = append(names, name)
	}
	sort.Strings(names)
	nodes := make([]dag.Node, len(names))
	for i, name := range names {
		nodes[i] = dag.Node{Name: name, Deps: m.Refs[name]}
	}

	idx := dag.BuildIndex(nodes)
	g := dag.BuildGraph(idx, nodes, r)
	topo := dag.ToposortKahn(g)
	if topo.Cyclic {
		dag.ReportCycles(idx, g, topo, r)
		return
	}
	m.Order = idx.Names(topo.Order)
	m.Tiers = make([][]string, len(topo.Batches))
	for i, batch := range topo.Batches {
		m.Tiers[i] = idx.Names(batch)
	}
}

func dedup(refs []string) []string {
	if len(refs) == 0 {
		return nil
	}
	out := make([]string, 0, len(refs))
	seen := make(map[string]struct{}, len(refs))
	for _, r := range refs {
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}
