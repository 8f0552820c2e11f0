package dag

import (
	"fmt"
	"slices"
	"strings"

	"winapigen/internal/diag"
)

// Graph stores edges from a dependency to its users, so a Kahn sort yields
// dependencies first.
type Graph struct {
	Edges   [][]NodeID // Edges[dep] = users
	Indeg   []int      // number of present deps per node
	Present []bool     // node is declared, not only referenced
}

// BuildGraph wires the nodes and reports duplicate declarations, references to
// names that are never declared and self references.
func BuildGraph(idx Index, nodes []Node, r diag.Reporter) Graph {
	count := len(idx.IDToName)
	g := Graph{
		Edges:   make([][]NodeID, count),
		Indeg:   make([]int, count),
		Present: make([]bool, count),
	}
	deps := make([][]string, count)

	for _, n := range nodes {
		if n.Name == "" {
			continue
		}
		id := idx.NameToID[n.Name]
		if g.Present[int(id)] {
			report(r, diag.CatDuplicateName, n.Name, fmt.Sprintf("%q is declared more than once", n.Name))
			continue
		}
		g.Present[int(id)] = true
		deps[int(id)] = n.Deps
	}

	for from := 0; from < count; from++ {
		if !g.Present[from] {
			continue
		}
		name := idx.IDToName[from]
		seen := make(map[NodeID]struct{}, len(deps[from]))
		for _, dep := range deps[from] {
			if dep == "" {
				continue
			}
			depID := idx.NameToID[dep]
			if int(depID) == from {
				report(r, diag.CatCycle, name, fmt.Sprintf("%q refers to itself", name))
				continue
			}
			if _, dup := seen[depID]; dup {
				continue
			}
			seen[depID] = struct{}{}
			if !g.Present[int(depID)] {
				report(r, diag.CatDanglingRef, name, fmt.Sprintf("%q refers to undeclared %q", name, dep))
				continue
			}
			g.Edges[int(depID)] = append(g.Edges[int(depID)], NodeID(from))
			g.Indeg[from]++
		}
	}
	for i := range g.Edges {
		if len(g.Edges[i]) > 1 {
			slices.Sort(g.Edges[i])
		}
	}
	return g
}

// ReportCycles reports one diagnostic per cycle found among the nodes the sort
// could not place.
func ReportCycles(idx Index, g Graph, topo *Topo, r diag.Reporter) {
	if topo == nil || !topo.Cyclic {
		return
	}
	for _, cycle := range FindCycles(g, topo) {
		// edges run dep -> user; report in "refers to" direction
		slices.Reverse(cycle)
		names := idx.Names(rotate(cycle))
		path := strings.Join(append(names, names[0]), " -> ")
		report(r, diag.CatCycle, names[0], "reference cycle: "+path)
	}
}

func report(r diag.Reporter, code diag.Code, subject, msg string) {
	if r == nil {
		return
	}
	r.Report(code, diag.SevError, subject, msg, nil)
}
