package dag

import (
	"fmt"
	"slices"

	"fortio.org/safecast"
)

type Topo struct {
	Order   []NodeID   // linear order, dependencies first
	Batches [][]NodeID // tiers of mutually independent nodes, each sorted
	Cyclic  bool
	Cycles  []NodeID // nodes left unplaced
}

func ToposortKahn(g Graph) *Topo {
	count := len(g.Edges)
	indeg := make([]int, len(g.Indeg))
	copy(indeg, g.Indeg)

	topo := &Topo{
		Order:   make([]NodeID, 0, count),
		Batches: make([][]NodeID, 0),
	}

	active := 0
	current := make([]NodeID, 0, count)
	for i := 0; i < count; i++ {
		if !g.Present[i] {
			continue
		}
		active++
		if indeg[i] == 0 {
			current = append(current, toID(i))
		}
	}

	visited := 0
	for len(current) > 0 {
		batch := make([]NodeID, len(current))
		copy(batch, current)
		topo.Batches = append(topo.Batches, batch)

		next := make([]NodeID, 0)
		for _, id := range batch {
			topo.Order = append(topo.Order, id)
			visited++
			for _, to := range g.Edges[int(id)] {
				indeg[int(to)]--
				if indeg[int(to)] == 0 {
					next = append(next, to)
				}
			}
		}
		slices.Sort(next)
		current = next
	}

	if visited != active {
		topo.Cyclic = true
		for i := 0; i < count; i++ {
			if g.Present[i] && indeg[i] > 0 {
				topo.Cycles = append(topo.Cycles, toID(i))
			}
		}
	}

	return topo
}

// FindCycles extracts concrete cycles from the unplaced nodes. Nodes that are
// only downstream of a cycle are not reported. Each cycle starts at its
// smallest id.
func FindCycles(g Graph, topo *Topo) [][]NodeID {
	if topo == nil || !topo.Cyclic {
		return nil
	}
	residual := make(map[NodeID]bool, len(topo.Cycles))
	for _, id := range topo.Cycles {
		residual[id] = true
	}

	const (
		white = iota
		grey
		black
	)
	color := make(map[NodeID]int, len(residual))
	var (
		stack  []NodeID
		cycles [][]NodeID
		seen   = make(map[string]bool)
	)

	var visit func(id NodeID)
	visit = func(id NodeID) {
		color[id] = grey
		stack = append(stack, id)
		for _, to := range g.Edges[int(id)] {
			if !residual[to] {
				continue
			}
			switch color[to] {
			case white:
				visit(to)
			case grey:
				start := slices.Index(stack, to)
				cycle := rotate(slices.Clone(stack[start:]))
				key := fmt.Sprint(cycle)
				if !seen[key] {
					seen[key] = true
					cycles = append(cycles, cycle)
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
	}

	for _, id := range topo.Cycles {
		if color[id] == white {
			visit(id)
		}
	}
	return cycles
}

// rotate puts the smallest id first while keeping the cycle direction.
func rotate(cycle []NodeID) []NodeID {
	if len(cycle) == 0 {
		return cycle
	}
	at := 0
	for i, id := range cycle {
		if id < cycle[at] {
			at = i
		}
	}
	return append(cycle[at:], cycle[:at]...)
}

func toID(i int) NodeID {
	id, err := safecast.Conv[NodeID](i)
	if err != nil {
		panic(fmt.Errorf("node id overflow: %w", err))
	}
	return id
}
