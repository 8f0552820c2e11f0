// Package testkit holds structural checks shared by tests of several
// pipeline stages.
package testkit

import (
	"fmt"

	"winapigen/internal/layout"
	"winapigen/internal/resolve"
)

// CheckLayout verifies the placement rules of a struct or union layout:
// 1) struct fields are in declaration order, aligned and non-overlapping
// 2) every field lies inside the aggregate and the size is a multiple of Align
// 3) explicit Go padding reaches each offset exactly and the tail closes the size
// 4) union members all sit at offset 0
func CheckLayout(name string, l layout.TypeLayout) error {
	if l.Align <= 0 {
		return fmt.Errorf("%s: alignment %d", name, l.Align)
	}
	if l.Size%l.Align != 0 {
		return fmt.Errorf("%s: size %d is not a multiple of alignment %d", name, l.Size, l.Align)
	}
	if l.Union {
		for _, f := range l.Fields {
			if f.Offset != 0 {
				return fmt.Errorf("%s.%s: union member at offset %d", name, f.Name, f.Offset)
			}
			if f.Size > l.Size {
				return fmt.Errorf("%s.%s: member size %d exceeds union size %d", name, f.Name, f.Size, l.Size)
			}
		}
		return nil
	}

	end := 0
	goCursor := 0
	for _, f := range l.Fields {
		if f.Align <= 0 || f.Offset%f.Align != 0 {
			return fmt.Errorf("%s.%s: offset %d is not aligned to %d", name, f.Name, f.Offset, f.Align)
		}
		if f.Offset < end {
			return fmt.Errorf("%s.%s: offset %d overlaps the previous field ending at %d", name, f.Name, f.Offset, end)
		}
		if f.Offset+f.Size > l.Size {
			return fmt.Errorf("%s.%s: ends at %d past size %d", name, f.Name, f.Offset+f.Size, l.Size)
		}
		if f.Pad < 0 || goCursor+f.Pad != f.Offset {
			return fmt.Errorf("%s.%s: padding %d from %d does not reach offset %d", name, f.Name, f.Pad, goCursor, f.Offset)
		}
		if f.Raw && f.GoAlign != 1 {
			return fmt.Errorf("%s.%s: raw field with Go alignment %d", name, f.Name, f.GoAlign)
		}
		end = f.Offset + f.Size
		goCursor = end
	}
	if l.TailPad < 0 || goCursor+l.TailPad != l.Size {
		return fmt.Errorf("%s: tail padding %d from %d does not reach size %d", name, l.TailPad, goCursor, l.Size)
	}
	return nil
}

// CheckOrder verifies that a resolved model lists every entry after the
// entries it refers to, and that its tiers cover the same names as its order.
func CheckOrder(m *resolve.Model) error {
	if m == nil {
		return fmt.Errorf("nil model")
	}
	pos := make(map[string]int, len(m.Order))
	for i, name := range m.Order {
		if _, dup := pos[name]; dup {
			return fmt.Errorf("%s appears twice in order", name)
		}
		pos[name] = i
	}
	if len(pos) != len(m.Entries) {
		return fmt.Errorf("order has %d names, closure has %d", len(pos), len(m.Entries))
	}
	for name, refs := range m.Refs {
		for _, ref := range refs {
			if pos[ref] >= pos[name] {
				return fmt.Errorf("%s is ordered before its dependency %s", name, ref)
			}
		}
	}

	tierOf := make(map[string]int, len(m.Order))
	total := 0
	for i, tier := range m.Tiers {
		for _, name := range tier {
			tierOf[name] = i
		}
		total += len(tier)
	}
	if total != len(m.Order) {
		return fmt.Errorf("tiers hold %d names, order has %d", total, len(m.Order))
	}
	for name, refs := range m.Refs {
		for _, ref := range refs {
			if tierOf[ref] >= tierOf[name] {
				return fmt.Errorf("%s shares or precedes the tier of its dependency %s", name, ref)
			}
		}
	}
	return nil
}
