package marshal

import (
	"errors"

	"winapigen/internal/catalog"
	"winapigen/internal/diag"
	"winapigen/internal/layout"
	"winapigen/internal/resolve"
)

// PlanModel plans every function and callback of m for the engine's target.
// Functions not exported on the target are left out of the set. All problems
// are collected into one diag.ErrUnsupportedMarshalling error.
func PlanModel(m *resolve.Model, engine *layout.LayoutEngine) (*Set, error) {
	pl := NewPlanner(m, engine)
	set := newSet(engine.Target.Profile, engine.Target.GOARCH)
	bag := diag.NewBag(catalog.MaxDiagnostics)

	collect := func(err error) {
		if ds := diag.Diagnostics(err); len(ds) > 0 {
			for _, d := range ds {
				bag.Add(d)
			}
			return
		}
		bag.Add(diag.NewError(diag.MarUnsupportedParam, "", err.Error()))
	}

	for _, name := range m.Order {
		e := m.Entries[name]
		switch e.Kind {
		case catalog.KindFunction:
			plan, err := pl.PlanFunction(e)
			switch {
			case errors.Is(err, ErrUnavailable):
			case err != nil:
				collect(err)
			default:
				set.Functions[name] = plan
			}
		case catalog.KindCallback:
			plan, err := pl.PlanCallback(e)
			if err != nil {
				collect(err)
				continue
			}
			set.Callbacks[name] = plan
		}
	}
	bag.Dedup()
	if err := diag.FromBag(diag.ErrUnsupportedMarshalling, bag); err != nil {
		return nil, err
	}
	return set, nil
}
