// Package gen runs the generator pipeline for one or more requests: resolve
// the requested names, lay out and plan every ABI profile, emit the Go
// sources and move them into the output directory.
package gen

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"winapigen/internal/catalog"
	"winapigen/internal/diag"
	"winapigen/internal/emit"
	"winapigen/internal/layout"
	"winapigen/internal/marshal"
	"winapigen/internal/observ"
	"winapigen/internal/resolve"
	"winapigen/internal/trace"
)

// Request is one generator invocation, i.e. one source set of one package.
type Request struct {
	Symbols       []string
	OutputDir     string
	SourceSet     string // emit.SourceSetMain or emit.SourceSetTest
	Package       string
	Profiles      []string // profile names; empty means every catalog profile
	CallbackSlots int
	RuntimeImport string
	DryRun        bool // run every stage but write nothing

	Progress ProgressSink
	Timer    *observ.Timer
}

// Unit labels the request in progress events and traces.
func (r *Request) Unit() string {
	set := r.SourceSet
	if set == "" {
		set = emit.SourceSetMain
	}
	return r.Package + "[" + set + "]"
}

// Result describes a finished run.
type Result struct {
	Unit      string
	Model     *resolve.Model
	Artifacts []emit.Artifact
	Written   []string // files replaced or created
	Unchanged []string // files whose content was already current
	Removed   []string // stale files of an earlier run
	Timings   *Timings
}

type run struct {
	ctx  context.Context
	cat  *catalog.Catalog
	req  *Request
	unit string
	res  *Result
}

// Generate runs the whole pipeline for req. On error nothing in the output
// directory changes and the error carries the diagnostics behind it.
func Generate(ctx context.Context, cat *catalog.Catalog, req *Request) (*Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if cat == nil {
		return nil, fmt.Errorf("missing catalog")
	}
	if req == nil {
		return nil, fmt.Errorf("missing generate request")
	}
	if req.SourceSet == "" {
		req.SourceSet = emit.SourceSetMain
	}
	if req.SourceSet != emit.SourceSetMain && req.SourceSet != emit.SourceSetTest {
		return nil, diag.Errorf(diag.ErrConfiguration, diag.IOBadOutput, req.SourceSet,
			"unknown source set %q (expected %s or %s)", req.SourceSet, emit.SourceSetMain, emit.SourceSetTest)
	}
	if req.OutputDir == "" && !req.DryRun {
		return nil, diag.Errorf(diag.ErrConfiguration, diag.IOBadOutput, "", "no output directory")
	}
	profiles, err := selectProfiles(cat, req.Profiles)
	if err != nil {
		return nil, err
	}

	r := &run{
		cat:  cat,
		req:  req,
		unit: req.Unit(),
		res:  &Result{Unit: req.Unit(), Timings: &Timings{}},
	}
	ctx, span := trace.Start(ctx, trace.ScopeRun, "generate:"+r.unit)
	r.ctx = ctx
	for _, s := range Stages {
		r.event(s, StatusQueued, nil, 0)
	}

	err = r.pipeline(profiles)
	if err != nil {
		span.End(err.Error())
		return nil, err
	}
	span.WithExtra("written", strconv.Itoa(len(r.res.Written))).
		WithExtra("removed", strconv.Itoa(len(r.res.Removed))).
		End("")
	return r.res, nil
}

func (r *run) pipeline(profiles []catalog.Profile) error {
	var model *resolve.Model
	err := r.stage(StageResolve, func(ctx context.Context) error {
		m, err := resolve.Resolve(r.cat, r.req.Symbols)
		if err != nil {
			return err
		}
		model = m
		trace.Point(ctx, trace.ScopeStage, "closure", strconv.Itoa(len(m.Order))+" entries")
		return nil
	})
	if err != nil {
		return err
	}
	r.res.Model = model

	targets := make([]emit.Target, len(profiles))
	engines := make([]*layout.LayoutEngine, len(profiles))
	err = r.stage(StageLayout, func(ctx context.Context) error {
		for i, p := range profiles {
			_, span := trace.Start(ctx, trace.ScopeProfile, "profile:"+p.Name)
			engines[i] = layout.New(layout.TargetFor(p), model)
			layouts, err := emit.LayoutTypes(model, engines[i])
			if err != nil {
				span.End(err.Error())
				return err
			}
			span.WithExtra("types", strconv.Itoa(len(layouts))).End("")
			targets[i] = emit.Target{Layout: engines[i].Target, Layouts: layouts}
		}
		return nil
	})
	if err != nil {
		return err
	}

	err = r.stage(StageMarshal, func(ctx context.Context) error {
		for i, p := range profiles {
			_, span := trace.Start(ctx, trace.ScopeProfile, "profile:"+p.Name)
			plans, err := marshal.PlanModel(model, engines[i])
			if err != nil {
				span.End(err.Error())
				return err
			}
			span.End("")
			targets[i].Plans = plans
		}
		return nil
	})
	if err != nil {
		return err
	}

	err = r.stage(StageEmit, func(ctx context.Context) error {
		arts, err := emit.Emit(model, targets, emit.Options{
			Package:        r.req.Package,
			SourceSet:      r.req.SourceSet,
			CatalogVersion: r.cat.Version(),
			CatalogDigest:  r.cat.Digest().Short(),
			CallbackSlots:  r.req.CallbackSlots,
			RuntimeImport:  r.req.RuntimeImport,
		})
		if err != nil {
			return err
		}
		r.res.Artifacts = arts
		return nil
	})
	if err != nil {
		return err
	}

	return r.stage(StageWrite, func(ctx context.Context) error {
		if r.req.DryRun {
			return nil
		}
		st := &state{
			Schema:    stateSchema,
			Catalog:   r.cat.Version() + "@" + r.cat.Digest().Short(),
			Package:   r.req.Package,
			SourceSet: r.req.SourceSet,
			Symbols:   model.RequestedNames(),
		}
		out, err := writeArtifacts(ctx, r.req.OutputDir, st, r.res.Artifacts)
		if err != nil {
			return err
		}
		r.res.Written, r.res.Unchanged, r.res.Removed = out.written, out.unchanged, out.removed
		return nil
	})
}

// stage runs fn as one pipeline stage: progress events, a trace span, a
// timer phase and the stage timing.
func (r *run) stage(s Stage, fn func(ctx context.Context) error) error {
	if err := r.ctx.Err(); err != nil {
		r.event(s, StatusError, err, 0)
		return err
	}
	r.event(s, StatusWorking, nil, 0)
	ctx, span := trace.Start(r.ctx, trace.ScopeStage, string(s))
	start := time.Now()
	err := r.req.Timer.Measure(r.unit+" "+string(s), func() error { return fn(ctx) })
	elapsed := time.Since(start)
	r.res.Timings.Set(s, elapsed)
	if err != nil {
		span.End(err.Error())
		r.event(s, StatusError, err, elapsed)
		return err
	}
	span.End("")
	r.event(s, StatusDone, nil, elapsed)
	return nil
}

func (r *run) event(s Stage, status Status, err error, elapsed time.Duration) {
	if r.req.Progress == nil {
		return
	}
	r.req.Progress.OnEvent(Event{Unit: r.unit, Stage: s, Status: status, Err: err, Elapsed: elapsed})
}

// selectProfiles keeps catalog declaration order so the primary profile does
// not depend on how the request lists them.
func selectProfiles(cat *catalog.Catalog, names []string) ([]catalog.Profile, error) {
	all := cat.Profiles()
	if len(names) == 0 {
		return all, nil
	}
	want := make(map[string]bool, len(names))
	for _, name := range names {
		if _, ok := cat.Profile(name); !ok {
			return nil, diag.Errorf(diag.ErrConfiguration, diag.LayUnknownProfile, name, "unknown ABI profile %q", name)
		}
		want[name] = true
	}
	out := make([]catalog.Profile, 0, len(want))
	for _, p := range all {
		if want[p.Name] {
			out = append(out, p)
		}
	}
	return out, nil
}

// GenerateAll runs independent requests concurrently. A failing request does
// not stop the others; the returned slice has a nil entry for each failure and
// the error joins every failure.
func GenerateAll(ctx context.Context, cat *catalog.Catalog, reqs []*Request) ([]*Result, error) {
	if err := checkDistinctOutputs(reqs); err != nil {
		return nil, err
	}
	results := make([]*Result, len(reqs))
	errs := make([]error, len(reqs))
	var g errgroup.Group
	for i, req := range reqs {
		i, req := i, req
		g.Go(func() error {
			res, err := Generate(ctx, cat, req)
			if err != nil {
				label := "request " + strconv.Itoa(i)
				if req != nil {
					label = req.Unit()
				}
				errs[i] = fmt.Errorf("%s: %w", label, err)
				return nil
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck
	return results, errors.Join(errs...)
}

// checkDistinctOutputs rejects two requests that would own the same
// generated files.
func checkDistinctOutputs(reqs []*Request) error {
	seen := make(map[string]string, len(reqs))
	for _, req := range reqs {
		if req == nil || req.DryRun {
			continue
		}
		set := req.SourceSet
		if set == "" {
			set = emit.SourceSetMain
		}
		key := filepath.Clean(req.OutputDir) + "\x00" + set
		if prev, ok := seen[key]; ok {
			return diag.Errorf(diag.ErrConfiguration, diag.IOBadOutput, req.OutputDir,
				"%s and %s write the same %s files into %s", prev, req.Unit(), set, req.OutputDir)
		}
		seen[key] = req.Unit()
	}
	return nil
}
