// Package emit renders the Go source files of a generated binding package:
// shared type declarations, per-architecture struct layouts with compile-time
// size assertions, callback registries, and wrapper functions.
package emit

import (
	"fmt"
	"go/format"
	"go/token"
	"slices"
	"sort"
	"strconv"
	"strings"

	"winapigen/internal/catalog"
	"winapigen/internal/diag"
	"winapigen/internal/layout"
	"winapigen/internal/marshal"
	"winapigen/internal/resolve"
)

const (
	// DefaultRuntimeImport is the import path of the runtime support package.
	DefaultRuntimeImport = "winapigen/bindrt"
	// DefaultCallbackSlots is the registry capacity of each callback type.
	DefaultCallbackSlots = 8
)

// Source sets a package can be generated for.
const (
	SourceSetMain = "main"
	SourceSetTest = "test"
)

// Options control the generated package.
type Options struct {
	Package        string
	SourceSet      string
	CatalogVersion string
	CatalogDigest  string
	CallbackSlots  int
	RuntimeImport  string

	// AnyOS drops the windows build constraint so the wrappers build on
	// every platform and can be driven through fake procedures.
	AnyOS bool
}

func (o Options) withDefaults() Options {
	if o.SourceSet == "" {
		o.SourceSet = SourceSetMain
	}
	if o.CallbackSlots <= 0 {
		o.CallbackSlots = DefaultCallbackSlots
	}
	if o.RuntimeImport == "" {
		o.RuntimeImport = DefaultRuntimeImport
	}
	return o
}

// Target is everything the emitter needs about one ABI profile.
type Target struct {
	Layout  layout.Target
	Layouts map[string]layout.TypeLayout
	Plans   *marshal.Set
}

// Artifact is one generated file, relative to the output directory.
type Artifact struct {
	Path    string
	Content []byte
}

// Prepare lays out every struct and union of m and plans every function and
// callback for t.
func Prepare(m *resolve.Model, t layout.Target) (Target, error) {
	engine := layout.New(t, m)
	out := Target{Layout: t}
	layouts, err := LayoutTypes(m, engine)
	if err != nil {
		return out, err
	}
	out.Layouts = layouts
	plans, err := marshal.PlanModel(m, engine)
	if err != nil {
		return out, err
	}
	out.Plans = plans
	return out, nil
}

// LayoutTypes lays out every struct and union of m with engine. Failures are
// configuration errors.
func LayoutTypes(m *resolve.Model, engine *layout.LayoutEngine) (map[string]layout.TypeLayout, error) {
	out := make(map[string]layout.TypeLayout)
	bag := diag.NewBag(catalog.MaxDiagnostics)
	for _, name := range m.Order {
		e := m.Entries[name]
		if e.Kind != catalog.KindStruct && e.Kind != catalog.KindUnion {
			continue
		}
		l, err := engine.LayoutNamed(name)
		if err != nil {
			if le, ok := err.(*layout.LayoutError); ok {
				bag.Add(le.Diagnostic())
			} else {
				bag.Add(diag.NewError(diag.LayUnsized, name, err.Error()))
			}
			continue
		}
		out[name] = l
	}
	bag.Dedup()
	if err := diag.FromBag(diag.ErrConfiguration, bag); err != nil {
		return nil, err
	}
	return out, nil
}

// Emitter renders one model. Create one per Emit call.
type Emitter struct {
	model   *resolve.Model
	targets []Target
	opts    Options
	bag     *diag.Bag
	out     []Artifact
}

// Emit renders m for targets. The first target is the primary one; its plans
// decide the shape of shared declarations. Any inconsistency fails the whole
// call with diag.ErrEmission and no artifacts.
func Emit(m *resolve.Model, targets []Target, opts Options) ([]Artifact, error) {
	e := &Emitter{
		model:   m,
		targets: targets,
		opts:    opts.withDefaults(),
		bag:     diag.NewBag(catalog.MaxDiagnostics),
	}
	if err := e.validate(); err != nil {
		return nil, err
	}
	e.checkNames()
	if err := e.fail(); err != nil {
		return nil, err
	}

	e.emitTypes()
	for i := range e.targets {
		e.emitStructs(&e.targets[i])
	}
	e.emitCallbacks()
	e.emitFuncs()
	e.emitErrors()
	if err := e.fail(); err != nil {
		return nil, err
	}
	sort.Slice(e.out, func(i, j int) bool { return e.out[i].Path < e.out[j].Path })
	return e.out, nil
}

func (e *Emitter) validate() error {
	if !token.IsIdentifier(e.opts.Package) || e.opts.Package == "_" {
		return diag.Errorf(diag.ErrConfiguration, diag.EmtInconsistent, e.opts.Package, "%q is not a valid package name", e.opts.Package)
	}
	if e.opts.SourceSet != SourceSetMain && e.opts.SourceSet != SourceSetTest {
		return diag.Errorf(diag.ErrConfiguration, diag.EmtInconsistent, e.opts.SourceSet, "unknown source set %q", e.opts.SourceSet)
	}
	if len(e.targets) == 0 {
		return diag.Errorf(diag.ErrConfiguration, diag.LayUnknownProfile, "", "no ABI profiles requested")
	}
	seen := make(map[string]bool, len(e.targets))
	for _, t := range e.targets {
		if t.Plans == nil || t.Layouts == nil {
			return diag.Errorf(diag.ErrEmission, diag.EmtInconsistent, t.Layout.Profile, "profile %s was not prepared", t.Layout.Profile)
		}
		if seen[t.Layout.GOARCH] {
			return diag.Errorf(diag.ErrConfiguration, diag.LayUnknownProfile, t.Layout.Profile, "two profiles for GOARCH %s", t.Layout.GOARCH)
		}
		seen[t.Layout.GOARCH] = true
	}
	return nil
}

func (e *Emitter) errorf(code diag.Code, subject, format string, args ...any) {
	e.bag.Add(diag.NewError(code, subject, fmt.Sprintf(format, args...)))
}

func (e *Emitter) fail() error {
	e.bag.Dedup()
	return diag.FromBag(diag.ErrEmission, e.bag)
}

func (e *Emitter) primary() *Target { return &e.targets[0] }

// fileName builds zwinapi_<part>[_<goarch>][_test].go.
func (e *Emitter) fileName(part, goarch string) string {
	var sb strings.Builder
	sb.WriteString("zwinapi_")
	sb.WriteString(part)
	if goarch != "" {
		sb.WriteByte('_')
		sb.WriteString(goarch)
	}
	if e.opts.SourceSet == SourceSetTest {
		sb.WriteString("_test")
	}
	sb.WriteString(".go")
	return sb.String()
}

// render assembles header, imports and body, formats the result and records
// the artifact.
func (e *Emitter) render(name, profile string, f *goFile) {
	var sb strings.Builder
	sb.WriteString("// Code generated by winapigen. DO NOT EDIT.\n")
	fmt.Fprintf(&sb, "// catalog %s (%s), source set %s", e.opts.CatalogVersion, e.opts.CatalogDigest, e.opts.SourceSet)
	if profile != "" {
		fmt.Fprintf(&sb, ", profile %s", profile)
	}
	if e.opts.AnyOS {
		sb.WriteString("\n\n")
	} else {
		sb.WriteString("\n\n//go:build windows\n\n")
	}
	fmt.Fprintf(&sb, "package %s\n", e.opts.Package)
	if len(f.imports) > 0 {
		paths := make([]string, 0, len(f.imports))
		for p := range f.imports {
			paths = append(paths, p)
		}
		slices.Sort(paths)
		sb.WriteString("\nimport (\n")
		for _, p := range paths {
			fmt.Fprintf(&sb, "\t%s\n", strconv.Quote(p))
		}
		sb.WriteString(")\n")
	}
	sb.WriteString(f.buf.String())

	src, err := format.Source([]byte(sb.String()))
	if err != nil {
		e.errorf(diag.EmtFormat, name, "%v", err)
		return
	}
	e.out = append(e.out, Artifact{Path: name, Content: src})
}

// goFile is the body and import set of one generated file or fragment.
type goFile struct {
	buf     strings.Builder
	imports map[string]bool
}

func newFile() *goFile {
	return &goFile{imports: make(map[string]bool)}
}

func (f *goFile) use(path string) { f.imports[path] = true }

func (f *goFile) p(format string, args ...any) {
	fmt.Fprintf(&f.buf, format, args...)
}

func (f *goFile) empty() bool { return f.buf.Len() == 0 }

func (f *goFile) merge(o *goFile) {
	f.buf.WriteString(o.buf.String())
	for p := range o.imports {
		f.imports[p] = true
	}
}

func (e *Emitter) rt(f *goFile) string {
	f.use(e.opts.RuntimeImport)
	return "bindrt"
}

// doc writes the doc comment of a declaration.
func (e *Emitter) doc(f *goFile, entry *catalog.Entry, summary string) {
	f.p("\n// %s %s\n", entry.Name, summary)
	if entry.Doc == "" {
		return
	}
	if strings.HasPrefix(entry.Doc, "https://") || strings.HasPrefix(entry.Doc, "http://") {
		f.p("//\n// See %s\n", entry.Doc)
		return
	}
	for _, line := range strings.Split(strings.TrimSpace(entry.Doc), "\n") {
		f.p("// %s\n", strings.TrimRight(line, " \t"))
	}
}

// checkNames reports package-level identifiers claimed twice.
func (e *Emitter) checkNames() {
	owner := make(map[string]string)
	claim := func(name, by string) {
		if prev, ok := owner[name]; ok && prev != by {
			e.errorf(diag.EmtNameCollision, name, "identifier %s is generated for both %s and %s", name, prev, by)
			return
		}
		owner[name] = by
	}
	for _, name := range e.model.Order {
		claim(name, name)
	}
	for _, name := range e.model.Order {
		entry := e.model.Entries[name]
		switch entry.Kind {
		case catalog.KindFunction:
			claim(procName(name), name)
			claim(dllVar(entry.Function.DLL), entry.Function.DLL)
		case catalog.KindCallback:
			claim(registryName(name), name)
		}
	}
	for _, name := range e.releaseFuncs() {
		claim(releaseName(name), name)
	}
	for _, name := range errorsIdents {
		claim(name, "error helpers")
	}
	if len(e.model.OfKind(catalog.KindCallback)) > 0 {
		claim(callbackSlotsName, "callback registries")
	}
}

// releaseFuncs lists the functions some plan releases a resource with.
func (e *Emitter) releaseFuncs() []string {
	set := make(map[string]bool)
	for _, t := range e.targets {
		if t.Plans == nil {
			continue
		}
		for _, p := range t.Plans.Functions {
			if p.Return.Release != "" {
				set[p.Return.Release] = true
			}
			for _, pp := range p.Params {
				if pp.Release != "" {
					set[pp.Release] = true
				}
			}
		}
	}
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

func itoa(n int) string { return strconv.Itoa(n) }
