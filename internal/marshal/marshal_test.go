package marshal

import (
	"errors"
	"reflect"
	"testing"

	"winapigen/internal/catalog"
	"winapigen/internal/diag"
	"winapigen/internal/layout"
	"winapigen/internal/resolve"
)

func embedded(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.Embedded()
	if err != nil {
		t.Fatalf("embedded catalog: %v", err)
	}
	return cat
}

func planFor(t *testing.T, target layout.Target, name string) *Plan {
	t.Helper()
	cat := embedded(t)
	e, ok := cat.Lookup(name)
	if !ok {
		t.Fatalf("%s not in catalog", name)
	}
	pl := NewPlanner(cat, layout.New(target, cat))
	var (
		plan *Plan
		err  error
	)
	if e.Kind == catalog.KindCallback {
		plan, err = pl.PlanCallback(e)
	} else {
		plan, err = pl.PlanFunction(e)
	}
	if err != nil {
		t.Fatalf("plan %s on %s: %v", name, target.Profile, err)
	}
	return plan
}

func strategies(p *Plan) []Strategy {
	out := make([]Strategy, len(p.Params))
	for i, pp := range p.Params {
		out[i] = pp.Strategy
	}
	return out
}

func TestGetWindowInfo(t *testing.T) {
	p := planFor(t, layout.WindowsAMD64(), "GetWindowInfo")
	if got := strategies(p); !reflect.DeepEqual(got, []Strategy{Handle, StructInOut}) {
		t.Fatalf("strategies = %v", got)
	}
	if p.Params[1].SizeField != "cbSize" || p.Params[1].Struct != "WINDOWINFO" {
		t.Fatalf("pwi = %+v", p.Params[1])
	}
	if p.Return.Exposed || !p.Fallible || p.Scoped {
		t.Fatalf("return exposed=%v fallible=%v scoped=%v", p.Return.Exposed, p.Fallible, p.Scoped)
	}
}

func TestStructByValuePerProfile(t *testing.T) {
	cases := []struct {
		target layout.Target
		slots  []Slot
	}{
		{layout.WindowsAMD64(), []Slot{{Kind: SlotStructWord}}},
		{layout.WindowsARM64(), []Slot{{Kind: SlotStructWord}}},
		{layout.Windows386(), []Slot{{Kind: SlotStructWord}, {Kind: SlotStructWord, Word: 1}}},
	}
	for _, tc := range cases {
		p := planFor(t, tc.target, "WindowFromPoint")
		pt := p.Params[0]
		if pt.Strategy != StructByValue || pt.StructBytes != 8 {
			t.Fatalf("%s: point = %+v", tc.target.Profile, pt)
		}
		if !reflect.DeepEqual(pt.Slots, tc.slots) {
			t.Fatalf("%s: slots = %v, want %v", tc.target.Profile, pt.Slots, tc.slots)
		}
	}
	amd := planFor(t, layout.WindowsAMD64(), "WindowFromPoint")
	x86 := planFor(t, layout.Windows386(), "WindowFromPoint")
	if amd.Lowering() == x86.Lowering() {
		t.Fatalf("lowering should differ: %s", amd.Lowering())
	}
}

func TestSixtyFourBitReturnJoinedOn386(t *testing.T) {
	if p := planFor(t, layout.Windows386(), "GetTickCount64"); !p.Return.Joined || !p.Return.Exposed {
		t.Fatalf("386 return = %+v", p.Return)
	}
	if p := planFor(t, layout.WindowsAMD64(), "GetTickCount64"); p.Return.Joined || p.Fallible {
		t.Fatalf("amd64 plan = %+v", p)
	}
}

func TestStringBuffers(t *testing.T) {
	p := planFor(t, layout.WindowsAMD64(), "GetWindowTextW")
	if got := strategies(p); !reflect.DeepEqual(got, []Strategy{Handle, StringOutBuffer, BufferSize}) {
		t.Fatalf("strategies = %v", got)
	}
	if p.Params[2].SizeFor != "lpString" || p.Return.Exposed {
		t.Fatalf("plan = %+v", p)
	}

	p = planFor(t, layout.WindowsAMD64(), "GetComputerNameW")
	if got := strategies(p); !reflect.DeepEqual(got, []Strategy{StringOutBuffer, BufferSize}) {
		t.Fatalf("strategies = %v", got)
	}
}

func TestOwnership(t *testing.T) {
	fm := planFor(t, layout.WindowsAMD64(), "FormatMessageW")
	buf := fm.Param("lpBuffer")
	if buf.Strategy != StringCalleeAlloc || buf.Ownership != catalog.CallerFrees || buf.Release != "LocalFree" {
		t.Fatalf("lpBuffer = %+v", buf)
	}
	if fm.Scoped {
		t.Fatalf("callee-allocated strings are released inside the wrapper")
	}

	op := planFor(t, layout.WindowsAMD64(), "OpenProcess")
	if !op.Scoped || op.Return.Release != "CloseHandle" || !op.Return.Exposed || op.Return.Strategy != Handle {
		t.Fatalf("OpenProcess = %+v", op)
	}

	reg := planFor(t, layout.WindowsAMD64(), "RegOpenKeyExW")
	out := reg.Param("phkResult")
	if out.Strategy != ScalarOut || !out.Owned() || !reg.Scoped || reg.Return.Exposed {
		t.Fatalf("RegOpenKeyExW = %+v", reg)
	}
}

func TestRetainedCallbacks(t *testing.T) {
	p := planFor(t, layout.WindowsAMD64(), "SetWindowsHookExW")
	if r := p.Retained(); len(r) != 1 || r[0].Name != "lpfn" {
		t.Fatalf("retained = %v", r)
	}
	if p := planFor(t, layout.WindowsAMD64(), "EnumWindows"); len(p.Retained()) != 0 || p.Params[0].Strategy != Callback {
		t.Fatalf("EnumWindows = %+v", p)
	}
}

func TestStructSize(t *testing.T) {
	p := planFor(t, layout.WindowsAMD64(), "K32GetProcessMemoryInfo")
	cb := p.Param("cb")
	if cb.Strategy != StructSize || cb.Struct != "PROCESS_MEMORY_COUNTERS" {
		t.Fatalf("cb = %+v", cb)
	}
}

func TestCallbackPlans(t *testing.T) {
	p := planFor(t, layout.Windows386(), "MONITORENUMPROC")
	if got := strategies(p); !reflect.DeepEqual(got, []Strategy{Handle, Handle, StructInOut, Scalar}) {
		t.Fatalf("strategies = %v", got)
	}
	if !p.Return.Exposed {
		t.Fatalf("BOOL return must reach the native caller")
	}
	if p := planFor(t, layout.WindowsAMD64(), "TIMERPROC"); p.Return.Strategy != Void {
		t.Fatalf("TIMERPROC return = %v", p.Return.Strategy)
	}
}

type mapSource map[string]*catalog.Entry

func (m mapSource) Lookup(name string) (*catalog.Entry, bool) {
	e, ok := m[name]
	return e, ok
}

func param(name, typ string) catalog.Param {
	t, err := catalog.ParseTypeRef(typ)
	if err != nil {
		panic(err)
	}
	return catalog.Param{Name: name, Dir: catalog.DirIn, Type: t, Ownership: catalog.Borrowed}
}

func synthetic() mapSource {
	return mapSource{
		"Wide": {Name: "Wide", Kind: catalog.KindFunction, Function: &catalog.Function{
			DLL: "test.dll", CallConv: catalog.Stdcall, Failure: catalog.FailNone,
			Params:  []catalog.Param{param("a", "i64"), param("b", "f64"), param("c", "u32")},
			Returns: catalog.PrimType(catalog.PrimVoid),
		}},
		"FloatRet": {Name: "FloatRet", Kind: catalog.KindFunction, Function: &catalog.Function{
			DLL: "test.dll", CallConv: catalog.Stdcall, Failure: catalog.FailNone,
			Returns: catalog.PrimType(catalog.PrimF64),
		}},
		"WIDECB": {Name: "WIDECB", Kind: catalog.KindCallback, Callback: &catalog.Callback{
			CallConv: catalog.Stdcall,
			Params:   []catalog.Param{param("v", "u64")},
			Returns:  catalog.PrimType(catalog.PrimVoid),
		}},
	}
}

func TestSixtyFourBitArgumentsSplitOn386(t *testing.T) {
	src := synthetic()
	p, err := NewPlanner(src, layout.New(layout.Windows386(), src)).PlanFunction(src["Wide"])
	if err != nil {
		t.Fatal(err)
	}
	if p.SlotCount() != 5 {
		t.Fatalf("slots = %d (%s)", p.SlotCount(), p.Lowering())
	}
	if p.Params[1].Strategy != Float || p.Params[1].Slots[1].Kind != SlotHigh {
		t.Fatalf("float64 on 386 = %+v", p.Params[1])
	}

	p, err = NewPlanner(src, layout.New(layout.WindowsAMD64(), src)).PlanFunction(src["Wide"])
	if err != nil {
		t.Fatal(err)
	}
	if p.SlotCount() != 3 {
		t.Fatalf("amd64 slots = %d", p.SlotCount())
	}
}

func TestUnsupportedMarshalling(t *testing.T) {
	src := synthetic()
	arm := NewPlanner(src, layout.New(layout.WindowsARM64(), src))
	_, err := arm.PlanFunction(src["Wide"])
	if !errors.Is(err, diag.ErrUnsupportedMarshalling) {
		t.Fatalf("expected float argument rejection, got %v", err)
	}
	if ds := diag.Diagnostics(err); len(ds) != 1 || ds[0].Code != diag.MarFloatArgument || ds[0].Subject != "Wide" {
		t.Fatalf("diagnostics = %+v", ds)
	}

	_, err = arm.PlanFunction(src["FloatRet"])
	if ds := diag.Diagnostics(err); len(ds) != 1 || ds[0].Code != diag.MarUnsupportedRet {
		t.Fatalf("float return: %v", err)
	}

	x86 := NewPlanner(src, layout.New(layout.Windows386(), src))
	_, err = x86.PlanCallback(src["WIDECB"])
	if ds := diag.Diagnostics(err); len(ds) != 1 || ds[0].Code != diag.MarCallbackSlot {
		t.Fatalf("wide callback: %v", err)
	}
	if _, err := NewPlanner(src, layout.New(layout.WindowsAMD64(), src)).PlanCallback(src["WIDECB"]); err != nil {
		t.Fatalf("amd64 callback: %v", err)
	}
}

func TestPlanModelSkipsUnavailable(t *testing.T) {
	cat := embedded(t)
	m, err := resolve.Resolve(cat, []string{"EnumWindows", "GetWindowLongPtrW", "GetWindowTextW"})
	if err != nil {
		t.Fatal(err)
	}
	set, err := PlanModel(m, layout.New(layout.Windows386(), cat))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := set.Functions["GetWindowLongPtrW"]; ok {
		t.Fatalf("GetWindowLongPtrW planned on 386")
	}
	for _, name := range []string{"EnumWindows", "GetWindowTextW", "GetWindowTextLengthW"} {
		if _, ok := set.Functions[name]; !ok {
			t.Fatalf("%s missing from set", name)
		}
	}
	if _, ok := set.Callbacks["WNDENUMPROC"]; !ok {
		t.Fatalf("WNDENUMPROC missing from set")
	}
}

func TestEveryEmbeddedEntryPlans(t *testing.T) {
	cat := embedded(t)
	m, err := resolve.Resolve(cat, cat.Names())
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range cat.Profiles() {
		if _, err := PlanModel(m, layout.New(layout.TargetFor(p), cat)); err != nil {
			t.Fatalf("%s: %v", p.Name, err)
		}
	}
}
