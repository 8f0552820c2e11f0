package layout

import (
	"errors"
	"reflect"
	"testing"

	"winapigen/internal/catalog"
	"winapigen/internal/diag"
)

type mapSource map[string]*catalog.Entry

func (m mapSource) Lookup(name string) (*catalog.Entry, bool) {
	e, ok := m[name]
	return e, ok
}

func structEntry(name string, fields ...catalog.Field) *catalog.Entry {
	return &catalog.Entry{Name: name, Kind: catalog.KindStruct, Aggregate: &catalog.Aggregate{Fields: fields}}
}

func field(name, typ string) catalog.Field {
	t, err := catalog.ParseTypeRef(typ)
	if err != nil {
		panic(err)
	}
	return catalog.Field{Name: name, Type: t}
}

func offsets(l TypeLayout) []int {
	out := make([]int, len(l.Fields))
	for i, f := range l.Fields {
		out[i] = f.Offset
	}
	return out
}

func embedded(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.Embedded()
	if err != nil {
		t.Fatalf("embedded catalog: %v", err)
	}
	return cat
}

func TestMixedScalarsPadToEight(t *testing.T) {
	src := mapSource{"S": structEntry("S", field("a", "i32"), field("b", "i8"), field("c", "i64"))}
	for _, target := range []Target{WindowsAMD64(), Windows386(), WindowsARM64()} {
		l, err := New(target, src).LayoutNamed("S")
		if err != nil {
			t.Fatalf("%s: %v", target.Profile, err)
		}
		if got := offsets(l); !reflect.DeepEqual(got, []int{0, 4, 8}) {
			t.Fatalf("%s: offsets = %v, want [0 4 8]", target.Profile, got)
		}
		if l.Size != 16 || l.Align != 8 {
			t.Fatalf("%s: size/align = %d/%d, want 16/8", target.Profile, l.Size, l.Align)
		}
		if l.Fields[2].Pad != 3 || l.Fields[2].Raw {
			t.Fatalf("%s: int64 field pad=%d raw=%v", target.Profile, l.Fields[2].Pad, l.Fields[2].Raw)
		}
	}
}

func TestGoAlignmentOn386(t *testing.T) {
	src := mapSource{"S": structEntry("S", field("a", "i32"), field("c", "i64"))}
	l, err := New(Windows386(), src).LayoutNamed("S")
	if err != nil {
		t.Fatal(err)
	}
	// Go would put the int64 at 4 on 386; explicit padding moves it to 8.
	if l.Fields[1].Offset != 8 || l.Fields[1].Pad != 4 || l.GoAlign != 4 || l.Align != 8 {
		t.Fatalf("unexpected layout %+v", l)
	}
}

func TestDocumentedSizes(t *testing.T) {
	cat := embedded(t)
	cases := []struct {
		name    string
		profile Target
		size    int
	}{
		{"WINDOWINFO", WindowsAMD64(), 60},
		{"WINDOWINFO", Windows386(), 60},
		{"WINDOWINFO", WindowsARM64(), 60},
		{"SECURITY_ATTRIBUTES", WindowsAMD64(), 24},
		{"SECURITY_ATTRIBUTES", Windows386(), 12},
		{"SYSTEM_INFO", WindowsAMD64(), 48},
		{"SYSTEM_INFO", Windows386(), 36},
		{"GUITHREADINFO", Windows386(), 48},
		{"MEMORYSTATUSEX", Windows386(), 64},
		{"BITMAPFILEHEADER", WindowsAMD64(), 14},
	}
	for _, tc := range cases {
		l, err := New(tc.profile, cat).LayoutNamed(tc.name)
		if err != nil {
			t.Fatalf("%s on %s: %v", tc.name, tc.profile.Profile, err)
		}
		if l.Size != tc.size {
			t.Fatalf("%s on %s: size %d, want %d", tc.name, tc.profile.Profile, l.Size, tc.size)
		}
	}
}

func TestWindowInfoOffsets(t *testing.T) {
	l, err := New(WindowsAMD64(), embedded(t)).LayoutNamed("WINDOWINFO")
	if err != nil {
		t.Fatal(err)
	}
	want := []int{0, 4, 20, 36, 40, 44, 48, 52, 56, 58}
	if got := offsets(l); !reflect.DeepEqual(got, want) {
		t.Fatalf("offsets = %v, want %v", got, want)
	}
	if l.TailPad != 0 {
		t.Fatalf("tail pad = %d", l.TailPad)
	}
}

func TestPackedFieldsRenderRaw(t *testing.T) {
	l, err := New(WindowsAMD64(), embedded(t)).LayoutNamed("BITMAPFILEHEADER")
	if err != nil {
		t.Fatal(err)
	}
	if got := offsets(l); !reflect.DeepEqual(got, []int{0, 2, 6, 8, 10}) {
		t.Fatalf("offsets = %v", got)
	}
	raw := []bool{}
	for _, f := range l.Fields {
		raw = append(raw, f.Raw)
	}
	if !reflect.DeepEqual(raw, []bool{false, true, false, false, true}) {
		t.Fatalf("raw = %v", raw)
	}
	if l.Align != 2 || l.GoAlign != 2 {
		t.Fatalf("align = %d, go align = %d", l.Align, l.GoAlign)
	}
}

func TestUnionLayout(t *testing.T) {
	cat := embedded(t)
	l, err := New(Windows386(), cat).LayoutNamed("LARGE_INTEGER")
	if err != nil {
		t.Fatal(err)
	}
	if !l.Union || l.Size != 8 || l.Align != 8 || l.GoAlign != 4 {
		t.Fatalf("unexpected union layout %+v", l)
	}
	for _, f := range l.Fields {
		if f.Offset != 0 {
			t.Fatalf("union member %s at %d", f.Name, f.Offset)
		}
	}
}

func TestRecursiveValueType(t *testing.T) {
	src := mapSource{
		"A": structEntry("A", field("b", "B")),
		"B": structEntry("B", field("n", "u32"), field("a", "[2]A")),
	}
	_, err := New(WindowsAMD64(), src).LayoutNamed("A")
	var le *LayoutError
	if !errors.As(err, &le) || le.Kind != LayoutErrRecursiveUnsized {
		t.Fatalf("expected recursive layout error, got %v", err)
	}
	if !reflect.DeepEqual(le.Cycle, []string{"A", "B", "A"}) {
		t.Fatalf("cycle = %v", le.Cycle)
	}
}

func TestDocumentedSizeMismatch(t *testing.T) {
	s := structEntry("S", field("a", "u32"), field("b", "u32"))
	s.Aggregate.Sizes = map[string]int{"windows-amd64": 12}
	_, err := New(WindowsAMD64(), mapSource{"S": s}).LayoutNamed("S")
	var le *LayoutError
	if !errors.As(err, &le) || le.Kind != LayoutErrDocumentedSize || le.Got != 8 || le.Want != 12 {
		t.Fatalf("expected documented size error, got %v", err)
	}
	if le.Code() != diag.LayDocumentedSize {
		t.Fatalf("code = %v", le.Code())
	}
}

func TestOversizedArray(t *testing.T) {
	src := mapSource{"Huge": structEntry("Huge", field("a", "[1048576][1048576]u64"))}
	_, err := New(Windows386(), src).LayoutNamed("Huge")
	var le *LayoutError
	if !errors.As(err, &le) || le.Kind != LayoutErrTooLarge || le.Code() != diag.LayTooLarge {
		t.Fatalf("expected size limit error, got %v", err)
	}
}

func TestLayoutIsIndependentOfQueryOrder(t *testing.T) {
	cat := embedded(t)
	a := New(WindowsAMD64(), cat)
	b := New(WindowsAMD64(), cat)
	if _, err := a.LayoutNamed("RECT"); err != nil {
		t.Fatal(err)
	}
	la, errA := a.LayoutNamed("WINDOWPLACEMENT")
	lb, errB := b.LayoutNamed("WINDOWPLACEMENT")
	if errA != nil || errB != nil || !reflect.DeepEqual(la, lb) {
		t.Fatalf("layout depends on cache state: %+v vs %+v", la, lb)
	}
}

func TestVerifyEmbeddedCatalog(t *testing.T) {
	bag := diag.NewBag(50)
	if n := Verify(embedded(t), diag.BagReporter{Bag: bag}); n != 0 {
		t.Fatalf("%d layout problems: %v", n, bag.Items())
	}
}
