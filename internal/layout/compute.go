package layout

import (
	"fortio.org/safecast"

	"winapigen/internal/catalog"
)

func (e *LayoutEngine) computeLayout(t catalog.TypeRef, state *layoutState) (TypeLayout, *LayoutError) {
	switch t.Kind {
	case catalog.TPrim:
		return e.primLayout(t.Prim)
	case catalog.TPointer, catalog.TString:
		return e.ptrLayout(), nil
	case catalog.TArray:
		return e.arrayFixedLayout(t, state)
	case catalog.TNamed:
		entry, ok := e.Types.Lookup(t.Name)
		if !ok {
			return TypeLayout{Size: 0, Align: 1}, &LayoutError{Kind: LayoutErrUnknown, Type: t.Name, Profile: e.Target.Profile}
		}
		switch entry.Kind {
		case catalog.KindAlias:
			return e.layoutOf(entry.Alias.Target, state)
		case catalog.KindCallback:
			return e.ptrLayout(), nil
		case catalog.KindStruct:
			return e.structLayout(entry, state)
		case catalog.KindUnion:
			return e.unionLayout(entry, state)
		}
		return TypeLayout{Size: 0, Align: 1}, &LayoutError{Kind: LayoutErrNotAType, Type: t.Name, Profile: e.Target.Profile}
	}
	return TypeLayout{Size: 0, Align: 1}, &LayoutError{Kind: LayoutErrUnsized, Type: t.String(), Profile: e.Target.Profile}
}

func (e *LayoutEngine) primLayout(p catalog.Prim) (TypeLayout, *LayoutError) {
	switch {
	case p == catalog.PrimVoid:
		return TypeLayout{Size: 0, Align: 1}, &LayoutError{Kind: LayoutErrUnsized, Type: "void", Profile: e.Target.Profile}
	case p.PointerSized():
		l := e.ptrLayout()
		l.GoAlign = e.Target.PtrSize
		return l, nil
	case p.Size() == 8:
		return TypeLayout{Size: 8, Align: e.Target.Int64Align, GoAlign: e.Target.GoInt64Align}, nil
	}
	return scalarLayoutBytes(p.Size()), nil
}

func (e *LayoutEngine) ptrLayout() TypeLayout {
	ptrSize := e.Target.PtrSize
	ptrAlign := e.Target.PtrAlign
	if ptrSize <= 0 {
		ptrSize = 8
	}
	if ptrAlign <= 0 {
		ptrAlign = ptrSize
	}
	return TypeLayout{Size: ptrSize, Align: ptrAlign, GoAlign: ptrSize}
}

func scalarLayoutBytes(size int) TypeLayout {
	if size <= 0 {
		return TypeLayout{Size: 0, Align: 1, GoAlign: 1}
	}
	return TypeLayout{Size: size, Align: size, GoAlign: size}
}

// MaxTypeSize bounds any native type; nothing larger is addressable on the
// 32-bit profiles.
const MaxTypeSize = 1<<31 - 1

func roundUp(n, align int) int {
	if align <= 1 {
		return n
	}
	r := n % align
	if r == 0 {
		return n
	}
	return n + (align - r)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func (e *LayoutEngine) arrayFixedLayout(t catalog.TypeRef, state *layoutState) (TypeLayout, *LayoutError) {
	elem, err := e.layoutOf(*t.Elem, state)
	if err != nil {
		return TypeLayout{Size: 0, Align: 1}, err
	}
	elemAlign := maxInt(elem.Align, 1)
	stride := roundUp(elem.Size, elemAlign)
	n, convErr := safecast.Conv[int](t.Len)
	if convErr != nil || n < 0 {
		return TypeLayout{Size: 0, Align: 1}, &LayoutError{Kind: LayoutErrLengthConversion, Type: t.String(), Profile: e.Target.Profile, Err: convErr}
	}
	if n > 0 && stride > MaxTypeSize/n {
		return TypeLayout{Size: 0, Align: 1}, &LayoutError{Kind: LayoutErrTooLarge, Type: t.String(), Profile: e.Target.Profile}
	}
	return TypeLayout{
		Size:    stride * n,
		Align:   elemAlign,
		GoAlign: maxInt(elem.GoAlign, 1),
	}, nil
}

func (e *LayoutEngine) effectivePack(agg *catalog.Aggregate) int {
	if agg.Pack > 0 {
		return agg.Pack
	}
	if e.Target.DefaultPack > 0 {
		return e.Target.DefaultPack
	}
	return 8
}

// structLayout places fields at the smallest offset satisfying
// min(natural alignment, pack), then works out how Go reaches the same offsets
// with explicit padding.
func (e *LayoutEngine) structLayout(entry *catalog.Entry, state *layoutState) (TypeLayout, *LayoutError) {
	agg := entry.Aggregate
	pack := e.effectivePack(agg)
	out := TypeLayout{Pack: pack, Align: 1, GoAlign: 1, Fields: make([]FieldLayout, len(agg.Fields))}

	size := 0
	for i, f := range agg.Fields {
		fl, err := e.layoutOf(f.Type, state)
		if err != nil {
			return TypeLayout{Size: 0, Align: 1}, err
		}
		align := min(maxInt(fl.Align, 1), pack)
		offset := roundUp(size, align)
		out.Fields[i] = FieldLayout{
			Name:    f.Name,
			Type:    f.Type,
			Offset:  offset,
			Size:    fl.Size,
			Align:   align,
			GoAlign: maxInt(fl.GoAlign, 1),
		}
		size = offset + fl.Size
		out.Align = maxInt(out.Align, align)
	}
	out.Size = roundUp(size, out.Align)
	if out.Size > MaxTypeSize {
		return TypeLayout{Size: 0, Align: 1}, &LayoutError{Kind: LayoutErrTooLarge, Type: entry.Name, Profile: e.Target.Profile}
	}

	goCursor := 0
	for i := range out.Fields {
		f := &out.Fields[i]
		if f.GoAlign > f.Align || f.Offset%f.GoAlign != 0 {
			f.Raw = true
			f.GoAlign = 1
		}
		f.Pad = f.Offset - goCursor
		goCursor = f.Offset + f.Size
		out.GoAlign = maxInt(out.GoAlign, f.GoAlign)
	}
	out.TailPad = out.Size - goCursor

	if err := e.checkDocumented(entry, out.Size); err != nil {
		return out, err
	}
	return out, nil
}

// unionLayout overlays every member at offset 0. Go renders unions as an
// aligned byte array with accessors.
func (e *LayoutEngine) unionLayout(entry *catalog.Entry, state *layoutState) (TypeLayout, *LayoutError) {
	agg := entry.Aggregate
	pack := e.effectivePack(agg)
	out := TypeLayout{Union: true, Pack: pack, Align: 1, Fields: make([]FieldLayout, len(agg.Fields))}

	size := 0
	for i, f := range agg.Fields {
		fl, err := e.layoutOf(f.Type, state)
		if err != nil {
			return TypeLayout{Size: 0, Align: 1}, err
		}
		align := min(maxInt(fl.Align, 1), pack)
		out.Fields[i] = FieldLayout{
			Name:    f.Name,
			Type:    f.Type,
			Size:    fl.Size,
			Align:   align,
			GoAlign: maxInt(fl.GoAlign, 1),
		}
		size = maxInt(size, fl.Size)
		out.Align = maxInt(out.Align, align)
	}
	out.Size = roundUp(size, out.Align)
	if out.Size > MaxTypeSize {
		return TypeLayout{Size: 0, Align: 1}, &LayoutError{Kind: LayoutErrTooLarge, Type: entry.Name, Profile: e.Target.Profile}
	}
	out.GoAlign = e.carrierAlign(out.Align)

	if err := e.checkDocumented(entry, out.Size); err != nil {
		return out, err
	}
	return out, nil
}

// carrierAlign is the alignment a zero-length array of the unsigned integer of
// width align gets in Go on this target.
func (e *LayoutEngine) carrierAlign(align int) int {
	if align >= 8 {
		return e.Target.GoInt64Align
	}
	return align
}

func (e *LayoutEngine) checkDocumented(entry *catalog.Entry, size int) *LayoutError {
	want, ok := entry.Aggregate.Sizes[e.Target.Profile]
	if !ok || want == size {
		return nil
	}
	return &LayoutError{
		Kind:    LayoutErrDocumentedSize,
		Type:    entry.Name,
		Profile: e.Target.Profile,
		Want:    want,
		Got:     size,
	}
}
