package catalog

import (
	"bytes"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"winapigen/internal/diag"
)

type fileData struct {
	Version   string         `toml:"version"`
	Profiles  []profileData  `toml:"profile"`
	Aliases   []aliasData    `toml:"alias"`
	Structs   []aggData      `toml:"struct"`
	Unions    []aggData      `toml:"union"`
	Callbacks []callbackData `toml:"callback"`
	Functions []functionData `toml:"function"`
	Constants []constantData `toml:"constant"`
}

type profileData struct {
	Name         string `toml:"name"`
	GOARCH       string `toml:"goarch"`
	PtrSize      int    `toml:"ptr_size"`
	PtrAlign     int    `toml:"ptr_align"`
	Int64Align   int    `toml:"int64_align"`
	GoInt64Align int    `toml:"go_int64_align"`
	DefaultPack  int    `toml:"default_pack"`
	StructPass   string `toml:"struct_pass"`
	FloatArgs    bool   `toml:"float_args"`
}

type aliasData struct {
	Name string `toml:"name"`
	Type string `toml:"type"`
	Doc  string `toml:"doc"`
}

type fieldData struct {
	Name string `toml:"name"`
	Type string `toml:"type"`
}

type aggData struct {
	Name      string         `toml:"name"`
	Doc       string         `toml:"doc"`
	Pack      int            `toml:"pack"`
	SizeField string         `toml:"size_field"`
	Sizes     map[string]int `toml:"sizes"`
	Fields    []fieldData    `toml:"fields"`
}

type bufferData struct {
	Kind          string   `toml:"kind"`
	SizeParam     string   `toml:"size_param"`
	Capacity      any      `toml:"capacity"` // integer or constant name
	QueryFn       string   `toml:"query_fn"`
	QueryArgs     []string `toml:"query_args"`
	IncludesNul   bool     `toml:"includes_nul"`
	ReturnsLength bool     `toml:"returns_length"`
}

type paramData struct {
	Name      string      `toml:"name"`
	Type      string      `toml:"type"`
	Dir       string      `toml:"dir"`
	Optional  bool        `toml:"optional"`
	Ownership string      `toml:"ownership"`
	Release   string      `toml:"release"`
	Retained  bool        `toml:"retained"`
	SizeOf    string      `toml:"size_of"`
	Buffer    *bufferData `toml:"buffer"`
}

type callbackData struct {
	Name     string      `toml:"name"`
	Doc      string      `toml:"doc"`
	CallConv string      `toml:"callconv"`
	Returns  string      `toml:"returns"`
	Params   []paramData `toml:"params"`
}

type functionData struct {
	Name      string      `toml:"name"`
	Doc       string      `toml:"doc"`
	DLL       string      `toml:"dll"`
	CallConv  string      `toml:"callconv"`
	Returns   string      `toml:"returns"`
	Failure   string      `toml:"failure"`
	LastError string      `toml:"last_error"`
	Release   string      `toml:"release"`
	Arch      []string    `toml:"arch"`
	Params    []paramData `toml:"params"`
}

type constantData struct {
	Name  string `toml:"name"`
	Type  string `toml:"type"`
	Value any    `toml:"value"`
	Doc   string `toml:"doc"`
}

// Source is one catalog data file.
type Source struct {
	Name string
	Data []byte
}

// ReadSources reads every *.toml file under dir, sorted by name.
func ReadSources(fsys fs.FS, dir string) ([]Source, error) {
	matches, err := fs.Glob(fsys, path.Join(dir, "*.toml"))
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no catalog files in %q", dir)
	}
	sort.Strings(matches)
	out := make([]Source, 0, len(matches))
	for _, name := range matches {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, err
		}
		out = append(out, Source{Name: path.Base(name), Data: data})
	}
	return out, nil
}

// decoded is the raw result of parsing all sources, before validation.
type decoded struct {
	version  string
	profiles []Profile
	entries  []*Entry
}

func decodeSources(sources []Source, bag *diag.Bag) decoded {
	r := diag.BagReporter{Bag: bag}
	var out decoded
	for _, src := range sources {
		var fd fileData
		md, err := toml.NewDecoder(bytes.NewReader(src.Data)).Decode(&fd)
		if err != nil {
			diag.ReportError(r, diag.CatDecode, src.Name, err.Error()).Emit()
			continue
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, k := range undecoded {
				keys = append(keys, k.String())
			}
			diag.ReportError(r, diag.CatDecode, src.Name, "unknown keys: "+strings.Join(keys, ", ")).Emit()
		}
		if fd.Version != "" {
			if out.version != "" && out.version != fd.Version {
				diag.ReportError(r, diag.CatDecode, src.Name,
					fmt.Sprintf("catalog version %q conflicts with %q", fd.Version, out.version)).Emit()
			}
			out.version = fd.Version
		}
		for _, p := range fd.Profiles {
			out.profiles = append(out.profiles, Profile{
				Name:         p.Name,
				GOARCH:       p.GOARCH,
				PtrSize:      p.PtrSize,
				PtrAlign:     p.PtrAlign,
				Int64Align:   p.Int64Align,
				GoInt64Align: p.GoInt64Align,
				DefaultPack:  p.DefaultPack,
				StructPass:   StructPass(p.StructPass),
				FloatArgs:    p.FloatArgs,
			})
		}
		b := builder{file: src.Name, r: r}
		for _, a := range fd.Aliases {
			out.entries = append(out.entries, b.alias(a))
		}
		for _, s := range fd.Structs {
			out.entries = append(out.entries, b.aggregate(KindStruct, s))
		}
		for _, u := range fd.Unions {
			out.entries = append(out.entries, b.aggregate(KindUnion, u))
		}
		for _, c := range fd.Callbacks {
			out.entries = append(out.entries, b.callback(c))
		}
		for _, f := range fd.Functions {
			out.entries = append(out.entries, b.function(f))
		}
		for _, c := range fd.Constants {
			out.entries = append(out.entries, b.constant(c))
		}
	}
	if out.version == "" {
		diag.ReportError(r, diag.CatDecode, "", "catalog version is not set").Emit()
	}
	return out
}

type builder struct {
	file string
	r    diag.Reporter
}

func (b builder) typeRef(subject, what, s string) TypeRef {
	t, err := ParseTypeRef(s)
	if err != nil {
		diag.ReportError(b.r, diag.CatBadTypeRef, subject, what+": "+err.Error()).Emit()
		return PrimType(PrimVoid)
	}
	return t
}

// returnType treats an omitted return type as void.
func (b builder) returnType(subject, s string) TypeRef {
	if s == "" {
		return PrimType(PrimVoid)
	}
	return b.typeRef(subject, "return type", s)
}

func (b builder) alias(a aliasData) *Entry {
	return &Entry{
		Name:  a.Name,
		Kind:  KindAlias,
		Doc:   a.Doc,
		File:  b.file,
		Alias: &Alias{Target: b.typeRef(a.Name, "alias target", a.Type)},
	}
}

func (b builder) aggregate(kind Kind, s aggData) *Entry {
	agg := &Aggregate{
		Pack:      s.Pack,
		SizeField: s.SizeField,
		Sizes:     s.Sizes,
		Fields:    make([]Field, 0, len(s.Fields)),
	}
	for _, f := range s.Fields {
		agg.Fields = append(agg.Fields, Field{
			Name: f.Name,
			Type: b.typeRef(s.Name, "field "+f.Name, f.Type),
		})
	}
	return &Entry{Name: s.Name, Kind: kind, Doc: s.Doc, File: b.file, Aggregate: agg}
}

func (b builder) params(subject string, ps []paramData) []Param {
	out := make([]Param, 0, len(ps))
	for _, p := range ps {
		param := Param{
			Name:      p.Name,
			Dir:       Dir(p.Dir),
			Type:      b.typeRef(subject, "parameter "+p.Name, p.Type),
			Optional:  p.Optional,
			Ownership: Ownership(p.Ownership),
			Release:   p.Release,
			Retained:  p.Retained,
			SizeOf:    p.SizeOf,
		}
		if param.Dir == "" {
			param.Dir = DirIn
		}
		if param.Ownership == "" {
			param.Ownership = Borrowed
			if p.Release != "" {
				param.Ownership = CallerFrees
			}
		}
		if bd := p.Buffer; bd != nil {
			param.Buffer = &Buffer{
				Kind:          BufferKind(bd.Kind),
				SizeParam:     bd.SizeParam,
				QueryFn:       bd.QueryFn,
				QueryArgs:     bd.QueryArgs,
				IncludesNul:   bd.IncludesNul,
				ReturnsLength: bd.ReturnsLength,
			}
			switch c := bd.Capacity.(type) {
			case nil:
			case int64:
				param.Buffer.Capacity = int(c)
			case string:
				param.Buffer.CapacityConst = c
			default:
				diag.ReportError(b.r, diag.CatBadBuffer, subject,
					fmt.Sprintf("parameter %s: capacity must be an integer or a constant name, got %T", p.Name, c)).Emit()
			}
		}
		out = append(out, param)
	}
	return out
}

func (b builder) callback(c callbackData) *Entry {
	cb := &Callback{
		CallConv: CallConv(c.CallConv),
		Params:   b.params(c.Name, c.Params),
		Returns:  b.returnType(c.Name, c.Returns),
	}
	if cb.CallConv == "" {
		cb.CallConv = Stdcall
	}
	return &Entry{Name: c.Name, Kind: KindCallback, Doc: c.Doc, File: b.file, Callback: cb}
}

func (b builder) function(f functionData) *Entry {
	fn := &Function{
		DLL:       strings.ToLower(f.DLL),
		CallConv:  CallConv(f.CallConv),
		Params:    b.params(f.Name, f.Params),
		Returns:   b.returnType(f.Name, f.Returns),
		Failure:   Failure(f.Failure),
		LastError: LastErrorMode(f.LastError),
		Release:   f.Release,
		Arch:      f.Arch,
	}
	if fn.CallConv == "" {
		fn.CallConv = Stdcall
	}
	if fn.Failure == "" {
		fn.Failure = FailNone
	}
	return &Entry{Name: f.Name, Kind: KindFunction, Doc: f.Doc, File: b.file, Function: fn}
}

func (b builder) constant(c constantData) *Entry {
	k := &Constant{Type: b.typeRef(c.Name, "constant type", c.Type)}
	switch v := c.Value.(type) {
	case int64:
		k.Form = ConstInt
		k.Int = v
	case string:
		k.Form = ConstString
		k.Text = v
		if k.Type.Kind == TNamed && k.Type.Name == "GUID" {
			k.Form = ConstGUID
			if _, err := ParseGUID(v); err != nil {
				diag.ReportError(b.r, diag.CatBadConstant, c.Name, err.Error()).Emit()
			}
		}
	default:
		diag.ReportError(b.r, diag.CatBadConstant, c.Name,
			fmt.Sprintf("value must be an integer or a string, got %T", c.Value)).Emit()
	}
	return &Entry{Name: c.Name, Kind: KindConstant, Doc: c.Doc, File: b.file, Constant: k}
}
