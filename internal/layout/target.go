package layout

import "winapigen/internal/catalog"

// Target is the ABI profile layouts are computed for, plus the alignment rules
// Go itself applies on the matching GOARCH.
type Target struct {
	Profile      string // e.g. "windows-amd64"
	GOARCH       string
	PtrSize      int
	PtrAlign     int
	Int64Align   int
	GoInt64Align int
	DefaultPack  int
	StructPass   catalog.StructPass
	FloatArgs    bool
}

func TargetFor(p catalog.Profile) Target {
	return Target{
		Profile:      p.Name,
		GOARCH:       p.GOARCH,
		PtrSize:      p.PtrSize,
		PtrAlign:     p.PtrAlign,
		Int64Align:   p.Int64Align,
		GoInt64Align: p.GoInt64Align,
		DefaultPack:  p.DefaultPack,
		StructPass:   p.StructPass,
		FloatArgs:    p.FloatArgs,
	}
}

func WindowsAMD64() Target {
	return Target{
		Profile: "windows-amd64", GOARCH: "amd64",
		PtrSize: 8, PtrAlign: 8, Int64Align: 8, GoInt64Align: 8,
		DefaultPack: 8, StructPass: catalog.PassWin64, FloatArgs: true,
	}
}

func Windows386() Target {
	return Target{
		Profile: "windows-386", GOARCH: "386",
		PtrSize: 4, PtrAlign: 4, Int64Align: 8, GoInt64Align: 4,
		DefaultPack: 8, StructPass: catalog.PassStack, FloatArgs: true,
	}
}

func WindowsARM64() Target {
	return Target{
		Profile: "windows-arm64", GOARCH: "arm64",
		PtrSize: 8, PtrAlign: 8, Int64Align: 8, GoInt64Align: 8,
		DefaultPack: 8, StructPass: catalog.PassAAPCS64, FloatArgs: false,
	}
}
