package diag

import (
	"fmt"
)

type Code uint16

const (
	UnknownCode Code = 0

	// Catalog construction
	CatInfo              Code = 1000
	CatDecode            Code = 1001
	CatDuplicateName     Code = 1002
	CatBadTypeRef        Code = 1003
	CatDanglingRef       Code = 1004
	CatCycle             Code = 1005
	CatBadBuffer         Code = 1006
	CatBadEntry          Code = 1007
	CatSizeMismatch      Code = 1008
	CatBadProfile        Code = 1009
	CatBadConstant       Code = 1010
	CatSnapshotStale     Code = 1011
	CatUnknownConvention Code = 1012

	// Resolution
	ResInfo          Code = 2000
	ResUnknownSymbol Code = 2001
	ResEmptyRequest  Code = 2002
	ResDuplicate     Code = 2003

	// Layout
	LayInfo           Code = 3000
	LayRecursive      Code = 3001
	LayUnsized        Code = 3002
	LayBadPack        Code = 3003
	LayDocumentedSize Code = 3004
	LayUnknownProfile Code = 3005
	LayTooLarge       Code = 3006

	// Marshalling
	MarInfo             Code = 4000
	MarUnsupportedParam Code = 4001
	MarUnsupportedRet   Code = 4002
	MarFloatArgument    Code = 4003
	MarCallbackSlot     Code = 4004
	MarBufferContract   Code = 4005
	MarOwnership        Code = 4006

	// Emission
	EmtInfo          Code = 5000
	EmtInconsistent  Code = 5001
	EmtFormat        Code = 5002
	EmtNameCollision Code = 5003

	// Output
	IOInfo      Code = 6000
	IOWrite     Code = 6001
	IORename    Code = 6002
	IOCleanup   Code = 6003
	IOState     Code = 6004
	IOManifest  Code = 6005
	IOBadOutput Code = 6006
)

var codeDescription = map[Code]string{
	UnknownCode: "Unknown error",

	CatInfo:              "Catalog information",
	CatDecode:            "Catalog data cannot be decoded",
	CatDuplicateName:     "Duplicate catalog entry",
	CatBadTypeRef:        "Malformed type reference",
	CatDanglingRef:       "Reference to a missing catalog entry",
	CatCycle:             "Cycle in the catalog reference graph",
	CatBadBuffer:         "Malformed buffer contract",
	CatBadEntry:          "Malformed catalog entry",
	CatSizeMismatch:      "Documented size does not match computed layout",
	CatBadProfile:        "Malformed ABI profile",
	CatBadConstant:       "Malformed constant value",
	CatSnapshotStale:     "Catalog snapshot does not match sources",
	CatUnknownConvention: "Unknown calling convention",

	ResInfo:          "Resolution information",
	ResUnknownSymbol: "Unknown symbol",
	ResEmptyRequest:  "No symbols requested",
	ResDuplicate:     "Symbol requested more than once",

	LayInfo:           "Layout information",
	LayRecursive:      "Recursive by-value type has no finite size",
	LayUnsized:        "Type has no native size",
	LayBadPack:        "Invalid packing value",
	LayDocumentedSize: "Layout differs from documented native size",
	LayUnknownProfile: "Unknown ABI profile",
	LayTooLarge:       "Type exceeds the maximum native size",

	MarInfo:             "Marshalling information",
	MarUnsupportedParam: "Parameter cannot be marshalled",
	MarUnsupportedRet:   "Return value cannot be marshalled",
	MarFloatArgument:    "Floating point argument not supported on this profile",
	MarCallbackSlot:     "Callback argument does not fit a native slot",
	MarBufferContract:   "Buffer contract cannot be honoured",
	MarOwnership:        "Ownership tag without release function",

	EmtInfo:          "Emission information",
	EmtInconsistent:  "Plan cannot be rendered",
	EmtFormat:        "Generated source is not valid Go",
	EmtNameCollision: "Generated identifiers collide",

	IOInfo:      "Output information",
	IOWrite:     "Cannot write generated file",
	IORename:    "Cannot move generated files into place",
	IOCleanup:   "Cannot remove stale generated file",
	IOState:     "Cannot read or write generation state",
	IOManifest:  "Cannot read project manifest",
	IOBadOutput: "Invalid output location",
}

func (c Code) ID() string {
	switch ic := int(c); {
	case ic >= 1000 && ic < 2000:
		return fmt.Sprintf("CAT%04d", ic)
	case ic >= 2000 && ic < 3000:
		return fmt.Sprintf("RES%04d", ic)
	case ic >= 3000 && ic < 4000:
		return fmt.Sprintf("LAY%04d", ic)
	case ic >= 4000 && ic < 5000:
		return fmt.Sprintf("MAR%04d", ic)
	case ic >= 5000 && ic < 6000:
		return fmt.Sprintf("EMT%04d", ic)
	case ic >= 6000 && ic < 7000:
		return fmt.Sprintf("IO%04d", ic)
	}
	return "E0000"
}

func (c Code) Title() string {
	desc, ok := codeDescription[c]
	if !ok {
		return codeDescription[Code(0)]
	}
	return desc
}

func (c Code) String() string {
	return fmt.Sprintf("[%s]: %s", c.ID(), c.Title())
}
