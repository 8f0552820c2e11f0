package catalog

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// GUIDValue is a parsed registry-format GUID.
type GUIDValue struct {
	Data1 uint32
	Data2 uint16
	Data3 uint16
	Data4 [8]byte
}

// ParseGUID parses "{XXXXXXXX-XXXX-XXXX-XXXX-XXXXXXXXXXXX}"; braces are optional.
func ParseGUID(s string) (GUIDValue, error) {
	var g GUIDValue
	t := strings.TrimSuffix(strings.TrimPrefix(s, "{"), "}")
	parts := strings.Split(t, "-")
	if len(parts) != 5 || len(parts[0]) != 8 || len(parts[1]) != 4 || len(parts[2]) != 4 ||
		len(parts[3]) != 4 || len(parts[4]) != 12 {
		return g, fmt.Errorf("%q is not a GUID", s)
	}
	d1, err := strconv.ParseUint(parts[0], 16, 32)
	if err != nil {
		return g, fmt.Errorf("%q is not a GUID: %w", s, err)
	}
	d2, err := strconv.ParseUint(parts[1], 16, 16)
	if err != nil {
		return g, fmt.Errorf("%q is not a GUID: %w", s, err)
	}
	d3, err := strconv.ParseUint(parts[2], 16, 16)
	if err != nil {
		return g, fmt.Errorf("%q is not a GUID: %w", s, err)
	}
	tail, err := hex.DecodeString(parts[3] + parts[4])
	if err != nil {
		return g, fmt.Errorf("%q is not a GUID: %w", s, err)
	}
	g.Data1 = uint32(d1)
	g.Data2 = uint16(d2)
	g.Data3 = uint16(d3)
	copy(g.Data4[:], tail)
	return g, nil
}
