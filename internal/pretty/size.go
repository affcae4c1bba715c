package pretty

import (
	"fmt"
	"math/big"
	"strings"
	"unicode"
)

var sizeUnits = []struct {
	name  string
	bytes int64
}{
	{"GiB", 1 << 30},
	{"MiB", 1 << 20},
	{"KiB", 1 << 10},
}

// Size implements a String() formatter that picks the largest binary unit
// the value reaches.
type Size int64

func (s Size) String() string {
	n := int64(s)
	abs := n
	if abs < 0 {
		abs = -abs
	}
	for _, u := range sizeUnits {
		if abs < u.bytes {
			continue
		}
		v := new(big.Rat).SetFrac64(n, u.bytes).FloatString(2)
		v = strings.TrimRight(strings.TrimRight(v, "0"), ".")
		return v + " " + u.name
	}
	return fmt.Sprintf("%d B", n)
}

// ParseSize takes a string like "1.5 MiB" or "512k" and returns the number
// of bytes. Units are binary and case-insensitive; a bare number is bytes.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	splitPos := len(s)
	for pos, ch := range s {
		if !unicode.IsNumber(ch) && ch != '.' {
			splitPos = pos
			break
		}
	}

	number, unit := s[:splitPos], s[splitPos:]
	n, ok := new(big.Rat).SetString(number)
	if !ok {
		return 0, fmt.Errorf("failed to parse size: %q", s)
	}

	var mul int64
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "", "b":
		mul = 1
	case "k", "kb", "kib":
		mul = 1 << 10
	case "m", "mb", "mib":
		mul = 1 << 20
	case "g", "gb", "gib":
		mul = 1 << 30
	default:
		return 0, fmt.Errorf("failed to parse size unit: %q", s)
	}

	n.Mul(n, new(big.Rat).SetInt64(mul))
	return new(big.Int).Div(n.Num(), n.Denom()).Int64(), nil
}
