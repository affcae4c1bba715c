// Package pretty formats values for log output.
package pretty

import "fmt"

// Abbrev shortens s for display. With no ranges, strings longer than 12
// bytes are cut to 12. One range sets both the limit and the cut, two set
// them separately.
func Abbrev(s string, ranges ...int) Abbreviated {
	maxLen, cutTo := 12, 12
	if len(ranges) >= 2 {
		maxLen, cutTo = ranges[0], ranges[1]
	} else if len(ranges) == 1 {
		maxLen, cutTo = ranges[0], ranges[0]
	}
	return Abbreviated{
		Original: s,
		MaxLen:   maxLen,
		CutTo:    cutTo,
	}
}

// Abbreviated is a string that is cut when formatted.
type Abbreviated struct {
	Original string
	MaxLen   int
	CutTo    int
}

func (s Abbreviated) String() string {
	if len(s.Original) > s.MaxLen {
		return fmt.Sprintf("%s... (%s)", s.Original[:s.CutTo], Size(len(s.Original)))
	}
	return s.Original
}
