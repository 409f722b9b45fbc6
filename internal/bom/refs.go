package bom

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// refRange matches a hyphenated reference range with a shared alphabetic
// prefix, e.g. "R1-R3" or "C01-C12".
var refRange = regexp.MustCompile(`^([A-Za-z]+)(\d+)-([A-Za-z]+)(\d+)$`)

// ExpandReferences expands a raw reference-designator expression into the
// discrete references it implies.
//
//	"R1"        -> [R1]
//	"R1,R5,R7"  -> [R1 R5 R7]
//	"R1-R3"     -> [R1 R2 R3]
//	"R1-R3,C5"  -> [R1 R2 R3 C5]
//
// Tokens that look like a range but do not share a prefix, or whose bounds
// are reversed, are kept as literal references rather than rejected.
// An empty expression expands to nothing.
func ExpandReferences(expr string) []string {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil
	}

	var refs []string
	for _, token := range strings.Split(expr, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		refs = append(refs, expandToken(token)...)
	}
	return refs
}

func expandToken(token string) []string {
	m := refRange.FindStringSubmatch(token)
	if m == nil {
		return []string{token}
	}

	prefix, lo, hi := m[1], m[2], m[4]
	if !strings.EqualFold(prefix, m[3]) {
		return []string{token}
	}

	start, err1 := strconv.Atoi(lo)
	end, err2 := strconv.Atoi(hi)
	if err1 != nil || err2 != nil || start > end {
		return []string{token}
	}

	// Preserve zero padding when both bounds use the same width ("R01-R03").
	width := 0
	if len(lo) == len(hi) && strings.HasPrefix(lo, "0") {
		width = len(lo)
	}

	refs := make([]string, 0, end-start+1)
	for n := start; n <= end; n++ {
		if width > 0 {
			refs = append(refs, fmt.Sprintf("%s%0*d", prefix, width, n))
		} else {
			refs = append(refs, fmt.Sprintf("%s%d", prefix, n))
		}
	}
	return refs
}
