package export

import (
	"strings"
	"unicode"
)

// naturalLess orders strings the way a human reads reference designators:
// digit runs compare numerically, so R2 sorts before R10.
func naturalLess(a, b string) bool {
	ai, bi := 0, 0
	for ai < len(a) && bi < len(b) {
		ar, br := a[ai], b[bi]
		aDigit, bDigit := isDigit(ar), isDigit(br)

		if aDigit && bDigit {
			aEnd, bEnd := ai, bi
			for aEnd < len(a) && isDigit(a[aEnd]) {
				aEnd++
			}
			for bEnd < len(b) && isDigit(b[bEnd]) {
				bEnd++
			}
			aNum := strings.TrimLeft(a[ai:aEnd], "0")
			bNum := strings.TrimLeft(b[bi:bEnd], "0")
			if len(aNum) != len(bNum) {
				return len(aNum) < len(bNum)
			}
			if aNum != bNum {
				return aNum < bNum
			}
			ai, bi = aEnd, bEnd
			continue
		}
		if aDigit != bDigit {
			// digits sort before letters, matching numeric-aware ordering
			return aDigit
		}

		al, bl := lowerByte(ar), lowerByte(br)
		if al != bl {
			return al < bl
		}
		ai++
		bi++
	}
	return len(a)-ai < len(b)-bi
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func lowerByte(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + ('a' - 'A')
	}
	return c
}

// sanitizeComponent makes text safe as a single path component, replacing
// characters that are reserved on common filesystems. If nothing survives,
// fallback is used.
func sanitizeComponent(text, fallback string) string {
	candidate := strings.TrimSpace(text)
	if candidate == "" {
		return fallback
	}
	var sb strings.Builder
	for _, r := range candidate {
		switch {
		case strings.ContainsRune(`\/:*?"<>|`, r), unicode.IsControl(r):
			sb.WriteByte('_')
		default:
			sb.WriteRune(r)
		}
	}
	cleaned := strings.Trim(sb.String(), " .")
	if cleaned == "" {
		return fallback
	}
	return cleaned
}
