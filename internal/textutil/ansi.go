// Package textutil implements the small text-transformation components
// shared by the SSH session driver and the job runner: stripping terminal
// control sequences (C1), detecting a device's interactive prompt (C2), and
// cleaning a raw transcript before it is handed to the template scorer (C6).
package textutil

import (
	"strings"
	"unicode/utf8"
)

const (
	esc = 0x1b
	bel = 0x07
)

// FilterANSI removes CSI escape sequences (ESC '[' params* final), the
// designator sequences ESC '(' X / ESC ')' X, the bare BEL byte, and all C0
// control bytes except \t, \n, \r from a chunk of shell output. It is
// applied to every chunk received from the shell before any other
// inspection. Escape sequences are assumed to be intra-chunk, so no state
// is carried across calls.
func FilterANSI(input []byte) string {
	var b strings.Builder
	b.Grow(len(input))

	for i := 0; i < len(input); i++ {
		c := input[i]

		if c == esc && i+1 < len(input) {
			next := input[i+1]
			if next == '[' {
				j := i + 2
				for j < len(input) && isCSIParam(input[j]) {
					j++
				}
				if j < len(input) && isCSIFinal(input[j]) {
					i = j
					continue
				}
				// Malformed/truncated sequence: drop the ESC and '[' only,
				// let the rest be scanned normally.
				i++
				continue
			}
			if (next == '(' || next == ')') && i+2 < len(input) && isDesignator(input[i+2]) {
				i += 2
				continue
			}
		}

		if c == bel {
			continue
		}
		if c < 0x20 && c != '\t' && c != '\n' && c != '\r' {
			continue
		}

		b.WriteByte(c)
	}

	return toValidUTF8(b.String())
}

func isCSIParam(c byte) bool {
	return (c >= '0' && c <= '9') || c == ';' || c == '?'
}

func isCSIFinal(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

func isDesignator(c byte) bool {
	switch c {
	case 'A', 'B', '0', '1', '2':
		return true
	default:
		return false
	}
}

// toValidUTF8 replaces invalid UTF-8 sequences with the replacement
// character rather than treating them as fatal.
func toValidUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, "�")
}
