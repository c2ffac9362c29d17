package textutil

import "strings"

// FallbackPrompt is used when prompt detection exhausts all attempts.
const FallbackPrompt = "#"

const maxPromptLen = 50

var promptEndings = []byte{'#', '>', '$', '%', ':', ']', ')', '|'}

// DetectPrompt inspects a cleaned buffer (already passed through FilterANSI)
// from the bottom and returns a candidate prompt token, or "" if none is
// found. A line is a candidate if it is non-empty, at most 50 characters
// after trimming, and ends with one of the recognized prompt-ending
// characters. If the final candidate line is of the form "X X X" (the same
// token repeated, separated by whitespace or the ending character), the
// single repeated token is returned instead of the whole line.
func DetectPrompt(buf string) string {
	lines := strings.Split(buf, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimRight(lines[i], "\r")
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if len(line) > maxPromptLen {
			return ""
		}
		if !hasPromptEnding(line) {
			return ""
		}
		return collapseRepeatedToken(line)
	}
	return ""
}

func hasPromptEnding(line string) bool {
	last := line[len(line)-1]
	for _, e := range promptEndings {
		if last == e {
			return true
		}
	}
	return false
}

// collapseRepeatedToken detects a line of the form "X X X" — the same
// token repeated, separated by whitespace or by the line's own ending
// character — and returns just X. If the line is not a simple repetition,
// it is returned unchanged.
func collapseRepeatedToken(line string) string {
	ending := line[len(line)-1]

	fields := strings.Fields(line)
	if len(fields) >= 2 && allEqual(fields) {
		return fields[0]
	}

	// Try splitting on the ending character, e.g. "router1#router1#router1#"
	if ending != ' ' {
		parts := strings.Split(line, string(ending))
		var nonEmpty []string
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				nonEmpty = append(nonEmpty, p)
			}
		}
		if len(nonEmpty) >= 2 && allEqual(nonEmpty) {
			return nonEmpty[0] + string(ending)
		}
	}

	return line
}

func allEqual(ss []string) bool {
	for _, s := range ss[1:] {
		if s != ss[0] {
			return false
		}
	}
	return true
}
