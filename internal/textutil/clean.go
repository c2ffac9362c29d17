package textutil

import (
	"regexp"
	"strings"
)

var (
	leadingSkipRe = regexp.MustCompile(`(?i)^(terminal length|terminal width|pagination disabled|screen-length disable)\b`)
	trailingPromptRe = regexp.MustCompile(`^\S+[#>$]\s*$`)
	commandEchoRe    = regexp.MustCompile(`(?i)^(.{0,80}?)[#>$:%|\]\)](\s*)(show|display|get)\b`)
)

// CleanOutput strips leading paging-toggle echoes and blank lines, locates
// the echo of the main command and discards it and everything before it,
// and trims trailing prompt-only and blank lines. If the main command echo
// cannot be located, the input is returned unchanged (spec §4.6).
func CleanOutput(raw string) string {
	lines := strings.Split(raw, "\n")

	start := 0
	for start < len(lines) {
		trimmed := strings.TrimSpace(lines[start])
		if trimmed == "" || leadingSkipRe.MatchString(trimmed) {
			start++
			continue
		}
		break
	}

	echoIdx := -1
	for i := start; i < len(lines); i++ {
		if commandEchoRe.MatchString(lines[i]) {
			echoIdx = i
			break
		}
	}
	if echoIdx == -1 {
		return raw
	}

	body := lines[echoIdx+1:]

	end := len(body)
	for end > 0 {
		trimmed := strings.TrimSpace(body[end-1])
		if trimmed == "" || trailingPromptRe.MatchString(trimmed) {
			end--
			continue
		}
		break
	}
	body = body[:end]

	return strings.Join(body, "\n")
}
