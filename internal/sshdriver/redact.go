package sshdriver

import "strings"

// Redactor replaces known credential secret values in a transcript or log
// line with [REDACTED:name:field] placeholders. It redacts only the values
// registered with Add, and only in strings passed to Redact.
type Redactor struct {
	replacements map[string]string
}

// NewRedactor returns an empty Redactor; secrets are registered with Add.
func NewRedactor() *Redactor {
	return &Redactor{replacements: make(map[string]string)}
}

// Add registers a secret value to be redacted under the given credential
// name. Empty values are ignored.
func (r *Redactor) Add(credentialName, field, value string) {
	if value == "" {
		return
	}
	r.replacements[value] = "[REDACTED:" + credentialName + ":" + field + "]"
}

// Redact replaces every known secret value in input with its placeholder.
// A Redactor with no registered secrets is a no-op passthrough.
func (r *Redactor) Redact(input string) string {
	if len(r.replacements) == 0 {
		return input
	}
	result := input
	for value, placeholder := range r.replacements {
		result = strings.ReplaceAll(result, value, placeholder)
	}
	return result
}
