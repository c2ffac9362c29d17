// Package template implements the template store and scorer (C5): a
// read-only collection of declarative TextFSM-style parsing templates,
// a hint-based lookup, and a scoring function that picks the
// best-matching template for a cleaned device transcript.
package template

import (
	"strings"
)

// Record is one stored template definition.
type Record struct {
	ID         string
	CommandTag string
	Source     string
}

// Store is a read-only queryable collection of templates.
type Store interface {
	// All returns every stored template, in a stable order.
	All() ([]Record, error)
}

// Candidates returns the templates from store matching hint, tokenized
// on "_" and "-": a template is a candidate if every hint token longer
// than 2 characters appears as a case-insensitive substring of its
// CommandTag. An empty hint matches every template (spec.md §4.5).
func Candidates(store Store, hint string) ([]Record, error) {
	all, err := store.All()
	if err != nil {
		return nil, err
	}
	tokens := hintTokens(hint)
	if len(tokens) == 0 {
		return all, nil
	}

	var out []Record
	for _, r := range all {
		tag := strings.ToLower(r.CommandTag)
		match := true
		for _, tok := range tokens {
			if !strings.Contains(tag, tok) {
				match = false
				break
			}
		}
		if match {
			out = append(out, r)
		}
	}
	return out, nil
}

func hintTokens(hint string) []string {
	if hint == "" {
		return nil
	}
	fields := strings.FieldsFunc(hint, func(r rune) bool { return r == '_' || r == '-' })
	var out []string
	for _, f := range fields {
		if len(f) > 2 {
			out = append(out, strings.ToLower(f))
		}
	}
	return out
}
