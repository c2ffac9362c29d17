// Package textfsm implements a small declarative template engine in the
// style of Google's TextFSM: a template declares named Value patterns and
// a state machine of line-matching rules, and parsing a transcript
// against it yields an ordered list of records (field maps).
package textfsm

import (
	"fmt"
	"regexp"
	"strings"
)

// valueDef is one declared `Value [Options] Name (regex)` line.
type valueDef struct {
	name      string
	required  bool
	list      bool
	filldown  bool
	pattern   string
}

// rule is one compiled `^regex -> action` line within a state.
type rule struct {
	re         *regexp.Regexp
	record     bool
	clear      bool
	clearAll   bool
	continueLn bool
	errorMsg   string
	nextState  string
}

type state struct {
	name  string
	rules []rule
}

// Template is a parsed, ready-to-run TextFSM-style definition.
type Template struct {
	CommandTag string
	Source     string

	values []valueDef
	states map[string]*state
}

var valueLineRe = regexp.MustCompile(`^Value\s+((?:\w+\s+)*)(\w+)\s+\((.*)\)\s*$`)
var stateHeaderRe = regexp.MustCompile(`^(\w+)$`)
var ruleLineRe = regexp.MustCompile(`^\s*(\^.*?)(?:\s*->\s*(.+))?$`)

// Parse compiles source into a Template tagged with commandTag (used by
// the template store's hint-matching lookup, not by parsing itself).
func Parse(commandTag, source string) (*Template, error) {
	t := &Template{
		CommandTag: commandTag,
		Source:     source,
		states:     make(map[string]*state),
	}

	lines := strings.Split(source, "\n")
	i := 0

	for i < len(lines) && strings.HasPrefix(strings.TrimSpace(lines[i]), "Value") {
		v, err := parseValueLine(lines[i])
		if err != nil {
			return nil, err
		}
		t.values = append(t.values, v)
		i++
	}

	var cur *state
	for ; i < len(lines); i++ {
		raw := lines[i]
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			continue
		}
		if !strings.HasPrefix(raw, " ") && !strings.HasPrefix(raw, "\t") && stateHeaderRe.MatchString(trimmed) {
			cur = &state{name: trimmed}
			t.states[trimmed] = cur
			continue
		}
		if cur == nil {
			return nil, fmt.Errorf("textfsm: rule line before any state header: %q", raw)
		}
		r, err := t.compileRule(trimmed)
		if err != nil {
			return nil, err
		}
		cur.rules = append(cur.rules, r)
	}

	if _, ok := t.states["Start"]; !ok {
		return nil, fmt.Errorf("textfsm: template has no Start state")
	}
	return t, nil
}

func parseValueLine(line string) (valueDef, error) {
	m := valueLineRe.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return valueDef{}, fmt.Errorf("textfsm: malformed Value line: %q", line)
	}
	v := valueDef{name: m[2], pattern: m[3]}
	for _, opt := range strings.Fields(m[1]) {
		switch opt {
		case "Required":
			v.required = true
		case "List":
			v.list = true
		case "Filldown":
			v.filldown = true
		}
	}
	return v, nil
}

func (t *Template) compileRule(line string) (rule, error) {
	m := ruleLineRe.FindStringSubmatch(line)
	if m == nil {
		return rule{}, fmt.Errorf("textfsm: malformed rule line: %q", line)
	}
	pattern := t.expandValues(m[1])
	re, err := regexp.Compile(pattern)
	if err != nil {
		return rule{}, fmt.Errorf("textfsm: bad rule regex %q: %w", pattern, err)
	}
	r := rule{re: re}

	action := strings.TrimSpace(m[2])
	if action == "" {
		return r, nil
	}

	fields := strings.Split(action, ".")
	for _, f := range fields {
		f = strings.TrimSpace(f)
		switch {
		case f == "Record":
			r.record = true
		case f == "Clearall":
			r.clearAll = true
		case f == "Clear":
			r.clear = true
		case f == "Continue":
			r.continueLn = true
		case strings.HasPrefix(f, "Error"):
			r.errorMsg = strings.TrimSpace(strings.TrimPrefix(f, "Error"))
			if r.errorMsg == "" {
				r.errorMsg = "textfsm: Error rule triggered"
			}
		case f == "Next", f == "":
			// explicit Next is the default, no-op
		default:
			r.nextState = f
		}
	}
	return r, nil
}

// FieldCount returns the number of declared Value fields, used by the
// scorer as the per-record field count F.
func (t *Template) FieldCount() int { return len(t.values) }

// expandValues rewrites ${Name} references into named capture groups
// using the corresponding Value's declared pattern.
func (t *Template) expandValues(pattern string) string {
	for _, v := range t.values {
		pattern = strings.ReplaceAll(pattern, "${"+v.name+"}", fmt.Sprintf("(?P<%s>%s)", v.name, v.pattern))
	}
	return pattern
}
