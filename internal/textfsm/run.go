package textfsm

import "strings"

// ParseError is returned when a rule's Error action fires.
type ParseError struct {
	Msg string
}

func (e *ParseError) Error() string { return e.Msg }

// Run executes the template against text and returns the ordered list of
// records. Each record maps Value name -> string for scalar values, or
// Value name -> []string (joined by "\n" in the returned map, since
// callers only need field population counts, not list identity) for List
// values collected during one record's lifetime.
func (t *Template) Run(text string) ([]map[string]string, error) {
	cur := make(map[string]string)
	var lists map[string][]string
	var records []map[string]string

	stateName := "Start"
	lines := strings.Split(text, "\n")

	emit := func() {
		row := make(map[string]string, len(t.values))
		for _, v := range t.values {
			if v.list {
				if vals, ok := lists[v.name]; ok {
					row[v.name] = strings.Join(vals, "\n")
					continue
				}
			}
			row[v.name] = cur[v.name]
		}
		records = append(records, row)
	}

	clearNonFilldown := func() {
		for _, v := range t.values {
			if !v.filldown {
				delete(cur, v.name)
			}
		}
		lists = nil
	}

	clearAll := func() {
		cur = make(map[string]string)
		lists = nil
	}

	for _, line := range lines {
		st, ok := t.states[stateName]
		if !ok {
			break
		}

		for _, r := range st.rules {
			m := r.re.FindStringSubmatch(line)
			if m == nil {
				continue
			}

			names := r.re.SubexpNames()
			for i, name := range names {
				if name == "" || i >= len(m) {
					continue
				}
				if isListValue(t, name) {
					if lists == nil {
						lists = make(map[string][]string)
					}
					lists[name] = append(lists[name], m[i])
				} else {
					cur[name] = m[i]
				}
			}

			if r.errorMsg != "" {
				return nil, &ParseError{Msg: r.errorMsg}
			}
			if r.record {
				emit()
				clearNonFilldown()
			}
			if r.clearAll {
				clearAll()
			} else if r.clear {
				clearNonFilldown()
			}
			if r.nextState != "" {
				stateName = r.nextState
			}
			if !r.continueLn {
				break
			}
		}

		if stateName == "EOF" || stateName == "End" {
			break
		}
	}

	if hasAnyValue(cur) {
		emit()
	}

	return records, nil
}

func isListValue(t *Template, name string) bool {
	for _, v := range t.values {
		if v.name == name {
			return v.list
		}
	}
	return false
}

func hasAnyValue(m map[string]string) bool {
	for _, v := range m {
		if v != "" {
			return true
		}
	}
	return false
}
