package store

import (
	"fmt"

	"github.com/velocitycollector/velocitycollector/internal/template"
)

// Templates adapts the templates table to template.Store.
type Templates struct {
	store *Store
}

// NewTemplates wraps a Store as a template.Store.
func NewTemplates(s *Store) *Templates {
	return &Templates{store: s}
}

var _ template.Store = (*Templates)(nil)

// All implements template.Store.
func (t *Templates) All() ([]template.Record, error) {
	rows, err := t.store.conn.Query(`SELECT id, command_tag, textfsm_source FROM templates ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query templates: %w", err)
	}
	defer rows.Close()

	var out []template.Record
	for rows.Next() {
		var r template.Record
		if err := rows.Scan(&r.ID, &r.CommandTag, &r.Source); err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Put inserts or replaces a template record.
func (t *Templates) Put(r template.Record) error {
	_, err := t.store.conn.Exec(
		`INSERT INTO templates (id, command_tag, textfsm_source) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET command_tag = excluded.command_tag, textfsm_source = excluded.textfsm_source`,
		r.ID, r.CommandTag, r.Source,
	)
	if err != nil {
		return fmt.Errorf("put template %q: %w", r.ID, err)
	}
	return nil
}
