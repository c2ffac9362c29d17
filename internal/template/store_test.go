package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct{ records []Record }

func (m *memStore) All() ([]Record, error) { return m.records, nil }

func TestCandidatesNoHintReturnsAll(t *testing.T) {
	s := &memStore{records: []Record{{ID: "1", CommandTag: "cisco_ios_show_arp"}, {ID: "2", CommandTag: "juniper_show_version"}}}
	got, err := Candidates(s, "")
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestCandidatesFiltersByHintTokens(t *testing.T) {
	s := &memStore{records: []Record{
		{ID: "1", CommandTag: "cisco_ios_show_arp"},
		{ID: "2", CommandTag: "juniper_show_arp"},
		{ID: "3", CommandTag: "cisco_ios_show_version"},
	}}
	got, err := Candidates(s, "cisco_ios_arp")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "1", got[0].ID)
}

func TestCandidatesIgnoresShortTokens(t *testing.T) {
	s := &memStore{records: []Record{{ID: "1", CommandTag: "cisco_ios_show_arp"}}}
	// "is" (2 chars) is ignored; only "show" and "arp" need to match.
	got, err := Candidates(s, "is_show_arp")
	require.NoError(t, err)
	require.Len(t, got, 1)
}
