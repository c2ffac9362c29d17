package store

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/velocitycollector/velocitycollector/internal/template"
)

func TestTemplatesPutAndAll(t *testing.T) {
	s := newTestStore(t)
	tpls := NewTemplates(s)

	require.NoError(t, tpls.Put(template.Record{ID: "cisco_ios_show_ip_arp", CommandTag: "show_ip_arp", Source: "Value ADDRESS (.+)\n"}))
	require.NoError(t, tpls.Put(template.Record{ID: "cisco_ios_show_version", CommandTag: "show_version", Source: "Value VERSION (.+)\n"}))

	all, err := tpls.All()
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestTemplatesPutUpsertsExisting(t *testing.T) {
	s := newTestStore(t)
	tpls := NewTemplates(s)

	require.NoError(t, tpls.Put(template.Record{ID: "t1", CommandTag: "show_ip_arp", Source: "old"}))
	require.NoError(t, tpls.Put(template.Record{ID: "t1", CommandTag: "show_ip_arp", Source: "new"}))

	all, err := tpls.All()
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, "new", all[0].Source)
}

func TestTemplatesAllEmptyStore(t *testing.T) {
	s := newTestStore(t)
	tpls := NewTemplates(s)

	all, err := tpls.All()
	require.NoError(t, err)
	require.Empty(t, all)
}
