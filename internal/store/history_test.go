package store

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenAndCloseHistory(t *testing.T) {
	s := newTestStore(t)

	id, err := s.OpenHistory("nightly-arp", "2026-07-31T00:00:00Z", 10)
	require.NoError(t, err)
	require.NotZero(t, id)

	open, err := s.GetHistory(id)
	require.NoError(t, err)
	require.Equal(t, "running", open.Status)
	require.Nil(t, open.CompletedAt)

	require.NoError(t, s.CloseHistory(id, "2026-07-31T00:05:00Z", 10, 8, 1, 1, "partial", nil, `[{"host":"r1"}]`))

	closed, err := s.GetHistory(id)
	require.NoError(t, err)
	require.Equal(t, "partial", closed.Status)
	require.NotNil(t, closed.CompletedAt)
	require.Equal(t, 10, closed.TotalDevices)
	require.Equal(t, 8, closed.SuccessCount)
	require.Equal(t, 1, closed.FailedCount)
	require.Equal(t, 1, closed.ValidationSkippedCount)
	require.Equal(t, `[{"host":"r1"}]`, closed.DeviceRecordsJSON)
}

func TestCloseHistoryWithErrorMessage(t *testing.T) {
	s := newTestStore(t)

	id, err := s.OpenHistory("nightly-arp", "2026-07-31T00:00:00Z", 0)
	require.NoError(t, err)

	msg := "no devices matched filter"
	require.NoError(t, s.CloseHistory(id, "2026-07-31T00:00:01Z", 0, 0, 0, 0, "failed", &msg, "[]"))

	got, err := s.GetHistory(id)
	require.NoError(t, err)
	require.NotNil(t, got.ErrorMessage)
	require.Equal(t, msg, *got.ErrorMessage)
}

func TestListHistoryForJobOrdersMostRecentFirst(t *testing.T) {
	s := newTestStore(t)

	id1, err := s.OpenHistory("nightly-arp", "2026-07-30T00:00:00Z", 1)
	require.NoError(t, err)
	require.NoError(t, s.CloseHistory(id1, "2026-07-30T00:01:00Z", 1, 1, 0, 0, "success", nil, "[]"))

	id2, err := s.OpenHistory("nightly-arp", "2026-07-31T00:00:00Z", 1)
	require.NoError(t, err)
	require.NoError(t, s.CloseHistory(id2, "2026-07-31T00:01:00Z", 1, 1, 0, 0, "success", nil, "[]"))

	rows, err := s.ListHistoryForJob("nightly-arp", 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, id2, rows[0].ID)
	require.Equal(t, id1, rows[1].ID)
}

func TestGetHistoryMissingReturnsNil(t *testing.T) {
	s := newTestStore(t)

	got, err := s.GetHistory(999)
	require.NoError(t, err)
	require.Nil(t, got)
}
