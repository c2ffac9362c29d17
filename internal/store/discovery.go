package store

import "fmt"

// DiscoveryResult is one persisted outcome of a credential-discovery
// probe against a single device.
type DiscoveryResult struct {
	ID                int64
	DeviceID          int64
	RunAt             string
	MatchedCredential *string
	Attempts          int
	Outcome           string
}

// RecordDiscoveryResult persists a single device's discovery outcome.
func (s *Store) RecordDiscoveryResult(r DiscoveryResult) (int64, error) {
	res, err := s.conn.Exec(
		`INSERT INTO discovery_results (device_id, run_at, matched_credential, attempts, outcome)
		 VALUES (?, ?, ?, ?, ?)`,
		r.DeviceID, r.RunAt, r.MatchedCredential, r.Attempts, r.Outcome,
	)
	if err != nil {
		return 0, fmt.Errorf("record discovery result: %w", err)
	}
	return res.LastInsertId()
}

// ListDiscoveryResultsForDevice returns a device's discovery history,
// most recent first.
func (s *Store) ListDiscoveryResultsForDevice(deviceID int64) ([]DiscoveryResult, error) {
	rows, err := s.conn.Query(
		`SELECT id, device_id, run_at, matched_credential, attempts, outcome
		 FROM discovery_results WHERE device_id = ? ORDER BY run_at DESC`, deviceID,
	)
	if err != nil {
		return nil, fmt.Errorf("list discovery results for device %d: %w", deviceID, err)
	}
	defer rows.Close()

	var out []DiscoveryResult
	for rows.Next() {
		var r DiscoveryResult
		if err := rows.Scan(&r.ID, &r.DeviceID, &r.RunAt, &r.MatchedCredential, &r.Attempts, &r.Outcome); err != nil {
			return nil, fmt.Errorf("scan discovery result: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
