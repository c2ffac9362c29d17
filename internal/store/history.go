package store

import (
	"database/sql"
	"fmt"
)

// HistoryRow is one run of a job, open while the run is in progress and
// closed with final counts and status per I3/I5.
type HistoryRow struct {
	ID                     int64
	JobRef                 string
	StartedAt              string
	CompletedAt            *string
	TotalDevices           int
	SuccessCount           int
	FailedCount            int
	ValidationSkippedCount int
	Status                 string
	ErrorMessage           *string
	DeviceRecordsJSON      string
}

// OpenHistory inserts a new "running" history row for a job run and
// returns its ID.
func (s *Store) OpenHistory(jobRef, startedAt string, totalDevices int) (int64, error) {
	res, err := s.conn.Exec(
		`INSERT INTO history (job_ref, started_at, total_devices, status) VALUES (?, ?, ?, 'running')`,
		jobRef, startedAt, totalDevices,
	)
	if err != nil {
		return 0, fmt.Errorf("open history row: %w", err)
	}
	return res.LastInsertId()
}

// CloseHistory finalizes a history row with the actual dispatched device
// count, terminal counts, status, and the device-records snapshot
// (JSON-encoded per-device outcomes, including each device's chosen
// template id/name and score) used for later report rendering.
func (s *Store) CloseHistory(id int64, completedAt string, totalDevices, success, failed, validationSkipped int, status string, errMsg *string, deviceRecordsJSON string) error {
	_, err := s.conn.Exec(
		`UPDATE history SET completed_at = ?, total_devices = ?, success_count = ?, failed_count = ?,
			validation_skipped_count = ?, status = ?, error_message = ?, device_records_json = ?
		 WHERE id = ?`,
		completedAt, totalDevices, success, failed, validationSkipped, status, errMsg, deviceRecordsJSON, id,
	)
	if err != nil {
		return fmt.Errorf("close history row %d: %w", id, err)
	}
	return nil
}

// GetHistory fetches a single history row by id.
func (s *Store) GetHistory(id int64) (*HistoryRow, error) {
	row := s.conn.QueryRow(
		`SELECT id, job_ref, started_at, completed_at, total_devices, success_count,
			failed_count, validation_skipped_count, status, error_message, device_records_json
		 FROM history WHERE id = ?`, id,
	)
	h, err := scanHistory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get history %d: %w", id, err)
	}
	return h, nil
}

// ListHistoryForJob returns history rows for a job ref, most recent first.
func (s *Store) ListHistoryForJob(jobRef string, limit int) ([]HistoryRow, error) {
	rows, err := s.conn.Query(
		`SELECT id, job_ref, started_at, completed_at, total_devices, success_count,
			failed_count, validation_skipped_count, status, error_message, device_records_json
		 FROM history WHERE job_ref = ? ORDER BY started_at DESC LIMIT ?`, jobRef, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list history for %q: %w", jobRef, err)
	}
	defer rows.Close()

	var out []HistoryRow
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		out = append(out, *h)
	}
	return out, rows.Err()
}

func scanHistory(scanner interface{ Scan(...any) error }) (*HistoryRow, error) {
	var h HistoryRow
	err := scanner.Scan(
		&h.ID, &h.JobRef, &h.StartedAt, &h.CompletedAt, &h.TotalDevices, &h.SuccessCount,
		&h.FailedCount, &h.ValidationSkippedCount, &h.Status, &h.ErrorMessage, &h.DeviceRecordsJSON,
	)
	if err != nil {
		return nil, err
	}
	return &h, nil
}
