package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/velocitycollector/velocitycollector/internal/dcim"
)

// DCIM is a minimal in-database adapter satisfying dcim.Repository,
// sufficient to exercise internal/runner and internal/discovery in
// tests. It is not a re-specification of the real DCIM schema.
type DCIM struct {
	store *Store
}

// NewDCIM wraps a Store as a dcim.Repository.
func NewDCIM(s *Store) *DCIM {
	return &DCIM{store: s}
}

var _ dcim.Repository = (*DCIM)(nil)

const deviceColumns = `id, name, primary_ip4, ssh_port, vendor, platform_type, paging_cmd,
	site, role, status, credential_id, credential_tested_at, credential_test_result`

// Query implements dcim.Repository.
func (d *DCIM) Query(ctx context.Context, filter dcim.Filter) ([]dcim.Device, error) {
	q := `SELECT ` + deviceColumns + ` FROM devices WHERE 1=1`
	var args []any

	if filter.Site != "" {
		q += ` AND site = ?`
		args = append(args, filter.Site)
	}
	if filter.Role != "" {
		q += ` AND role = ?`
		args = append(args, filter.Role)
	}
	if filter.Platform != "" {
		q += ` AND platform_type = ?`
		args = append(args, filter.Platform)
	}
	if filter.Status != "" {
		q += ` AND status = ?`
		args = append(args, filter.Status)
	}
	if filter.NamePattern != "" {
		q += ` AND name LIKE ?`
		args = append(args, sqlLikePattern(filter.NamePattern))
	}
	q += ` ORDER BY id`
	if filter.Limit > 0 {
		q += fmt.Sprintf(` LIMIT %d`, filter.Limit)
	}

	rows, err := d.store.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query devices: %w", err)
	}
	defer rows.Close()

	var out []dcim.Device
	for rows.Next() {
		dev, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}
		out = append(out, *dev)
	}
	return out, rows.Err()
}

// Get implements dcim.Repository.
func (d *DCIM) Get(ctx context.Context, id int64) (*dcim.Device, error) {
	row := d.store.conn.QueryRowContext(ctx, `SELECT `+deviceColumns+` FROM devices WHERE id = ?`, id)
	dev, err := scanDevice(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get device %d: %w", id, err)
	}
	return dev, nil
}

// UpdateDevice implements dcim.Repository.
func (d *DCIM) UpdateDevice(ctx context.Context, id int64, upd dcim.Update) error {
	var sets []string
	var args []any

	if upd.CredentialID != nil {
		sets = append(sets, "credential_id = ?")
		args = append(args, *upd.CredentialID)
	}
	if upd.CredentialTestedAt != nil {
		sets = append(sets, "credential_tested_at = ?")
		args = append(args, *upd.CredentialTestedAt)
	}
	if upd.CredentialTestResult != nil {
		sets = append(sets, "credential_test_result = ?")
		args = append(args, *upd.CredentialTestResult)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	_, err := d.store.conn.ExecContext(ctx, `UPDATE devices SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("update device %d: %w", id, err)
	}
	return nil
}

// InsertDevice is test/seed-data helper, not part of dcim.Repository.
func (d *DCIM) InsertDevice(dev dcim.Device) (int64, error) {
	res, err := d.store.conn.Exec(
		`INSERT INTO devices (name, primary_ip4, ssh_port, vendor, platform_type, paging_cmd, site, role, status, credential_id, credential_tested_at, credential_test_result)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		dev.Name, nullIfEmpty(dev.PrimaryIP4), dev.SSHPort, dev.Vendor, dev.PlatformType, dev.PagingDisableCmd,
		dev.Site, dev.Role, orDefault(dev.Status, "active"),
		nullIfEmpty(dev.CredentialID), nullIfEmpty(dev.CredentialTestedAt), nullIfEmpty(dev.CredentialTestResult),
	)
	if err != nil {
		return 0, fmt.Errorf("insert device: %w", err)
	}
	return res.LastInsertId()
}

func scanDevice(scanner interface{ Scan(...any) error }) (*dcim.Device, error) {
	var dev dcim.Device
	var ip4, credID, testedAt, testResult sql.NullString
	err := scanner.Scan(
		&dev.ID, &dev.Name, &ip4, &dev.SSHPort, &dev.Vendor, &dev.PlatformType, &dev.PagingDisableCmd,
		&dev.Site, &dev.Role, &dev.Status, &credID, &testedAt, &testResult,
	)
	if err != nil {
		return nil, err
	}
	dev.PrimaryIP4 = ip4.String
	dev.CredentialID = credID.String
	dev.CredentialTestedAt = testedAt.String
	dev.CredentialTestResult = testResult.String
	return &dev, nil
}

func sqlLikePattern(pattern string) string {
	if strings.Contains(pattern, "%") {
		return pattern
	}
	return "%" + pattern + "%"
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
