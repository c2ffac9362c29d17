package store

import (
	"database/sql"
	"fmt"
)

// JobDefinition is the database-backed shape of spec.md §3's
// JobDefinition, flattened into columns.
type JobDefinition struct {
	ID                int64
	Slug              string
	CaptureType       string
	VendorTag         string
	PagingDisableCmd  string
	PrimaryCmd        string
	FilterSite        *string
	FilterRole        *string
	FilterPlatform    *string
	FilterStatus      *string
	FilterNamePattern *string
	UseTextFSM        bool
	TemplateFilter    *string
	MinScore          float64
	SaveOnFailure     bool
	MaxWorkers        int
	TimeoutSeconds    int
	InterCommandMs    int
	BasePath          string
	FilenamePattern   string
	OutputDirectory   string
	CredentialName    *string
	LastRunAt         *string
	LastRunStatus     *string
}

const jobColumns = `id, slug, capture_type, vendor_tag, paging_disable_cmd, primary_cmd,
	filter_site, filter_role, filter_platform, filter_status, filter_name_pattern,
	use_textfsm, template_filter, min_score, save_on_failure,
	max_workers, timeout_seconds, inter_command_ms,
	base_path, filename_pattern, output_directory, credential_name,
	last_run_at, last_run_status`

func scanJob(scanner interface{ Scan(...any) error }) (*JobDefinition, error) {
	var j JobDefinition
	var useTextFSM, saveOnFailure int
	err := scanner.Scan(
		&j.ID, &j.Slug, &j.CaptureType, &j.VendorTag, &j.PagingDisableCmd, &j.PrimaryCmd,
		&j.FilterSite, &j.FilterRole, &j.FilterPlatform, &j.FilterStatus, &j.FilterNamePattern,
		&useTextFSM, &j.TemplateFilter, &j.MinScore, &saveOnFailure,
		&j.MaxWorkers, &j.TimeoutSeconds, &j.InterCommandMs,
		&j.BasePath, &j.FilenamePattern, &j.OutputDirectory, &j.CredentialName,
		&j.LastRunAt, &j.LastRunStatus,
	)
	if err != nil {
		return nil, err
	}
	j.UseTextFSM = useTextFSM != 0
	j.SaveOnFailure = saveOnFailure != 0
	return &j, nil
}

// InsertJob creates a new job definition and returns its ID.
func (s *Store) InsertJob(j *JobDefinition) (int64, error) {
	res, err := s.conn.Exec(
		`INSERT INTO job_definitions (slug, capture_type, vendor_tag, paging_disable_cmd, primary_cmd,
			filter_site, filter_role, filter_platform, filter_status, filter_name_pattern,
			use_textfsm, template_filter, min_score, save_on_failure,
			max_workers, timeout_seconds, inter_command_ms,
			base_path, filename_pattern, output_directory, credential_name)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.Slug, j.CaptureType, j.VendorTag, j.PagingDisableCmd, j.PrimaryCmd,
		j.FilterSite, j.FilterRole, j.FilterPlatform, j.FilterStatus, j.FilterNamePattern,
		boolToInt(j.UseTextFSM), j.TemplateFilter, j.MinScore, boolToInt(j.SaveOnFailure),
		j.MaxWorkers, j.TimeoutSeconds, j.InterCommandMs,
		j.BasePath, j.FilenamePattern, j.OutputDirectory, j.CredentialName,
	)
	if err != nil {
		return 0, fmt.Errorf("insert job: %w", err)
	}
	return res.LastInsertId()
}

// GetJobBySlug resolves a job definition by its unique slug.
func (s *Store) GetJobBySlug(slug string) (*JobDefinition, error) {
	row := s.conn.QueryRow(`SELECT `+jobColumns+` FROM job_definitions WHERE slug = ?`, slug)
	j, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job by slug %q: %w", slug, err)
	}
	return j, nil
}

// GetJobByID resolves a job definition by its database id.
func (s *Store) GetJobByID(id int64) (*JobDefinition, error) {
	row := s.conn.QueryRow(`SELECT `+jobColumns+` FROM job_definitions WHERE id = ?`, id)
	j, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job by id %d: %w", id, err)
	}
	return j, nil
}

// ListJobs returns every job definition, ordered by slug.
func (s *Store) ListJobs() ([]JobDefinition, error) {
	rows, err := s.conn.Query(`SELECT ` + jobColumns + ` FROM job_definitions ORDER BY slug`)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []JobDefinition
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("list jobs: scan: %w", err)
		}
		out = append(out, *j)
	}
	return out, rows.Err()
}

// UpdateJobRunState implements spec.md §4.8 step 9: per-job state update
// after a run completes (I5).
func (s *Store) UpdateJobRunState(id int64, lastRunAt, lastRunStatus string) error {
	_, err := s.conn.Exec(`UPDATE job_definitions SET last_run_at = ?, last_run_status = ? WHERE id = ?`, lastRunAt, lastRunStatus, id)
	if err != nil {
		return fmt.Errorf("update job run state %d: %w", id, err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
