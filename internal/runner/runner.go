// Package runner implements the job runner (C8): it resolves a job
// definition, queries a device set, fans the work out through
// internal/executor, validates each device's output against
// internal/template, and persists capture files and history rows.
// Control-flow shape (resolve -> open state row -> do bounded work ->
// close state row) is grounded on
// joestump-claude-ops/internal/session/manager.go's
// runEscalationChain/runTier, despecialized to a single non-escalating
// pass over a device set.
package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/velocitycollector/velocitycollector/internal/dcim"
	"github.com/velocitycollector/velocitycollector/internal/executor"
	"github.com/velocitycollector/velocitycollector/internal/metrics"
	"github.com/velocitycollector/velocitycollector/internal/sshdriver"
	"github.com/velocitycollector/velocitycollector/internal/store"
	"github.com/velocitycollector/velocitycollector/internal/template"
	"github.com/velocitycollector/velocitycollector/internal/textutil"
	"github.com/velocitycollector/velocitycollector/internal/vault"
)

// JobDefinition is the common shape produced by both the database-backed
// and legacy file-backed job sources (spec.md §4.8 step 1).
type JobDefinition = store.JobDefinition

// RefKind distinguishes how a job was named.
type RefKind int

const (
	// RefDBSlug resolves a job_definitions row by its unique slug.
	RefDBSlug RefKind = iota
	// RefDBID resolves a job_definitions row by its database id.
	RefDBID
	// RefFile carries an already-parsed legacy file-backed definition.
	RefFile
)

// JobRef names the job to run: a database slug/id, or a legacy
// file-backed definition supplied directly.
type JobRef struct {
	Kind RefKind
	Slug string
	ID   int64
	File *JobDefinition
}

// DBSlugRef resolves a job by its database slug.
func DBSlugRef(slug string) JobRef { return JobRef{Kind: RefDBSlug, Slug: slug} }

// DBIDRef resolves a job by its database id.
func DBIDRef(id int64) JobRef { return JobRef{Kind: RefDBID, ID: id} }

// FileRef wraps an already-parsed legacy job definition.
func FileRef(def *JobDefinition) JobRef { return JobRef{Kind: RefFile, File: def} }

// String identifies the job for history rows and logging.
func (r JobRef) String() string {
	switch r.Kind {
	case RefDBSlug:
		return "db:" + r.Slug
	case RefDBID:
		return fmt.Sprintf("db:#%d", r.ID)
	case RefFile:
		return "file:" + r.File.Slug
	default:
		return "unknown"
	}
}

// DeviceError is a categorized per-device failure.
type DeviceError struct {
	Device   string
	Category sshdriver.ErrorCategory
	Message  string
}

// ValidationFailure records a device whose output was cleaned and
// scored but did not clear the job's minimum score (I4).
type ValidationFailure struct {
	Device string
	Score  float64
	Reason string
}

// SavedFile is one capture artifact written to disk.
type SavedFile struct {
	Device string
	Path   string
	Bytes  int
	Score  float64
}

// DeviceRecord is one device's outcome as persisted into a history row's
// device_records_json column (I3), carrying the chosen template's id and
// name alongside the score so a run's per-device decisions stay
// discoverable from history rather than only from the in-memory
// JobResult.
type DeviceRecord struct {
	Device       string  `json:"device"`
	Success      bool    `json:"success"`
	TemplateID   string  `json:"template_id,omitempty"`
	TemplateName string  `json:"template_name,omitempty"`
	Score        float64 `json:"score,omitempty"`
	Path         string  `json:"path,omitempty"`
	Bytes        int     `json:"bytes,omitempty"`
	Category     string  `json:"category,omitempty"`
	Message      string  `json:"message,omitempty"`
}

// JobResult is the outcome of a single Run call (spec.md §3).
type JobResult struct {
	JobRef             string
	HistoryID          int64
	Success            int
	Failed             int
	ValidationSkipped  int
	DeviceResults      []executor.Result
	SavedFiles         []SavedFile
	DeviceErrors       []DeviceError
	ValidationFailures []ValidationFailure
	Elapsed            time.Duration
	Error              string
}

// Options configures a single run.
type Options struct {
	// Limit caps the number of devices queried from the DCIM source.
	// Zero means unlimited.
	Limit int
}

// JobStore is the subset of *store.Store the runner needs to resolve
// database-backed job definitions and record their run state.
type JobStore interface {
	GetJobBySlug(slug string) (*JobDefinition, error)
	GetJobByID(id int64) (*JobDefinition, error)
	UpdateJobRunState(id int64, lastRunAt, lastRunStatus string) error
}

// HistoryStore is the subset of *store.Store the runner needs to open
// and close history rows (I3).
type HistoryStore interface {
	OpenHistory(jobRef, startedAt string, totalDevices int) (int64, error)
	CloseHistory(id int64, completedAt string, totalDevices, success, failed, validationSkipped int, status string, errMsg *string, deviceRecordsJSON string) error
}

// Runner ties together device inventory, the executor pool, template
// validation, and persistence to implement C8.
type Runner struct {
	Jobs      JobStore
	History   HistoryStore
	Devices   dcim.Repository
	Templates template.Store
	Vault     *vault.Vault
	Pool      *executor.Pool
	Metrics   *metrics.Metrics
	NowFunc   func() time.Time

	// OnHistoryOpened, if set, is called with the history row's id as
	// soon as it is assigned, before any device work starts. Callers
	// that want to stream progress against the eventual JobResult's
	// HistoryID (e.g. internal/api) use this to learn the id early
	// rather than waiting for Run to return.
	OnHistoryOpened func(historyID int64)
}

func (r *Runner) now() time.Time {
	if r.NowFunc != nil {
		return r.NowFunc()
	}
	return time.Now().UTC()
}

// Run implements spec.md §4.8's nine-step procedure.
func (r *Runner) Run(ctx context.Context, ref JobRef, opts Options, progress executor.ProgressFunc) (*JobResult, error) {
	def, err := r.resolve(ref)
	if err != nil {
		return nil, err
	}

	result := &JobResult{JobRef: ref.String()}
	startedAt := r.now()

	historyID, err := r.History.OpenHistory(ref.String(), startedAt.Format(time.RFC3339), 0)
	if err != nil {
		return nil, fmt.Errorf("open history row: %w", err)
	}
	result.HistoryID = historyID
	if r.OnHistoryOpened != nil {
		r.OnHistoryOpened(historyID)
	}

	devices, err := r.Devices.Query(ctx, filterFromJob(def, opts.Limit))
	if err != nil {
		return r.abort(result, historyID, startedAt, fmt.Errorf("query devices: %w", err))
	}

	var eligible []dcim.Device
	for _, d := range devices {
		if d.HasPrimaryIP4() {
			eligible = append(eligible, d)
		}
	}
	if len(eligible) == 0 {
		return r.abort(result, historyID, startedAt, fmt.Errorf("no devices match filter"))
	}

	cmdString := assembleCommandString(def.PagingDisableCmd, def.PrimaryCmd)
	promptCount := strings.Count(cmdString, ",") + 1

	var credCache sync.Map // name -> *sshdriver.Credentials
	targets := make([]executor.Target, len(eligible))
	for i, d := range eligible {
		tgt := executor.Target{
			Host:          d.PrimaryIP4,
			Port:          sshPortOrDefault(d.SSHPort),
			CommandString: cmdString,
			PromptCount:   promptCount,
			ExtraData:     d,
		}
		if d.CredentialID != "" {
			if creds, name, ok := r.resolveCredential(d.CredentialID, &credCache); ok {
				tgt.Credentials = creds
				tgt.CredentialName = name
			}
		}
		targets[i] = tgt
	}

	pool := *r.Pool
	if def.MaxWorkers > 0 {
		pool.Concurrency = def.MaxWorkers
	}
	if def.TimeoutSeconds > 0 {
		pool.Timeouts.Connect = time.Duration(def.TimeoutSeconds) * time.Second
	}
	if def.InterCommandMs > 0 {
		pool.Timeouts.InterCommandTime = time.Duration(def.InterCommandMs) * time.Millisecond
	}
	execResults, _ := pool.Run(ctx, targets, progress)
	result.DeviceResults = execResults

	deviceRecords := make([]DeviceRecord, 0, len(execResults))

	for _, res := range execResults {
		dev, _ := res.ExtraData.(dcim.Device)
		if !res.Success {
			result.Failed++
			result.DeviceErrors = append(result.DeviceErrors, DeviceError{
				Device: res.Host, Category: res.Category, Message: res.ErrorMessage,
			})
			deviceRecords = append(deviceRecords, DeviceRecord{
				Device: res.Host, Category: string(res.Category), Message: res.ErrorMessage,
			})
			r.observeDevice("failed")
			continue
		}

		cleaned := textutil.CleanOutput(res.Transcript)
		score := 100.0
		var scoreResult template.Result
		validated := true

		if def.UseTextFSM {
			hint := templateHint(def, dev)
			candidates, cerr := template.Candidates(r.Templates, hint)
			if cerr != nil {
				result.Failed++
				result.DeviceErrors = append(result.DeviceErrors, DeviceError{
					Device: res.Host, Category: sshdriver.CategoryUnknown, Message: cerr.Error(),
				})
				deviceRecords = append(deviceRecords, DeviceRecord{
					Device: res.Host, Category: string(sshdriver.CategoryUnknown), Message: cerr.Error(),
				})
				r.observeDevice("failed")
				continue
			}
			sr, serr := template.Score(candidates, cleaned)
			if serr != nil {
				result.Failed++
				result.DeviceErrors = append(result.DeviceErrors, DeviceError{
					Device: res.Host, Category: sshdriver.CategoryUnknown, Message: serr.Error(),
				})
				deviceRecords = append(deviceRecords, DeviceRecord{
					Device: res.Host, Category: string(sshdriver.CategoryUnknown), Message: serr.Error(),
				})
				r.observeDevice("failed")
				continue
			}
			scoreResult = sr
			score = sr.Score
			validated = score >= def.MinScore
		}

		if !validated && !def.SaveOnFailure {
			result.ValidationSkipped++
			result.ValidationFailures = append(result.ValidationFailures, ValidationFailure{
				Device: res.Host, Score: score, Reason: "below minimum score",
			})
			deviceRecords = append(deviceRecords, DeviceRecord{
				Device: res.Host, TemplateID: scoreResult.TemplateID, TemplateName: scoreResult.CommandTag,
				Score: score, Message: "below minimum score",
			})
			r.observeDevice("validation_skipped")
			continue
		}

		path, n, werr := r.writeCapture(def, &dev, cleaned)
		if werr != nil {
			result.Failed++
			result.DeviceErrors = append(result.DeviceErrors, DeviceError{
				Device: res.Host, Category: sshdriver.CategoryUnknown, Message: werr.Error(),
			})
			deviceRecords = append(deviceRecords, DeviceRecord{
				Device: res.Host, TemplateID: scoreResult.TemplateID, TemplateName: scoreResult.CommandTag,
				Score: score, Category: string(sshdriver.CategoryUnknown), Message: werr.Error(),
			})
			r.observeDevice("failed")
			continue
		}
		result.Success++
		result.SavedFiles = append(result.SavedFiles, SavedFile{
			Device: res.Host, Path: path, Bytes: n, Score: score,
		})
		deviceRecords = append(deviceRecords, DeviceRecord{
			Device: res.Host, Success: true, TemplateID: scoreResult.TemplateID, TemplateName: scoreResult.CommandTag,
			Score: score, Path: path, Bytes: n,
		})
		r.observeDevice("success")
	}

	result.Elapsed = time.Since(startedAt)
	status := finalStatus(result.Success, result.Failed, result.ValidationSkipped)

	recordsJSON, jerr := json.Marshal(deviceRecords)
	if jerr != nil {
		return nil, fmt.Errorf("marshal device records: %w", jerr)
	}

	if err := r.History.CloseHistory(historyID, r.now().Format(time.RFC3339), len(eligible), result.Success, result.Failed, result.ValidationSkipped, status, nil, string(recordsJSON)); err != nil {
		return nil, fmt.Errorf("close history row: %w", err)
	}
	r.updateJobState(ref, r.now(), status)
	if r.Metrics != nil {
		r.Metrics.ObserveJobRun(status)
	}

	return result, nil
}

func (r *Runner) abort(result *JobResult, historyID int64, startedAt time.Time, cause error) (*JobResult, error) {
	msg := cause.Error()
	_ = r.History.CloseHistory(historyID, r.now().Format(time.RFC3339), 0, 0, 0, 0, "failed", &msg, "[]")
	result.Error = msg
	result.Elapsed = time.Since(startedAt)
	if r.Metrics != nil {
		r.Metrics.ObserveJobRun("failed")
	}
	return result, nil
}

func (r *Runner) resolve(ref JobRef) (*JobDefinition, error) {
	switch ref.Kind {
	case RefDBSlug:
		def, err := r.Jobs.GetJobBySlug(ref.Slug)
		if err != nil {
			return nil, fmt.Errorf("resolve job %q: %w", ref.Slug, err)
		}
		if def == nil {
			return nil, fmt.Errorf("job %q not found", ref.Slug)
		}
		return def, nil
	case RefDBID:
		def, err := r.Jobs.GetJobByID(ref.ID)
		if err != nil {
			return nil, fmt.Errorf("resolve job #%d: %w", ref.ID, err)
		}
		if def == nil {
			return nil, fmt.Errorf("job #%d not found", ref.ID)
		}
		return def, nil
	case RefFile:
		if ref.File == nil {
			return nil, fmt.Errorf("file job ref has no definition")
		}
		return ref.File, nil
	default:
		return nil, fmt.Errorf("unknown job ref kind")
	}
}

func (r *Runner) resolveCredential(name string, cache *sync.Map) (*sshdriver.Credentials, string, bool) {
	if cached, ok := cache.Load(name); ok {
		if cached == nil {
			return nil, "", false
		}
		return cached.(*sshdriver.Credentials), name, true
	}
	if r.Vault == nil || !r.Vault.Unlocked() {
		cache.Store(name, nil)
		return nil, "", false
	}
	c, err := r.Vault.Get(name)
	if err != nil || c == nil {
		cache.Store(name, nil)
		return nil, "", false
	}
	creds := &sshdriver.Credentials{
		Username: c.Username, Password: c.Password, KeyPEM: c.KeyPEM, KeyPassphrase: c.KeyPassphrase,
	}
	cache.Store(name, creds)
	return creds, name, true
}

func (r *Runner) writeCapture(def *JobDefinition, dev *dcim.Device, cleaned string) (string, int, error) {
	filename := expandFilenamePattern(def.FilenamePattern, dev.Name, dev.ID, def.CaptureType, r.now())
	dir := filepath.Join(def.BasePath, def.OutputDirectory)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(dir, filename)
	data := []byte(cleaned)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", 0, fmt.Errorf("write capture file: %w", err)
	}
	return path, len(data), nil
}

func (r *Runner) observeDevice(outcome string) {
	if r.Metrics != nil {
		r.Metrics.ObserveDeviceOutcome(outcome)
	}
}

func (r *Runner) updateJobState(ref JobRef, at time.Time, status string) {
	var id int64
	switch ref.Kind {
	case RefDBSlug, RefDBID:
		if ref.Kind == RefDBID {
			id = ref.ID
		} else {
			def, err := r.Jobs.GetJobBySlug(ref.Slug)
			if err != nil || def == nil {
				return
			}
			id = def.ID
		}
		_ = r.Jobs.UpdateJobRunState(id, at.Format(time.RFC3339), status)
	default:
		// legacy file-backed jobs have no database row to update
	}
}

func filterFromJob(def *JobDefinition, limit int) dcim.Filter {
	f := dcim.Filter{Limit: limit}
	if def.FilterSite != nil {
		f.Site = *def.FilterSite
	}
	if def.FilterRole != nil {
		f.Role = *def.FilterRole
	}
	if def.FilterPlatform != nil {
		f.Platform = *def.FilterPlatform
	}
	if def.FilterStatus != nil {
		f.Status = *def.FilterStatus
	}
	if def.FilterNamePattern != nil {
		f.NamePattern = *def.FilterNamePattern
	}
	return f
}

// assembleCommandString joins the paging-disable command (if any) and
// the primary command with a comma separator (spec.md §4.8 step 4). The
// primary command may itself already contain comma-separated tokens,
// including empty ones meaning "send a bare newline".
func assembleCommandString(pagingDisable, primary string) string {
	if pagingDisable == "" {
		return primary
	}
	return pagingDisable + "," + primary
}

// vendorTemplateMap normalizes a handful of common DCIM vendor strings
// to the tag convention templates are keyed on.
var vendorTemplateMap = map[string]string{
	"cisco_systems,_inc.": "cisco_ios",
	"cisco":               "cisco_ios",
	"arista_networks":     "arista_eos",
	"juniper_networks":    "juniper_junos",
}

func templateHint(def *JobDefinition, dev dcim.Device) string {
	if def.TemplateFilter != nil && *def.TemplateFilter != "" {
		return *def.TemplateFilter
	}
	vendor := strings.ToLower(strings.TrimSpace(dev.Vendor))
	if tag, ok := vendorTemplateMap[vendor]; ok {
		return tag + "_" + def.CaptureType
	}
	vendor = strings.NewReplacer(" ", "_", ",", "", ".", "").Replace(vendor)
	if vendor == "" {
		vendor = strings.ToLower(def.VendorTag)
	}
	return vendor + "_" + def.CaptureType
}

func expandFilenamePattern(pattern, deviceName string, deviceID int64, captureType string, at time.Time) string {
	r := strings.NewReplacer(
		"{device_name}", deviceName,
		"{device_id}", fmt.Sprintf("%d", deviceID),
		"{capture_type}", captureType,
		"{timestamp}", at.Format("20060102_150405"),
	)
	return r.Replace(pattern)
}

func sshPortOrDefault(port int) int {
	if port <= 0 {
		return 22
	}
	return port
}

// finalStatus implements I5: success only when every dispatched device
// both succeeded and validated (no failures, no validation skips);
// failed when nothing succeeded; partial otherwise. Mirrors the
// original's total_failed = failed_count + skipped_count test
// (vcollector/jobs/runner.py's _complete_history): a validation skip is
// "not succeeded" for status purposes even though it is tracked as its
// own count rather than folded into failed_count.
func finalStatus(success, failed, validationSkipped int) string {
	switch {
	case success == 0:
		return "failed"
	case failed == 0 && validationSkipped == 0:
		return "success"
	default:
		return "partial"
	}
}
