package runner

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/velocitycollector/velocitycollector/internal/dcim"
	"github.com/velocitycollector/velocitycollector/internal/executor"
	"github.com/velocitycollector/velocitycollector/internal/sshdriver"
	"github.com/velocitycollector/velocitycollector/internal/store"
	"github.com/velocitycollector/velocitycollector/internal/template"
)

const arpTemplateSource = `Value ADDRESS (\d+\.\d+\.\d+\.\d+)
Value MAC (\S+)
Value INTERFACE (\S+)

Start
  ^Internet\s+${ADDRESS}\s+\S+\s+${MAC}\s+ARPA\s+${INTERFACE}\s*$ -> Record
  ^. -> Next
`

const arpTranscript = "router#show ip arp\n" +
	"Internet  10.0.0.1         -          aabb.ccdd.eeff  ARPA   GigabitEthernet0/1\n" +
	"Internet  10.0.0.2         23         1122.3344.5566  ARPA   GigabitEthernet0/2\n" +
	"router#\n"

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func fixedNow() time.Time { return time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC) }

func newTestRunner(t *testing.T, minScore float64, saveOnFailure bool) (*Runner, *store.Store, string) {
	t.Helper()
	s := newTestStore(t)
	dcimStore := store.NewDCIM(s)
	tplStore := store.NewTemplates(s)

	require.NoError(t, tplStore.Put(template.Record{
		ID: "cisco_ios_arp_table", CommandTag: "cisco_ios_arp_table", Source: arpTemplateSource,
	}))

	devID, err := dcimStore.InsertDevice(dcim.Device{
		Name: "r1", PrimaryIP4: "10.0.0.1", SSHPort: 22,
		Vendor: "cisco_systems,_inc.", Status: "active",
	})
	require.NoError(t, err)
	_ = devID

	base := t.TempDir()
	jobID, err := s.InsertJob(&store.JobDefinition{
		Slug: "nightly-arp", CaptureType: "arp_table", VendorTag: "cisco_ios",
		PrimaryCmd: "show ip arp", UseTextFSM: true, MinScore: minScore, SaveOnFailure: saveOnFailure,
		MaxWorkers: 5, TimeoutSeconds: 30, InterCommandMs: 200,
		BasePath: base, FilenamePattern: "{device_name}_{capture_type}_{timestamp}.txt", OutputDirectory: "arp",
	})
	require.NoError(t, err)
	_ = jobID

	dialer := &sshdriver.FakeDialer{Script: map[string]*sshdriver.FakeSession{
		"10.0.0.1": {PromptResult: "router#", ExecResult: sshdriver.ExecResult{Transcript: arpTranscript}},
	}}
	pool := &executor.Pool{Dialer: dialer, Concurrency: 1, Timeouts: sshdriver.DefaultTimeouts()}

	r := &Runner{
		Jobs: s, History: s, Devices: dcimStore, Templates: tplStore, Pool: pool,
		NowFunc: fixedNow,
	}
	return r, s, base
}

func TestRunHappyPathValidationWritesCaptureFile(t *testing.T) {
	r, _, base := newTestRunner(t, 1, false)

	result, err := r.Run(context.Background(), DBSlugRef("nightly-arp"), Options{}, nil)
	require.NoError(t, err)
	require.Empty(t, result.Error)
	require.Equal(t, 1, result.Success)
	require.Equal(t, 0, result.Failed)
	require.Equal(t, 0, result.ValidationSkipped)
	require.Len(t, result.SavedFiles, 1)

	path := result.SavedFiles[0].Path
	require.Equal(t, filepath.Join(base, "arp", "r1_arp_table_20260731_000000.txt"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "10.0.0.1")
	require.NotContains(t, string(data), "show ip arp")
}

// The chosen template id/name and score must be discoverable from the
// history row's device_records_json afterward, not just from the
// in-memory JobResult (SPEC_FULL.md §6 open-question 3).
func TestRunPersistsDeviceRecordsWithTemplateAndScore(t *testing.T) {
	r, s, _ := newTestRunner(t, 1, false)

	result, err := r.Run(context.Background(), DBSlugRef("nightly-arp"), Options{}, nil)
	require.NoError(t, err)

	h, err := s.GetHistory(result.HistoryID)
	require.NoError(t, err)
	require.Equal(t, 1, h.TotalDevices)

	var records []DeviceRecord
	require.NoError(t, json.Unmarshal([]byte(h.DeviceRecordsJSON), &records))
	require.Len(t, records, 1)
	require.Equal(t, "10.0.0.1", records[0].Device)
	require.True(t, records[0].Success)
	require.Equal(t, "cisco_ios_arp_table", records[0].TemplateID)
	require.NotZero(t, records[0].Score)
	require.Equal(t, result.SavedFiles[0].Path, records[0].Path)
}

func TestRunUpdatesJobLastRunState(t *testing.T) {
	r, s, _ := newTestRunner(t, 1, false)

	_, err := r.Run(context.Background(), DBSlugRef("nightly-arp"), Options{}, nil)
	require.NoError(t, err)

	job, err := s.GetJobBySlug("nightly-arp")
	require.NoError(t, err)
	require.NotNil(t, job.LastRunStatus)
	require.Equal(t, "success", *job.LastRunStatus)
}

func TestRunClosesHistoryRow(t *testing.T) {
	r, s, _ := newTestRunner(t, 1, false)

	result, err := r.Run(context.Background(), DBSlugRef("nightly-arp"), Options{}, nil)
	require.NoError(t, err)

	h, err := s.GetHistory(result.HistoryID)
	require.NoError(t, err)
	require.NotNil(t, h)
	require.NotEqual(t, "running", h.Status)
	require.Equal(t, "success", h.Status)
}

func TestRunValidationSkipWhenScoreTooLow(t *testing.T) {
	r, _, _ := newTestRunner(t, 1000, false)

	result, err := r.Run(context.Background(), DBSlugRef("nightly-arp"), Options{}, nil)
	require.NoError(t, err)
	require.Equal(t, 0, result.Success)
	require.Equal(t, 1, result.ValidationSkipped)
	require.Empty(t, result.SavedFiles)
	require.Len(t, result.ValidationFailures, 1)
}

func TestRunSaveOnFailureWritesFileDespiteLowScore(t *testing.T) {
	r, _, _ := newTestRunner(t, 1000, true)

	result, err := r.Run(context.Background(), DBSlugRef("nightly-arp"), Options{}, nil)
	require.NoError(t, err)
	require.Equal(t, 1, result.Success)
	require.Len(t, result.SavedFiles, 1)
}

func TestRunUnknownJobSlugReturnsError(t *testing.T) {
	r, _, _ := newTestRunner(t, 1, false)

	_, err := r.Run(context.Background(), DBSlugRef("does-not-exist"), Options{}, nil)
	require.Error(t, err)
}

func TestRunNoMatchingDevicesIsJobLevelError(t *testing.T) {
	s := newTestStore(t)
	dcimStore := store.NewDCIM(s)
	tplStore := store.NewTemplates(s)
	base := t.TempDir()

	_, err := s.InsertJob(&store.JobDefinition{
		Slug: "empty-job", CaptureType: "arp_table", PrimaryCmd: "show ip arp",
		MaxWorkers: 5, TimeoutSeconds: 30, BasePath: base, FilenamePattern: "{device_name}.txt",
	})
	require.NoError(t, err)

	pool := &executor.Pool{Dialer: &sshdriver.FakeDialer{Script: map[string]*sshdriver.FakeSession{}}, Concurrency: 1}
	r := &Runner{Jobs: s, History: s, Devices: dcimStore, Templates: tplStore, Pool: pool, NowFunc: fixedNow}

	result, err := r.Run(context.Background(), DBSlugRef("empty-job"), Options{}, nil)
	require.NoError(t, err)
	require.NotEmpty(t, result.Error)

	h, err := s.GetHistory(result.HistoryID)
	require.NoError(t, err)
	require.Equal(t, "failed", h.Status)
}

func TestRunDeviceFailureIsCategorized(t *testing.T) {
	s := newTestStore(t)
	dcimStore := store.NewDCIM(s)
	tplStore := store.NewTemplates(s)
	base := t.TempDir()

	_, err := dcimStore.InsertDevice(dcim.Device{Name: "r1", PrimaryIP4: "10.0.0.1", Status: "active"})
	require.NoError(t, err)
	_, err = s.InsertJob(&store.JobDefinition{
		Slug: "fail-job", CaptureType: "arp_table", PrimaryCmd: "show ip arp",
		MaxWorkers: 5, TimeoutSeconds: 30, BasePath: base, FilenamePattern: "{device_name}.txt",
	})
	require.NoError(t, err)

	dialer := &sshdriver.FakeDialer{Script: map[string]*sshdriver.FakeSession{
		"10.0.0.1": {ConnectErr: sshdriver.NewError(sshdriver.CategoryAuth, "bad password", "")},
	}}
	pool := &executor.Pool{Dialer: dialer, Concurrency: 1}
	r := &Runner{Jobs: s, History: s, Devices: dcimStore, Templates: tplStore, Pool: pool, NowFunc: fixedNow}

	result, err := r.Run(context.Background(), DBSlugRef("fail-job"), Options{}, nil)
	require.NoError(t, err)
	require.Equal(t, 1, result.Failed)
	require.Len(t, result.DeviceErrors, 1)
	require.Equal(t, sshdriver.CategoryAuth, result.DeviceErrors[0].Category)
}

// S5: two devices, one succeeds and one fails with a command timeout —
// the run is partial and the counts reflect exactly one of each.
func TestRunPartialWhenOneDeviceSucceedsAndOneFails(t *testing.T) {
	s := newTestStore(t)
	dcimStore := store.NewDCIM(s)
	tplStore := store.NewTemplates(s)
	require.NoError(t, tplStore.Put(template.Record{
		ID: "cisco_ios_arp_table", CommandTag: "cisco_ios_arp_table", Source: arpTemplateSource,
	}))
	base := t.TempDir()

	_, err := dcimStore.InsertDevice(dcim.Device{
		Name: "r1", PrimaryIP4: "10.0.0.1", Vendor: "cisco_systems,_inc.", Status: "active",
	})
	require.NoError(t, err)
	_, err = dcimStore.InsertDevice(dcim.Device{
		Name: "r2", PrimaryIP4: "10.0.0.2", Vendor: "cisco_systems,_inc.", Status: "active",
	})
	require.NoError(t, err)
	_, err = s.InsertJob(&store.JobDefinition{
		Slug: "mixed-job", CaptureType: "arp_table", VendorTag: "cisco_ios", PrimaryCmd: "show ip arp",
		UseTextFSM: true, MinScore: 1, MaxWorkers: 2, TimeoutSeconds: 30,
		BasePath: base, FilenamePattern: "{device_name}_{capture_type}_{timestamp}.txt", OutputDirectory: "arp",
	})
	require.NoError(t, err)

	dialer := &sshdriver.FakeDialer{Script: map[string]*sshdriver.FakeSession{
		"10.0.0.1": {PromptResult: "router#", ExecResult: sshdriver.ExecResult{Transcript: arpTranscript}},
		"10.0.0.2": {PromptResult: "router#", ExecErr: sshdriver.NewError(sshdriver.CategoryCommandTimeout, "deadline exceeded", "")},
	}}
	pool := &executor.Pool{Dialer: dialer, Concurrency: 2, Timeouts: sshdriver.DefaultTimeouts()}
	r := &Runner{Jobs: s, History: s, Devices: dcimStore, Templates: tplStore, Pool: pool, NowFunc: fixedNow}

	result, err := r.Run(context.Background(), DBSlugRef("mixed-job"), Options{}, nil)
	require.NoError(t, err)
	require.Equal(t, 1, result.Success)
	require.Equal(t, 1, result.Failed)
	require.Len(t, result.DeviceErrors, 1)
	require.Equal(t, sshdriver.CategoryCommandTimeout, result.DeviceErrors[0].Category)

	h, err := s.GetHistory(result.HistoryID)
	require.NoError(t, err)
	require.Equal(t, "partial", h.Status)

	job, err := s.GetJobBySlug("mixed-job")
	require.NoError(t, err)
	require.Equal(t, "partial", *job.LastRunStatus)
}

// P2: success + failed + validation_skipped never exceeds total_devices;
// the difference is exactly the devices filtered out before dispatch
// (here, one device with no primary IP).
func TestRunDeviceCountInvariantExcludesFilteredDevices(t *testing.T) {
	s := newTestStore(t)
	dcimStore := store.NewDCIM(s)
	tplStore := store.NewTemplates(s)
	require.NoError(t, tplStore.Put(template.Record{
		ID: "cisco_ios_arp_table", CommandTag: "cisco_ios_arp_table", Source: arpTemplateSource,
	}))
	base := t.TempDir()

	_, err := dcimStore.InsertDevice(dcim.Device{
		Name: "r1", PrimaryIP4: "10.0.0.1", Vendor: "cisco_systems,_inc.", Status: "active",
	})
	require.NoError(t, err)
	_, err = dcimStore.InsertDevice(dcim.Device{Name: "no-ip", Status: "active"})
	require.NoError(t, err)
	_, err = s.InsertJob(&store.JobDefinition{
		Slug: "p2-job", CaptureType: "arp_table", VendorTag: "cisco_ios", PrimaryCmd: "show ip arp",
		UseTextFSM: true, MinScore: 1, MaxWorkers: 2, TimeoutSeconds: 30,
		BasePath: base, FilenamePattern: "{device_name}_{capture_type}_{timestamp}.txt", OutputDirectory: "arp",
	})
	require.NoError(t, err)

	dialer := &sshdriver.FakeDialer{Script: map[string]*sshdriver.FakeSession{
		"10.0.0.1": {PromptResult: "router#", ExecResult: sshdriver.ExecResult{Transcript: arpTranscript}},
	}}
	pool := &executor.Pool{Dialer: dialer, Concurrency: 2, Timeouts: sshdriver.DefaultTimeouts()}
	r := &Runner{Jobs: s, History: s, Devices: dcimStore, Templates: tplStore, Pool: pool, NowFunc: fixedNow}

	result, err := r.Run(context.Background(), DBSlugRef("p2-job"), Options{}, nil)
	require.NoError(t, err)

	totalDevices := 2
	require.LessOrEqual(t, result.Success+result.Failed+result.ValidationSkipped, totalDevices)
	require.Equal(t, 1, result.Success)
	require.Equal(t, 0, result.Failed)
	require.Equal(t, 0, result.ValidationSkipped)
}

func TestRunSkipsDeviceWithoutPrimaryIP4(t *testing.T) {
	s := newTestStore(t)
	dcimStore := store.NewDCIM(s)
	tplStore := store.NewTemplates(s)
	base := t.TempDir()

	_, err := dcimStore.InsertDevice(dcim.Device{Name: "no-ip", Status: "active"})
	require.NoError(t, err)
	_, err = s.InsertJob(&store.JobDefinition{
		Slug: "no-ip-job", CaptureType: "arp_table", PrimaryCmd: "show ip arp",
		MaxWorkers: 5, TimeoutSeconds: 30, BasePath: base, FilenamePattern: "{device_name}.txt",
	})
	require.NoError(t, err)

	pool := &executor.Pool{Dialer: &sshdriver.FakeDialer{Script: map[string]*sshdriver.FakeSession{}}, Concurrency: 1}
	r := &Runner{Jobs: s, History: s, Devices: dcimStore, Templates: tplStore, Pool: pool, NowFunc: fixedNow}

	result, err := r.Run(context.Background(), DBSlugRef("no-ip-job"), Options{}, nil)
	require.NoError(t, err)
	require.NotEmpty(t, result.Error)
}

func TestAssembleCommandStringJoinsPagingAndPrimary(t *testing.T) {
	require.Equal(t, "term len 0,show ip arp", assembleCommandString("term len 0", "show ip arp"))
	require.Equal(t, "show ip arp", assembleCommandString("", "show ip arp"))
}

func TestFinalStatus(t *testing.T) {
	require.Equal(t, "success", finalStatus(3, 0, 0))
	require.Equal(t, "failed", finalStatus(0, 3, 0))
	require.Equal(t, "partial", finalStatus(2, 1, 0))
	require.Equal(t, "failed", finalStatus(0, 0, 0))
	// I5: a validation skip counts as "not succeeded" even with zero
	// outright failures.
	require.Equal(t, "partial", finalStatus(2, 0, 1))
	require.Equal(t, "failed", finalStatus(0, 0, 3))
}

func TestRunCallsOnHistoryOpenedBeforeDeviceWork(t *testing.T) {
	r, _, _ := newTestRunner(t, 1, false)

	var seen int64
	r.OnHistoryOpened = func(historyID int64) { seen = historyID }

	result, err := r.Run(context.Background(), DBSlugRef("nightly-arp"), Options{}, nil)
	require.NoError(t, err)
	require.Equal(t, result.HistoryID, seen)
}

func TestExpandFilenamePattern(t *testing.T) {
	got := expandFilenamePattern("{device_name}_{capture_type}_{timestamp}.txt", "r1", 42, "arp_table", fixedNow())
	require.Equal(t, "r1_arp_table_20260731_000000.txt", got)
}
