package jobfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleYAML = `
job_id: nightly-arp
capture_type: arp_table
vendor: cisco_ios
commands:
  paging_disable: terminal length 0
  command: show ip arp
  output_directory: arp
device_filter:
  vendor: cisco_ios
  site_id: dc1
  status: active
validation:
  use_tfsm: true
  tfsm_filter: cisco_ios_arp_table
  min_score: 50
  store_failures: false
execution:
  max_workers: 10
  timeout: 45
  inter_command_time: 300
storage:
  base_path: /captures
  filename_pattern: "{device_name}_{capture_type}_{timestamp}.txt"
`

func TestParsePopulatesAllSections(t *testing.T) {
	def, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	require.Equal(t, "nightly-arp", def.Slug)
	require.Equal(t, "arp_table", def.CaptureType)
	require.Equal(t, "terminal length 0", def.PagingDisableCmd)
	require.Equal(t, "show ip arp", def.PrimaryCmd)
	require.Equal(t, "arp", def.OutputDirectory)
	require.True(t, def.UseTextFSM)
	require.NotNil(t, def.TemplateFilter)
	require.Equal(t, "cisco_ios_arp_table", *def.TemplateFilter)
	require.Equal(t, 50.0, def.MinScore)
	require.False(t, def.SaveOnFailure)
	require.Equal(t, 10, def.MaxWorkers)
	require.Equal(t, 45, def.TimeoutSeconds)
	require.Equal(t, 300, def.InterCommandMs)
	require.Equal(t, "/captures", def.BasePath)
	require.NotNil(t, def.FilterSite)
	require.Equal(t, "dc1", *def.FilterSite)
	require.NotNil(t, def.FilterStatus)
	require.Equal(t, "active", *def.FilterStatus)
}

func TestParseAppliesDefaultsForMissingExecutionFields(t *testing.T) {
	const minimal = `
job_id: quick-check
capture_type: version
commands:
  command: show version
`
	def, err := Parse([]byte(minimal))
	require.NoError(t, err)
	require.Equal(t, 5, def.MaxWorkers)
	require.Equal(t, 30, def.TimeoutSeconds)
	require.Equal(t, 200, def.InterCommandMs)
	require.Equal(t, "{device_name}_{capture_type}_{timestamp}.txt", def.FilenamePattern)
	require.Nil(t, def.FilterSite)
}

func TestParseFileReadsFromDisk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "job.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))

	def, err := ParseFile(path)
	require.NoError(t, err)
	require.Equal(t, "nightly-arp", def.Slug)
}

func TestParseFileMissingReturnsError(t *testing.T) {
	_, err := ParseFile("/does/not/exist.yaml")
	require.Error(t, err)
}

func TestParseInvalidYAMLReturnsError(t *testing.T) {
	_, err := Parse([]byte("not: [valid: yaml"))
	require.Error(t, err)
}
