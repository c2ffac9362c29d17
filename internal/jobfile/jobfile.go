// Package jobfile parses the legacy file-backed job definition document
// (spec.md §6) into the same JobDefinition shape internal/store
// produces, so internal/runner can drive either source identically.
package jobfile

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/velocitycollector/velocitycollector/internal/runner"
)

type document struct {
	JobID       string `yaml:"job_id"`
	CaptureType string `yaml:"capture_type"`
	Vendor      string `yaml:"vendor"`

	Commands struct {
		PagingDisable   string `yaml:"paging_disable"`
		Command         string `yaml:"command"`
		OutputDirectory string `yaml:"output_directory"`
	} `yaml:"commands"`

	DeviceFilter struct {
		Source      string `yaml:"source"`
		Vendor      string `yaml:"vendor"`
		PlatformID  string `yaml:"platform_id"`
		SiteID      string `yaml:"site_id"`
		RoleID      string `yaml:"role_id"`
		NamePattern string `yaml:"name_pattern"`
		Status      string `yaml:"status"`
	} `yaml:"device_filter"`

	Validation struct {
		UseTFSM       bool    `yaml:"use_tfsm"`
		TFSMFilter    string  `yaml:"tfsm_filter"`
		MinScore      float64 `yaml:"min_score"`
		StoreFailures bool    `yaml:"store_failures"`
	} `yaml:"validation"`

	Execution struct {
		MaxWorkers     int `yaml:"max_workers"`
		TimeoutSeconds int `yaml:"timeout"`
		InterCommandMs int `yaml:"inter_command_time"`
	} `yaml:"execution"`

	Storage struct {
		BasePath        string `yaml:"base_path"`
		FilenamePattern string `yaml:"filename_pattern"`
	} `yaml:"storage"`
}

// Parse reads a YAML job definition document and converts it into the
// common runner.JobDefinition shape.
func Parse(data []byte) (*runner.JobDefinition, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse job file: %w", err)
	}

	def := &runner.JobDefinition{
		Slug:             doc.JobID,
		CaptureType:      doc.CaptureType,
		VendorTag:        doc.Vendor,
		PagingDisableCmd: doc.Commands.PagingDisable,
		PrimaryCmd:       doc.Commands.Command,
		UseTextFSM:       doc.Validation.UseTFSM,
		MinScore:         doc.Validation.MinScore,
		SaveOnFailure:    doc.Validation.StoreFailures,
		MaxWorkers:       doc.Execution.MaxWorkers,
		TimeoutSeconds:   doc.Execution.TimeoutSeconds,
		InterCommandMs:   doc.Execution.InterCommandMs,
		BasePath:         doc.Storage.BasePath,
		FilenamePattern:  doc.Storage.FilenamePattern,
		OutputDirectory:  doc.Commands.OutputDirectory,
	}
	if doc.Validation.TFSMFilter != "" {
		def.TemplateFilter = &doc.Validation.TFSMFilter
	}
	if doc.DeviceFilter.Vendor != "" {
		def.FilterPlatform = &doc.DeviceFilter.Vendor
	}
	if doc.DeviceFilter.SiteID != "" {
		def.FilterSite = &doc.DeviceFilter.SiteID
	}
	if doc.DeviceFilter.RoleID != "" {
		def.FilterRole = &doc.DeviceFilter.RoleID
	}
	if doc.DeviceFilter.NamePattern != "" {
		def.FilterNamePattern = &doc.DeviceFilter.NamePattern
	}
	if doc.DeviceFilter.Status != "" {
		def.FilterStatus = &doc.DeviceFilter.Status
	}

	if def.MaxWorkers == 0 {
		def.MaxWorkers = 5
	}
	if def.TimeoutSeconds == 0 {
		def.TimeoutSeconds = 30
	}
	if def.InterCommandMs == 0 {
		def.InterCommandMs = 200
	}
	if def.FilenamePattern == "" {
		def.FilenamePattern = "{device_name}_{capture_type}_{timestamp}.txt"
	}

	return def, nil
}

// ParseFile reads and parses a job definition document from disk.
func ParseFile(path string) (*runner.JobDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read job file %q: %w", path, err)
	}
	return Parse(data)
}
