package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/velocitycollector/velocitycollector/internal/runner"
	"github.com/velocitycollector/velocitycollector/internal/store"
)

// renderSummary renders a completed job run as an HTML fragment. The
// underlying markdown mirrors what an operator would want to see at a
// glance: status, device counts, and a timing line, with GFM tables for
// anything tabular, plus a per-device breakdown (chosen template and
// score, or the failure reason) decoded from the history row's
// device_records_json.
func renderSummary(h store.HistoryRow) ([]byte, error) {
	var md strings.Builder

	fmt.Fprintf(&md, "## Run #%d — %s\n\n", h.ID, h.JobRef)
	fmt.Fprintf(&md, "**Status:** %s  \n", h.Status)
	fmt.Fprintf(&md, "**Started:** %s  \n", h.StartedAt)
	if h.CompletedAt != nil {
		fmt.Fprintf(&md, "**Completed:** %s  \n", *h.CompletedAt)
	}
	md.WriteString("\n")

	md.WriteString("| devices | success | failed | validation skipped |\n")
	md.WriteString("|---|---|---|---|\n")
	fmt.Fprintf(&md, "| %d | %d | %d | %d |\n\n", h.TotalDevices, h.SuccessCount, h.FailedCount, h.ValidationSkippedCount)

	if h.ErrorMessage != nil && *h.ErrorMessage != "" {
		fmt.Fprintf(&md, "**Error:** %s\n", *h.ErrorMessage)
	}

	var records []runner.DeviceRecord
	if h.DeviceRecordsJSON != "" {
		_ = json.Unmarshal([]byte(h.DeviceRecordsJSON), &records)
	}
	if len(records) > 0 {
		md.WriteString("\n| device | outcome | template | score | detail |\n")
		md.WriteString("|---|---|---|---|---|\n")
		for _, rec := range records {
			outcome := "failed"
			if rec.Success {
				outcome = "success"
			}
			detail := rec.Message
			if detail == "" && rec.Path != "" {
				detail = rec.Path
			}
			fmt.Fprintf(&md, "| %s | %s | %s | %.1f | %s |\n",
				rec.Device, outcome, rec.TemplateName, rec.Score, detail)
		}
	}

	gm := goldmark.New(goldmark.WithExtensions(extension.GFM))
	var buf bytes.Buffer
	if err := gm.Convert([]byte(md.String()), &buf); err != nil {
		return nil, fmt.Errorf("render run summary: %w", err)
	}
	return buf.Bytes(), nil
}
