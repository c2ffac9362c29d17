package template

import (
	"strings"

	"github.com/velocitycollector/velocitycollector/internal/textfsm"
)

// Result is the outcome of scoring one candidate template against a
// transcript.
type Result struct {
	TemplateID string
	CommandTag string
	Score      float64
	Records    []map[string]string
}

// Score parses cleanedOutput against every candidate and returns the
// single highest-scoring template along with its parsed records (§4.5).
// Ties are broken in candidate iteration order (stable): the first
// candidate to reach a given score wins. A candidate whose template
// fails to parse contributes score 0 rather than aborting the scan.
func Score(candidates []Record, cleanedOutput string) (Result, error) {
	var best Result
	haveBest := false

	for _, c := range candidates {
		tpl, err := textfsm.Parse(c.CommandTag, c.Source)
		if err != nil {
			continue
		}
		records, err := tpl.Run(cleanedOutput)
		if err != nil {
			continue
		}

		s := scoreRecords(c.CommandTag, tpl.FieldCount(), records)
		if !haveBest || s > best.Score {
			best = Result{TemplateID: c.ID, CommandTag: c.CommandTag, Score: s, Records: records}
			haveBest = true
		}
	}

	return best, nil
}

// scoreRecords computes the four bounded subscores and sums them
// (§4.5). F is the template's declared field count; R is the parsed
// record count; P is the populated-cell count across all records.
func scoreRecords(commandTag string, fieldCount int, records []map[string]string) float64 {
	r := len(records)
	f := fieldCount
	p := populatedCells(records)

	return recordsSubscore(commandTag, r) +
		fieldRichnessSubscore(f) +
		populationRateSubscore(r, f, p) +
		consistencySubscore(r, f, records)
}

func populatedCells(records []map[string]string) int {
	n := 0
	for _, rec := range records {
		for _, v := range rec {
			if v != "" {
				n++
			}
		}
	}
	return n
}

// recordsSubscore implements §4.5's Records (0-30) rule, including the
// R=3..10 interpolation chosen in SPEC_FULL.md's open-question
// resolution: 10 + (R-3)*(20/7), clamped to [0,30].
func recordsSubscore(commandTag string, r int) float64 {
	isVersion := strings.Contains(strings.ToLower(commandTag), "version")
	if isVersion {
		if r == 1 {
			return 30
		}
		return clamp(15-5*float64(r-1), 0, 30)
	}
	switch {
	case r >= 10:
		return 30
	case r < 3:
		return 10 * float64(r)
	default:
		return clamp(10+(float64(r)-3)*(20.0/7.0), 0, 30)
	}
}

// fieldRichnessSubscore implements §4.5's Field richness (0-30) rule: a
// smooth, continuous interpolation between the F<3 and F>=10 regimes
// (5*F at F=3 equals 15, matching the interpolation's lower bound).
func fieldRichnessSubscore(f int) float64 {
	switch {
	case f >= 10:
		return 30
	case f < 3:
		return 5 * float64(f)
	default:
		return clamp(15+(float64(f)-3)*(15.0/7.0), 0, 30)
	}
}

func populationRateSubscore(r, f, p int) float64 {
	if r*f == 0 {
		return 0
	}
	return clamp(25*float64(p)/float64(r*f), 0, 25)
}

func consistencySubscore(r, f int, records []map[string]string) float64 {
	if r == 1 {
		return 15
	}
	if f == 0 {
		return 0
	}

	fieldNames := map[string]struct{}{}
	for _, rec := range records {
		for name := range rec {
			fieldNames[name] = struct{}{}
		}
	}

	consistent := 0
	for name := range fieldNames {
		populated := 0
		for _, rec := range records {
			if rec[name] != "" {
				populated++
			}
		}
		if populated == 0 || populated == r {
			consistent++
		}
	}
	return clamp(15*float64(consistent)/float64(f), 0, 15)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
