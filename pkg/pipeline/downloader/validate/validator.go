// Package validate implements the completeness check: the fraction of the
// expected store universe present in the intersection of all required final
// artifacts.
package validate

import (
	"sort"

	artifact "github.com/tigerroll/merchpipe/pkg/pipeline/downloader/artifact"
	record "github.com/tigerroll/merchpipe/pkg/pipeline/downloader/record"
)

// Report is the outcome of one completeness check. It is recomputed on every
// call and never cached.
type Report struct {
	// Expected is the size of the expected key universe.
	Expected int
	// Covered holds the keys present in every required artifact.
	Covered map[string]bool
	// Missing holds the expected keys absent from at least one artifact,
	// sorted for stable reporting.
	Missing []string
	// PerArtifact maps each data type to the count of expected keys it holds.
	PerArtifact map[record.DataType]int
	// Fraction is |Covered| / |Expected|; 1.0 for an empty universe.
	Fraction float64
	// Complete is true when every expected key is covered.
	Complete bool
}

// Validator checks final artifacts against the expected key universe.
type Validator struct {
	consolidator *artifact.Consolidator
	types        []record.DataType
}

// NewValidator creates a validator over the given required data types.
func NewValidator(consolidator *artifact.Consolidator, types []record.DataType) *Validator {
	if len(types) == 0 {
		types = record.AllTypes
	}
	return &Validator{consolidator: consolidator, types: types}
}

// Check computes the completeness report for the period. A key counts as
// covered only when it appears in every required artifact; a missing artifact
// contributes an empty set rather than an error, so the check is safe to run
// before any data exists.
func (v *Validator) Check(periodLabel string, expected map[string]bool) (*Report, error) {
	report := &Report{
		Expected:    len(expected),
		PerArtifact: make(map[record.DataType]int, len(v.types)),
	}

	covered := make(map[string]bool, len(expected))
	for key := range expected {
		covered[key] = true
	}

	for _, t := range v.types {
		dataset, err := v.consolidator.LoadFinal(periodLabel, t)
		if err != nil {
			return nil, err
		}
		present := map[string]bool{}
		if dataset != nil {
			present = dataset.StoreCodes()
		}

		count := 0
		for key := range expected {
			if present[key] {
				count++
			}
		}
		report.PerArtifact[t] = count

		// Intersect: drop any key this artifact does not hold.
		for key := range covered {
			if !present[key] {
				delete(covered, key)
			}
		}
	}

	report.Covered = covered
	for key := range expected {
		if !covered[key] {
			report.Missing = append(report.Missing, key)
		}
	}
	sort.Strings(report.Missing)

	if report.Expected == 0 {
		report.Fraction = 1.0
	} else {
		report.Fraction = float64(len(covered)) / float64(report.Expected)
	}
	report.Complete = len(report.Missing) == 0
	return report, nil
}
