// Package artifact manages the downloader's on-disk result files: timestamped
// partial checkpoints written during a run, and the canonical final artifact
// per data type that downstream steps and the completeness validator trust.
package artifact

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	record "github.com/tigerroll/merchpipe/pkg/pipeline/downloader/record"
	"github.com/tigerroll/merchpipe/pkg/pipeline/support/util/exception"
	logger "github.com/tigerroll/merchpipe/pkg/pipeline/support/util/logger"
)

const componentName = "consolidator"

// fixedColumns lead every artifact CSV; payload columns follow.
var fixedColumns = []string{"store_code", "sku", "period"}

// Consolidator checkpoints in-flight batches and produces final artifacts.
type Consolidator struct {
	dataDir string
}

// NewConsolidator creates a consolidator rooted at the data directory.
func NewConsolidator(dataDir string) *Consolidator {
	return &Consolidator{dataDir: dataDir}
}

func (c *Consolidator) partialDir() string {
	return filepath.Join(c.dataDir, "partial")
}

// FinalPath returns the canonical final artifact path for a data type.
func (c *Consolidator) FinalPath(periodLabel string, t record.DataType) string {
	return filepath.Join(c.dataDir, fmt.Sprintf("%s_%s.csv", periodLabel, t))
}

// Checkpoint writes one timestamped fragment per non-empty dataset. Fragments
// are only ever consumed by Recover and deleted by CleanupPartials.
func (c *Consolidator) Checkpoint(periodLabel string, datasets map[record.DataType]*record.Dataset) error {
	stamp := time.Now().UTC().Format("20060102T150405.000000000")
	for _, t := range record.AllTypes {
		dataset := datasets[t]
		if dataset == nil || dataset.Len() == 0 {
			continue
		}
		path := filepath.Join(c.partialDir(), fmt.Sprintf("%s_%s_%s.csv", periodLabel, t, stamp))
		if err := writeCSV(path, dataset); err != nil {
			return exception.NewPipelineError(componentName, fmt.Sprintf("failed to checkpoint %s fragment", t), err, false, false)
		}
		logger.Debugf("Checkpointed %d %s row(s) to '%s'.", dataset.Len(), t, path)
	}
	return nil
}

// Recover loads every fragment of each requested type in chronological order
// and concatenates them, keeping the first occurrence per primary key. It
// returns nil when no fragments exist for the period.
func (c *Consolidator) Recover(periodLabel string, types []record.DataType) (map[record.DataType]*record.Dataset, error) {
	found := false
	out := make(map[record.DataType]*record.Dataset, len(types))
	for _, t := range types {
		pattern := filepath.Join(c.partialDir(), fmt.Sprintf("%s_%s_*.csv", periodLabel, t))
		paths, err := filepath.Glob(pattern)
		if err != nil {
			return nil, exception.NewPipelineError(componentName, "failed to list partial fragments", err, false, false)
		}
		if len(paths) == 0 {
			continue
		}
		found = true
		// Timestamps sort lexicographically, so name order is age order.
		sort.Strings(paths)

		merged := record.NewDataset(t)
		for _, path := range paths {
			fragment, err := readCSV(path, t)
			if err != nil {
				return nil, exception.NewPipelineError(componentName, fmt.Sprintf("failed to read fragment %q", path), err, false, false)
			}
			if err := merged.Merge(fragment); err != nil {
				return nil, exception.NewPipelineError(componentName, "fragment type mismatch", err, false, false)
			}
		}
		deduped, dropped := merged.Dedup()
		if dropped > 0 {
			logger.Warnf("Recovery of %s for period '%s' dropped %d duplicate row(s) across fragments.", t, periodLabel, dropped)
		}
		out[t] = deduped
	}
	if !found {
		return nil, nil
	}
	return out, nil
}

// WriteFinal deduplicates the dataset (first occurrence wins) and atomically
// replaces the final artifact for its type.
func (c *Consolidator) WriteFinal(periodLabel string, dataset *record.Dataset) error {
	deduped, dropped := dataset.Dedup()
	if dropped > 0 {
		// A nonzero delta usually means the upstream returned the same key in
		// more than one batch.
		logger.Warnf("Consolidation of %s for period '%s' dropped %d duplicate row(s).", dataset.Type, periodLabel, dropped)
	}

	final := c.FinalPath(periodLabel, dataset.Type)
	tmp := final + ".tmp"
	if err := writeCSV(tmp, deduped); err != nil {
		return exception.NewPipelineError(componentName, fmt.Sprintf("failed to write final %s artifact", dataset.Type), err, false, false)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return exception.NewPipelineError(componentName, fmt.Sprintf("failed to publish final %s artifact", dataset.Type), err, false, false)
	}
	logger.Infof("Wrote final %s artifact for period '%s' (%d row(s)).", dataset.Type, periodLabel, deduped.Len())
	return nil
}

// LoadFinal reads the final artifact for a data type. A missing artifact
// yields nil without error.
func (c *Consolidator) LoadFinal(periodLabel string, t record.DataType) (*record.Dataset, error) {
	path := c.FinalPath(periodLabel, t)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, exception.NewPipelineError(componentName, fmt.Sprintf("failed to stat final artifact %q", path), err, false, false)
	}
	dataset, err := readCSV(path, t)
	if err != nil {
		return nil, exception.NewPipelineError(componentName, fmt.Sprintf("failed to read final artifact %q", path), err, false, false)
	}
	return dataset, nil
}

// CleanupPartials deletes every fragment for the period. Called after the
// final artifacts have been written successfully.
func (c *Consolidator) CleanupPartials(periodLabel string) error {
	paths, err := filepath.Glob(filepath.Join(c.partialDir(), periodLabel+"_*.csv"))
	if err != nil {
		return exception.NewPipelineError(componentName, "failed to list partial fragments", err, false, false)
	}
	for _, path := range paths {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return exception.NewPipelineError(componentName, fmt.Sprintf("failed to delete fragment %q", path), err, false, false)
		}
	}
	if len(paths) > 0 {
		logger.Debugf("Deleted %d partial fragment(s) for period '%s'.", len(paths), periodLabel)
	}
	return nil
}

// ClearPeriod deletes the final artifacts and fragments for the period.
func (c *Consolidator) ClearPeriod(periodLabel string) error {
	for _, t := range record.AllTypes {
		if err := os.Remove(c.FinalPath(periodLabel, t)); err != nil && !os.IsNotExist(err) {
			return exception.NewPipelineError(componentName, fmt.Sprintf("failed to delete final %s artifact", t), err, false, false)
		}
	}
	return c.CleanupPartials(periodLabel)
}

func writeCSV(path string, dataset *record.Dataset) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := append(append([]string(nil), fixedColumns...), dataset.Columns...)
	if err := w.Write(header); err != nil {
		return err
	}
	for _, row := range dataset.Rows {
		fields := make([]string, 0, len(header))
		fields = append(fields, row.StoreCode, row.SKU, row.PeriodTag)
		for _, col := range dataset.Columns {
			fields = append(fields, row.Values[col])
		}
		if err := w.Write(fields); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Sync()
}

func readCSV(path string, t record.DataType) (*record.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return record.NewDataset(t), nil
	}

	header := rows[0]
	if len(header) < len(fixedColumns) {
		return nil, fmt.Errorf("artifact %q has a malformed header", path)
	}
	payloadCols := header[len(fixedColumns):]

	dataset := record.NewDataset(t)
	for _, fields := range rows[1:] {
		if len(fields) != len(header) {
			return nil, fmt.Errorf("artifact %q has a malformed row (want %d fields, got %d)", path, len(header), len(fields))
		}
		row := record.Row{
			StoreCode: fields[0],
			SKU:       fields[1],
			PeriodTag: fields[2],
			Values:    make(map[string]string, len(payloadCols)),
		}
		for i, col := range payloadCols {
			row.Values[col] = fields[len(fixedColumns)+i]
		}
		dataset.Append(row)
	}
	return dataset, nil
}
