// Package downloader implements the resumable store-data acquisition run: it
// decides which store codes still need fetching, drives the batch client over
// the delta, records progress in the append-only ledger, checkpoints partial
// results, and consolidates final artifacts with a completeness verdict.
package downloader

import (
	"bufio"
	"context"
	"os"
	"sort"
	"strings"
	"time"

	config "github.com/tigerroll/merchpipe/pkg/pipeline/core/config"
	metrics "github.com/tigerroll/merchpipe/pkg/pipeline/core/metrics"
	model "github.com/tigerroll/merchpipe/pkg/pipeline/core/model"
	artifact "github.com/tigerroll/merchpipe/pkg/pipeline/downloader/artifact"
	client "github.com/tigerroll/merchpipe/pkg/pipeline/downloader/client"
	ledgerpkg "github.com/tigerroll/merchpipe/pkg/pipeline/downloader/ledger"
	record "github.com/tigerroll/merchpipe/pkg/pipeline/downloader/record"
	validate "github.com/tigerroll/merchpipe/pkg/pipeline/downloader/validate"
	"github.com/tigerroll/merchpipe/pkg/pipeline/support/util/exception"
	logger "github.com/tigerroll/merchpipe/pkg/pipeline/support/util/logger"
)

const componentName = "downloader"

// Request describes one downloader invocation.
type Request struct {
	Period model.Period
	// BatchSize overrides the configured batch size when positive.
	BatchSize int
	// ForceFull discards existing progress and refetches the full universe.
	ForceFull bool
	// Recover consolidates from partial artifacts only; no network calls.
	Recover bool
}

// Summary is the outcome of one downloader run.
type Summary struct {
	PeriodLabel  string
	UniverseSize int
	// Skipped counts keys excluded from fetching because they previously
	// succeeded and are not flagged failed.
	Skipped int
	// Attempted counts keys in the fetch delta.
	Attempted int
	// Succeeded and Failed count keys by outcome within this run.
	Succeeded int
	Failed    int
	// Requests counts network batch requests issued (per data type).
	Requests int
	// Fraction is the final completeness fraction.
	Fraction float64
	// MissingKeys counts expected keys absent from the final artifacts.
	MissingKeys int
	// FastPath is true when the run terminated on the 100%-complete check
	// without any network calls.
	FastPath bool
	// Recovered is true for a --recover run.
	Recovered bool
	// Success is true when completeness reached the configured threshold.
	Success bool
}

// Downloader composes the batch client, progress ledger, consolidator and
// completeness validator. One instance serves one period at a time; there is
// no cross-process locking, so concurrent runs against the same period are
// not supported.
type Downloader struct {
	client       client.BatchClient
	ledger       *ledgerpkg.Ledger
	consolidator *artifact.Consolidator
	validator    *validate.Validator
	recorder     metrics.MetricRecorder
	// exporter is optional; nil disables parquet publication.
	exporter *artifact.ParquetExporter

	cfg        config.DownloadConfig
	batchPause time.Duration
}

// Params collects the downloader's dependencies.
type Params struct {
	Client       client.BatchClient
	Ledger       *ledgerpkg.Ledger
	Consolidator *artifact.Consolidator
	Validator    *validate.Validator
	Recorder     metrics.MetricRecorder
	Exporter     *artifact.ParquetExporter
	Download     config.DownloadConfig
	BatchPause   time.Duration
}

// New creates a Downloader.
func New(p Params) *Downloader {
	return &Downloader{
		client:       p.Client,
		ledger:       p.Ledger,
		consolidator: p.Consolidator,
		validator:    p.Validator,
		recorder:     p.Recorder,
		exporter:     p.Exporter,
		cfg:          p.Download,
		batchPause:   p.BatchPause,
	}
}

// Run executes the acquisition state machine for the requested period.
func (d *Downloader) Run(ctx context.Context, req Request) (*Summary, error) {
	label := req.Period.Label()

	universe, err := d.loadUniverse()
	if err != nil {
		return nil, err
	}
	if len(universe) == 0 {
		return nil, exception.Errorf(componentName, "store universe is empty (store list: %q)", d.cfg.StoreListFile).WithCritical()
	}
	universeSet := toSet(universe)

	if req.Recover {
		return d.recoverOnly(ctx, label, universeSet)
	}

	// The authoritative fast path: when the final artifacts already cover
	// the whole universe there is nothing to do, and the ledger is not even
	// consulted.
	if !req.ForceFull {
		report, err := d.validator.Check(label, universeSet)
		if err != nil {
			return nil, err
		}
		if report.Complete {
			logger.Infof("Period '%s' is already 100%% complete; nothing to fetch.", label)
			d.recorder.RecordCompleteness(ctx, label, 1.0)
			return &Summary{
				PeriodLabel:  label,
				UniverseSize: len(universe),
				Skipped:      len(universe),
				Fraction:     1.0,
				FastPath:     true,
				Success:      true,
			}, nil
		}
	}

	if req.ForceFull {
		logger.Infof("Force-full requested: discarding progress ledger and all artifacts for period '%s'.", label)
		if err := d.ledger.Clear(label); err != nil {
			return nil, err
		}
		if err := d.consolidator.ClearPeriod(label); err != nil {
			return nil, err
		}
	}

	succeededSet, failedSet, err := d.ledger.Load(label)
	if err != nil {
		return nil, err
	}

	// A key is skipped only when it previously succeeded and is not flagged
	// failed; subtracting Failed pulls flaky keys back into the delta.
	skipSet := make(map[string]bool, len(succeededSet))
	for key := range succeededSet {
		if !failedSet[key] {
			skipSet[key] = true
		}
	}

	var toFetch []string
	for _, key := range universe {
		if !skipSet[key] {
			toFetch = append(toFetch, key)
		}
	}

	summary := &Summary{
		PeriodLabel:  label,
		UniverseSize: len(universe),
		Skipped:      len(universe) - len(toFetch),
		Attempted:    len(toFetch),
	}
	logger.Infof("Period '%s': universe=%d skip=%d fetch=%d", label, len(universe), summary.Skipped, len(toFetch))

	// base holds the existing final artifacts so consolidation preserves
	// rows of previously fetched stores.
	base := make(map[record.DataType]*record.Dataset, len(record.AllTypes))
	accumulated := make(map[record.DataType]*record.Dataset, len(record.AllTypes))
	pending := make(map[record.DataType]*record.Dataset, len(record.AllTypes))
	for _, t := range record.AllTypes {
		existing, err := d.consolidator.LoadFinal(label, t)
		if err != nil {
			return nil, err
		}
		if existing == nil || req.ForceFull {
			existing = record.NewDataset(t)
		}
		base[t] = existing
		accumulated[t] = record.NewDataset(t)
		pending[t] = record.NewDataset(t)
	}

	checkpointInterval := d.cfg.CheckpointInterval
	if checkpointInterval <= 0 {
		checkpointInterval = 5
	}
	batchSize := req.BatchSize
	if batchSize <= 0 {
		batchSize = 10
	}

	batchIndex := 0
	for start := 0; start < len(toFetch); start += batchSize {
		if err := ctx.Err(); err != nil {
			return summary, exception.NewPipelineError(componentName, "download run cancelled", err, false, false)
		}

		end := start + batchSize
		if end > len(toFetch) {
			end = len(toFetch)
		}
		batch := toFetch[start:end]
		batchIndex++

		batchSucceeded, batchFailed, requests := d.fetchBatch(ctx, batch, req.Period, pending, accumulated)
		summary.Requests += requests

		// Success is sticky: a key recorded succeeded in an earlier run is
		// never re-added to the failed list by a later flaky attempt.
		var recordFailed []string
		for _, key := range batchFailed {
			if !succeededSet[key] {
				recordFailed = append(recordFailed, key)
			}
		}

		if err := d.ledger.AppendSucceeded(label, batchSucceeded); err != nil {
			return summary, err
		}
		if err := d.ledger.AppendFailed(label, recordFailed); err != nil {
			return summary, err
		}
		for _, key := range batchSucceeded {
			succeededSet[key] = true
		}
		summary.Succeeded += len(batchSucceeded)
		summary.Failed += len(recordFailed)

		if batchIndex%checkpointInterval == 0 {
			if err := d.consolidator.Checkpoint(label, pending); err != nil {
				return summary, err
			}
			for _, t := range record.AllTypes {
				pending[t] = record.NewDataset(t)
			}
		}

		if end < len(toFetch) && d.batchPause > 0 {
			// Courtesy pause toward the upstream's rate limits.
			select {
			case <-time.After(d.batchPause):
			case <-ctx.Done():
				return summary, exception.NewPipelineError(componentName, "download run cancelled", ctx.Err(), false, false)
			}
		}
	}

	if err := d.consolidator.Checkpoint(label, pending); err != nil {
		return summary, err
	}

	if err := d.consolidate(ctx, label, base, accumulated); err != nil {
		return summary, err
	}

	report, err := d.validator.Check(label, universeSet)
	if err != nil {
		return summary, err
	}
	d.finishSummary(ctx, summary, report)
	return summary, nil
}

// fetchBatch fetches every data type for the key batch. A key succeeds only
// when it is present in the response of every data type; everything else in
// the batch is failed. A fully failed fetch (retries exhausted) fails the
// whole batch without aborting the run.
func (d *Downloader) fetchBatch(
	ctx context.Context,
	batch []string,
	period model.Period,
	pending, accumulated map[record.DataType]*record.Dataset,
) (succeeded, failed []string, requests int) {
	presentInAll := toSet(batch)

	for _, t := range record.AllTypes {
		result, err := d.client.FetchBatch(ctx, t, batch, period)
		requests++
		if err != nil {
			logger.Warnf("Batch of %d key(s) failed for %s: %v", len(batch), t, exception.ExtractErrorMessage(err))
			d.recorder.RecordBatch(ctx, t.String(), 0, len(batch))
			return nil, batch, requests
		}
		d.recorder.RecordBatch(ctx, t.String(), len(result.Present), len(result.Missing))

		pending[t].Append(result.Rows...)
		accumulated[t].Append(result.Rows...)

		present := toSet(result.Present)
		for key := range presentInAll {
			if !present[key] {
				delete(presentInAll, key)
			}
		}
	}

	for _, key := range batch {
		if presentInAll[key] {
			succeeded = append(succeeded, key)
		} else {
			failed = append(failed, key)
		}
	}
	return succeeded, failed, requests
}

// consolidate writes the final artifact per data type from the existing
// final rows plus this run's accumulated rows, then deletes the fragments
// and publishes parquet exports when configured.
func (d *Downloader) consolidate(ctx context.Context, label string, base, accumulated map[record.DataType]*record.Dataset) error {
	for _, t := range record.AllTypes {
		final := record.NewDataset(t)
		if err := final.Merge(base[t]); err != nil {
			return err
		}
		if err := final.Merge(accumulated[t]); err != nil {
			return err
		}
		if final.Len() == 0 {
			continue
		}
		if err := d.consolidator.WriteFinal(label, final); err != nil {
			return err
		}
		if d.exporter != nil {
			deduped, _ := final.Dedup()
			if err := d.exporter.Export(ctx, label, deduped); err != nil {
				// Export is a publication concern, not part of the local
				// consolidation contract.
				logger.Errorf("Parquet export of %s for period '%s' failed: %v", t, label, err)
			}
		}
	}
	return d.consolidator.CleanupPartials(label)
}

// recoverOnly rebuilds final artifacts from partial fragments without any
// network activity. It refuses to run when no fragments exist.
func (d *Downloader) recoverOnly(ctx context.Context, label string, universeSet map[string]bool) (*Summary, error) {
	recovered, err := d.consolidator.Recover(label, record.AllTypes)
	if err != nil {
		return nil, err
	}
	if recovered == nil {
		return nil, exception.Errorf(componentName, "no partial artifacts to recover for period %q", label)
	}

	for _, t := range record.AllTypes {
		dataset := recovered[t]
		if dataset == nil || dataset.Len() == 0 {
			continue
		}
		if err := d.consolidator.WriteFinal(label, dataset); err != nil {
			return nil, err
		}
	}
	if err := d.consolidator.CleanupPartials(label); err != nil {
		return nil, err
	}

	report, err := d.validator.Check(label, universeSet)
	if err != nil {
		return nil, err
	}
	summary := &Summary{
		PeriodLabel:  label,
		UniverseSize: len(universeSet),
		Recovered:    true,
	}
	d.finishSummary(ctx, summary, report)
	logger.Infof("Recovered period '%s' from partial artifacts (completeness %.1f%%).", label, summary.Fraction*100)
	return summary, nil
}

func (d *Downloader) finishSummary(ctx context.Context, summary *Summary, report *validate.Report) {
	summary.Fraction = report.Fraction
	summary.MissingKeys = len(report.Missing)
	threshold := d.cfg.CompletenessThreshold
	if threshold <= 0 {
		threshold = 0.95
	}
	summary.Success = report.Fraction >= threshold
	d.recorder.RecordCompleteness(ctx, summary.PeriodLabel, report.Fraction)

	switch {
	case report.Complete:
		logger.Infof("Period '%s' is 100%% complete.", summary.PeriodLabel)
	case summary.Success:
		logger.Warnf("Period '%s' is %.1f%% complete (%d key(s) missing); above the %.0f%% threshold, continuing.",
			summary.PeriodLabel, report.Fraction*100, len(report.Missing), threshold*100)
	default:
		logger.Errorf("Period '%s' is only %.1f%% complete (%d key(s) missing); below the %.0f%% threshold.",
			summary.PeriodLabel, report.Fraction*100, len(report.Missing), threshold*100)
	}
}

func (d *Downloader) loadUniverse() ([]string, error) {
	return ReadStoreList(d.cfg.StoreListFile)
}

// ReadStoreList reads the expected store codes, one per line. Blank lines and
// '#' comments are ignored; duplicates collapse while preserving first-seen
// order.
func ReadStoreList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, exception.NewPipelineError(componentName, "failed to open store list", err, false, true)
	}
	defer f.Close()

	var out []string
	seen := make(map[string]bool)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !seen[line] {
			seen[line] = true
			out = append(out, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, exception.NewPipelineError(componentName, "failed to read store list", err, false, true)
	}
	return out, nil
}

func toSet(keys []string) map[string]bool {
	out := make(map[string]bool, len(keys))
	for _, key := range keys {
		out[key] = true
	}
	return out
}

// SortedKeys returns the keys of a set in sorted order. Exposed for stable
// operator-facing reporting.
func SortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for key := range set {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}
