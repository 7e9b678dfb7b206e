// Package ledger persists download progress per reporting period as two
// append-only line-delimited key lists. A crash mid-append loses at most the
// unflushed tail; the files are never rewritten in place.
package ledger

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tigerroll/merchpipe/pkg/pipeline/support/util/exception"
	logger "github.com/tigerroll/merchpipe/pkg/pipeline/support/util/logger"
)

const componentName = "progress_ledger"

// Ledger records which store codes succeeded or failed for a period.
type Ledger struct {
	dataDir string
}

// New creates a ledger rooted at the given data directory.
func New(dataDir string) *Ledger {
	return &Ledger{dataDir: dataDir}
}

func (l *Ledger) succeededPath(periodLabel string) string {
	return filepath.Join(l.dataDir, periodLabel+"_succeeded.txt")
}

func (l *Ledger) failedPath(periodLabel string) string {
	return filepath.Join(l.dataDir, periodLabel+"_failed.txt")
}

// Load reads both key lists for the period. Missing files yield empty sets.
// Because the lists are append-only, a key may legitimately appear multiple
// times; the returned sets collapse duplicates.
func (l *Ledger) Load(periodLabel string) (succeeded, failed map[string]bool, err error) {
	succeeded, err = readKeySet(l.succeededPath(periodLabel))
	if err != nil {
		return nil, nil, exception.NewPipelineError(componentName, "failed to read succeeded ledger", err, false, false)
	}
	failed, err = readKeySet(l.failedPath(periodLabel))
	if err != nil {
		return nil, nil, exception.NewPipelineError(componentName, "failed to read failed ledger", err, false, false)
	}
	return succeeded, failed, nil
}

// AppendSucceeded appends keys to the succeeded list.
func (l *Ledger) AppendSucceeded(periodLabel string, keys []string) error {
	return l.appendKeys(l.succeededPath(periodLabel), keys)
}

// AppendFailed appends keys to the failed list.
func (l *Ledger) AppendFailed(periodLabel string, keys []string) error {
	return l.appendKeys(l.failedPath(periodLabel), keys)
}

// Clear removes both ledger files for the period. Used by --force-full and
// the cache-clearing maintenance commands.
func (l *Ledger) Clear(periodLabel string) error {
	for _, path := range []string{l.succeededPath(periodLabel), l.failedPath(periodLabel)} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return exception.NewPipelineError(componentName, fmt.Sprintf("failed to remove ledger file %q", path), err, false, false)
		}
	}
	logger.Debugf("Cleared progress ledger for period '%s'.", periodLabel)
	return nil
}

func (l *Ledger) appendKeys(path string, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return exception.NewPipelineError(componentName, "failed to create ledger directory", err, false, false)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return exception.NewPipelineError(componentName, fmt.Sprintf("failed to open ledger file %q", path), err, false, false)
	}
	defer f.Close()

	var sb strings.Builder
	for _, key := range keys {
		sb.WriteString(key)
		sb.WriteByte('\n')
	}
	if _, err := f.WriteString(sb.String()); err != nil {
		return exception.NewPipelineError(componentName, fmt.Sprintf("failed to append to ledger file %q", path), err, false, false)
	}
	// Flush through to disk so a crash after this call cannot lose the batch.
	if err := f.Sync(); err != nil {
		return exception.NewPipelineError(componentName, fmt.Sprintf("failed to sync ledger file %q", path), err, false, false)
	}
	return nil
}

func readKeySet(path string) (map[string]bool, error) {
	out := make(map[string]bool)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		key := strings.TrimSpace(scanner.Text())
		if key != "" {
			out[key] = true
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
