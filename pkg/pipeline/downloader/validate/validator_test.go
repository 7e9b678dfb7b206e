package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	artifact "github.com/tigerroll/merchpipe/pkg/pipeline/downloader/artifact"
	record "github.com/tigerroll/merchpipe/pkg/pipeline/downloader/record"
)

func writeFinal(t *testing.T, c *artifact.Consolidator, dataType record.DataType, stores ...string) {
	t.Helper()
	d := record.NewDataset(dataType)
	for _, s := range stores {
		d.Append(record.Row{StoreCode: s, SKU: "K1", PeriodTag: "202509A"})
	}
	require.NoError(t, c.WriteFinal("202509A", d))
}

func universe(keys ...string) map[string]bool {
	out := make(map[string]bool, len(keys))
	for _, k := range keys {
		out[k] = true
	}
	return out
}

func TestCheckIntersectsAcrossArtifacts(t *testing.T) {
	c := artifact.NewConsolidator(t.TempDir())
	v := NewValidator(c, []record.DataType{record.TypeConfig, record.TypeSales})

	// Artifact 1 holds {A,B}, artifact 2 holds only {A}: B is missing even
	// though it appears in one artifact.
	writeFinal(t, c, record.TypeConfig, "A", "B")
	writeFinal(t, c, record.TypeSales, "A")

	report, err := v.Check("202509A", universe("A", "B"))
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"A": true}, report.Covered)
	assert.Equal(t, []string{"B"}, report.Missing)
	assert.Equal(t, 0.5, report.Fraction)
	assert.False(t, report.Complete)
	assert.Equal(t, 2, report.PerArtifact[record.TypeConfig])
	assert.Equal(t, 1, report.PerArtifact[record.TypeSales])
}

func TestCheckMissingArtifactIsEmptySet(t *testing.T) {
	c := artifact.NewConsolidator(t.TempDir())
	v := NewValidator(c, []record.DataType{record.TypeConfig, record.TypeSales})

	writeFinal(t, c, record.TypeConfig, "A", "B")
	// No sales artifact exists yet.

	report, err := v.Check("202509A", universe("A", "B"))
	require.NoError(t, err)
	assert.Empty(t, report.Covered)
	assert.Equal(t, []string{"A", "B"}, report.Missing)
	assert.Equal(t, 0.0, report.Fraction)
}

func TestCheckFullCoverage(t *testing.T) {
	c := artifact.NewConsolidator(t.TempDir())
	v := NewValidator(c, []record.DataType{record.TypeConfig, record.TypeSales})

	writeFinal(t, c, record.TypeConfig, "A", "B")
	writeFinal(t, c, record.TypeSales, "A", "B")

	report, err := v.Check("202509A", universe("A", "B"))
	require.NoError(t, err)
	assert.True(t, report.Complete)
	assert.Equal(t, 1.0, report.Fraction)
	assert.Empty(t, report.Missing)
}

func TestCheckEmptyUniverse(t *testing.T) {
	c := artifact.NewConsolidator(t.TempDir())
	v := NewValidator(c, nil)

	report, err := v.Check("202509A", universe())
	require.NoError(t, err)
	assert.True(t, report.Complete)
	assert.Equal(t, 1.0, report.Fraction)
}

func TestCheckIgnoresUnexpectedKeys(t *testing.T) {
	c := artifact.NewConsolidator(t.TempDir())
	v := NewValidator(c, []record.DataType{record.TypeConfig})

	writeFinal(t, c, record.TypeConfig, "A", "Z")

	report, err := v.Check("202509A", universe("A"))
	require.NoError(t, err)
	assert.True(t, report.Complete)
	assert.Equal(t, 1, report.PerArtifact[record.TypeConfig])
}
