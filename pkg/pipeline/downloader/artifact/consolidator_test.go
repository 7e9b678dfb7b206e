package artifact

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	record "github.com/tigerroll/merchpipe/pkg/pipeline/downloader/record"
)

func salesRow(store, sku, v string) record.Row {
	return record.Row{StoreCode: store, SKU: sku, PeriodTag: "202509A", Values: map[string]string{"v": v}}
}

func TestCheckpointAndRecoverRoundTrip(t *testing.T) {
	c := NewConsolidator(t.TempDir())

	sales := record.NewDataset(record.TypeSales)
	sales.Append(salesRow("S001", "K1", "a"), salesRow("S002", "K1", "b"))
	require.NoError(t, c.Checkpoint("202509A", map[record.DataType]*record.Dataset{record.TypeSales: sales}))

	recovered, err := c.Recover("202509A", record.AllTypes)
	require.NoError(t, err)
	require.NotNil(t, recovered)
	require.Contains(t, recovered, record.TypeSales)
	assert.Equal(t, 2, recovered[record.TypeSales].Len())
	assert.NotContains(t, recovered, record.TypeConfig)
}

func TestRecoverWithoutFragmentsReturnsNil(t *testing.T) {
	c := NewConsolidator(t.TempDir())

	recovered, err := c.Recover("202509A", record.AllTypes)
	require.NoError(t, err)
	assert.Nil(t, recovered)
}

func TestRecoverKeepsChronologicallyFirstDuplicate(t *testing.T) {
	c := NewConsolidator(t.TempDir())

	first := record.NewDataset(record.TypeSPU)
	first.Append(record.Row{StoreCode: "S001", SKU: "K1", PeriodTag: "202509A", Values: map[string]string{"v": "old"}})
	require.NoError(t, c.Checkpoint("202509A", map[record.DataType]*record.Dataset{record.TypeSPU: first}))

	second := record.NewDataset(record.TypeSPU)
	second.Append(
		record.Row{StoreCode: "S001", SKU: "K1", PeriodTag: "202509A", Values: map[string]string{"v": "new"}},
		record.Row{StoreCode: "S002", SKU: "K1", PeriodTag: "202509A", Values: map[string]string{"v": "x"}},
	)
	require.NoError(t, c.Checkpoint("202509A", map[record.DataType]*record.Dataset{record.TypeSPU: second}))

	recovered, err := c.Recover("202509A", []record.DataType{record.TypeSPU})
	require.NoError(t, err)
	spu := recovered[record.TypeSPU]
	require.Equal(t, 2, spu.Len())
	assert.Equal(t, "old", spu.Rows[0].Values["v"])
}

func TestWriteFinalDeduplicatesAndPublishesAtomically(t *testing.T) {
	dir := t.TempDir()
	c := NewConsolidator(dir)

	sales := record.NewDataset(record.TypeSales)
	sales.Append(salesRow("S001", "K1", "keep"), salesRow("S001", "K1", "drop"))
	require.NoError(t, c.WriteFinal("202509A", sales))

	// No temp file is left behind.
	_, err := os.Stat(filepath.Join(dir, "202509A_sales.csv.tmp"))
	assert.True(t, os.IsNotExist(err))

	final, err := c.LoadFinal("202509A", record.TypeSales)
	require.NoError(t, err)
	require.NotNil(t, final)
	require.Equal(t, 1, final.Len())
	assert.Equal(t, "keep", final.Rows[0].Values["v"])
	assert.Equal(t, "S001", final.Rows[0].StoreCode)
	assert.Equal(t, "202509A", final.Rows[0].PeriodTag)
}

func TestLoadFinalMissingReturnsNil(t *testing.T) {
	c := NewConsolidator(t.TempDir())
	final, err := c.LoadFinal("202509A", record.TypeConfig)
	require.NoError(t, err)
	assert.Nil(t, final)
}

func TestCleanupPartials(t *testing.T) {
	c := NewConsolidator(t.TempDir())

	sales := record.NewDataset(record.TypeSales)
	sales.Append(salesRow("S001", "K1", "a"))
	require.NoError(t, c.Checkpoint("202509A", map[record.DataType]*record.Dataset{record.TypeSales: sales}))
	require.NoError(t, c.CleanupPartials("202509A"))

	recovered, err := c.Recover("202509A", record.AllTypes)
	require.NoError(t, err)
	assert.Nil(t, recovered)
}

func TestClearPeriodRemovesFinalsAndPartials(t *testing.T) {
	c := NewConsolidator(t.TempDir())

	sales := record.NewDataset(record.TypeSales)
	sales.Append(salesRow("S001", "K1", "a"))
	require.NoError(t, c.WriteFinal("202509A", sales))
	require.NoError(t, c.Checkpoint("202509A", map[record.DataType]*record.Dataset{record.TypeSales: sales}))

	require.NoError(t, c.ClearPeriod("202509A"))

	final, err := c.LoadFinal("202509A", record.TypeSales)
	require.NoError(t, err)
	assert.Nil(t, final)
}
