package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/tigerroll/merchpipe/pkg/pipeline/core/model"
)

const stepsYAML = `
steps:
  - name: download-store-data
    description: Fetch store data from the remote API
    command: ["storefetch"]
    category: acquisition
    critical: true
  - name: clean-sales
    command: ["clean_sales.py"]
    category: preparation
    critical: true
  - name: cluster-stores
    command: ["cluster_stores.py"]
    category: clustering
    critical: true
  - name: render-dashboard
    command: ["render_dashboard.py"]
    category: reporting
`

func mustLoad(t *testing.T) *Registry {
	t.Helper()
	r, err := Load([]byte(stepsYAML))
	require.NoError(t, err)
	return r
}

func TestLoadAssignsOrdinals(t *testing.T) {
	r := mustLoad(t)
	require.Equal(t, 4, r.Len())

	steps := r.Steps()
	assert.Equal(t, 1, steps[0].Ordinal)
	assert.Equal(t, "download-store-data", steps[0].Name)
	assert.True(t, steps[0].Critical)
	assert.Equal(t, 4, steps[3].Ordinal)
	assert.False(t, steps[3].Critical)
}

func TestLoadRejectsDuplicatesAndGaps(t *testing.T) {
	_, err := Load([]byte(`
steps:
  - name: a
    command: ["x"]
  - name: a
    command: ["y"]
`))
	assert.Error(t, err)

	_, err = Load([]byte(`
steps:
  - name: a
    ordinal: 2
    command: ["x"]
`))
	assert.Error(t, err)

	_, err = Load([]byte("steps: []"))
	assert.Error(t, err)
}

func TestRangeBoundsAndDefaults(t *testing.T) {
	r := mustLoad(t)

	steps, err := r.Range(2, 3)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, "clean-sales", steps[0].Name)
	assert.Equal(t, "cluster-stores", steps[1].Name)

	// Zero end defaults to the last step.
	steps, err = r.Range(0, 0)
	require.NoError(t, err)
	assert.Len(t, steps, 4)

	_, err = r.Range(3, 2)
	assert.Error(t, err)
}

func TestInsertBeforeInterleavesHook(t *testing.T) {
	r := mustLoad(t)

	hook := model.PipelineStep{
		Name:     "consolidate-sales",
		Command:  []string{"consolidate_sales.py"},
		Category: "preparation",
	}
	require.NoError(t, r.InsertBefore(3, hook))

	steps, err := r.Range(1, 4)
	require.NoError(t, err)
	require.Len(t, steps, 5)
	assert.Equal(t, "consolidate-sales", steps[2].Name)
	assert.Equal(t, 3, steps[2].Ordinal)
	assert.Equal(t, "cluster-stores", steps[3].Name)

	// Hook outside the requested range is not included.
	steps, err = r.Range(1, 2)
	require.NoError(t, err)
	assert.Len(t, steps, 2)
}

func TestInsertBeforeValidatesTarget(t *testing.T) {
	r := mustLoad(t)
	err := r.InsertBefore(99, model.PipelineStep{Name: "x", Command: []string{"x"}})
	assert.Error(t, err)
	err = r.InsertBefore(1, model.PipelineStep{Name: "no-command"})
	assert.Error(t, err)
}

func TestCategories(t *testing.T) {
	r := mustLoad(t)
	assert.Equal(t, []string{"acquisition", "clustering", "preparation", "reporting"}, r.Categories())
}
