package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPeriodValidation(t *testing.T) {
	_, err := NewPeriod("2025-9", PeriodA)
	assert.Error(t, err)

	_, err = NewPeriod("202513", PeriodA)
	assert.Error(t, err)

	_, err = NewPeriod("202509", "C")
	assert.Error(t, err)

	p, err := NewPeriod("202509", PeriodB)
	require.NoError(t, err)
	assert.Equal(t, "202509B", p.Label())
}

func TestPeriodLabelFullMonth(t *testing.T) {
	p, err := NewPeriod("202512", PeriodFull)
	require.NoError(t, err)
	assert.Equal(t, "202512", p.Label())
	assert.Equal(t, "202512", p.Tag())
}

func TestAlternateTags(t *testing.T) {
	p := Period{YYYYMM: "202509", Half: PeriodA}
	assert.Equal(t, []string{"20259A"}, p.AlternateTags())

	// Months without a leading zero have no alternate encoding.
	p = Period{YYYYMM: "202511", Half: PeriodA}
	assert.Empty(t, p.AlternateTags())

	p = Period{YYYYMM: "202502", Half: PeriodFull}
	assert.Equal(t, []string{"20252"}, p.AlternateTags())
}

func TestCalendarResolverHalves(t *testing.T) {
	r := NewCalendarResolver("UTC")

	r.now = func() time.Time { return time.Date(2025, 9, 15, 23, 0, 0, 0, time.UTC) }
	p, err := r.Current()
	require.NoError(t, err)
	assert.Equal(t, "202509A", p.Label())

	r.now = func() time.Time { return time.Date(2025, 9, 16, 0, 0, 0, 0, time.UTC) }
	p, err = r.Current()
	require.NoError(t, err)
	assert.Equal(t, "202509B", p.Label())
}

func TestFixedResolver(t *testing.T) {
	want := Period{YYYYMM: "202509", Half: PeriodA}
	p, err := FixedResolver{Period: want}.Current()
	require.NoError(t, err)
	assert.Equal(t, want, p)
}
