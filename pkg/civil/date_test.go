package civil

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDate_JSONRoundTrip(t *testing.T) {
	var d Date
	require.NoError(t, json.Unmarshal([]byte(`"1984-02-29"`), &d))
	assert.Equal(t, Date{Year: 1984, Month: time.February, Day: 29}, d)

	b, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Equal(t, `"1984-02-29"`, string(b))
}

func TestDate_AcceptsTimestamp(t *testing.T) {
	var d Date
	require.NoError(t, json.Unmarshal([]byte(`"2026-03-01T10:30:00Z"`), &d))
	assert.Equal(t, "2026-03-01", d.String())
}

func TestDate_RejectsGarbage(t *testing.T) {
	var d Date
	assert.Error(t, json.Unmarshal([]byte(`"01/03/2026"`), &d))
	assert.Error(t, json.Unmarshal([]byte(`20260301`), &d))
}

func TestDate_Ordering(t *testing.T) {
	a, _ := Parse("2026-01-01")
	b, _ := Parse("2026-01-02")
	assert.True(t, a.Before(b))
	assert.True(t, b.After(a))
	assert.False(t, a.After(a))
}

func TestDate_PgValue(t *testing.T) {
	v, err := Date{}.DateValue()
	require.NoError(t, err)
	assert.False(t, v.Valid)

	d, _ := Parse("2025-12-31")
	v, err = d.DateValue()
	require.NoError(t, err)
	assert.True(t, v.Valid)

	var back Date
	require.NoError(t, back.ScanDate(v))
	assert.Equal(t, d, back)
}
