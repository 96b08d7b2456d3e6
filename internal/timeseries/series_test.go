package timeseries

import (
	"testing"

	"github.com/Wikwoj0512/pcc-backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func points(pairs ...float64) []models.DataPoint {
	out := make([]models.DataPoint, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, models.DataPoint{Timestamp: pairs[i], Value: pairs[i+1]})
	}
	return out
}

func TestSortedInsert_Middle(t *testing.T) {
	s := points(1, 1, 2, 2, 3, 3, 4, 4)

	s = SortedInsert(s, models.DataPoint{Timestamp: 2.5, Value: "x"})

	require.Len(t, s, 5)
	assert.Equal(t, 2.5, s[2].Timestamp)
	assert.Equal(t, "x", s[2].Value)
	assert.Equal(t, 3.0, s[3].Timestamp)
}

func TestSortedInsert_EqualTimestampGoesAfter(t *testing.T) {
	s := points(1, 1, 2, 2, 3, 3)

	s = SortedInsert(s, models.DataPoint{Timestamp: 2, Value: "second"})

	require.Len(t, s, 4)
	assert.Equal(t, 2.0, s[1].Value)
	assert.Equal(t, "second", s[2].Value)
}

func TestSortedInsert_EdgesAndEmpty(t *testing.T) {
	s := SortedInsert(nil, models.DataPoint{Timestamp: 5, Value: 5.0})
	require.Len(t, s, 1)

	s = SortedInsert(s, models.DataPoint{Timestamp: 1, Value: 1.0})
	s = SortedInsert(s, models.DataPoint{Timestamp: 9, Value: 9.0})

	ts := make([]float64, len(s))
	for i, p := range s {
		ts[i] = p.Timestamp
	}
	assert.Equal(t, []float64{1, 5, 9}, ts)
}

func TestWindowFrom(t *testing.T) {
	s := points(1, 1, 2, 2, 3, 3, 4, 4)

	w := WindowFrom(s, 2.5)
	assert.Equal(t, points(3, 3, 4, 4), w)

	assert.Equal(t, s, WindowFrom(s, 0))
	assert.Empty(t, WindowFrom(s, 4))
	assert.Equal(t, points(3, 3, 4, 4), WindowFrom(s, 2))
	assert.Empty(t, WindowFrom(nil, 1))
}
