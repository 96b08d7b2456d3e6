package timeseries

import (
	"testing"

	"github.com/Wikwoj0512/pcc-backend/internal/config"
	"github.com/Wikwoj0512/pcc-backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_AddAppendsAndInserts(t *testing.T) {
	s := NewStore(OutlierFilter{})

	require.True(t, s.Add("A", "x", models.DataPoint{Timestamp: 1, Value: 1.0}))
	require.True(t, s.Add("A", "x", models.DataPoint{Timestamp: 3, Value: 3.0}))
	require.True(t, s.Add("A", "x", models.DataPoint{Timestamp: 2, Value: 2.0}))

	assert.Equal(t, points(1, 1, 2, 2, 3, 3), s.Series("A", "x"))
}

func TestStore_Window(t *testing.T) {
	s := NewStore(OutlierFilter{})
	for i := 1; i <= 4; i++ {
		s.Append("A", "x", models.DataPoint{Timestamp: float64(i), Value: float64(i)})
	}

	w, ok := s.Window("A", "x", 1.5)
	require.True(t, ok)
	assert.Equal(t, points(3, 3, 4, 4), w)

	_, ok = s.Window("A", "missing", 1)
	assert.False(t, ok)
	_, ok = s.Window("B", "x", 1)
	assert.False(t, ok)
}

func TestStore_WindowIsACopy(t *testing.T) {
	s := NewStore(OutlierFilter{})
	s.Append("A", "x", models.DataPoint{Timestamp: 1, Value: 1.0})
	s.Append("A", "x", models.DataPoint{Timestamp: 3, Value: 3.0})

	w, _ := s.Window("A", "x", 10)
	s.Add("A", "x", models.DataPoint{Timestamp: 2, Value: 2.0})

	assert.Equal(t, points(1, 1, 3, 3), w)
}

func TestStore_CatalogChanged(t *testing.T) {
	s := NewStore(OutlierFilter{})
	assert.False(t, s.TakeCatalogChanged())

	s.Append("A", "x", models.DataPoint{Timestamp: 1, Value: 1.0})
	assert.True(t, s.CatalogChanged())
	assert.True(t, s.TakeCatalogChanged())
	assert.False(t, s.TakeCatalogChanged())

	s.Append("A", "x", models.DataPoint{Timestamp: 2, Value: 2.0})
	assert.False(t, s.TakeCatalogChanged())

	s.Append("A", "y", models.DataPoint{Timestamp: 2, Value: 2.0})
	assert.True(t, s.TakeCatalogChanged())

	s.Touch("B")
	assert.True(t, s.TakeCatalogChanged())
	s.Touch("B")
	assert.False(t, s.TakeCatalogChanged())
}

func TestStore_OriginsWithDisplayNames(t *testing.T) {
	s := NewStore(OutlierFilter{})
	s.Append("rocket", "temp", models.DataPoint{Timestamp: 1, Value: 20.0})
	s.Append("rocket", "gps.speed", models.DataPoint{Timestamp: 1, Value: 3.0})
	s.Touch("ground")

	names := &config.DisplayNames{Origins: map[string]config.OriginDisplay{
		"rocket": {DisplayName: "Rocket", Keys: map[string]string{"temp": "Temperature"}},
	}}

	got := s.Origins(names)
	require.Len(t, got, 2)
	assert.Equal(t, models.OriginInfo{
		Name:        "rocket",
		DisplayName: "Rocket",
		Keys: []models.KeyInfo{
			{Name: "temp", DisplayName: "Temperature"},
			{Name: "gps.speed", DisplayName: "gps.speed"},
		},
	}, got[0])
	assert.Equal(t, "ground", got[1].DisplayName)
	assert.Empty(t, got[1].Keys)

	assert.Equal(t, []string{"temp", "gps.speed"}, s.Fields("rocket"))
	assert.Nil(t, s.Fields("none"))
}

func TestStore_Latest(t *testing.T) {
	s := NewStore(OutlierFilter{})
	s.Append("A", "x", models.DataPoint{Timestamp: 1, Value: 1.0})
	s.Append("A", "x", models.DataPoint{Timestamp: 2, Value: 5.0})
	s.Append("A", "s", models.DataPoint{Timestamp: 2, Value: "ok"})
	s.Touch("B")

	latest := s.Latest()
	assert.Equal(t, models.LatestValue{Timestamp: 2, Value: 5.0}, latest["A"]["x"])
	assert.Equal(t, models.LatestValue{Timestamp: 2, Value: "ok"}, latest["A"]["s"])
	assert.Empty(t, latest["B"])
}

func TestStore_OutlierRejected(t *testing.T) {
	s := NewStore(OutlierFilter{Window: 5, Tolerance: 3, MinDeviation: 1})
	for i := 1; i <= 5; i++ {
		require.True(t, s.Add("A", "x", models.DataPoint{Timestamp: float64(i), Value: 10.0}))
	}

	assert.False(t, s.Add("A", "x", models.DataPoint{Timestamp: 6, Value: 1000.0}))
	assert.True(t, s.Add("A", "x", models.DataPoint{Timestamp: 7, Value: 10.5}))
	assert.Len(t, s.Series("A", "x"), 6)
}
