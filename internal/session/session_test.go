package session

import (
	"testing"

	"github.com/Wikwoj0512/pcc-backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSeries map[string]map[string][]models.DataPoint

func (f fakeSeries) Window(origin, field string, timeframe float64) ([]models.DataPoint, bool) {
	fields, ok := f[origin]
	if !ok {
		return nil, false
	}
	points, ok := fields[field]
	if !ok {
		return nil, false
	}
	if len(points) == 0 {
		return points, true
	}
	cutoff := points[len(points)-1].Timestamp - timeframe
	var out []models.DataPoint
	for _, p := range points {
		if p.Timestamp > cutoff {
			out = append(out, p)
		}
	}
	return out, true
}

type fakeTrails map[string][]models.Position

func (f fakeTrails) History(origin string, limit int) []models.Position {
	trail := f[origin]
	if limit > 0 && len(trail) > limit {
		trail = trail[len(trail)-limit:]
	}
	return trail
}

func newTestSession() *Session {
	return New("conn-1", zap.NewNop())
}

func TestSession_Defaults(t *testing.T) {
	s := newTestSession()
	tf, points := s.Settings()
	assert.Equal(t, DefaultTimeframe, tf)
	assert.Equal(t, DefaultPoints, points)
	assert.Empty(t, s.Subscriptions())
	assert.Empty(t, s.Tracked())
	assert.Equal(t, "conn-1", s.ID())
}

func TestSession_Configure(t *testing.T) {
	s := newTestSession()

	err := s.Configure(map[string]any{
		"origins": map[string]any{
			"rocket": []any{"temp", "alt", 5},
			"bad":    "temp",
		},
		"timeframe": 2.5,
		"points":    "20",
	})
	require.NoError(t, err)

	assert.Equal(t, []Subscription{{Origin: "rocket", Fields: []string{"temp", "alt"}}}, s.Subscriptions())
	tf, points := s.Settings()
	assert.Equal(t, 2.5, tf)
	assert.Equal(t, 20, points)
}

func TestSession_ConfigureKeepsPreviousOnBadValues(t *testing.T) {
	s := newTestSession()
	require.NoError(t, s.Configure(map[string]any{"timeframe": 3.0, "points": 7.0}))

	require.NoError(t, s.Configure(map[string]any{"timeframe": "not-a-number", "points": "1.5"}))

	tf, points := s.Settings()
	assert.Equal(t, 3.0, tf)
	assert.Equal(t, 7, points)
}

func TestSession_ConfigureOriginsReplaced(t *testing.T) {
	s := newTestSession()
	require.NoError(t, s.Configure(map[string]any{"origins": map[string]any{"a": []any{"x"}}}))
	require.NoError(t, s.Configure(map[string]any{"origins": map[string]any{"b": []any{"y"}}}))
	assert.Equal(t, []Subscription{{Origin: "b", Fields: []string{"y"}}}, s.Subscriptions())

	// origins 不是对象时保留原订阅
	require.NoError(t, s.Configure(map[string]any{"origins": []any{"a"}}))
	assert.Equal(t, []Subscription{{Origin: "b", Fields: []string{"y"}}}, s.Subscriptions())
}

func TestSession_ConfigureRejectsNonObject(t *testing.T) {
	s := newTestSession()
	assert.ErrorIs(t, s.Configure("nope"), ErrInvalidRequest)
	assert.ErrorIs(t, s.Configure(nil), ErrInvalidRequest)
}

func TestSession_ChartView(t *testing.T) {
	src := fakeSeries{
		"rocket": {
			"temp": {
				{Timestamp: 1, Value: 10.0},
				{Timestamp: 2, Value: 11.0},
				{Timestamp: 3, Value: 12.0},
				{Timestamp: 4, Value: 13.0},
			},
		},
	}
	s := newTestSession()
	require.NoError(t, s.Configure(map[string]any{
		"origins":   map[string]any{"rocket": []any{"temp", "missing"}, "ghost": []any{"x"}},
		"timeframe": 1.5,
	}))

	view := s.ChartView(src)

	assert.Equal(t, [][2]any{{3.0, 12.0}, {4.0, 13.0}}, view["rocket"]["temp"])
	assert.Equal(t, [][2]any{}, view["rocket"]["missing"])
	assert.Equal(t, [][2]any{}, view["ghost"]["x"])
}

func TestSession_ChartViewDownsamples(t *testing.T) {
	points := make([]models.DataPoint, 100)
	for i := range points {
		points[i] = models.DataPoint{Timestamp: float64(i), Value: float64(i)}
	}
	s := newTestSession()
	require.NoError(t, s.Configure(map[string]any{
		"origins":   map[string]any{"o": []any{"f"}},
		"timeframe": 1000.0,
		"points":    5.0,
	}))

	view := s.ChartView(fakeSeries{"o": {"f": points}})

	got := view["o"]["f"]
	require.Len(t, got, 5)
	assert.Equal(t, [2]any{0.0, 0.0}, got[0])
	assert.Equal(t, [2]any{99.0, 99.0}, got[4])
}

func TestSession_ConfigureLocations(t *testing.T) {
	trail := make([]models.Position, 250)
	for i := range trail {
		trail[i] = models.NewPosition(float64(i), 0)
	}
	trails := fakeTrails{"A": trail}
	s := newTestSession()

	history, err := s.ConfigureLocations([]any{"A", "B"}, trails)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, s.Tracked())
	require.Len(t, history, 1)
	require.Len(t, history["A"], HistoryLimit)
	assert.Equal(t, 249.0, *history["A"][HistoryLimit-1].Lat)

	_, err = s.ConfigureLocations([]any{"A", 3}, trails)
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = s.ConfigureLocations("A", trails)
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Equal(t, []string{"A", "B"}, s.Tracked())
}

func TestSession_LocationViewAndTrailDelta(t *testing.T) {
	s := newTestSession()
	_, err := s.ConfigureLocations([]string{"A", "C"}, fakeTrails{})
	require.NoError(t, err)

	current := map[string]models.MapLocation{
		"A": {Position: models.NewPosition(1, 2), DisplayName: "Alpha"},
		"B": {Position: models.NewPosition(3, 4), DisplayName: "B"},
	}
	view := s.LocationView(current)
	require.Len(t, view, 1)
	assert.Equal(t, "Alpha", view["A"].DisplayName)

	changed := map[string][]models.Position{
		"B": {models.NewPosition(3, 4)},
		"C": {models.NewPosition(5, 6)},
	}
	delta := s.TrailDelta(changed)
	require.Len(t, delta, 1)
	assert.Contains(t, delta, "C")
	assert.Empty(t, s.TrailDelta(nil))
}

func TestSession_Failures(t *testing.T) {
	s := newTestSession()
	assert.Equal(t, 1, s.RecordFailure())
	assert.Equal(t, 2, s.RecordFailure())
	s.ResetFailures()
	assert.Equal(t, 1, s.RecordFailure())
}
