package scenario

import (
	"context"
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfroyo/firecontain/pkg/contain"
)

// degreesPerFootAtEquator is one foot of Web Mercator northing in degrees.
var degreesPerFootAtEquator = 0.3048 / 6378137 * 180 / math.Pi

func straightResult() *contain.Result {
	return &contain.Result{
		Status: contain.StatusContained,
		Steps: []contain.StepRecord{
			{X: 0, Y: 0},
			{X: 1000.0 / 66, Y: 0},
		},
	}
}

func TestFirelineMirrorsFlanks(t *testing.T) {
	out, err := Run(context.Background(), ridgeScenario())
	require.NoError(t, err)

	line, err := Fireline(out.Result)
	require.NoError(t, err)

	seq := line.Coordinates()
	n := len(out.Result.Steps)
	require.Equal(t, 2*n-1, seq.Length())

	for i := 0; i < n-1; i++ {
		right := seq.GetXY(i)
		left := seq.GetXY(seq.Length() - 1 - i)
		assert.InDelta(t, left.X, right.X, 1e-9)
		assert.InDelta(t, -left.Y, right.Y, 1e-9)
	}

	attack := seq.GetXY(n - 1)
	assert.InDelta(t, out.Result.Steps[0].X*66, attack.X, 1e-9)
	assert.Greater(t, line.Length(), 0.0)
}

func TestFirelineRequiresSteps(t *testing.T) {
	_, err := Fireline(nil)
	assert.ErrorIs(t, err, ErrNoFireline)

	_, err = Fireline(&contain.Result{Steps: []contain.StepRecord{{}}})
	assert.ErrorIs(t, err, ErrNoFireline)
}

func TestAnchorGeographic(t *testing.T) {
	line, err := Fireline(straightResult())
	require.NoError(t, err)

	tests := []struct {
		name    string
		heading float64
		wantLon float64
		wantLat float64
	}{
		{name: "heading north", heading: 0, wantLon: 10, wantLat: 1000 * degreesPerFootAtEquator},
		{name: "heading east", heading: 90, wantLon: 10 + 1000*degreesPerFootAtEquator, wantLat: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			geo, err := Anchor{Lon: 10, Lat: 0, Heading: tt.heading}.Geographic(line)
			require.NoError(t, err)

			seq := geo.Coordinates()
			require.Equal(t, 3, seq.Length())

			origin := seq.GetXY(1)
			assert.InDelta(t, 10, origin.X, 1e-9)
			assert.InDelta(t, 0, origin.Y, 1e-9)

			tip := seq.GetXY(2)
			assert.InDelta(t, tt.wantLon, tip.X, 1e-7)
			assert.InDelta(t, tt.wantLat, tip.Y, 1e-7)
		})
	}
}

func TestFirelineFeature(t *testing.T) {
	out := &Outcome{Scenario: "ridge", Status: contain.StatusContained, Time: 12, Result: straightResult()}

	f, err := FirelineFeature(out, &Anchor{Lon: -120, Lat: 45})
	require.NoError(t, err)

	assert.Equal(t, "Feature", f.Type)
	assert.Equal(t, true, f.Properties["geographic"])
	assert.InDelta(t, 2000, f.Properties["path_length_ft"].(float64), 1e-9)

	var geometry struct {
		Type        string      `json:"type"`
		Coordinates [][]float64 `json:"coordinates"`
	}
	require.NoError(t, json.Unmarshal(f.Geometry, &geometry))
	assert.Equal(t, "LineString", geometry.Type)
	require.Len(t, geometry.Coordinates, 3)
	assert.InDelta(t, -120, geometry.Coordinates[1][0], 1e-9)
	assert.InDelta(t, 45, geometry.Coordinates[1][1], 1e-9)

	_, err = FirelineFeature(&Outcome{Status: contain.StatusUnreported}, nil)
	assert.ErrorIs(t, err, ErrNoFireline)
}
