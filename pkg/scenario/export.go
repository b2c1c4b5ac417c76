package scenario

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"

	"github.com/openfroyo/firecontain/pkg/contain"
	"github.com/openfroyo/firecontain/pkg/units"
)

// ErrNoFireline is returned when a result holds no attack path to export.
var ErrNoFireline = errors.New("result has no fireline to export")

const metersPerFoot = 0.3048

// Anchor places the fire origin of the local frame on the globe. The local
// frame has x along the heading direction; Heading rotates it clockwise
// from north.
type Anchor struct {
	Lon     float64 `json:"lon" yaml:"lon" validate:"gte=-180,lte=180"`
	Lat     float64 `json:"lat" yaml:"lat" validate:"gte=-85,lte=85"`
	Heading float64 `json:"heading,omitempty" yaml:"heading,omitempty" validate:"gte=0,lt=360"`
}

// Validate checks the anchor coordinates.
func (a *Anchor) Validate() error {
	if err := validatorInstance().Struct(a); err != nil {
		return contain.NewInvalidInputError(formatValidationError(err), err).WithOp("anchor.validate")
	}
	return nil
}

// Fireline returns the attack path of both flanks in the local frame, in
// feet. The right flank mirrors the left one, so the line runs from the end
// of the right flank through the attack point to the end of the left flank.
func Fireline(res *contain.Result) (geom.LineString, error) {
	if res == nil || len(res.Steps) < 2 {
		return geom.LineString{}, ErrNoFireline
	}

	n := len(res.Steps)
	coords := make([]float64, 0, 2*(2*n-1))
	for i := n - 1; i >= 1; i-- {
		s := res.Steps[i]
		coords = append(coords, units.ChainsToFeet(s.X), -units.ChainsToFeet(s.Y))
	}
	for _, s := range res.Steps {
		coords = append(coords, units.ChainsToFeet(s.X), units.ChainsToFeet(s.Y))
	}
	return geom.NewLineString(geom.NewSequence(coords, geom.DimXY)), nil
}

// Geographic converts a local fireline in feet to WGS84 longitude and
// latitude around the anchor.
func (a Anchor) Geographic(line geom.LineString) (geom.LineString, error) {
	if line.IsEmpty() {
		return geom.LineString{}, ErrNoFireline
	}

	epsg := wgs84.EPSG()
	toMercator := epsg.Transform(4326, 3857)
	toLonLat := epsg.Transform(3857, 4326)

	ox, oy, _ := toMercator(a.Lon, a.Lat, 0)

	// Web Mercator stretches distances by 1/cos(lat).
	scale := metersPerFoot / math.Cos(a.Lat*math.Pi/180)
	theta := a.Heading * math.Pi / 180
	sin, cos := math.Sincos(theta)

	seq := line.Coordinates()
	coords := make([]float64, 0, 2*seq.Length())
	for i := 0; i < seq.Length(); i++ {
		p := seq.GetXY(i)
		east := p.X*sin + p.Y*cos
		north := p.X*cos - p.Y*sin
		lon, lat, _ := toLonLat(ox+east*scale, oy+north*scale, 0)
		coords = append(coords, lon, lat)
	}
	return geom.NewLineString(geom.NewSequence(coords, geom.DimXY)), nil
}

// Feature is a GeoJSON feature describing a contained fire's line.
type Feature struct {
	Type       string                 `json:"type"`
	Geometry   json.RawMessage        `json:"geometry"`
	Properties map[string]interface{} `json:"properties"`
}

// FirelineFeature builds a GeoJSON feature for an outcome. Without an anchor
// the geometry stays in local feet.
func FirelineFeature(out *Outcome, anchor *Anchor) (*Feature, error) {
	if out == nil {
		return nil, ErrNoFireline
	}
	line, err := Fireline(out.Result)
	if err != nil {
		return nil, err
	}
	length := line.Length()
	if anchor != nil {
		if line, err = anchor.Geographic(line); err != nil {
			return nil, err
		}
	}

	geometry, err := json.Marshal(line)
	if err != nil {
		return nil, fmt.Errorf("failed to encode fireline: %w", err)
	}
	return &Feature{
		Type:     "Feature",
		Geometry: geometry,
		Properties: map[string]interface{}{
			"scenario":       out.Scenario,
			"status":         string(out.Status),
			"path_length_ft": length,
			"time_min":       out.Time,
			"geographic":     anchor != nil,
		},
	}, nil
}
