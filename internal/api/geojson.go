package api

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/sells-group/cleancredit/internal/dirtiness"
)

// FeatureCollection renders observations as GeoJSON points carrying their
// score and band.
func FeatureCollection(obs []dirtiness.Observation) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, o := range obs {
		f := geojson.NewFeature(orb.Point{o.Lng, o.Lat})
		f.Properties["score"] = o.Score
		f.Properties["band"] = dirtiness.Band(o.Score)
		fc.Append(f)
	}
	return fc
}
