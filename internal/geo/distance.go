package geo

import (
	"math"

	"github.com/paulmach/orb"
)

// EarthRadiusKM is the mean earth radius used by Distance.
const EarthRadiusKM = 6371.0

// DistanceEpsilonKM is the default offset added to every distance so that
// inverse-distance weights never divide by zero, even for coincident points.
const DistanceEpsilonKM = 1e-6

// Distance returns HaversineKM plus DistanceEpsilonKM. It is total over all
// real inputs.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	return HaversineKM(lat1, lon1, lat2, lon2) + DistanceEpsilonKM
}

// HaversineKM returns the great-circle distance in kilometers between two
// latitude/longitude pairs. Coincident points are exactly 0 apart.
func HaversineKM(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := radians(lat2 - lat1)
	dLon := radians(lon2 - lon1)

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	a := sinLat*sinLat + math.Cos(radians(lat1))*math.Cos(radians(lat2))*sinLon*sinLon

	// Rounding can push a a hair outside [0,1] for antipodal points.
	a = math.Min(1, math.Max(0, a))

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusKM * c
}

// PointDistance is Distance over orb points, which are ordered [lng, lat].
func PointDistance(a, b orb.Point) float64 {
	return Distance(a.Lat(), a.Lon(), b.Lat(), b.Lon())
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
