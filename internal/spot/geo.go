package spot

import "math"

const earthRadiusKm = 6371.0

// Distance returns the great-circle distance in kilometres between two
// coordinates.
func Distance(aLat, aLon, bLat, bLon float64) float64 {
	dLat := radians(bLat - aLat)
	dLon := radians(bLon - aLon)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(aLat))*math.Cos(radians(bLat))*math.Sin(dLon/2)*math.Sin(dLon/2)

	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}

// DistanceTo returns the distance in kilometres from the spot to a coordinate.
func (s ParkingSpot) DistanceTo(lat, lon float64) float64 {
	return Distance(s.Latitude, s.Longitude, lat, lon)
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
