// Package geo holds the great-circle math used to derive routes between
// capitals.
package geo

import "math"

// EarthRadiusKm is the mean Earth radius used by HaversineKm.
const EarthRadiusKm = 6371.0

// AverageSpeedKmh converts route distance to travel time.
const AverageSpeedKmh = 80.0

// Radians converts degrees to radians.
func Radians(deg float64) float64 {
	return deg * math.Pi / 180
}

// HaversineKm returns the great-circle distance in kilometers between two
// points given in decimal degrees.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := Radians(lat1-lat2) / 2
	dLon := Radians(lon1-lon2) / 2
	h := math.Pow(math.Sin(dLat), 2) +
		math.Cos(Radians(lat1))*math.Cos(Radians(lat2))*math.Pow(math.Sin(dLon), 2)
	return 2 * EarthRadiusKm * math.Asin(math.Sqrt(h))
}

// Round rounds x to the given number of decimal places, half away from zero.
func Round(x float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(x*scale) / scale
}

// RouteDistance is the stored ROUTE distance: kilometers to one decimal.
func RouteDistance(km float64) float64 {
	return Round(km, 1)
}

// TravelHours is the stored ROUTE travel time for an already rounded
// distance, to two decimals.
func TravelHours(distanceKm float64) float64 {
	return Round(distanceKm/AverageSpeedKmh, 2)
}
