// Package geo provides great-circle helpers used to match patrol units to
// alerts and to simulate their travel.
package geo

import (
	"fmt"
	"math"

	"github.com/kilianp07/sosdispatch/core/model"
)

const (
	// EarthRadiusKm is the mean earth radius (IUGG).
	EarthRadiusKm = 6371.0088
	// DefaultSpeedKmPerMin is 30 km/h, a city-traffic average.
	DefaultSpeedKmPerMin = 0.5
)

// Validate fails with model.ErrInvalidCoordinate when p is outside the WGS84
// ranges.
func Validate(p model.Location) error {
	if math.IsNaN(p.Lat) || p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("%w: latitude %v", model.ErrInvalidCoordinate, p.Lat)
	}
	if math.IsNaN(p.Lon) || p.Lon < -180 || p.Lon > 180 {
		return fmt.Errorf("%w: longitude %v", model.ErrInvalidCoordinate, p.Lon)
	}
	return nil
}

// DistanceKm returns the haversine distance between a and b.
func DistanceKm(a, b model.Location) (float64, error) {
	if err := Validate(a); err != nil {
		return 0, err
	}
	if err := Validate(b); err != nil {
		return 0, err
	}
	return haversine(a, b), nil
}

// MustDistanceKm is DistanceKm for coordinates already validated by the
// caller. Invalid input yields NaN.
func MustDistanceKm(a, b model.Location) float64 {
	if Validate(a) != nil || Validate(b) != nil {
		return math.NaN()
	}
	return haversine(a, b)
}

func haversine(a, b model.Location) float64 {
	lat1, lat2 := radians(a.Lat), radians(b.Lat)
	dLat := lat2 - lat1
	dLon := radians(b.Lon - a.Lon)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	if h > 1 {
		h = 1
	}
	return 2 * EarthRadiusKm * math.Asin(math.Sqrt(h))
}

// ETAMinutes converts a distance to whole minutes at the given speed, never
// less than one minute. A non-positive speed falls back to
// DefaultSpeedKmPerMin.
func ETAMinutes(distanceKm, speedKmPerMin float64) int {
	if speedKmPerMin <= 0 {
		speedKmPerMin = DefaultSpeedKmPerMin
	}
	eta := int(math.Round(distanceKm / speedKmPerMin))
	if eta < 1 {
		return 1
	}
	return eta
}

// Intermediate returns the point at fraction f (0..1) of the great-circle
// path from a to b.
func Intermediate(a, b model.Location, f float64) model.Location {
	if f <= 0 {
		return a
	}
	if f >= 1 {
		return b
	}
	d := haversine(a, b) / EarthRadiusKm
	if d == 0 {
		return a
	}
	lat1, lon1 := radians(a.Lat), radians(a.Lon)
	lat2, lon2 := radians(b.Lat), radians(b.Lon)
	sinD := math.Sin(d)
	wa := math.Sin((1-f)*d) / sinD
	wb := math.Sin(f*d) / sinD
	x := wa*math.Cos(lat1)*math.Cos(lon1) + wb*math.Cos(lat2)*math.Cos(lon2)
	y := wa*math.Cos(lat1)*math.Sin(lon1) + wb*math.Cos(lat2)*math.Sin(lon2)
	z := wa*math.Sin(lat1) + wb*math.Sin(lat2)
	return model.Location{
		Lat: degrees(math.Atan2(z, math.Sqrt(x*x+y*y))),
		Lon: degrees(math.Atan2(y, x)),
	}
}

// BearingDeg returns the initial bearing from a to b in degrees [0,360).
func BearingDeg(a, b model.Location) float64 {
	lat1, lat2 := radians(a.Lat), radians(b.Lat)
	dLon := radians(b.Lon - a.Lon)
	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)
	return math.Mod(degrees(math.Atan2(y, x))+360, 360)
}

func radians(d float64) float64 { return d * math.Pi / 180 }
func degrees(r float64) float64 { return r * 180 / math.Pi }
