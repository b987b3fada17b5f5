package service

import (
	"math"
	"time"

	"github.com/sixdouglas/suncalc"
)

// SolarProfile synthesizes a 24-entry hourly production profile (kW) for the
// day containing t at the given site. Output follows the sine of the solar
// altitude between sunrise and sunset, attenuated by cloud coverage (clouds
// reduce output by up to 90%). Profile wrapping repeats the daily pattern
// across longer horizons.
func SolarProfile(t time.Time, latitude, longitude, peakKW, cloudCoverage float64) []float64 {
	dayStart := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())

	cloudFactor := 1.0 - (cloudCoverage/100.0)*0.90

	profile := make([]float64, 24)
	for hour := range profile {
		// Evaluate at the middle of the hour.
		at := dayStart.Add(time.Duration(hour)*time.Hour + 30*time.Minute)
		profile[hour] = solarPowerAt(at, latitude, longitude, peakKW) * cloudFactor
	}
	return profile
}

// solarPowerAt estimates instantaneous solar power from the sun's position.
func solarPowerAt(t time.Time, latitude, longitude, peakKW float64) float64 {
	sunTimes := suncalc.GetTimes(t, latitude, longitude)
	sunrise := sunTimes["sunrise"].Value
	sunset := sunTimes["sunset"].Value

	if t.Before(sunrise) || t.After(sunset) {
		return 0 // No sun available
	}

	pos := suncalc.GetPosition(t, latitude, longitude)

	// Altitude ranges from 0 at the horizon to pi/2 at the zenith; its sine
	// is the output factor.
	factor := math.Sin(pos.Altitude)
	if factor < 0 {
		return 0
	}

	return peakKW * factor
}
