// Package mjd converts between wall-clock time and Modified Julian Dates and
// provides the virtual simulation clock.
package mjd

import (
	"time"

	"github.com/soniakeys/meeus/v3/julian"
)

// Offset is the Julian Date of the MJD epoch, 1858-11-17 00:00 UTC.
const Offset = 2400000.5

// SecondsPerDay is the length of an MJD day.
const SecondsPerDay = 86400.0

// J2000 is the MJD of 2000-01-01 12:00 TT, the reference epoch used by the
// bundled scene.
const J2000 = 51544.5

// FromTime returns the MJD of t.
func FromTime(t time.Time) float64 {
	return julian.TimeToJD(t.UTC()) - Offset
}

// ToTime returns the UTC time of an MJD.
func ToTime(mjd float64) time.Time {
	return julian.JDToTime(mjd + Offset).UTC()
}

// SecondsBetween returns (to - from) in seconds.
func SecondsBetween(from, to float64) float64 {
	return (to - from) * SecondsPerDay
}
