package tle

import (
	"time"

	"github.com/star/spacesim/internal/mjd"
)

// Entry is one satellite's two-line element set.
type Entry struct {
	NORADID int
	Name    string
	Epoch   time.Time
	Line1   string
	Line2   string
}

// EpochMJD returns the element set epoch as a Modified Julian Date.
func (e Entry) EpochMJD() float64 {
	return mjd.FromTime(e.Epoch)
}
