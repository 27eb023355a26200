package mjd

import (
	"time"
)

const (
	// MinSpeed and MaxSpeed bound the relative simulation speed.
	MinSpeed = 0.1
	MaxSpeed = 1e4

	speedStep = 10.0
)

// Clock is the virtual simulation clock. It is advanced once per tick by the
// session and is not safe for concurrent mutation.
type Clock struct {
	now    float64 // MJD
	speed  float64
	paused bool
}

// NewClock creates a running clock at the given MJD with speed 1.
func NewClock(start float64) *Clock {
	return &Clock{now: start, speed: 1}
}

// Advance moves the clock forward by dt of real time scaled by the current
// speed and returns the simulated seconds that elapsed. A paused clock does
// not move.
func (c *Clock) Advance(dt time.Duration) float64 {
	if c.paused || dt <= 0 {
		return 0
	}
	elapsed := dt.Seconds() * c.speed
	c.now += elapsed / SecondsPerDay
	return elapsed
}

// Now returns the current MJD.
func (c *Clock) Now() float64 { return c.now }

// Set jumps the clock to mjd.
func (c *Clock) Set(mjd float64) { c.now = mjd }

// Speed returns the relative speed.
func (c *Clock) Speed() float64 { return c.speed }

// Paused reports whether the clock is paused.
func (c *Clock) Paused() bool { return c.paused }

// TogglePause flips the paused flag.
func (c *Clock) TogglePause() { c.paused = !c.paused }

// SpeedUp multiplies the speed by ten, up to MaxSpeed.
func (c *Clock) SpeedUp() {
	c.speed = min(c.speed*speedStep, MaxSpeed)
}

// SlowDown divides the speed by ten, down to MinSpeed.
func (c *Clock) SlowDown() {
	c.speed = max(c.speed/speedStep, MinSpeed)
}

// SetSpeed sets the speed, clamped to [MinSpeed, MaxSpeed].
func (c *Clock) SetSpeed(s float64) {
	c.speed = min(max(s, MinSpeed), MaxSpeed)
}
