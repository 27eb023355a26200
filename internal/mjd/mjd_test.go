package mjd

import (
	"math"
	"testing"
	"time"
)

func TestFromTimeKnownDates(t *testing.T) {
	tests := []struct {
		name string
		t    time.Time
		want float64
	}{
		{"mjd epoch", time.Date(1858, 11, 17, 0, 0, 0, 0, time.UTC), 0},
		{"j2000", time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC), J2000},
		{"unix epoch", time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC), 40587},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromTime(tt.t)
			if math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("FromTime(%s) = %f, want %f", tt.t, got, tt.want)
			}
		})
	}
}

func TestToTimeRoundTrip(t *testing.T) {
	in := time.Date(2024, 4, 10, 12, 30, 0, 0, time.UTC)
	out := ToTime(FromTime(in))
	if d := out.Sub(in); d > time.Millisecond || d < -time.Millisecond {
		t.Errorf("round trip drift %v (got %s)", d, out)
	}
}

func TestClockAdvance(t *testing.T) {
	c := NewClock(J2000)
	elapsed := c.Advance(2 * time.Second)
	if elapsed != 2 {
		t.Errorf("elapsed = %v, want 2", elapsed)
	}
	if want := J2000 + 2/SecondsPerDay; math.Abs(c.Now()-want) > 1e-12 {
		t.Errorf("Now() = %v, want %v", c.Now(), want)
	}
}

func TestClockPause(t *testing.T) {
	c := NewClock(100)
	c.TogglePause()
	if got := c.Advance(time.Hour); got != 0 {
		t.Errorf("paused clock advanced %v seconds", got)
	}
	if c.Now() != 100 {
		t.Errorf("paused clock moved to %v", c.Now())
	}
	c.TogglePause()
	if c.Paused() {
		t.Error("clock still paused after second toggle")
	}
}

func TestClockSpeedBounds(t *testing.T) {
	c := NewClock(0)
	for range 10 {
		c.SpeedUp()
	}
	if c.Speed() != MaxSpeed {
		t.Errorf("speed after repeated SpeedUp = %v, want %v", c.Speed(), MaxSpeed)
	}
	for range 20 {
		c.SlowDown()
	}
	if c.Speed() != MinSpeed {
		t.Errorf("speed after repeated SlowDown = %v, want %v", c.Speed(), MinSpeed)
	}

	c.SetSpeed(1000)
	if got := c.Advance(time.Second); got != 1000 {
		t.Errorf("elapsed at speed 1000 = %v", got)
	}
}
