package units

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	secondsPerMinute = 60.0
	secondsPerHour   = 3600.0
	secondsPerDay    = 86400.0
)

// Duration is a span of simulation time. Manifests write periods in days
// ("365.256363004d"); internally everything is seconds.
type Duration struct {
	seconds float64
}

// Seconds builds a Duration from seconds.
func Seconds(s float64) Duration {
	return Duration{seconds: s}
}

// Days builds a Duration from days.
func Days(d float64) Duration {
	return Duration{seconds: d * secondsPerDay}
}

// ParseDuration parses whitespace separated terms, each a number followed by
// an optional unit: d/day/days, h/hour/hours, m/min/minute/minutes,
// s/sec/second/seconds. A bare number is seconds.
func ParseDuration(s string) (Duration, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return Duration{}, errors.New("empty duration")
	}

	var total float64
	for _, f := range fields {
		i := strings.IndexFunc(f, func(r rune) bool {
			return !(r >= '0' && r <= '9') && r != '.' && r != '-' && r != '+' && r != 'e'
		})
		num, unit := f, ""
		if i >= 0 {
			num, unit = f[:i], f[i:]
		}
		v, err := strconv.ParseFloat(num, 64)
		if err != nil {
			return Duration{}, fmt.Errorf("malformed duration term %q: %w", f, err)
		}
		scale, err := durationUnit(unit)
		if err != nil {
			return Duration{}, fmt.Errorf("duration term %q: %w", f, err)
		}
		total += v * scale
	}
	return Duration{seconds: total}, nil
}

func durationUnit(unit string) (float64, error) {
	switch unit {
	case "", "s", "sec", "second", "seconds":
		return 1, nil
	case "m", "min", "minute", "minutes":
		return secondsPerMinute, nil
	case "h", "hour", "hours":
		return secondsPerHour, nil
	case "d", "day", "days":
		return secondsPerDay, nil
	}
	return 0, fmt.Errorf("%w %q", ErrUnknownSuffix, unit)
}

// Seconds returns the duration in seconds.
func (d Duration) Seconds() float64 { return d.seconds }

// Days returns the duration in days.
func (d Duration) Days() float64 { return d.seconds / secondsPerDay }

// IsZero reports whether the duration is zero.
func (d Duration) IsZero() bool { return d.seconds == 0 }

// String formats as "1d 2h 30m 45.5s", dropping zero terms.
func (d Duration) String() string {
	rest := math.Abs(d.seconds)
	if rest == 0 {
		return "0"
	}
	var b strings.Builder
	if d.seconds < 0 {
		b.WriteByte('-')
	}
	days := math.Floor(rest / secondsPerDay)
	rest -= days * secondsPerDay
	hours := math.Floor(rest / secondsPerHour)
	rest -= hours * secondsPerHour
	minutes := math.Floor(rest / secondsPerMinute)
	rest -= minutes * secondsPerMinute

	var parts []string
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%.0fd", days))
	}
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%.0fh", hours))
	}
	if minutes > 0 {
		parts = append(parts, fmt.Sprintf("%.0fm", minutes))
	}
	if rest > 0 {
		parts = append(parts, fmt.Sprintf("%.1fs", rest))
	}
	b.WriteString(strings.Join(parts, " "))
	return b.String()
}

// UnmarshalYAML accepts a bare number (seconds) or a duration string.
func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a duration, got %s", n.Line, kindName(n.Kind))
	}
	parsed, err := ParseDuration(n.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", n.Line, err)
	}
	*d = parsed
	return nil
}

// MarshalYAML writes the duration in its string form.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}
