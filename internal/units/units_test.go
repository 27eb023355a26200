package units

import (
	"errors"
	"math"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestParseQuantity(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"696.340M", 696340000.0},
		{"2439.7k", 2439700.0},
		{"149598023k", 149598023000.0},
		{"1.5G", 1.5e9},
		{"0.0167086", 0.0167086},
		{"42", 42},
		{"-3.5", -3.5},
		{"7.", 7},
		{"12c", 0.12},
		{"3T", 3e12},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			q, err := ParseQuantity(tt.in)
			if err != nil {
				t.Fatalf("ParseQuantity(%q) error: %v", tt.in, err)
			}
			got := q.Base()
			if math.Abs(got-tt.want) > math.Abs(tt.want)*1e-12 {
				t.Errorf("ParseQuantity(%q).Base() = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseQuantityErrors(t *testing.T) {
	tests := []struct {
		in         string
		wantSuffix bool
	}{
		{"", false},
		{"abc", false},
		{"12x", true},
		{"12d", true},
		{"k", false},
		{"1.2.3k", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			_, err := ParseQuantity(tt.in)
			if err == nil {
				t.Fatalf("ParseQuantity(%q) expected error", tt.in)
			}
			if got := errors.Is(err, ErrUnknownSuffix); got != tt.wantSuffix {
				t.Errorf("errors.Is(err, ErrUnknownSuffix) = %v, want %v (err=%v)", got, tt.wantSuffix, err)
			}
		})
	}
}

func TestQuantityStringKeepsPrefix(t *testing.T) {
	q, err := ParseQuantity("696.340M")
	if err != nil {
		t.Fatal(err)
	}
	if got := q.String(); got != "696.34M" {
		t.Errorf("String() = %q, want %q", got, "696.34M")
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in          string
		wantSeconds float64
	}{
		{"58.646d", 58.646 * 86400},
		{"365.256363004d", 365.256363004 * 86400},
		{"1d 2h 30m 45.5s", 86400 + 2*3600 + 30*60 + 45.5},
		{"90", 90},
		{"2 days", 0}, // "days" alone is a malformed term
		{"1.5h", 5400},
		{"10min", 600},
		{"3sec", 3},
		{"1e3s", 1000},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			d, err := ParseDuration(tt.in)
			if tt.wantSeconds == 0 {
				if err == nil {
					t.Fatalf("ParseDuration(%q) expected error, got %v", tt.in, d)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDuration(%q) error: %v", tt.in, err)
			}
			if math.Abs(d.Seconds()-tt.wantSeconds) > 1e-6 {
				t.Errorf("ParseDuration(%q) = %vs, want %vs", tt.in, d.Seconds(), tt.wantSeconds)
			}
		})
	}
}

func TestDurationDays(t *testing.T) {
	d, err := ParseDuration("58.646d")
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(d.Days()-58.646) > 1e-12 {
		t.Errorf("Days() = %v, want 58.646", d.Days())
	}
}

func TestParseDurationUnknownUnit(t *testing.T) {
	_, err := ParseDuration("5y")
	if !errors.Is(err, ErrUnknownSuffix) {
		t.Fatalf("expected ErrUnknownSuffix, got %v", err)
	}
}

func TestDurationString(t *testing.T) {
	d := Seconds(86400 + 2*3600 + 30*60 + 45.5)
	if got := d.String(); got != "1d 2h 30m 45.5s" {
		t.Errorf("String() = %q", got)
	}
	if got := Seconds(0).String(); got != "0" {
		t.Errorf("zero String() = %q", got)
	}
}

func TestYAMLDecoding(t *testing.T) {
	var doc struct {
		Radius Quantity `yaml:"radius"`
		Plain  Quantity `yaml:"plain"`
		Day    Duration `yaml:"siderial-day"`
	}
	src := "radius: 696.340M\nplain: 1.25\nsiderial-day: 58.646d\n"
	if err := yaml.Unmarshal([]byte(src), &doc); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if math.Abs(doc.Radius.Base()-696340000) > 1e-3 {
		t.Errorf("radius = %v", doc.Radius.Base())
	}
	if doc.Plain.Base() != 1.25 {
		t.Errorf("plain = %v", doc.Plain.Base())
	}
	if math.Abs(doc.Day.Days()-58.646) > 1e-12 {
		t.Errorf("siderial-day = %v days", doc.Day.Days())
	}
}

func TestYAMLDecodingRejectsMapping(t *testing.T) {
	var doc struct {
		Radius Quantity `yaml:"radius"`
	}
	err := yaml.Unmarshal([]byte("radius: {a: 1}\n"), &doc)
	if err == nil {
		t.Fatal("expected error for mapping value")
	}
}
