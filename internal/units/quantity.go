// Package units parses the numeric notation used by scene manifests: plain
// numbers, numbers with a trailing SI prefix ("696.340M", "2439.7k") and
// durations ("365.256363004d", "1d 2h 30m 45.5s").
package units

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrUnknownSuffix is returned when a value carries a unit suffix that is not
// a recognized SI prefix or duration unit.
var ErrUnknownSuffix = errors.New("unrecognized unit suffix")

// prefixFactors maps SI prefix characters to their multiplier.
// 'd' is deliberately absent: in manifests it always means days.
var prefixFactors = map[byte]float64{
	'Y': 1e24,
	'Z': 1e21,
	'E': 1e18,
	'P': 1e15,
	'T': 1e12,
	'G': 1e9,
	'M': 1e6,
	'k': 1e3,
	'h': 1e2,
	'c': 1e-2,
	'm': 1e-3,
	'u': 1e-6,
	'n': 1e-9,
	'p': 1e-12,
	'f': 1e-15,
	'a': 1e-18,
	'z': 1e-21,
	'y': 1e-24,
}

// Quantity is a number with an optional SI prefix, kept as written so it can
// be printed back the same way.
type Quantity struct {
	Value  float64
	Prefix byte // 0 when no prefix
}

// Q returns an unprefixed quantity.
func Q(v float64) Quantity {
	return Quantity{Value: v}
}

// ParseQuantity parses "1.23", "1.23k", "696.340M".
func ParseQuantity(s string) (Quantity, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Quantity{}, errors.New("empty quantity")
	}

	last := s[len(s)-1]
	if isNumericTail(last) {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Quantity{}, fmt.Errorf("invalid number %q: %w", s, err)
		}
		return Quantity{Value: v}, nil
	}

	if _, ok := prefixFactors[last]; !ok {
		return Quantity{}, fmt.Errorf("%w %q in %q", ErrUnknownSuffix, string(last), s)
	}
	v, err := strconv.ParseFloat(s[:len(s)-1], 64)
	if err != nil {
		return Quantity{}, fmt.Errorf("invalid number %q: %w", s, err)
	}
	return Quantity{Value: v, Prefix: last}, nil
}

// Base returns the value scaled by its prefix.
func (q Quantity) Base() float64 {
	if q.Prefix == 0 {
		return q.Value
	}
	return q.Value * prefixFactors[q.Prefix]
}

func (q Quantity) String() string {
	v := strconv.FormatFloat(q.Value, 'g', -1, 64)
	if q.Prefix == 0 {
		return v
	}
	return v + string(q.Prefix)
}

// UnmarshalYAML accepts both YAML numbers and prefixed strings.
func (q *Quantity) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a number, got %s", n.Line, kindName(n.Kind))
	}
	parsed, err := ParseQuantity(n.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", n.Line, err)
	}
	*q = parsed
	return nil
}

// MarshalYAML writes the quantity as written, e.g. "696.34M".
func (q Quantity) MarshalYAML() (any, error) {
	if q.Prefix == 0 {
		return q.Value, nil
	}
	return q.String(), nil
}

// isNumericTail reports whether c can end a plain float literal.
func isNumericTail(c byte) bool {
	return (c >= '0' && c <= '9') || c == '.'
}

func kindName(k yaml.Kind) string {
	switch k {
	case yaml.MappingNode:
		return "mapping"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.AliasNode:
		return "alias"
	case yaml.DocumentNode:
		return "document"
	default:
		return "scalar"
	}
}
