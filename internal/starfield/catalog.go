// Package starfield loads the HYG star catalog and turns the naked-eye stars
// into instance data for a background sky: one sphere per star, sized and
// colored from its photometry, placed on a coarse grid of its own.
package starfield

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/go-gl/mathgl/mgl64"
)

// HYG v3 column indices.
const (
	colBayerFlamsteed = 5
	colProper         = 6
	colRA             = 7
	colDec            = 8
	colDistance       = 9
	colMagnitude      = 13
	colAbsMagnitude   = 14
	colColorIndex     = 16
	colX              = 17
	colY              = 18
	colZ              = 19

	minColumns = colZ + 1
)

// skipRows covers the header and the Sun.
const skipRows = 2

// VisibleMagnitude is the naked-eye limit; fainter stars are not rendered.
const VisibleMagnitude = 6.5

// ErrMissingColumns is returned for a row shorter than the HYG layout.
var ErrMissingColumns = errors.New("catalog row has too few columns")

// FieldError identifies a catalog cell that is not a number.
type FieldError struct {
	Row    int
	Column int
	Err    error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("starfield: row %d column %d: %v", e.Row, e.Column, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

// Star is one catalog entry. Right ascension is in hours, declination in
// degrees, the color index is B-V, and Position is equatorial in parsecs.
type Star struct {
	Name              string     `json:"name,omitempty"`
	RightAscension    float64    `json:"ra"`
	Declination       float64    `json:"dec"`
	Magnitude         float64    `json:"mag"`
	AbsoluteMagnitude float64    `json:"absmag"`
	DistanceParsecs   float64    `json:"dist"`
	ColorIndex        float64    `json:"ci"`
	Position          mgl64.Vec3 `json:"position"`
}

// Visible reports whether the star is brighter than the naked-eye limit.
func (s Star) Visible() bool { return s.Magnitude < VisibleMagnitude }

// ParseCatalog reads a HYG v3 CSV. A missing color index is read as 0;
// every other numeric column must parse.
func ParseCatalog(r io.Reader) ([]Star, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	var stars []Star
	for row := 0; ; row++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading star catalog: %w", err)
		}
		if row < skipRows {
			continue
		}
		if len(rec) < minColumns {
			return nil, fmt.Errorf("%w: row %d has %d, need %d", ErrMissingColumns, row, len(rec), minColumns)
		}
		star, err := parseRow(row, rec)
		if err != nil {
			return nil, err
		}
		stars = append(stars, star)
	}
	return stars, nil
}

func parseRow(row int, rec []string) (Star, error) {
	var firstErr error
	num := func(col int) float64 {
		v, err := strconv.ParseFloat(rec[col], 64)
		if err != nil && firstErr == nil {
			firstErr = &FieldError{Row: row, Column: col, Err: err}
		}
		return v
	}

	s := Star{
		Name:              rec[colProper],
		RightAscension:    num(colRA),
		Declination:       num(colDec),
		Magnitude:         num(colMagnitude),
		AbsoluteMagnitude: num(colAbsMagnitude),
		DistanceParsecs:   num(colDistance),
		Position:          mgl64.Vec3{num(colX), num(colY), num(colZ)},
	}
	if s.Name == "" {
		s.Name = rec[colBayerFlamsteed]
	}
	if ci, err := strconv.ParseFloat(rec[colColorIndex], 64); err == nil {
		s.ColorIndex = ci
	}
	return s, firstErr
}

// LoadCatalog reads a HYG v3 CSV file.
func LoadCatalog(path string) ([]Star, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening star catalog: %w", err)
	}
	defer f.Close()
	return ParseCatalog(f)
}

// VisibleStars returns the stars brighter than VisibleMagnitude.
func VisibleStars(stars []Star) []Star {
	out := make([]Star, 0, len(stars)/8)
	for _, s := range stars {
		if s.Visible() {
			out = append(out, s)
		}
	}
	return out
}
