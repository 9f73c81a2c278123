package tailsitter

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// Lift table dimensions: one row per identified airframe configuration and one
// CL value per whole degree of angle of attack, 0° through 90° inclusive.
const (
	NumLiftRows   = 10
	NumLiftPoints = 91
)

// LiftTable holds per-degree lift coefficients for every identification run.
type LiftTable [NumLiftRows][NumLiftPoints]float64

// DefaultLiftTable returns the built-in table: a linear pre-stall slope that
// blends into flat-plate lift past stall, with the slope and stall angle
// stepping slightly per row.
func DefaultLiftTable() *LiftTable {
	var t LiftTable
	for row := 0; row < NumLiftRows; row++ {
		slope := 2 * math.Pi * (0.85 + 0.03*float64(row))
		stallDeg := 12 + 0.5*float64(row)
		for d := 0; d < NumLiftPoints; d++ {
			a := float64(d) * math.Pi / 180
			linear := slope * a
			plate := 1.05 * math.Sin(2*a)
			w := 1 / (1 + math.Exp(-(float64(d)-stallDeg)/1.5))
			t[row][d] = (1-w)*linear + w*plate
		}
	}
	return &t
}

// LoadLiftTable reads a CSV of NumLiftRows rows, each holding NumLiftPoints
// comma-separated CL values for 0°..90°. Blank lines and lines starting with
// '#' are skipped.
func LoadLiftTable(path string) (*LiftTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	r.Comment = '#'
	r.FieldsPerRecord = NumLiftPoints

	var t LiftTable
	row := 0
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("lift table row %d: %w", row, err)
		}
		if row >= NumLiftRows {
			return nil, fmt.Errorf("lift table has more than %d rows", NumLiftRows)
		}
		for i, field := range rec {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, fmt.Errorf("lift table row %d column %d: %w", row, i, err)
			}
			t[row][i] = v
		}
		row++
	}
	if row != NumLiftRows {
		return nil, fmt.Errorf("lift table has %d rows, want %d", row, NumLiftRows)
	}
	return &t, nil
}

// LiftCurve is the working CL row used by the acceleration feed-forward.
type LiftCurve struct {
	table  *LiftTable
	row    int
	cl     [NumLiftPoints]float64
	copies int
}

// NewLiftCurve returns a curve over t with row 0 selected.
func NewLiftCurve(t *LiftTable) *LiftCurve {
	if t == nil {
		t = DefaultLiftTable()
	}
	c := &LiftCurve{table: t, row: -1}
	c.Select(0)
	return c
}

// Select copies row into the working array. Out-of-range rows are ignored and
// reselecting the active row is a no-op; the return value reports whether a
// copy happened.
func (c *LiftCurve) Select(row int) bool {
	if row < 0 || row >= NumLiftRows || row == c.row {
		return false
	}
	c.cl = c.table[row]
	c.row = row
	c.copies++
	return true
}

// Row returns the active row index.
func (c *LiftCurve) Row() int { return c.row }

// Points returns a copy of the working array.
func (c *LiftCurve) Points() [NumLiftPoints]float64 { return c.cl }

// CL interpolates the working row at aoa radians. Outside 0.01°..89.99° of
// magnitude it returns zero; negative angles mirror the positive branch.
func (c *LiftCurve) CL(aoa float64) float64 {
	d := aoa * 180 / math.Pi
	sign := 1.0
	if d < 0 {
		d, sign = -d, -1
	}
	if d < 0.01 || d > 89.99 || math.IsNaN(d) {
		return 0
	}
	i := int(math.Floor(d))
	return sign * (c.cl[i] + (d-float64(i))*(c.cl[i+1]-c.cl[i]))
}
