// Package calibration holds the resistance to temperature lookup table of a
// cryogenic thermometer and interpolates it.
package calibration

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/itohio/cryotherm/pkg/fault"
)

// Point is a single calibration point.
type Point struct {
	Resistance  float64 // Ohms
	Temperature float64 // Kelvin
}

// Table is an immutable calibration table sorted by strictly increasing
// resistance. It is safe for concurrent use.
type Table struct {
	points []Point
}

// Format describes the column layout of a calibration file.
type Format struct {
	TemperatureColumn int
	ResistanceColumn  int
	// ResistanceScale converts the file's resistance unit into ohms.
	ResistanceScale float64
}

// DefaultFormat matches temp_and_res_lists.csv: temperature first,
// resistance second, both in base units.
var DefaultFormat = Format{
	TemperatureColumn: 0,
	ResistanceColumn:  1,
	ResistanceScale:   1,
}

// New builds a table from points given in either strictly ascending or
// strictly descending resistance order.
func New(points []Point) (*Table, error) {
	if len(points) < 2 {
		return nil, fault.Param(fault.ErrMalformedCalibrationData, "points", len(points), "need at least two points")
	}

	pts := make([]Point, len(points))
	copy(pts, points)

	for i, p := range pts {
		if math.IsNaN(p.Resistance) || math.IsInf(p.Resistance, 0) ||
			math.IsNaN(p.Temperature) || math.IsInf(p.Temperature, 0) {
			return nil, fault.Param(fault.ErrMalformedCalibrationData, fmt.Sprintf("points[%d]", i), p, "not a finite number")
		}
	}

	if pts[0].Resistance > pts[1].Resistance {
		for i, j := 0, len(pts)-1; i < j; i, j = i+1, j-1 {
			pts[i], pts[j] = pts[j], pts[i]
		}
	}

	for i := 1; i < len(pts); i++ {
		if pts[i].Resistance <= pts[i-1].Resistance {
			return nil, fault.Param(fault.ErrMalformedCalibrationData, "resistance", pts[i].Resistance,
				fmt.Sprintf("not strictly monotonic after %g", pts[i-1].Resistance))
		}
	}

	return &Table{points: pts}, nil
}

// Load reads a CSV calibration table. Blank lines and lines starting with '#'
// are ignored, as is a single non-numeric header line at the top.
func Load(r io.Reader, format Format) (*Table, error) {
	if format.ResistanceScale == 0 {
		format.ResistanceScale = 1
	}
	if format.TemperatureColumn < 0 || format.ResistanceColumn < 0 || format.TemperatureColumn == format.ResistanceColumn {
		return nil, fault.Param(fault.ErrInvalidConfiguration, "calibration columns",
			fmt.Sprintf("%d,%d", format.TemperatureColumn, format.ResistanceColumn), "must be distinct and non-negative")
	}

	reader := csv.NewReader(r)
	reader.Comment = '#'
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var points []Point
	records := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", fault.ErrMalformedCalibrationData, err)
		}
		records++
		line, _ := reader.FieldPos(0)

		need := max(format.TemperatureColumn, format.ResistanceColumn) + 1
		if len(record) < need {
			return nil, fault.Param(fault.ErrMalformedCalibrationData, fmt.Sprintf("line %d", line), len(record),
				fmt.Sprintf("expected at least %d columns", need))
		}

		temp, tErr := parseField(record[format.TemperatureColumn])
		res, rErr := parseField(record[format.ResistanceColumn])
		if tErr != nil || rErr != nil {
			if records == 1 && len(points) == 0 {
				// Header
				continue
			}
			return nil, fault.Param(fault.ErrMalformedCalibrationData, fmt.Sprintf("line %d", line),
				strings.Join(record, ","), "not numeric")
		}

		points = append(points, Point{Resistance: res * format.ResistanceScale, Temperature: temp})
	}

	return New(points)
}

// LoadFile reads a calibration table from a CSV file.
func LoadFile(filename string, format Format) (*Table, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open calibration file: %w", err)
	}
	defer f.Close()

	table, err := Load(f, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return table, nil
}

func parseField(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

// Interpolate returns the temperature for resistance r using piecewise
// linear interpolation. Resistances outside the table are clamped to the
// temperature of the nearest end point.
func (t *Table) Interpolate(r float64) float64 {
	pts := t.points
	if math.IsNaN(r) {
		return math.NaN()
	}
	if r <= pts[0].Resistance {
		return pts[0].Temperature
	}
	last := len(pts) - 1
	if r >= pts[last].Resistance {
		return pts[last].Temperature
	}

	// First point with resistance >= r; 1 <= i <= last here.
	i := sort.Search(len(pts), func(i int) bool { return pts[i].Resistance >= r })
	hi := pts[i]
	if hi.Resistance == r {
		return hi.Temperature
	}
	lo := pts[i-1]
	frac := (r - lo.Resistance) / (hi.Resistance - lo.Resistance)
	return lo.Temperature + frac*(hi.Temperature-lo.Temperature)
}

// Points returns a copy of the table sorted by increasing resistance.
func (t *Table) Points() []Point {
	result := make([]Point, len(t.points))
	copy(result, t.points)
	return result
}

// Len returns the number of calibration points.
func (t *Table) Len() int {
	return len(t.points)
}

// Range returns the resistance span covered by the table.
func (t *Table) Range() (minR, maxR float64) {
	return t.points[0].Resistance, t.points[len(t.points)-1].Resistance
}
