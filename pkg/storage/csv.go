package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/itohio/cryotherm/pkg/sample"
)

const (
	dateLayout = "2006-01-02"
	// TimeLayout formats record timestamps in CSV files.
	TimeLayout = "2006/01/02 15:04:05.000"
)

// CSVHeader is the column layout of CSV files holding temperatures in mK.
var CSVHeader = Header(sample.MilliKelvin)

// Header returns the CSV column layout for temperatures scaled by scale.
func Header(scale float64) []string {
	return []string{"V [V]", "R [ohms]", "Temp [" + sample.TemperatureUnit(scale) + "]", "Time"}
}

// CSV writes one file per channel under dated directories:
//
//	<dir>/<date>_data/thermometer_<channel>.csv
//	<dir>/averaged_data/averaged_<date>_data/thermometer_<channel>.csv
type CSV struct {
	dir    string
	date   string
	header []string
}

// NewCSV creates a CSV sink rooted at dir. The date directory is derived
// from start, today when zero.
func NewCSV(dir string, start time.Time) *CSV {
	if start.IsZero() {
		start = time.Now()
	}
	return &CSV{dir: dir, date: start.Format(dateLayout), header: CSVHeader}
}

// WithTemperatureScale labels the temperature column for scale.
func (c *CSV) WithTemperatureScale(scale float64) *CSV {
	c.header = Header(scale)
	return c
}

// RawPath returns the raw series file of channel.
func (c *CSV) RawPath(channel string) string {
	return filepath.Join(c.dir, c.date+"_data", "thermometer_"+channel+".csv")
}

// AveragedPath returns the averaged window file of channel.
func (c *CSV) AveragedPath(channel string) string {
	return filepath.Join(c.dir, "averaged_data", "averaged_"+c.date+"_data", "thermometer_"+channel+".csv")
}

func (c *CSV) WriteSeries(series sample.Series) error {
	rows := make([][]string, len(series.Records))
	for i, r := range series.Records {
		rows[i] = row(r.Voltage, r.Resistance, r.Temperature, r.Timestamp)
	}
	return writeCSV(c.RawPath(series.Channel.Name), c.header, rows)
}

func (c *CSV) WriteWindows(channel string, windows []sample.Window) error {
	rows := make([][]string, len(windows))
	for i, w := range windows {
		rows[i] = row(w.Voltage, w.Resistance, w.Temperature, w.Timestamp)
	}
	return writeCSV(c.AveragedPath(channel), c.header, rows)
}

func (c *CSV) Close() error {
	return nil
}

func row(v, r, t float64, ts time.Time) []string {
	return []string{
		strconv.FormatFloat(v, 'g', -1, 64),
		strconv.FormatFloat(r, 'g', -1, 64),
		strconv.FormatFloat(t, 'g', -1, 64),
		ts.Format(TimeLayout),
	}
}

func writeCSV(path string, header []string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	w := csv.NewWriter(f)
	_ = w.Write(header)
	_ = w.WriteAll(rows)
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}
