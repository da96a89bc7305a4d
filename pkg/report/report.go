// Package report renders configuration, channel lists and session results as
// terminal tables.
package report

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"github.com/itohio/cryotherm/pkg/calibration"
	"github.com/itohio/cryotherm/pkg/channel"
	"github.com/itohio/cryotherm/pkg/config"
	"github.com/itohio/cryotherm/pkg/daq"
	"github.com/itohio/cryotherm/pkg/sample"
	"github.com/itohio/cryotherm/pkg/session"
)

// PreviewPoints is the default number of windows shown per channel.
const PreviewPoints = 10

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

// Renderer formats tables for one output stream.
type Renderer struct {
	// Fancy selects rounded box drawing; plain ASCII otherwise.
	Fancy bool

	// TemperatureScale converts kelvin to the displayed unit; zero means mK.
	TemperatureScale float64
}

func (r *Renderer) temperatureScale() float64 {
	if r.TemperatureScale == 0 {
		return sample.MilliKelvin
	}
	return r.TemperatureScale
}

func (r *Renderer) temperatureHeader() string {
	return "Temp [" + sample.TemperatureUnit(r.temperatureScale()) + "]"
}

// NewRenderer picks the style for w: rounded on terminals, plain otherwise.
func NewRenderer(w io.Writer) *Renderer {
	return &Renderer{Fancy: isTerminal(w)}
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func (r *Renderer) table(title string, headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	if r.Fancy {
		tw.SetStyle(table.StyleRounded)
	} else {
		tw.SetStyle(table.StyleDefault)
	}
	if title != "" {
		tw.SetTitle("%s", title)
	}

	header := make(table.Row, columns)
	for i := range columns {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		tr := make(table.Row, columns)
		for i := range columns {
			if i < len(row) {
				tr[i] = row[i]
			} else {
				tr[i] = ""
			}
		}
		tw.AppendRow(tr)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := range columns {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

// Config renders the acquisition setup, including the per-channel rate
// ceiling for the resolved channels.
func (r *Renderer) Config(cfg *config.Config, channels []channel.Channel) string {
	a := cfg.Acquisition
	n := len(channels)
	rows := [][]string{
		{"Driver", cfg.Device.Driver},
		{"Bias", fmt.Sprintf("%g V", a.Bias)},
		{"Reference resistor", humanize.SIWithDigits(a.RReference, 3, "Ω")},
		{"Gain", fmt.Sprintf("%g", a.Gain)},
		{"Channels", fmt.Sprintf("%s (%d)", strings.Join(channel.Names(channels), ","), n)},
		{"Sample rate", fmt.Sprintf("%g Hz", a.SampleRate)},
		{"Max rate per channel", fmt.Sprintf("%.1f Hz", daq.MaxChannelRate(n))},
		{"Scans per read", strconv.Itoa(cfg.EffectiveScansPerRead())},
		{"Scan count", a.ScanCount.String()},
	}
	names, values := cfg.SetupNames(), cfg.SetupValues()
	for i, name := range names {
		rows = append(rows, []string{name, fmt.Sprintf("%g", values[i])})
	}
	return r.table("Set configuration", []string{"Setting", "Value"}, rows, []columnAlignment{alignLeft, alignRight})
}

// Channels renders the resolved scan list.
func (r *Renderer) Channels(channels []channel.Channel) string {
	rows := make([][]string, 0, len(channels))
	for _, ch := range channels {
		pair := "-"
		if ch.Pair != channel.NoPair {
			pair = channel.Name(ch.Pair)
		}
		addr, err := daq.Address(ch.Name)
		address := strconv.Itoa(addr)
		if err != nil {
			address = "?"
		}
		rows = append(rows, []string{strconv.Itoa(ch.Position), ch.Name, ch.Polarity.String(), pair, address})
	}
	title := fmt.Sprintf("%d channels, max %.1f Hz each", len(channels), daq.MaxChannelRate(len(channels)))
	return r.table(title, []string{"#", "Channel", "Polarity", "Pair", "Address"}, rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight})
}

// Stats renders the final statistics of a session.
func (r *Renderer) Stats(res *session.Result) string {
	st := res.Stats
	rows := [][]string{
		{"Session", res.ID.String()},
		{"State", res.State.String()},
		{"Read cycles", humanize.Comma(int64(st.Cycles))},
		{"Total scans", humanize.Comma(int64(st.Scans))},
		{"Time taken", fmt.Sprintf("%.3f s", st.Elapsed().Seconds())},
		{"Actual scan rate", fmt.Sprintf("%g scans/s", st.ActualRate)},
		{"Timed scan rate", fmt.Sprintf("%.3f scans/s", st.ScanRate())},
		{"Timed sample rate", fmt.Sprintf("%.3f samples/s", st.SampleRate())},
		{"Skipped samples", fmt.Sprintf("%s (%.1f scans)", humanize.Comma(int64(st.Skipped)), st.SkippedScans())},
		{"Records", humanize.Comma(int64(res.Records()))},
	}
	if st.Cancelled {
		rows = append(rows, []string{"Cancelled", "yes"})
	}
	return r.table("Session statistics", []string{"Statistic", "Value"}, rows, []columnAlignment{alignLeft, alignRight})
}

// Windows renders up to maxPoints windows per channel, evenly spread over
// the session. windows is indexed like res.Series.
func (r *Renderer) Windows(res *session.Result, windows [][]sample.Window, maxPoints int) string {
	if maxPoints <= 0 {
		maxPoints = PreviewPoints
	}

	var b strings.Builder
	var preview []sample.Window
	for i, w := range windows {
		if i >= len(res.Series) {
			break
		}
		preview = sample.DownsampleWindows(preview, w, maxPoints)
		rows := make([][]string, 0, len(preview))
		for _, pw := range preview {
			idx := strconv.Itoa(pw.Index)
			if pw.Partial() {
				idx += "*"
			}
			rows = append(rows, []string{
				idx,
				pw.Timestamp.Format("15:04:05.000"),
				fmt.Sprintf("%.6g", pw.Voltage),
				humanize.SIWithDigits(pw.Resistance, 4, "Ω"),
				fmt.Sprintf("%.3f", pw.Temperature),
			})
		}
		title := fmt.Sprintf("%s: %d windows", res.Series[i].Channel.Name, len(w))
		b.WriteString(r.table(title, []string{"Window", "Time", "V [V]", "R", r.temperatureHeader()}, rows,
			[]columnAlignment{alignRight, alignLeft, alignRight, alignRight, alignRight}))
		b.WriteString("\n")
	}
	return b.String()
}

// Calibration renders a table summary and optional interpolated lookups.
func (r *Renderer) Calibration(t *calibration.Table, resistances []float64) string {
	minR, maxR := t.Range()
	title := fmt.Sprintf("%d points, %s to %s", t.Len(),
		humanize.SIWithDigits(minR, 4, "Ω"), humanize.SIWithDigits(maxR, 4, "Ω"))

	rows := make([][]string, 0, len(resistances))
	for _, res := range resistances {
		note := ""
		if res < minR || res > maxR {
			note = "clamped"
		}
		k := t.Interpolate(res)
		rows = append(rows, []string{
			humanize.SIWithDigits(res, 4, "Ω"),
			fmt.Sprintf("%.4f", k),
			fmt.Sprintf("%.3f", k*r.temperatureScale()),
			note,
		})
	}
	return r.table(title, []string{"R", "T [K]", r.temperatureHeader(), ""}, rows,
		[]columnAlignment{alignRight, alignRight, alignRight, alignLeft})
}
