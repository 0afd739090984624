package dashboard

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/ppiankov/vitals/internal/model"
)

const (
	chartWidth   = 720
	chartHeight  = 360
	marginLeft   = 56
	marginRight  = 16
	marginTop    = 16
	marginBottom = 44
	tickCount    = 5
)

// Category palette, assigned by selection order so a country keeps its
// color in both charts
var palette = []string{
	"#1f77b4", "#ff7f0e", "#2ca02c", "#d62728", "#9467bd",
	"#8c564b", "#e377c2", "#7f7f7f", "#bcbd22", "#17becf",
}

// Point is one plotted value in pixel space
type Point struct {
	X, Y  float64
	Title string
}

// Series is the points of one country
type Series struct {
	Name   string
	Color  string
	Points []Point
	Path   string
}

// Tick is an axis label at a pixel position
type Tick struct {
	Pos   float64
	Label string
}

// Chart is a rendered-ready SVG plot
type Chart struct {
	Title, XLabel, YLabel string

	Width, Height                            int
	PlotLeft, PlotRight, PlotTop, PlotBottom float64

	XTicks, YTicks []Tick
	Series         []Series
	Lines          bool
}

type scale struct {
	dMin, dMax float64
	pMin, pMax float64
}

func newScale(lo, hi, pMin, pMax float64) scale {
	if hi <= lo {
		lo, hi = lo-1, hi+1
	}
	return scale{dMin: lo, dMax: hi, pMin: pMin, pMax: pMax}
}

func (s scale) at(v float64) float64 {
	return round1(s.pMin + (v-s.dMin)/(s.dMax-s.dMin)*(s.pMax-s.pMin))
}

func (s scale) ticks(format func(float64) string) []Tick {
	out := make([]Tick, 0, tickCount)
	seen := make(map[string]bool)
	for i := 0; i < tickCount; i++ {
		v := s.dMin + (s.dMax-s.dMin)*float64(i)/float64(tickCount-1)
		label := format(v)
		if seen[label] {
			continue
		}
		seen[label] = true
		out = append(out, Tick{Pos: s.at(v), Label: label})
	}
	return out
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func formatYear(v float64) string { return fmt.Sprintf("%d", int(math.Round(v))) }
func formatRate(v float64) string { return fmt.Sprintf("%.1f", v) }

func newChart(title, xLabel, yLabel string) *Chart {
	return &Chart{
		Title:      title,
		XLabel:     xLabel,
		YLabel:     yLabel,
		Width:      chartWidth,
		Height:     chartHeight,
		PlotLeft:   marginLeft,
		PlotRight:  chartWidth - marginRight,
		PlotTop:    marginTop,
		PlotBottom: chartHeight - marginBottom,
	}
}

// rateDomain starts rate axes at zero with some headroom above the largest value
func rateDomain(top float64) (float64, float64) {
	if top <= 0 {
		return 0, 1
	}
	return 0, top * 1.1
}

// TrendChart plots marriage rate over year, one line per country in
// countries. It returns nil when no selected row has a marriage rate.
func TrendChart(records []model.FlatRecord, countries []string) *Chart {
	byCountry := make(map[string][]model.FlatRecord)
	minYear, maxYear, maxRate := math.MaxInt, math.MinInt, 0.0
	for _, r := range records {
		if r.MarriageRate == nil {
			continue
		}
		byCountry[r.Country] = append(byCountry[r.Country], r)
		minYear = min(minYear, r.Year)
		maxYear = max(maxYear, r.Year)
		maxRate = math.Max(maxRate, *r.MarriageRate)
	}
	if len(byCountry) == 0 {
		return nil
	}

	c := newChart("Marriage rate over time by country", "Year", "Marriage rate (per 1,000)")
	c.Lines = true
	xs := newScale(float64(minYear), float64(maxYear), c.PlotLeft, c.PlotRight)
	lo, hi := rateDomain(maxRate)
	ys := newScale(lo, hi, c.PlotBottom, c.PlotTop)
	c.XTicks = xs.ticks(formatYear)
	c.YTicks = ys.ticks(formatRate)

	for i, country := range countries {
		rows := byCountry[country]
		if len(rows) == 0 {
			continue
		}
		sort.Slice(rows, func(a, b int) bool { return rows[a].Year < rows[b].Year })

		s := Series{Name: country, Color: palette[i%len(palette)]}
		var path strings.Builder
		for j, r := range rows {
			p := Point{
				X:     xs.at(float64(r.Year)),
				Y:     ys.at(*r.MarriageRate),
				Title: fmt.Sprintf("%s %d: %.2f", r.Country, r.Year, *r.MarriageRate),
			}
			s.Points = append(s.Points, p)
			if j == 0 {
				fmt.Fprintf(&path, "M%.1f,%.1f", p.X, p.Y)
			} else {
				fmt.Fprintf(&path, " L%.1f,%.1f", p.X, p.Y)
			}
		}
		s.Path = path.String()
		c.Series = append(c.Series, s)
	}
	return c
}

// ScatterChart plots marriage rate against divorce rate for rows that have
// both. It returns nil when there is no such row.
func ScatterChart(records []model.FlatRecord, countries []string) *Chart {
	byCountry := make(map[string][]model.FlatRecord)
	maxM, maxD := 0.0, 0.0
	for _, r := range records {
		if r.MarriageRate == nil || r.DivorceRate == nil {
			continue
		}
		byCountry[r.Country] = append(byCountry[r.Country], r)
		maxM = math.Max(maxM, *r.MarriageRate)
		maxD = math.Max(maxD, *r.DivorceRate)
	}
	if len(byCountry) == 0 {
		return nil
	}

	c := newChart("Marriage rate vs. divorce rate", "Divorce rate (per 1,000)", "Marriage rate (per 1,000)")
	xlo, xhi := rateDomain(maxD)
	ylo, yhi := rateDomain(maxM)
	xs := newScale(xlo, xhi, c.PlotLeft, c.PlotRight)
	ys := newScale(ylo, yhi, c.PlotBottom, c.PlotTop)
	c.XTicks = xs.ticks(formatRate)
	c.YTicks = ys.ticks(formatRate)

	for i, country := range countries {
		rows := byCountry[country]
		if len(rows) == 0 {
			continue
		}
		s := Series{Name: country, Color: palette[i%len(palette)]}
		for _, r := range rows {
			s.Points = append(s.Points, Point{
				X:     xs.at(*r.DivorceRate),
				Y:     ys.at(*r.MarriageRate),
				Title: fmt.Sprintf("%s %d: marriage %.2f, divorce %.2f", r.Country, r.Year, *r.MarriageRate, *r.DivorceRate),
			})
		}
		c.Series = append(c.Series, s)
	}
	return c
}
