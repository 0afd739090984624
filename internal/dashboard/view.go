package dashboard

import (
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/ppiankov/vitals/internal/model"
)

// Filter narrows the snapshot. A zero year bound means the data's own bound.
type Filter struct {
	FromYear  int
	ToYear    int
	Countries []string

	// Explicit marks a submitted filter form; without it an empty country
	// list falls back to the default selection
	Explicit bool
}

// ParseFilter reads from, to, country (repeatable) and filtered from a query string
func ParseFilter(q url.Values) Filter {
	f := Filter{
		FromYear: atoiOrZero(q.Get("from")),
		ToYear:   atoiOrZero(q.Get("to")),
		Explicit: q.Get("filtered") != "",
	}
	for _, c := range q["country"] {
		if c != "" {
			f.Countries = append(f.Countries, c)
		}
	}
	return f
}

func atoiOrZero(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

// Summary holds the headline numbers over the whole snapshot
type Summary struct {
	Rows            int      `json:"rows"`
	Countries       []string `json:"countries"`
	MinYear         int      `json:"min_year"`
	MaxYear         int      `json:"max_year"`
	AvgMarriageRate *float64 `json:"avg_marriage_rate"`
	AvgDivorceRate  *float64 `json:"avg_divorce_rate"`
}

// Summarize computes the country list, year bounds and global mean rates.
// Means skip null values and are nil when no value is present.
func Summarize(records []model.FlatRecord) Summary {
	s := Summary{Rows: len(records), Countries: []string{}}
	seen := make(map[string]bool)
	var mSum, dSum float64
	var mN, dN int

	for i, r := range records {
		if !seen[r.Country] {
			seen[r.Country] = true
			s.Countries = append(s.Countries, r.Country)
		}
		if i == 0 || r.Year < s.MinYear {
			s.MinYear = r.Year
		}
		if i == 0 || r.Year > s.MaxYear {
			s.MaxYear = r.Year
		}
		if r.MarriageRate != nil {
			mSum += *r.MarriageRate
			mN++
		}
		if r.DivorceRate != nil {
			dSum += *r.DivorceRate
			dN++
		}
	}
	sort.Strings(s.Countries)

	if mN > 0 {
		s.AvgMarriageRate = model.Float(mSum / float64(mN))
	}
	if dN > 0 {
		s.AvgDivorceRate = model.Float(dSum / float64(dN))
	}
	return s
}

// View is everything the page template renders
type View struct {
	Summary  Summary
	Filter   Filter
	Selected map[string]bool
	LoadedAt time.Time

	// Table holds the rows in the year range, for every country
	Table []model.FlatRecord
	// Charted holds the rows in the year range for the selected countries
	Charted []model.FlatRecord

	Trend   *Chart
	Scatter *Chart

	// Empty is set when the table has no usable rows
	Empty bool
	// NoMatch is set when the filter leaves nothing to chart
	NoMatch bool
}

// BuildView resolves f against the snapshot. Year bounds are clamped to the
// data, and with no explicit selection the first defaultCountries countries
// in alphabetical order are selected.
func BuildView(snap *Snapshot, f Filter, defaultCountries int) View {
	v := View{Summary: Summarize(snap.Records), LoadedAt: snap.LoadedAt}
	if len(snap.Records) == 0 {
		v.Empty = true
		v.Filter = f
		return v
	}

	f.FromYear, f.ToYear = clampRange(f.FromYear, f.ToYear, v.Summary.MinYear, v.Summary.MaxYear)
	if len(f.Countries) == 0 && !f.Explicit {
		n := defaultCountries
		if n > len(v.Summary.Countries) {
			n = len(v.Summary.Countries)
		}
		if n > 0 {
			f.Countries = append([]string(nil), v.Summary.Countries[:n]...)
		}
	}
	v.Filter = f

	v.Selected = make(map[string]bool, len(f.Countries))
	for _, c := range f.Countries {
		v.Selected[c] = true
	}

	for _, r := range snap.Records {
		if r.Year < f.FromYear || r.Year > f.ToYear {
			continue
		}
		v.Table = append(v.Table, r)
		if v.Selected[r.Country] {
			v.Charted = append(v.Charted, r)
		}
	}

	if len(v.Charted) == 0 {
		v.NoMatch = true
		return v
	}
	v.Trend = TrendChart(v.Charted, f.Countries)
	v.Scatter = ScatterChart(v.Charted, f.Countries)
	return v
}

func clampRange(from, to, lo, hi int) (int, int) {
	if from == 0 || from < lo {
		from = lo
	}
	if to == 0 || to > hi {
		to = hi
	}
	if from > to {
		from, to = to, from
	}
	return from, to
}

// Apply narrows records by the filter without defaults; zero values do not filter
func (f Filter) Apply(records []model.FlatRecord) []model.FlatRecord {
	want := make(map[string]bool, len(f.Countries))
	for _, c := range f.Countries {
		want[c] = true
	}
	out := make([]model.FlatRecord, 0, len(records))
	for _, r := range records {
		if f.FromYear != 0 && r.Year < f.FromYear {
			continue
		}
		if f.ToYear != 0 && r.Year > f.ToYear {
			continue
		}
		if len(want) > 0 && !want[r.Country] {
			continue
		}
		out = append(out, r)
	}
	return out
}
