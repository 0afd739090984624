package flatten

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/vitals/internal/logging"
	"github.com/ppiankov/vitals/internal/model"
)

var flattenNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func mustParse(t *testing.T, payload string) *model.Document {
	t.Helper()
	doc, err := model.ParseDocument([]byte(payload))
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}
	return doc
}

func floatEq(p *float64, want float64) bool {
	return p != nil && *p == want
}

func TestFlatten_RoundTrip(t *testing.T) {
	doc := mustParse(t, `{"France": {"2019": {"marriage_rate": 3.5, "divorce_rate": 1.9}}}`)

	res := New(logging.NewNop()).Flatten(doc, flattenNow)
	if len(res.Records) != 1 {
		t.Fatalf("Expected 1 record, got %d (warnings: %v)", len(res.Records), res.Warnings)
	}

	rec := res.Records[0]
	stamp := model.EpochSeconds(flattenNow)

	if rec.Country != "France" || rec.Year != 2019 {
		t.Errorf("Unexpected key: %s/%d", rec.Country, rec.Year)
	}
	if !floatEq(rec.MarriageRate, 3.5) {
		t.Errorf("Expected marriage_rate 3.5, got %v", rec.MarriageRate)
	}
	if !floatEq(rec.DivorceRate, 1.9) {
		t.Errorf("Expected divorce_rate 1.9, got %v", rec.DivorceRate)
	}
	if !floatEq(rec.ExtractedAt, stamp) {
		t.Errorf("Expected extracted_at %v, got %v", stamp, rec.ExtractedAt)
	}
	if !floatEq(rec.UpdatedAt, stamp) {
		t.Errorf("Expected updated_at %v, got %v", stamp, rec.UpdatedAt)
	}
	if len(res.Warnings) != 0 {
		t.Errorf("Expected no warnings, got %v", res.Warnings)
	}
}

func TestFlatten_MalformedYearKeySkipped(t *testing.T) {
	doc := mustParse(t, `{"Spain": {"not-a-year": {"marriage_rate": 4.0}}}`)

	res := New(nil).Flatten(doc, flattenNow)
	if !res.Empty() {
		t.Fatalf("Expected zero records, got %v", res.Records)
	}
	if res.Skipped() != 1 {
		t.Errorf("Expected 1 skipped entry, got %d", res.Skipped())
	}
}

func TestFlatten_BadRecordKeepsSiblings(t *testing.T) {
	doc := mustParse(t, `{
		"Spain": {
			"not-a-year": {"marriage_rate": 4.0},
			"2018": {"marriage_rate": 3.6},
			"2019": "no data",
			"2020": {"marriage_rate": 1.9, "divorce_rate": 1.7}
		}
	}`)

	res := New(nil).Flatten(doc, flattenNow)
	if len(res.Records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(res.Records))
	}
	if res.Records[0].Year != 2018 || res.Records[1].Year != 2020 {
		t.Errorf("Expected years 2018 and 2020 in document order, got %d and %d", res.Records[0].Year, res.Records[1].Year)
	}
	if res.Skipped() != 2 {
		t.Errorf("Expected 2 skipped entries, got %d", res.Skipped())
	}
}

func TestFlatten_NonObjectCountrySkipped(t *testing.T) {
	doc := mustParse(t, `{
		"Atlantis": [1, 2, 3],
		"Italy": {"2019": {"marriage_rate": 3.1}},
		"Narnia": null
	}`)

	res := New(nil).Flatten(doc, flattenNow)
	if len(res.Records) != 1 || res.Records[0].Country != "Italy" {
		t.Fatalf("Expected only Italy, got %v", res.Records)
	}
	if res.Skipped() != 2 {
		t.Errorf("Expected 2 skipped countries, got %d", res.Skipped())
	}
}

func TestFlatten_CoercionNeverFails(t *testing.T) {
	doc := mustParse(t, `{
		"Japan": {
			"2015": {
				"marriage_rate": "about five",
				"divorce_rate": "1.8",
				"extracted_at": "yesterday",
				"notes": {"nested": true}
			},
			"2016": {
				"marriage_rate": true,
				"divorce_rate": [1, 2]
			}
		}
	}`)

	res := New(nil).Flatten(doc, flattenNow)
	if len(res.Records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(res.Records))
	}

	first := res.Records[0]
	if first.MarriageRate != nil {
		t.Errorf("Expected non-numeric marriage_rate to become null, got %v", *first.MarriageRate)
	}
	if !floatEq(first.DivorceRate, 1.8) {
		t.Errorf("Expected numeric string divorce_rate to coerce to 1.8, got %v", first.DivorceRate)
	}
	if first.ExtractedAt != nil {
		t.Errorf("Expected non-numeric extracted_at to become null, got %v", *first.ExtractedAt)
	}
	if !floatEq(first.UpdatedAt, model.EpochSeconds(flattenNow)) {
		t.Errorf("Expected updated_at to be stamped, got %v", first.UpdatedAt)
	}

	second := res.Records[1]
	if second.MarriageRate != nil || second.DivorceRate != nil {
		t.Errorf("Expected bool/array rates to become null, got %v / %v", second.MarriageRate, second.DivorceRate)
	}
}

func TestFlatten_TimestampHandling(t *testing.T) {
	doc := mustParse(t, `{
		"Chile": {
			"2010": {"marriage_rate": 3.3, "extracted_at": 1600000000.5, "updated_at": 1},
			"2011": {"marriage_rate": 3.4, "extracted_at": null}
		}
	}`)

	res := New(nil).Flatten(doc, flattenNow)
	if len(res.Records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(res.Records))
	}

	stamp := model.EpochSeconds(flattenNow)
	if !floatEq(res.Records[0].ExtractedAt, 1600000000.5) {
		t.Errorf("Expected existing extracted_at to be kept, got %v", res.Records[0].ExtractedAt)
	}
	if !floatEq(res.Records[0].UpdatedAt, stamp) {
		t.Errorf("Expected updated_at to be overwritten, got %v", res.Records[0].UpdatedAt)
	}
	if !floatEq(res.Records[1].ExtractedAt, stamp) {
		t.Errorf("Expected null extracted_at to default to now, got %v", res.Records[1].ExtractedAt)
	}
}

func TestFlatten_EmbeddedKeysWin(t *testing.T) {
	doc := mustParse(t, `{
		"USA": {
			"2020": {"country": "United States", "year": 2021, "marriage_rate": 5.1}
		},
		"Germany": {
			"latest": {"year": "2019", "marriage_rate": 5.0}
		}
	}`)

	res := New(nil).Flatten(doc, flattenNow)
	if len(res.Records) != 2 {
		t.Fatalf("Expected 2 records, got %d (warnings: %v)", len(res.Records), res.Warnings)
	}

	if got := res.Records[0].Key(); got != (model.RecordKey{Country: "United States", Year: 2021}) {
		t.Errorf("Expected embedded key to win, got %+v", got)
	}
	if got := res.Records[1].Key(); got != (model.RecordKey{Country: "Germany", Year: 2019}) {
		t.Errorf("Expected embedded year with outer country, got %+v", got)
	}
	if res.Skipped() != 0 {
		t.Errorf("Expected mismatches to be reported without skipping, got %d skipped", res.Skipped())
	}
	if len(res.Warnings) != 2 {
		t.Errorf("Expected 2 mismatch warnings, got %d", len(res.Warnings))
	}
	for _, w := range res.Warnings {
		if w.Skipped {
			t.Errorf("Expected kept-entry warning, got skipped: %+v", w)
		}
	}
	if len(res.Warnings) > 0 {
		w := res.Warnings[0]
		if w.Country != "USA" || w.Year != "2020" || !strings.Contains(w.Reason, "United States/2021") {
			t.Errorf("Unexpected mismatch warning: %+v", w)
		}
	}
}

func TestFlatten_UnusableEmbeddedKeys(t *testing.T) {
	doc := mustParse(t, `{
		"Peru": {
			"2010": {"year": 2010.5, "marriage_rate": 2.8},
			"2011": {"country": 42, "marriage_rate": 2.7},
			"2012": {"country": "  ", "marriage_rate": 2.6},
			"2013": {"marriage_rate": 2.5}
		}
	}`)

	res := New(nil).Flatten(doc, flattenNow)
	if len(res.Records) != 1 || res.Records[0].Year != 2013 {
		t.Fatalf("Expected only 2013 to survive, got %v", res.Records)
	}
	if res.Skipped() != 3 {
		t.Errorf("Expected 3 skipped records, got %d", res.Skipped())
	}
}

func TestFlatten_OnePerValidPair(t *testing.T) {
	doc := mustParse(t, `{
		"A": {"2000": {}, "2001": {}, "x": {}},
		"B": {"1999": {"divorce_rate": null}},
		"C": "skip",
		"D": {}
	}`)

	res := New(nil).Flatten(doc, flattenNow)
	if len(res.Records) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(res.Records))
	}

	want := []model.RecordKey{
		{Country: "A", Year: 2000},
		{Country: "A", Year: 2001},
		{Country: "B", Year: 1999},
	}
	for i, k := range want {
		if res.Records[i].Key() != k {
			t.Errorf("Record %d: expected %+v, got %+v", i, k, res.Records[i].Key())
		}
	}
}

func TestFlatten_NilAndEmptyDocument(t *testing.T) {
	f := New(nil)

	if !f.Flatten(nil, flattenNow).Empty() {
		t.Error("Expected nil document to flatten to nothing")
	}
	if !f.Flatten(mustParse(t, `{}`), flattenNow).Empty() {
		t.Error("Expected empty document to flatten to nothing")
	}
}

func TestToNumber(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want *float64
	}{
		{"json number", json.Number("3.25"), model.Float(3.25)},
		{"numeric string", " 7 ", model.Float(7)},
		{"nan string", "NaN", nil},
		{"inf string", "Inf", nil},
		{"words", "n/a", nil},
		{"nil", nil, nil},
		{"bool", false, nil},
		{"int", 12, model.Float(12)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := toNumber(tt.in)
			switch {
			case tt.want == nil && got != nil:
				t.Errorf("toNumber(%v) = %v, want nil", tt.in, *got)
			case tt.want != nil && (got == nil || *got != *tt.want):
				t.Errorf("toNumber(%v) = %v, want %v", tt.in, got, *tt.want)
			}
		})
	}
}
