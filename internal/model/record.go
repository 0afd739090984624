package model

import (
	"math"
	"time"
)

// Record field names shared by the document, the flattener and the stores
const (
	FieldCountry      = "country"
	FieldYear         = "year"
	FieldMarriageRate = "marriage_rate"
	FieldDivorceRate  = "divorce_rate"
	FieldExtractedAt  = "extracted_at"
	FieldUpdatedAt    = "updated_at"
)

// NumericFields are the record fields that must hold a number or null
var NumericFields = []string{
	FieldYear,
	FieldMarriageRate,
	FieldDivorceRate,
	FieldExtractedAt,
	FieldUpdatedAt,
}

// Columns lists the table columns in display order
var Columns = []string{
	FieldCountry,
	FieldYear,
	FieldMarriageRate,
	FieldDivorceRate,
	FieldExtractedAt,
	FieldUpdatedAt,
}

// FlatRecord is one row keyed by (Country, Year)
type FlatRecord struct {
	Country      string   `json:"country" db:"country"`
	Year         int      `json:"year" db:"year"`
	MarriageRate *float64 `json:"marriage_rate" db:"marriage_rate"`
	DivorceRate  *float64 `json:"divorce_rate" db:"divorce_rate"`
	ExtractedAt  *float64 `json:"extracted_at" db:"extracted_at"` // unix epoch seconds
	UpdatedAt    *float64 `json:"updated_at" db:"updated_at"`     // unix epoch seconds
}

// RecordKey is the natural primary key of a FlatRecord
type RecordKey struct {
	Country string
	Year    int
}

// Key returns the record's (country, year) key
func (r FlatRecord) Key() RecordKey {
	return RecordKey{Country: r.Country, Year: r.Year}
}

// HasRates reports whether at least one rate is present
func (r FlatRecord) HasRates() bool {
	return r.MarriageRate != nil || r.DivorceRate != nil
}

// EpochSeconds converts a time to fractional unix seconds
func EpochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// TimeFromEpoch converts fractional unix seconds to a UTC time
func TimeFromEpoch(sec float64) time.Time {
	whole, frac := math.Modf(sec)
	return time.Unix(int64(whole), int64(frac*1e9)).UTC()
}

// Float returns a pointer to v
func Float(v float64) *float64 {
	return &v
}
