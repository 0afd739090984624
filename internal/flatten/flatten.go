// Package flatten turns a structured country -> year -> record document into
// flat rows keyed by (country, year).
package flatten

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ppiankov/vitals/internal/logging"
	"github.com/ppiankov/vitals/internal/model"
)

// ErrNoRecords is returned by callers that treat an empty result as fatal
var ErrNoRecords = errors.New("no valid records were flattened")

// Result is the outcome of a flatten pass
type Result struct {
	Records  []model.FlatRecord
	Warnings []model.FlattenWarning
}

// Empty reports whether no record survived
func (r Result) Empty() bool {
	return len(r.Records) == 0
}

// Skipped counts warnings that discarded data
func (r Result) Skipped() int {
	n := 0
	for _, w := range r.Warnings {
		if w.Skipped {
			n++
		}
	}
	return n
}

// Flattener flattens structured documents
type Flattener struct {
	logger logging.Logger
}

// New creates a Flattener that reports skipped entries to logger
func New(logger logging.Logger) *Flattener {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Flattener{logger: logger}
}

// Flatten walks doc in document order and emits one record per
// (country, year) entry that can be keyed. Malformed entries are skipped
// with a warning; a bad record never discards its siblings. now stamps
// updated_at (always) and extracted_at (when absent).
func (f *Flattener) Flatten(doc *model.Document, now time.Time) Result {
	var res Result
	if doc == nil {
		return res
	}

	stamp := model.EpochSeconds(now)

	for _, country := range doc.Countries {
		years, ok := country.Value.(model.Object)
		if !ok {
			f.warn(&res, country.Key, "", fmt.Sprintf("country data is %s, not an object", model.KindOf(country.Value)))
			continue
		}

		for _, entry := range years {
			rec, ok := f.flattenRecord(&res, country.Key, entry, stamp)
			if ok {
				res.Records = append(res.Records, rec)
			}
		}
	}

	return res
}

func (f *Flattener) flattenRecord(res *Result, countryKey string, entry model.Member, stamp float64) (model.FlatRecord, bool) {
	raw, ok := entry.Value.(model.Object)
	if !ok {
		f.warn(res, countryKey, entry.Key, fmt.Sprintf("record is %s, not an object", model.KindOf(entry.Value)))
		return model.FlatRecord{}, false
	}

	record := raw.Clone()

	if v, present := record.Get(model.FieldCountry); !present || v == nil {
		record.Set(model.FieldCountry, countryKey)
	}

	if v, present := record.Get(model.FieldYear); !present || v == nil {
		year, err := strconv.Atoi(strings.TrimSpace(entry.Key))
		if err != nil {
			f.warn(res, countryKey, entry.Key, "invalid year format")
			return model.FlatRecord{}, false
		}
		record.Set(model.FieldYear, year)
	}

	if v, present := record.Get(model.FieldExtractedAt); !present || v == nil {
		record.Set(model.FieldExtractedAt, stamp)
	}
	record.Set(model.FieldUpdatedAt, stamp)

	countryVal, _ := record.Get(model.FieldCountry)
	country, ok := countryVal.(string)
	country = strings.TrimSpace(country)
	if !ok || country == "" {
		f.warn(res, countryKey, entry.Key, "country is not a non-empty string")
		return model.FlatRecord{}, false
	}

	yearVal, _ := record.Get(model.FieldYear)
	year, ok := toYear(yearVal)
	if !ok {
		f.warn(res, countryKey, entry.Key, "year is not an integer")
		return model.FlatRecord{}, false
	}

	if country != countryKey || strconv.Itoa(year) != strings.TrimSpace(entry.Key) {
		f.note(res, countryKey, entry.Key,
			fmt.Sprintf("embedded key differs from position, using %s/%d", country, year))
	}

	marriage, _ := record.Get(model.FieldMarriageRate)
	divorce, _ := record.Get(model.FieldDivorceRate)
	extracted, _ := record.Get(model.FieldExtractedAt)
	updated, _ := record.Get(model.FieldUpdatedAt)

	return model.FlatRecord{
		Country:      country,
		Year:         year,
		MarriageRate: toNumber(marriage),
		DivorceRate:  toNumber(divorce),
		ExtractedAt:  toNumber(extracted),
		UpdatedAt:    toNumber(updated),
	}, true
}

func (f *Flattener) warn(res *Result, country, year, reason string) {
	w := model.FlattenWarning{Country: country, Year: year, Reason: reason, Skipped: true}
	res.Warnings = append(res.Warnings, w)
	f.logger.Warn("skipping entry",
		logging.String("country", country),
		logging.String("year", year),
		logging.String("reason", reason),
	)
}

// note records a warning for an entry that is still kept
func (f *Flattener) note(res *Result, country, year, reason string) {
	w := model.FlattenWarning{Country: country, Year: year, Reason: reason}
	res.Warnings = append(res.Warnings, w)
	f.logger.Warn("keeping entry",
		logging.String("country", country),
		logging.String("year", year),
		logging.String("reason", reason),
	)
}
