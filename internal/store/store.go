// Package store persists flattened records in a table keyed by (country, year).
package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/ppiankov/vitals/internal/model"
)

// ErrSchemaUnsupported is returned by EnsureSchema on stores that cannot create tables
var ErrSchemaUnsupported = errors.New("schema management is not supported by this store")

// Store is a table of FlatRecords with a composite (country, year) key
type Store interface {
	// Upsert inserts new keys and overwrites the value columns of existing
	// keys. It returns the number of rows the backend reports as written.
	Upsert(ctx context.Context, records []model.FlatRecord) (int, error)

	// Select returns every row in the requested order
	Select(ctx context.Context, q Query) ([]model.FlatRecord, error)

	// EnsureSchema creates the table when it does not exist
	EnsureSchema(ctx context.Context) error

	Ping(ctx context.Context) error
	Close() error
}

// Order sorts by one column
type Order struct {
	Column string
	Desc   bool
}

// Query selects rows from the table
type Query struct {
	OrderBy []Order
	Limit   int // 0 means no limit
}

// DefaultQuery orders by country then year, the order the dashboard renders
func DefaultQuery() Query {
	return Query{OrderBy: []Order{{Column: model.FieldCountry}, {Column: model.FieldYear}}}
}

// Validate rejects unknown order columns and negative limits
func (q Query) Validate() error {
	for _, o := range q.OrderBy {
		if !isColumn(o.Column) {
			return fmt.Errorf("cannot order by unknown column %q", o.Column)
		}
	}
	if q.Limit < 0 {
		return fmt.Errorf("negative limit %d", q.Limit)
	}
	return nil
}

func isColumn(name string) bool {
	for _, c := range model.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// ParseOrder parses "col" or "col.desc" / "col.asc" terms separated by commas
func ParseOrder(s string) ([]Order, error) {
	var out []Order
	for _, term := range strings.Split(s, ",") {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		col, dir, _ := strings.Cut(term, ".")
		o := Order{Column: col}
		switch strings.ToLower(dir) {
		case "", "asc":
		case "desc":
			o.Desc = true
		default:
			return nil, fmt.Errorf("invalid order direction %q", dir)
		}
		if !isColumn(col) {
			return nil, fmt.Errorf("cannot order by unknown column %q", col)
		}
		out = append(out, o)
	}
	return out, nil
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// validTable reports whether name can be interpolated into SQL or a URL path unquoted
func validTable(name string) error {
	if !identRe.MatchString(name) {
		return &model.ConfigurationError{Reason: fmt.Sprintf("invalid table name %q", name)}
	}
	return nil
}
