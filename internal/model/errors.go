package model

import (
	"fmt"
	"strings"
)

// FetchError reports a network failure or a non-2xx response for the source page
type FetchError struct {
	URL        string
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ContentNotFoundError means no content container survived markup removal
type ContentNotFoundError struct {
	URL string
}

func (e *ContentNotFoundError) Error() string {
	if e.URL == "" {
		return "could not find main content"
	}
	return "could not find main content in " + e.URL
}

// ModelCallError wraps a transport or service failure of the text-generation call
type ModelCallError struct {
	Provider string
	Err      error
}

func (e *ModelCallError) Error() string {
	return fmt.Sprintf("%s call failed: %v", e.Provider, e.Err)
}

func (e *ModelCallError) Unwrap() error { return e.Err }

// SchemaViolationError means the structured payload is not the declared shape
type SchemaViolationError struct {
	Path   string // JSON path of the offending value, empty for the root
	Reason string
	Err    error
}

func (e *SchemaViolationError) Error() string {
	var b strings.Builder
	b.WriteString("schema violation")
	if e.Path != "" {
		b.WriteString(" at ")
		b.WriteString(e.Path)
	}
	b.WriteString(": ")
	b.WriteString(e.Reason)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *SchemaViolationError) Unwrap() error { return e.Err }

// PersistenceError wraps any failure of the table store
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ConfigurationError is fatal at startup: required settings are missing or invalid
type ConfigurationError struct {
	Missing []string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	if len(e.Missing) > 0 {
		return "missing required configuration: " + strings.Join(e.Missing, ", ")
	}
	return "invalid configuration: " + e.Reason
}

// FlattenWarning describes one entry skipped or adjusted while flattening.
// It is reported, never returned as an error.
type FlattenWarning struct {
	Country string
	Year    string
	Reason  string
	Skipped bool // the entry was discarded
}

func (w FlattenWarning) String() string {
	if w.Year == "" {
		return fmt.Sprintf("%s: %s", w.Country, w.Reason)
	}
	return fmt.Sprintf("%s/%s: %s", w.Country, w.Year, w.Reason)
}
