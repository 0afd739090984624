package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ppiankov/vitals/internal/logging"
	"github.com/ppiankov/vitals/internal/model"
)

// RESTStore implements Store over a PostgREST endpoint such as Supabase
type RESTStore struct {
	baseURL    string
	key        string
	table      string
	httpClient *http.Client
	logger     logging.Logger
}

// NewRESTStore creates a store for table under baseURL (the project URL,
// without the /rest/v1 suffix)
func NewRESTStore(baseURL, key, table string, client *http.Client, logger logging.Logger) (*RESTStore, error) {
	if err := validTable(table); err != nil {
		return nil, err
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, &model.ConfigurationError{Reason: fmt.Sprintf("invalid SUPABASE_URL: %v", err)}
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &RESTStore{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		key:        key,
		table:      table,
		httpClient: client,
		logger:     logger,
	}, nil
}

// restRow is the wire form of a row; timestamp columns travel as ISO 8601
type restRow struct {
	Country      string          `json:"country"`
	Year         int             `json:"year"`
	MarriageRate *float64        `json:"marriage_rate"`
	DivorceRate  *float64        `json:"divorce_rate"`
	ExtractedAt  json.RawMessage `json:"extracted_at"`
	UpdatedAt    json.RawMessage `json:"updated_at"`
}

type restError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

func (s *RESTStore) tableURL() string {
	return s.baseURL + "/rest/v1/" + s.table
}

// Upsert posts all records in one request; PostgREST runs it as one statement
func (s *RESTStore) Upsert(ctx context.Context, records []model.FlatRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	rows := make([]restRow, len(records))
	for i, r := range records {
		rows[i] = restRow{
			Country:      r.Country,
			Year:         r.Year,
			MarriageRate: r.MarriageRate,
			DivorceRate:  r.DivorceRate,
			ExtractedAt:  encodeTimestamp(r.ExtractedAt),
			UpdatedAt:    encodeTimestamp(r.UpdatedAt),
		}
	}
	body, err := json.Marshal(rows)
	if err != nil {
		return 0, &model.PersistenceError{Op: "upsert", Err: fmt.Errorf("encode rows: %w", err)}
	}

	params := url.Values{}
	params.Set("on_conflict", "country,year")

	var returned []restRow
	if err := s.do(ctx, http.MethodPost, params, body, "resolution=merge-duplicates,return=representation", &returned); err != nil {
		return 0, &model.PersistenceError{Op: "upsert", Err: err}
	}
	return len(returned), nil
}

// Select reads every row in the requested order
func (s *RESTStore) Select(ctx context.Context, q Query) ([]model.FlatRecord, error) {
	if err := q.Validate(); err != nil {
		return nil, &model.PersistenceError{Op: "select", Err: err}
	}

	params := url.Values{}
	params.Set("select", "*")
	if len(q.OrderBy) > 0 {
		terms := make([]string, len(q.OrderBy))
		for i, o := range q.OrderBy {
			dir := "asc"
			if o.Desc {
				dir = "desc"
			}
			terms[i] = o.Column + "." + dir
		}
		params.Set("order", strings.Join(terms, ","))
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}

	var rows []restRow
	if err := s.do(ctx, http.MethodGet, params, nil, "", &rows); err != nil {
		return nil, &model.PersistenceError{Op: "select", Err: err}
	}

	out := make([]model.FlatRecord, 0, len(rows))
	for _, r := range rows {
		extracted, err := decodeTimestamp(r.ExtractedAt)
		if err != nil {
			return nil, &model.PersistenceError{Op: "select", Err: fmt.Errorf("extracted_at of %s/%d: %w", r.Country, r.Year, err)}
		}
		updated, err := decodeTimestamp(r.UpdatedAt)
		if err != nil {
			return nil, &model.PersistenceError{Op: "select", Err: fmt.Errorf("updated_at of %s/%d: %w", r.Country, r.Year, err)}
		}
		out = append(out, model.FlatRecord{
			Country:      r.Country,
			Year:         r.Year,
			MarriageRate: r.MarriageRate,
			DivorceRate:  r.DivorceRate,
			ExtractedAt:  extracted,
			UpdatedAt:    updated,
		})
	}
	return out, nil
}

// EnsureSchema is not available over PostgREST; create the table in the project console
func (s *RESTStore) EnsureSchema(context.Context) error {
	return ErrSchemaUnsupported
}

// Ping reads at most one row to check the URL, key and table
func (s *RESTStore) Ping(ctx context.Context) error {
	params := url.Values{}
	params.Set("select", model.FieldCountry)
	params.Set("limit", "1")

	var rows []json.RawMessage
	if err := s.do(ctx, http.MethodGet, params, nil, "", &rows); err != nil {
		return &model.PersistenceError{Op: "ping", Err: err}
	}
	return nil
}

// Close releases idle connections
func (s *RESTStore) Close() error {
	s.httpClient.CloseIdleConnections()
	return nil
}

func (s *RESTStore) do(ctx context.Context, method string, params url.Values, body []byte, prefer string, out any) error {
	endpoint := s.tableURL() + "?" + params.Encode()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("apikey", s.key)
	req.Header.Set("Authorization", "Bearer "+s.key)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr restError
		if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.Message != "" {
			if apiErr.Hint != "" {
				return fmt.Errorf("API error (%d): %s (%s) hint: %s", resp.StatusCode, apiErr.Message, apiErr.Code, apiErr.Hint)
			}
			return fmt.Errorf("API error (%d): %s (%s)", resp.StatusCode, apiErr.Message, apiErr.Code)
		}
		return fmt.Errorf("API error (%d): %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// encodeTimestamp renders epoch seconds as an RFC 3339 string, or null
func encodeTimestamp(sec *float64) json.RawMessage {
	if sec == nil {
		return json.RawMessage("null")
	}
	b, _ := json.Marshal(model.TimeFromEpoch(*sec).UTC().Format(time.RFC3339Nano))
	return b
}

// decodeTimestamp accepts an ISO 8601 string, a number of epoch seconds or null
func decodeTimestamp(raw json.RawMessage) (*float64, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return nil, err
		}
		t, err := parseTimestamp(s)
		if err != nil {
			return nil, err
		}
		return model.Float(model.EpochSeconds(t)), nil
	}

	var f float64
	if err := json.Unmarshal(trimmed, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// PostgREST renders timestamptz with a space or a T and a short zone offset
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z07",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999Z07",
	"2006-01-02T15:04:05.999999999",
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
