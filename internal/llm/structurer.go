package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ppiankov/vitals/internal/logging"
	"github.com/ppiankov/vitals/internal/model"
)

// Structurer turns cleaned page text into a structured document with one model call
type Structurer struct {
	provider  Provider
	logger    logging.Logger
	strict    bool
	maxTokens int
}

// StructurerOption configures a Structurer
type StructurerOption func(*Structurer)

// WithStrictSchema toggles record-level shape validation
func WithStrictSchema(strict bool) StructurerOption {
	return func(s *Structurer) { s.strict = strict }
}

// WithMaxTokens caps the response length
func WithMaxTokens(n int) StructurerOption {
	return func(s *Structurer) { s.maxTokens = n }
}

// WithLogger sets the logger
func WithLogger(logger logging.Logger) StructurerOption {
	return func(s *Structurer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStructurer creates a structurer over provider. Strict validation is on by default.
func NewStructurer(provider Provider, opts ...StructurerOption) *Structurer {
	s := &Structurer{
		provider: provider,
		logger:   logging.NewNop(),
		strict:   true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Structure sends text to the provider and parses the reply.
// Provider failures are *model.ModelCallError; unusable replies are
// *model.SchemaViolationError. There is no retry.
func (s *Structurer) Structure(ctx context.Context, text string) (*model.Document, error) {
	if s.provider == nil {
		return nil, &model.ConfigurationError{Reason: "no LLM provider configured"}
	}

	s.logger.Info("requesting structured data",
		logging.String("provider", s.provider.Name()),
		logging.Int("text_chars", len([]rune(text))),
	)

	resp, err := s.provider.Complete(ctx, CompletionRequest{
		System:    SystemPrompt,
		Prompt:    BuildPrompt(text),
		MaxTokens: s.maxTokens,
		JSON:      true,
	})
	if err != nil {
		return nil, &model.ModelCallError{Provider: s.provider.Name(), Err: err}
	}

	if resp.Truncated {
		s.logger.Warn("model response hit the token limit", logging.String("model", resp.Model))
	}

	doc, err := model.ParseDocument([]byte(resp.Content))
	if err != nil {
		s.logger.Error("model returned unusable JSON",
			logging.String("preview", preview(resp.Content, 500)),
			logging.Error(err),
		)
		return nil, err
	}

	if s.strict {
		if err := ValidateDocument(doc); err != nil {
			return nil, err
		}
	}

	s.logger.Info("structured data received",
		logging.String("model", resp.Model),
		logging.Int("countries", doc.Len()),
		logging.Int("tokens", resp.TokensUsed),
	)
	return doc, nil
}

// ValidateDocument checks the country -> year -> record shape and that the
// known numeric fields hold a number or null. It reports the first violation.
func ValidateDocument(doc *model.Document) error {
	if doc == nil {
		return &model.SchemaViolationError{Reason: "document is empty"}
	}
	for _, country := range doc.Countries {
		countryPath := fmt.Sprintf("$[%q]", country.Key)
		years, ok := country.Value.(model.Object)
		if !ok {
			return &model.SchemaViolationError{
				Path:   countryPath,
				Reason: fmt.Sprintf("is %s, expected object", model.KindOf(country.Value)),
			}
		}
		for _, year := range years {
			yearPath := fmt.Sprintf("%s[%q]", countryPath, year.Key)
			record, ok := year.Value.(model.Object)
			if !ok {
				return &model.SchemaViolationError{
					Path:   yearPath,
					Reason: fmt.Sprintf("is %s, expected object", model.KindOf(year.Value)),
				}
			}
			for _, field := range model.NumericFields {
				v, present := record.Get(field)
				if !present || v == nil {
					continue
				}
				if _, isNum := v.(json.Number); !isNum {
					return &model.SchemaViolationError{
						Path:   yearPath + "." + field,
						Reason: fmt.Sprintf("is %s, expected number or null", model.KindOf(v)),
					}
				}
			}
		}
	}
	return nil
}

func preview(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
