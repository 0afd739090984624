package pipeline

import (
	"context"
	"fmt"

	"github.com/ppiankov/vitals/internal/extract"
	"github.com/ppiankov/vitals/internal/logging"
)

// Collector fetches a page and reduces it to cleaned plain text
type Collector struct {
	fetcher   *Fetcher
	extractor *extract.ContentExtractor
	logger    logging.Logger
}

// NewCollector creates a collector from a fetcher and an extractor
func NewCollector(fetcher *Fetcher, extractor *extract.ContentExtractor, logger logging.Logger) *Collector {
	if extractor == nil {
		extractor = extract.NewContentExtractor()
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Collector{fetcher: fetcher, extractor: extractor, logger: logger}
}

// Collect returns the cleaned text of the page at url
func (c *Collector) Collect(ctx context.Context, url string) (string, error) {
	page, err := c.fetcher.Fetch(ctx, url)
	if err != nil {
		return "", err
	}

	text, err := c.extractor.Extract(page.HTML, page.FinalURL)
	if err != nil {
		return "", fmt.Errorf("extract content: %w", err)
	}

	c.logger.Info("content extracted",
		logging.String("url", page.FinalURL),
		logging.Int("chars", len([]rune(text))),
		logging.Bool("from_cache", page.FromCache),
	)
	return text, nil
}
