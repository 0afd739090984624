// Package pipeline wires collection, structuring and loading together and
// owns the artifacts passed between the stages.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/ppiankov/vitals/internal/flatten"
	"github.com/ppiankov/vitals/internal/logging"
	"github.com/ppiankov/vitals/internal/metrics"
	"github.com/ppiankov/vitals/internal/model"
)

// Structurer turns cleaned text into a structured document
type Structurer interface {
	Structure(ctx context.Context, text string) (*model.Document, error)
}

// RecordWriter persists flattened records and reports rows written
type RecordWriter interface {
	Write(ctx context.Context, records []model.FlatRecord) (int, error)
}

// Options holds the pipeline collaborators. Stages whose collaborator is
// nil fail with a *model.ConfigurationError when invoked. A positive
// StageTimeout bounds each stage separately, Run included.
type Options struct {
	Collector  *Collector
	Structurer Structurer
	Flattener  *flatten.Flattener
	Writer     RecordWriter
	Artifacts  Artifacts
	Metrics    *metrics.Metrics
	Logger     logging.Logger
	Now        func() time.Time

	StageTimeout time.Duration
}

// Pipeline orchestrates the three sequential stages
type Pipeline struct {
	collector  *Collector
	structurer Structurer
	flattener  *flatten.Flattener
	writer     RecordWriter
	artifacts  Artifacts
	metrics    *metrics.Metrics
	logger     logging.Logger
	now        func() time.Time

	stageTimeout time.Duration
}

// New creates a pipeline from opts
func New(opts Options) *Pipeline {
	p := &Pipeline{
		collector:  opts.Collector,
		structurer: opts.Structurer,
		flattener:  opts.Flattener,
		writer:     opts.Writer,
		artifacts:  opts.Artifacts,
		metrics:    opts.Metrics,
		logger:     opts.Logger,
		now:        opts.Now,

		stageTimeout: opts.StageTimeout,
	}
	if p.logger == nil {
		p.logger = logging.NewNop()
	}
	if p.flattener == nil {
		p.flattener = flatten.New(p.logger)
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.artifacts == (Artifacts{}) {
		p.artifacts = NewArtifacts(model.ArtifactsConfig{})
	}
	return p
}

// stageContext derives the deadline for a single stage
func (p *Pipeline) stageContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.stageTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.stageTimeout)
}

// CollectResult summarizes a Collect run
type CollectResult struct {
	Path  string
	Chars int
}

// StructureResult summarizes a Structure run
type StructureResult struct {
	Path      string
	Countries int
}

// LoadResult summarizes a Load run
type LoadResult struct {
	Flattened int
	Skipped   int
	Written   int
	Warnings  []model.FlattenWarning
}

// RunResult summarizes all three stages
type RunResult struct {
	Collect   *CollectResult
	Structure *StructureResult
	Load      *LoadResult
}

// Collect fetches url, extracts its text and writes the raw blob
func (p *Pipeline) Collect(ctx context.Context, url string) (res *CollectResult, err error) {
	started := time.Now()
	defer func() { p.metrics.ObserveStage(metrics.StageCollect, started, err) }()
	ctx, cancel := p.stageContext(ctx)
	defer cancel()

	if p.collector == nil {
		return nil, &model.ConfigurationError{Reason: "no collector configured"}
	}

	text, err := p.collector.Collect(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("collect: %w", err)
	}
	if err := p.artifacts.WriteRawBlob(text); err != nil {
		return nil, fmt.Errorf("collect: %w", err)
	}

	res = &CollectResult{Path: p.artifacts.RawBlobPath(), Chars: len([]rune(text))}
	p.logger.Info("raw blob written", logging.String("path", res.Path), logging.Int("chars", res.Chars))
	return res, nil
}

// Structure reads the raw blob, makes one model call and writes the
// structured document. Nothing is written when the call fails.
func (p *Pipeline) Structure(ctx context.Context) (res *StructureResult, err error) {
	started := time.Now()
	defer func() { p.metrics.ObserveStage(metrics.StageStructure, started, err) }()
	ctx, cancel := p.stageContext(ctx)
	defer cancel()

	if p.structurer == nil {
		return nil, &model.ConfigurationError{Reason: "no LLM provider configured"}
	}

	text, err := p.artifacts.ReadRawBlob()
	if err != nil {
		return nil, fmt.Errorf("structure: %w", err)
	}

	doc, err := p.structurer.Structure(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("structure: %w", err)
	}
	if err := p.artifacts.WriteStructured(doc); err != nil {
		return nil, fmt.Errorf("structure: %w", err)
	}

	res = &StructureResult{Path: p.artifacts.StructuredPath(), Countries: doc.Len()}
	p.logger.Info("structured document written",
		logging.String("path", res.Path),
		logging.Int("countries", res.Countries),
	)
	return res, nil
}

// Load reads the structured document, flattens it and upserts the records.
// An empty flatten result is flatten.ErrNoRecords.
func (p *Pipeline) Load(ctx context.Context) (res *LoadResult, err error) {
	started := time.Now()
	defer func() { p.metrics.ObserveStage(metrics.StageLoad, started, err) }()
	ctx, cancel := p.stageContext(ctx)
	defer cancel()

	if p.writer == nil {
		return nil, &model.ConfigurationError{Reason: "no store configured"}
	}

	doc, err := p.artifacts.ReadStructured()
	if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}

	flat := p.flattener.Flatten(doc, p.now())
	res = &LoadResult{
		Flattened: len(flat.Records),
		Skipped:   flat.Skipped(),
		Warnings:  flat.Warnings,
	}
	if p.metrics != nil {
		p.metrics.RecordsFlattened.Add(float64(res.Flattened))
		p.metrics.RecordsSkipped.Add(float64(res.Skipped))
	}
	if flat.Empty() {
		return res, fmt.Errorf("load: %w", flatten.ErrNoRecords)
	}

	written, err := p.writer.Write(ctx, flat.Records)
	if err != nil {
		return res, fmt.Errorf("load: %w", err)
	}
	res.Written = written
	if p.metrics != nil {
		p.metrics.RowsUpserted.Add(float64(written))
	}

	p.logger.Info("records loaded",
		logging.Int("flattened", res.Flattened),
		logging.Int("skipped", res.Skipped),
		logging.Int("written", res.Written),
	)
	return res, nil
}

// Run executes Collect, Structure and Load in sequence, stopping at the first error
func (p *Pipeline) Run(ctx context.Context, url string) (*RunResult, error) {
	out := &RunResult{}
	var err error

	if out.Collect, err = p.Collect(ctx, url); err != nil {
		return out, err
	}
	if out.Structure, err = p.Structure(ctx); err != nil {
		return out, err
	}
	if out.Load, err = p.Load(ctx); err != nil {
		return out, err
	}
	return out, nil
}
