// Package pipeline drives one scrape run from the first page fetch to
// instance teardown.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/aluiziolira/go-scrape-books-gce/models"
	"github.com/aluiziolira/go-scrape-books-gce/reaper"
	"github.com/aluiziolira/go-scrape-books-gce/scraper"
)

// LogPrefix marks the run's milestone messages.
const LogPrefix = "Scraper logs: "

// Fetcher returns catalogue page index, or a Page with Exhausted set once
// the catalogue has no more pages.
type Fetcher interface {
	Fetch(ctx context.Context, index int) (scraper.Page, error)
}

// Extractor turns one page body into records in document order.
type Extractor interface {
	Extract(content []byte) ([]models.Book, error)
}

// Publisher stores the encoded document and returns where it went.
type Publisher interface {
	Publish(ctx context.Context, document []byte) (string, error)
}

// Reaper releases the machine the run executes on.
type Reaper interface {
	Terminate(ctx context.Context) (reaper.Outcome, error)
}

// MetricsPusher hands metrics off before the machine goes away.
type MetricsPusher interface {
	Push(ctx context.Context) error
}

// Options carries the optional collaborators of a Pipeline.
type Options struct {
	Logger  *zap.Logger
	Metrics *scraper.Metrics
	Pusher  MetricsPusher
	// Clock defaults to time.Now.
	Clock func() time.Time
	// RunID defaults to a random UUID.
	RunID string
}

// Pipeline runs fetch, extract, encode and publish in sequence, then tears
// the instance down whatever the outcome.
type Pipeline struct {
	fetcher   Fetcher
	extractor Extractor
	publisher Publisher
	reaper    Reaper

	logger  *zap.Logger
	metrics *scraper.Metrics
	pusher  MetricsPusher
	now     func() time.Time
	runID   string
}

// New wires a Pipeline. All four stages are required.
func New(fetcher Fetcher, extractor Extractor, publisher Publisher, r Reaper, opts Options) (*Pipeline, error) {
	switch {
	case fetcher == nil:
		return nil, fmt.Errorf("fetcher is required")
	case extractor == nil:
		return nil, fmt.Errorf("extractor is required")
	case publisher == nil:
		return nil, fmt.Errorf("publisher is required")
	case r == nil:
		return nil, fmt.Errorf("reaper is required")
	}

	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}

	return &Pipeline{
		fetcher:   fetcher,
		extractor: extractor,
		publisher: publisher,
		reaper:    r,
		logger:    opts.Logger.With(zap.String("run_id", opts.RunID)),
		metrics:   opts.Metrics,
		pusher:    opts.Pusher,
		now:       opts.Clock,
		runID:     opts.RunID,
	}, nil
}

// RunID identifies this run in logs and results.
func (p *Pipeline) RunID() string {
	return p.runID
}

// Run executes the whole job. The reaper is invoked exactly once before Run
// returns, including when a stage fails or panics. A teardown failure is
// joined onto the returned error.
func (p *Pipeline) Run(ctx context.Context) (result *models.RunResult, err error) {
	result = &models.RunResult{RunID: p.runID, StartTime: p.now()}

	defer func() {
		if r := recover(); r != nil {
			p.metrics.IncError("panic")
			err = pkgerrors.Errorf("panic during run: %v", r)
		}
		err = p.finish(ctx, result, err)
	}()

	err = p.scrape(ctx, result)
	return result, err
}

func (p *Pipeline) scrape(ctx context.Context, result *models.RunResult) error {
	p.milestone("scraping started")

	books := make([]models.Book, 0)
	for index := 1; ; index++ {
		page, err := p.fetcher.Fetch(ctx, index)
		if err != nil {
			return err
		}
		if page.Exhausted {
			p.logger.Debug("catalogue exhausted",
				zap.Int("page", index),
				zap.Int("status", page.StatusCode),
			)
			break
		}

		records, err := p.extractor.Extract(page.Body)
		if err != nil {
			p.metrics.IncError("extraction")
			return pkgerrors.WithMessagef(err, "extract page %d", index)
		}
		books = append(books, records...)
		result.PageCount++
		p.metrics.AddItems(len(records))
		p.logger.Debug("page scraped",
			zap.Int("page", index),
			zap.Int("records", len(records)),
		)
	}
	result.RecordCount = len(books)

	p.milestone("transforming data")
	document, err := EncodeDocument(books)
	if err != nil {
		return pkgerrors.WithStack(err)
	}

	p.milestone("uploading file")
	uri, err := p.publisher.Publish(ctx, document)
	if err != nil {
		p.metrics.IncError("publish")
		return pkgerrors.Wrap(err, "publish document")
	}
	result.ObjectURI = uri

	p.milestone("scraping process finished, deleting instance")
	return nil
}

func (p *Pipeline) finish(ctx context.Context, result *models.RunResult, runErr error) error {
	result.EndTime = p.now()

	if runErr != nil {
		p.logger.Error(LogPrefix+"scraping failed", zap.Error(runErr))
	}

	p.metrics.ObserveRun(runErr == nil, result.Duration(), result.EndTime)
	if p.pusher != nil {
		if err := p.pusher.Push(ctx); err != nil {
			p.logger.Warn("metrics push failed", zap.Error(err))
		}
	}

	// The machine may be gone once the reaper returns.
	_ = p.logger.Sync()

	outcome, reapErr := p.reaper.Terminate(ctx)
	result.ReaperOutcome = outcome.String()
	if reapErr != nil {
		p.logger.Error(LogPrefix+"instance deletion failed", zap.Error(reapErr))
		_ = p.logger.Sync()
		return errors.Join(runErr, reapErr)
	}

	p.logger.Info(LogPrefix+"run finished",
		zap.Bool("success", runErr == nil),
		zap.Int("pages", result.PageCount),
		zap.Int("records", result.RecordCount),
		zap.String("object", result.ObjectURI),
		zap.String("reaper", result.ReaperOutcome),
		zap.Duration("duration", result.Duration()),
	)
	_ = p.logger.Sync()
	return runErr
}

func (p *Pipeline) milestone(msg string) {
	p.logger.Info(LogPrefix+msg, zap.Time("at", p.now()))
}
