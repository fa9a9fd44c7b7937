// Package scraper fetches catalogue pages one at a time.
package scraper

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	pkgerrors "github.com/pkg/errors"
)

// Page is the outcome of fetching one catalogue page. Exhausted is set when
// the server answered with a non-2xx status; Body is empty in that case.
type Page struct {
	Index      int
	URL        string
	StatusCode int
	Body       []byte
	Exhausted  bool
}

// Config controls collector behavior.
type Config struct {
	// URLTemplate must contain a single %d verb for the page index.
	URLTemplate string
	UserAgent   string
	// Timeout of zero disables the request deadline.
	Timeout time.Duration
	// Transport replaces the collector's HTTP transport when set.
	Transport http.RoundTripper
}

// Fetcher retrieves catalogue pages with a synchronous colly collector.
type Fetcher struct {
	cfg     Config
	base    *colly.Collector
	Metrics *Metrics
}

// NewFetcher builds a Fetcher configured from cfg. A nil metrics disables
// instrumentation.
func NewFetcher(cfg Config, metrics *Metrics) (*Fetcher, error) {
	if strings.Count(cfg.URLTemplate, "%d") != 1 {
		return nil, fmt.Errorf("url template %q must contain exactly one %%d", cfg.URLTemplate)
	}
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("timeout cannot be negative")
	}

	options := []colly.CollectorOption{
		colly.Async(false),
		colly.AllowURLRevisit(),
	}
	if cfg.UserAgent != "" {
		options = append(options, colly.UserAgent(cfg.UserAgent))
	}
	collector := colly.NewCollector(options...)
	collector.ParseHTTPErrorResponse = true
	collector.SetRequestTimeout(cfg.Timeout)
	if cfg.Transport != nil {
		collector.WithTransport(cfg.Transport)
	}

	return &Fetcher{
		cfg:     cfg,
		base:    collector,
		Metrics: metrics,
	}, nil
}

// PageURL renders the catalogue URL for a page index.
func (f *Fetcher) PageURL(index int) string {
	return fmt.Sprintf(f.cfg.URLTemplate, index)
}

// Fetch retrieves page index. A non-2xx response is reported through
// Page.Exhausted with a nil error; transport failures are returned.
func (f *Fetcher) Fetch(ctx context.Context, index int) (Page, error) {
	if index < 1 {
		return Page{}, fmt.Errorf("page index must be positive, got %d", index)
	}

	page := Page{Index: index, URL: f.PageURL(index)}
	var fetchErr error

	collector := f.base.Clone()
	collector.Context = ctx
	collector.ParseHTTPErrorResponse = true
	collector.AllowURLRevisit = true
	collector.OnResponse(func(r *colly.Response) {
		page.StatusCode = r.StatusCode
		page.Body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	start := time.Now()
	err := collector.Visit(page.URL)
	f.Metrics.ObserveDuration(time.Since(start))
	if err == nil {
		err = fetchErr
	}
	if err != nil {
		classified := classifyError(err)
		f.Metrics.IncRequest("error")
		f.Metrics.IncError(ErrorTypeLabel(classified))
		return Page{}, pkgerrors.Wrapf(classified, "fetch page %d (%s)", index, page.URL)
	}

	f.Metrics.IncRequest(statusClass(page.StatusCode))
	if page.StatusCode < http.StatusOK || page.StatusCode >= http.StatusMultipleChoices {
		page.Exhausted = true
		page.Body = nil
		return page, nil
	}
	f.Metrics.IncPages()
	return page, nil
}

func statusClass(code int) string {
	if code <= 0 {
		return "unknown"
	}
	return fmt.Sprintf("%dxx", code/100)
}
