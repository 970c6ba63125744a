// Package fetch retrieves document prefixes and resolves their dates,
// deduplicating concurrent requests for the same URL.
package fetch

import (
	"errors"
	"fmt"
	"mime"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
)

// ErrNotHTML reports a response whose content type is not an HTML
// document. Binary and JSON responses carry no markup worth scanning.
var ErrNotHTML = errors.New("response is not html")

// FetcherConfig controls collector behavior.
type FetcherConfig struct {
	UserAgent string
	// Timeout bounds a single fetch end to end.
	Timeout time.Duration
	// MaxBodyBytes caps how much of the document is downloaded. Dates
	// live in the head and early body, so a prefix is enough.
	MaxBodyBytes int
}

// DefaultFetcherConfig returns the standard prefix-fetch tuning.
func DefaultFetcherConfig() FetcherConfig {
	return FetcherConfig{
		UserAgent:    "staleness/1.0",
		Timeout:      7 * time.Second,
		MaxBodyBytes: 64 * 1024,
	}
}

// Result is the raw outcome of a prefix fetch.
type Result struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Fetcher downloads capped document prefixes with a Colly collector.
type Fetcher struct {
	cfg           FetcherConfig
	baseCollector *colly.Collector
}

// NewFetcher builds a Fetcher.
func NewFetcher(cfg FetcherConfig) *Fetcher {
	c := colly.NewCollector(colly.Async(false))
	c.WithTransport(newHTTPTransport())
	return &Fetcher{cfg: cfg, baseCollector: c}
}

// Fetch executes a single GET and returns the capped body prefix. Non-HTML
// responses return ErrNotHTML.
func (f *Fetcher) Fetch(rawURL string) (Result, error) {
	var (
		result   Result
		fetchErr error
	)

	collector := f.baseCollector.Clone()
	collector.IgnoreRobotsTxt = true
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	timeout := f.cfg.Timeout
	if timeout == 0 {
		timeout = 7 * time.Second
	}
	collector.SetRequestTimeout(timeout)
	if f.cfg.MaxBodyBytes > 0 {
		collector.MaxBodySize = f.cfg.MaxBodyBytes
	}

	collector.OnResponse(func(r *colly.Response) {
		result = Result{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Header:     r.Headers.Clone(),
			Body:       append([]byte(nil), r.Body...),
		}
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	if err := collector.Visit(rawURL); err != nil {
		return Result{}, fmt.Errorf("visit %s: %w", rawURL, err)
	}
	if fetchErr != nil {
		return Result{}, fmt.Errorf("fetch %s: %w", rawURL, fetchErr)
	}
	if !isHTML(result.Header.Get("Content-Type")) {
		return result, ErrNotHTML
	}
	return result, nil
}

func isHTML(contentType string) bool {
	if contentType == "" {
		// Some servers omit the header entirely; give the parser a shot.
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml" ||
		strings.HasSuffix(mediaType, "+html")
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
