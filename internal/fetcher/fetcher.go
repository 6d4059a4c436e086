package fetcher

import (
	"bufio"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"golang.org/x/time/rate"

	"github.com/nao1215/webspider/internal/model"
)

// Recorder receives one call per HTTP attempt. status is 0 when the attempt
// failed before a response arrived.
type Recorder interface {
	RecordAttempt(host string, status int, responseTime time.Duration)
}

// Pacer spaces requests to one host. AwaitTurn blocks until a request to
// host may start. AdjustDelay receives the outcome of every attempt that
// says something about the host's health.
type Pacer interface {
	AwaitTurn(ctx context.Context, host string) error
	AdjustDelay(host string, status int, responseTime time.Duration)
}

// Result is the outcome of a fetch.
type Result struct {
	// URL is the requested URL.
	URL string
	// FinalURL is the URL after redirects.
	FinalURL string
	// Success is true for a 200 whose body passed the content gate.
	Success bool
	// Status is the status of the last attempt, 0 if no response arrived.
	Status int
	// Body is the decoded response body.
	Body []byte
	// Headers are the response headers of the last attempt.
	Headers http.Header
	// ContentType is the Content-Type header of the last attempt.
	ContentType string
	// Err is nil on success.
	Err error
	// ResponseTime is the duration of the last attempt.
	ResponseTime time.Duration
	// Attempts is the number of attempts made.
	Attempts int
	// RetryAfter is the wait requested by a 429 on the last attempt.
	RetryAfter time.Duration
	// Directives are the indexing directives from headers and meta tags.
	Directives model.RobotsDirectives
}

// Fetcher performs HTTP GETs with retry, backoff and content gating.
type Fetcher struct {
	cfg      Config
	client   *http.Client
	limiter  *rate.Limiter
	recorder Recorder
	pacer    Pacer
	sleep    func(ctx context.Context, d time.Duration) error
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient sets the client. See NewHTTPClient.
func WithHTTPClient(client *http.Client) Option {
	return func(f *Fetcher) {
		f.client = client
	}
}

// WithRecorder registers the per-attempt recorder.
func WithRecorder(r Recorder) Option {
	return func(f *Fetcher) {
		f.recorder = r
	}
}

// WithPacer makes every attempt, retries included, wait for its turn on
// the host.
func WithPacer(p Pacer) Option {
	return func(f *Fetcher) {
		f.pacer = p
	}
}

// WithSleep replaces the wait between attempts.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(f *Fetcher) {
		f.sleep = sleep
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) {
		f.logger = logger
	}
}

// New creates a Fetcher.
func New(cfg Config, opts ...Option) *Fetcher {
	f := &Fetcher{
		cfg:    cfg.withDefaults(),
		sleep:  sleepContext,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.client == nil {
		f.client = NewHTTPClient(f.cfg, nil, nil)
	}
	if f.cfg.RequestsPerSecond > 0 {
		f.limiter = rate.NewLimiter(rate.Limit(f.cfg.RequestsPerSecond), 1)
	}
	return f
}

// Client returns the underlying HTTP client so compliance fetches share the
// same transport.
func (f *Fetcher) Client() *http.Client {
	return f.client
}

// Config returns the effective configuration.
func (f *Fetcher) Config() Config {
	return f.cfg
}

// Fetch retrieves rawURL. It never returns nil.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) *Result {
	result := &Result{URL: rawURL, FinalURL: rawURL}
	host := ""
	if u, err := url.Parse(rawURL); err == nil {
		host = strings.ToLower(u.Host)
	}

	var lastErr error
	for attempt := 1; attempt <= f.cfg.MaxAttempts; attempt++ {
		result.Attempts = attempt

		if f.limiter != nil {
			if err := f.limiter.Wait(ctx); err != nil {
				result.Err = err
				return result
			}
		}
		if f.pacer != nil {
			if err := f.pacer.AwaitTurn(ctx, host); err != nil {
				result.Err = err
				return result
			}
		}

		wait, err := f.attempt(ctx, rawURL, host, result)
		result.RetryAfter = wait
		f.pace(host, result, err)
		if err == nil {
			result.Success = true
			result.Err = nil
			return result
		}
		if ctx.Err() != nil {
			result.Err = ctx.Err()
			return result
		}
		if IsTerminal(err) {
			result.Err = err
			return result
		}

		lastErr = err
		if attempt == f.cfg.MaxAttempts {
			break
		}
		if wait <= 0 {
			wait = f.backoff(attempt)
		}
		f.logger.Debug("retrying fetch",
			"url", rawURL,
			"attempt", attempt,
			"status", result.Status,
			"wait", wait,
			"error", err,
		)
		if err := f.sleep(ctx, wait); err != nil {
			result.Err = err
			return result
		}
	}

	result.Err = fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, result.Attempts, lastErr)
	return result
}

// backoff returns the delay after the given attempt: BaseDelay, then
// doubling.
func (f *Fetcher) backoff(attempt int) time.Duration {
	return f.cfg.BaseDelay << (attempt - 1)
}

// attempt performs one request and fills result. The returned duration is a
// server-requested wait (Retry-After) for a 429, otherwise zero.
func (f *Fetcher) attempt(ctx context.Context, rawURL, host string, result *Result) (time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrClientError, err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")

	start := f.now()
	resp, err := f.client.Do(req)
	result.ResponseTime = f.now().Sub(start)
	if err != nil {
		result.Status = 0
		f.record(host, 0, result.ResponseTime)
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	result.Status = resp.StatusCode
	result.Headers = resp.Header
	result.ContentType = resp.Header.Get("Content-Type")
	if resp.Request != nil && resp.Request.URL != nil {
		result.FinalURL = resp.Request.URL.String()
	}
	f.record(host, resp.StatusCode, result.ResponseTime)

	switch {
	case resp.StatusCode == http.StatusOK:
		return 0, f.accept(resp, result)
	case resp.StatusCode == http.StatusTooManyRequests:
		return retryAfter(resp.Header.Get("Retry-After"), f.now()), ErrRateLimited
	case resp.StatusCode >= http.StatusInternalServerError:
		return 0, fmt.Errorf("%w: %d", ErrServerError, resp.StatusCode)
	case resp.StatusCode >= http.StatusBadRequest:
		return 0, fmt.Errorf("%w: %d", ErrClientError, resp.StatusCode)
	default:
		return 0, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}
}

// pace reports an attempt to the pacer. Content rejections say nothing
// about the host's health and are not reported.
func (f *Fetcher) pace(host string, result *Result, err error) {
	if f.pacer == nil || result.Status == 0 {
		return
	}
	if err == nil || result.Status == http.StatusTooManyRequests || result.Status >= http.StatusInternalServerError {
		f.pacer.AdjustDelay(host, result.Status, result.ResponseTime)
	}
}

func (f *Fetcher) record(host string, status int, rt time.Duration) {
	if f.recorder != nil {
		f.recorder.RecordAttempt(host, status, rt)
	}
}

// accept applies the content gate to a 200 response and reads its body.
func (f *Fetcher) accept(resp *http.Response, result *Result) error {
	if !f.allowedType(result.ContentType) {
		return fmt.Errorf("%w: content type %q", ErrContentRejected, result.ContentType)
	}
	if resp.ContentLength > f.cfg.MaxBodySize {
		return fmt.Errorf("%w: content length %d exceeds %d", ErrContentRejected, resp.ContentLength, f.cfg.MaxBodySize)
	}

	body, err := readBody(resp, f.cfg.MaxBodySize)
	if err != nil {
		return err
	}

	result.Body = body
	result.Directives = model.RobotsDirectives{}
	for _, v := range resp.Header.Values("X-Robots-Tag") {
		result.Directives.Merge(v)
	}
	if meta := metaRobots(body); meta != "" {
		result.Directives.Merge(meta)
	}
	return nil
}

// allowedType reports whether contentType contains an allowed media type.
func (f *Fetcher) allowedType(contentType string) bool {
	ct := strings.ToLower(contentType)
	for _, allowed := range f.cfg.AllowedContentTypes {
		if strings.Contains(ct, strings.ToLower(allowed)) {
			return true
		}
	}
	return false
}

// readBody decodes the body according to Content-Encoding and enforces the
// size ceiling on the decoded bytes.
func readBody(resp *http.Response, limit int64) ([]byte, error) {
	reader := io.Reader(resp.Body)

	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip", "x-gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip decode: %w", err)
		}
		defer gz.Close()
		reader = gz
	case "br":
		reader = brotli.NewReader(resp.Body)
	case "deflate":
		// Servers send either zlib-wrapped or raw deflate data.
		br := bufio.NewReader(resp.Body)
		if zr, err := zlib.NewReader(br); err == nil {
			defer zr.Close()
			reader = zr
		} else {
			fl := flate.NewReader(br)
			defer fl.Close()
			reader = fl
		}
	}

	body, err := io.ReadAll(io.LimitReader(reader, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("%w: body exceeds %d bytes", ErrContentRejected, limit)
	}
	return body, nil
}

// retryAfter converts a Retry-After header into a wait. Both delta-seconds
// and HTTP-date forms are accepted. Zero means the header was absent or
// unusable.
func retryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(value); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
