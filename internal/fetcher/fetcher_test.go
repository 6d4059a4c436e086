package fetcher

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
)

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

type attemptRecorder struct {
	mu       sync.Mutex
	statuses []int
}

func (r *attemptRecorder) RecordAttempt(_ string, status int, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
}

func newTestFetcher(t *testing.T, server *httptest.Server, opts ...Option) (*Fetcher, *sleepRecorder) {
	t.Helper()

	sleeps := &sleepRecorder{}
	cfg := DefaultConfig()
	all := append([]Option{WithSleep(sleeps.sleep)}, opts...)
	if server != nil {
		all = append(all, WithHTTPClient(NewHTTPClient(cfg, server.Client().Transport, nil)))
	}
	return New(cfg, all...), sleeps
}

func TestFetch_Success(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != DefaultUserAgent {
			t.Errorf("expected default user agent, got %q", r.Header.Get("User-Agent"))
		}
		if r.Header.Get("Accept-Encoding") != "gzip, deflate, br" {
			t.Errorf("unexpected Accept-Encoding %q", r.Header.Get("Accept-Encoding"))
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, "<html><head><title>ok</title></head><body>hello</body></html>")
	}))
	defer server.Close()

	rec := &attemptRecorder{}
	f, _ := newTestFetcher(t, server, WithRecorder(rec))
	result := f.Fetch(context.Background(), server.URL+"/")

	if !result.Success {
		t.Fatalf("expected success, got error %v", result.Err)
	}
	if result.Status != http.StatusOK || result.Attempts != 1 {
		t.Errorf("expected one 200 attempt, got status %d after %d attempts", result.Status, result.Attempts)
	}
	if !strings.Contains(string(result.Body), "hello") {
		t.Errorf("expected body to contain 'hello', got %q", result.Body)
	}
	if len(rec.statuses) != 1 || rec.statuses[0] != http.StatusOK {
		t.Errorf("expected one recorded 200 attempt, got %v", rec.statuses)
	}
}

func TestFetch_DecodesContentEncoding(t *testing.T) {
	t.Parallel()

	const page = "<html><body>compressed content</body></html>"

	encoders := map[string]func([]byte) []byte{
		"gzip": func(b []byte) []byte {
			var buf bytes.Buffer
			zw := gzip.NewWriter(&buf)
			_, _ = zw.Write(b) //nolint:errcheck // bytes.Buffer never fails
			_ = zw.Close()     //nolint:errcheck // bytes.Buffer never fails
			return buf.Bytes()
		},
		"br": func(b []byte) []byte {
			var buf bytes.Buffer
			bw := brotli.NewWriter(&buf)
			_, _ = bw.Write(b) //nolint:errcheck // bytes.Buffer never fails
			_ = bw.Close()     //nolint:errcheck // bytes.Buffer never fails
			return buf.Bytes()
		},
	}

	for encoding, encode := range encoders {
		t.Run(encoding, func(t *testing.T) {
			t.Parallel()

			payload := encode([]byte(page))
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "text/html")
				w.Header().Set("Content-Encoding", encoding)
				_, _ = w.Write(payload) //nolint:errcheck // test server
			}))
			defer server.Close()

			f, _ := newTestFetcher(t, server)
			result := f.Fetch(context.Background(), server.URL)
			if !result.Success {
				t.Fatalf("expected success, got %v", result.Err)
			}
			if string(result.Body) != page {
				t.Errorf("expected decoded body, got %q", result.Body)
			}
		})
	}
}

func TestFetch_ContentGate(t *testing.T) {
	t.Parallel()

	t.Run("rejects disallowed content type before reading the body", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "image/png")
			w.Header().Set("Content-Length", "500000")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(make([]byte, 500000)) //nolint:errcheck // client hangs up early
		}))
		defer server.Close()

		f, sleeps := newTestFetcher(t, server)
		result := f.Fetch(context.Background(), server.URL+"/logo.png")

		if result.Success {
			t.Fatal("expected image to be rejected")
		}
		if !errors.Is(result.Err, ErrContentRejected) {
			t.Errorf("expected ErrContentRejected, got %v", result.Err)
		}
		if result.Body != nil {
			t.Errorf("expected no body, got %d bytes", len(result.Body))
		}
		if result.Attempts != 1 || len(sleeps.delays) != 0 {
			t.Errorf("expected no retry, got %d attempts", result.Attempts)
		}
		if !IsTerminal(result.Err) {
			t.Error("expected content rejection to be terminal")
		}
	})

	t.Run("rejects declared oversized body", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			w.Header().Set("Content-Length", "2048")
			_, _ = w.Write(make([]byte, 2048)) //nolint:errcheck // test server
		}))
		defer server.Close()

		cfg := DefaultConfig()
		cfg.MaxBodySize = 1024
		f := New(cfg, WithHTTPClient(server.Client()))
		result := f.Fetch(context.Background(), server.URL)
		if !errors.Is(result.Err, ErrContentRejected) {
			t.Errorf("expected ErrContentRejected, got %v", result.Err)
		}
	})

	t.Run("rejects undeclared oversized body", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			for range 4 {
				_, _ = w.Write(make([]byte, 512)) //nolint:errcheck // test server
				if flusher, ok := w.(http.Flusher); ok {
					flusher.Flush()
				}
			}
		}))
		defer server.Close()

		cfg := DefaultConfig()
		cfg.MaxBodySize = 1024
		f := New(cfg, WithHTTPClient(server.Client()))
		result := f.Fetch(context.Background(), server.URL)
		if !errors.Is(result.Err, ErrContentRejected) {
			t.Errorf("expected ErrContentRejected, got %v", result.Err)
		}
	})
}

func TestFetch_ClientErrorIsTerminal(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	defer server.Close()

	f, sleeps := newTestFetcher(t, server)
	result := f.Fetch(context.Background(), server.URL+"/missing")

	if !errors.Is(result.Err, ErrClientError) {
		t.Errorf("expected ErrClientError, got %v", result.Err)
	}
	if hits.Load() != 1 || len(sleeps.delays) != 0 {
		t.Errorf("expected a single attempt, got %d", hits.Load())
	}
	if result.Status != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", result.Status)
	}
}

func TestFetch_ServerErrorBackoff(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	f, sleeps := newTestFetcher(t, server)
	result := f.Fetch(context.Background(), server.URL)

	if !errors.Is(result.Err, ErrRetriesExhausted) {
		t.Fatalf("expected ErrRetriesExhausted, got %v", result.Err)
	}
	if !errors.Is(result.Err, ErrServerError) {
		t.Errorf("expected the last cause to be wrapped, got %v", result.Err)
	}
	if IsTerminal(result.Err) {
		t.Error("expected exhausted retries to be transient for the frontier")
	}
	if got := hits.Load(); got != DefaultMaxAttempts {
		t.Errorf("expected %d attempts, got %d", DefaultMaxAttempts, got)
	}

	want := []time.Duration{2 * time.Second, 4 * time.Second}
	if len(sleeps.delays) != len(want) {
		t.Fatalf("expected delays %v, got %v", want, sleeps.delays)
	}
	for i := range want {
		if sleeps.delays[i] != want[i] {
			t.Errorf("expected delay %v at %d, got %v", want[i], i, sleeps.delays[i])
		}
	}
}

type fakePacer struct {
	mu          sync.Mutex
	turns       int
	adjustments []int
	turnErr     error
}

func (p *fakePacer) AwaitTurn(_ context.Context, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.turns++
	return p.turnErr
}

func (p *fakePacer) AdjustDelay(_ string, status int, _ time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.adjustments = append(p.adjustments, status)
}

func TestFetch_PacesEveryAttempt(t *testing.T) {
	t.Parallel()

	t.Run("each retry waits for a turn and adjusts the delay", func(t *testing.T) {
		t.Parallel()

		var hits atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			if hits.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, "<html></html>")
		}))
		defer server.Close()

		pacer := &fakePacer{}
		f, _ := newTestFetcher(t, server, WithPacer(pacer))
		result := f.Fetch(context.Background(), server.URL)
		if !result.Success {
			t.Fatalf("expected success, got %v", result.Err)
		}
		if pacer.turns != 3 {
			t.Errorf("expected 3 turns, got %d", pacer.turns)
		}
		want := []int{503, 503, 200}
		if fmt.Sprint(pacer.adjustments) != fmt.Sprint(want) {
			t.Errorf("expected adjustments %v, got %v", want, pacer.adjustments)
		}
	})

	t.Run("rejected content is not a health signal", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "image/png")
			fmt.Fprint(w, "png")
		}))
		defer server.Close()

		pacer := &fakePacer{}
		f, _ := newTestFetcher(t, server, WithPacer(pacer))
		result := f.Fetch(context.Background(), server.URL)
		if !errors.Is(result.Err, ErrContentRejected) {
			t.Fatalf("expected ErrContentRejected, got %v", result.Err)
		}
		if pacer.turns != 1 {
			t.Errorf("expected 1 turn, got %d", pacer.turns)
		}
		if len(pacer.adjustments) != 0 {
			t.Errorf("expected no delay adjustment, got %v", pacer.adjustments)
		}
	})

	t.Run("no request without a turn", func(t *testing.T) {
		t.Parallel()

		var hits atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			hits.Add(1)
		}))
		defer server.Close()

		pacer := &fakePacer{turnErr: context.Canceled}
		f, _ := newTestFetcher(t, server, WithPacer(pacer))
		result := f.Fetch(context.Background(), server.URL)
		if !errors.Is(result.Err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", result.Err)
		}
		if got := hits.Load(); got != 0 {
			t.Errorf("expected no request, got %d", got)
		}
	})
}

func TestFetch_RateLimitedHonorsRetryAfter(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) == 1 {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<p>ok</p>")
	}))
	defer server.Close()

	f, sleeps := newTestFetcher(t, server)
	result := f.Fetch(context.Background(), server.URL)

	if !result.Success {
		t.Fatalf("expected success after retry, got %v", result.Err)
	}
	if result.Attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", result.Attempts)
	}
	if len(sleeps.delays) != 1 || sleeps.delays[0] != 7*time.Second {
		t.Errorf("expected a 7s wait, got %v", sleeps.delays)
	}
}

func TestFetch_RateLimitedWithoutRetryAfterUsesBackoff(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	f, sleeps := newTestFetcher(t, server)
	result := f.Fetch(context.Background(), server.URL)

	if !errors.Is(result.Err, ErrRateLimited) {
		t.Errorf("expected ErrRateLimited cause, got %v", result.Err)
	}
	if result.Status != http.StatusTooManyRequests {
		t.Errorf("expected last status 429, got %d", result.Status)
	}
	if len(sleeps.delays) != 2 || sleeps.delays[0] != DefaultBaseDelay {
		t.Errorf("expected backoff delays, got %v", sleeps.delays)
	}
}

func TestFetch_TransportErrorRetries(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	addr := server.URL
	server.Close()

	rec := &attemptRecorder{}
	f, sleeps := newTestFetcher(t, nil, WithRecorder(rec))
	result := f.Fetch(context.Background(), addr)

	if !errors.Is(result.Err, ErrRetriesExhausted) {
		t.Errorf("expected ErrRetriesExhausted, got %v", result.Err)
	}
	if result.Status != 0 {
		t.Errorf("expected status 0, got %d", result.Status)
	}
	if len(sleeps.delays) != DefaultMaxAttempts-1 {
		t.Errorf("expected %d waits, got %d", DefaultMaxAttempts-1, len(sleeps.delays))
	}
	if len(rec.statuses) != DefaultMaxAttempts {
		t.Errorf("expected every attempt recorded, got %v", rec.statuses)
	}
}

func TestFetch_CancelDuringBackoff(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	f := New(DefaultConfig(),
		WithHTTPClient(server.Client()),
		WithSleep(func(ctx context.Context, _ time.Duration) error {
			cancel()
			return ctx.Err()
		}),
	)

	result := f.Fetch(ctx, server.URL)
	if !errors.Is(result.Err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", result.Err)
	}
	if result.Attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", result.Attempts)
	}
}

func TestFetch_Directives(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Header().Set("X-Robots-Tag", "noindex, noarchive")
		fmt.Fprint(w, `<html><head><META NAME="Robots" content="nofollow"></head>
<body><meta name="robots" content="nosnippet"></body></html>`)
	}))
	defer server.Close()

	f, _ := newTestFetcher(t, server)
	result := f.Fetch(context.Background(), server.URL)
	if !result.Success {
		t.Fatalf("expected success, got %v", result.Err)
	}

	d := result.Directives
	if !d.NoIndex || !d.NoArchive || !d.NoFollow {
		t.Errorf("expected noindex, noarchive and nofollow, got %+v", d)
	}
	if d.NoSnippet {
		t.Error("expected meta tags after <body> to be ignored")
	}
}

func TestFetch_RedirectLimit(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, r.URL.Path+"x", http.StatusFound)
	}))
	defer server.Close()

	f, _ := newTestFetcher(t, server)
	result := f.Fetch(context.Background(), server.URL+"/r")

	if !errors.Is(result.Err, ErrUnexpectedStatus) {
		t.Errorf("expected ErrUnexpectedStatus, got %v", result.Err)
	}
	if result.Status != http.StatusFound {
		t.Errorf("expected final status 302, got %d", result.Status)
	}
}

func TestRetryAfter(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"", 0},
		{"3", 3 * time.Second},
		{"0", 0},
		{"-1", 0},
		{"soon", 0},
		{now.Add(90 * time.Second).Format(http.TimeFormat), 90 * time.Second},
		{now.Add(-time.Minute).Format(http.TimeFormat), 0},
	}

	for _, tt := range tests {
		if got := retryAfter(tt.value, now); got != tt.want {
			t.Errorf("expected %v for %q, got %v", tt.want, tt.value, got)
		}
	}
}
