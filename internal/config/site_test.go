package config

import (
	"testing"
	"time"

	"github.com/nao1215/webspider/internal/crawler"
	"github.com/nao1215/webspider/internal/fetcher"
)

var (
	_ crawler.SiteRules      = (*File)(nil)
	_ fetcher.HeaderProvider = (*File)(nil)
)

func testFile() *File {
	return &File{
		Defaults: SiteConfig{
			Cookie:         "default=1",
			Headers:        map[string]string{"X-Default": "d"},
			MaxDepth:       2,
			CrawlDelay:     "1s",
			IgnorePatterns: []string{"*.pdf"},
		},
		Sites: map[string]SiteConfig{
			"example.com": {
				Cookie:         "session=xyz",
				Headers:        map[string]string{"X-Site": "s"},
				MaxDepth:       5,
				CrawlDelay:     "3s",
				FollowPatterns: []string{"/docs/*"},
			},
		},
	}
}

// TestFileGetSiteConfig tests merging site settings over the defaults.
func TestFileGetSiteConfig(t *testing.T) {
	t.Parallel()

	t.Run("site overrides defaults", func(t *testing.T) {
		t.Parallel()

		sc := testFile().GetSiteConfig("example.com")
		if sc.Cookie != "session=xyz" {
			t.Errorf("expected site cookie, got %q", sc.Cookie)
		}
		if sc.MaxDepth != 5 {
			t.Errorf("expected depth 5, got %d", sc.MaxDepth)
		}
		if sc.Delay() != 3*time.Second {
			t.Errorf("expected 3s delay, got %v", sc.Delay())
		}
		if sc.Headers["X-Default"] != "d" || sc.Headers["X-Site"] != "s" {
			t.Errorf("expected merged headers, got %v", sc.Headers)
		}
		if len(sc.IgnorePatterns) != 1 || len(sc.FollowPatterns) != 1 {
			t.Errorf("unexpected patterns %v / %v", sc.IgnorePatterns, sc.FollowPatterns)
		}
	})

	t.Run("unknown site gets defaults", func(t *testing.T) {
		t.Parallel()

		sc := testFile().GetSiteConfig("other.example")
		if sc.Cookie != "default=1" || sc.MaxDepth != 2 {
			t.Errorf("expected defaults, got %+v", sc)
		}
	})

	t.Run("host with port falls back to hostname", func(t *testing.T) {
		t.Parallel()

		sc := testFile().GetSiteConfig("Example.com:8443")
		if sc.Cookie != "session=xyz" {
			t.Errorf("expected site cookie for host with port, got %q", sc.Cookie)
		}
	})

	t.Run("merging does not modify defaults", func(t *testing.T) {
		t.Parallel()

		cf := testFile()
		_ = cf.GetSiteConfig("example.com")
		if _, ok := cf.Defaults.Headers["X-Site"]; ok {
			t.Error("site header leaked into defaults")
		}
	})

	t.Run("nil file", func(t *testing.T) {
		t.Parallel()

		var cf *File
		if sc := cf.GetSiteConfig("example.com"); sc.Cookie != "" || sc.MaxDepth != 0 {
			t.Errorf("expected zero config, got %+v", sc)
		}
		cookie, headers := cf.SiteHeaders("example.com")
		if cookie != "" || headers != nil {
			t.Error("expected no headers from nil file")
		}
	})
}

func TestFileAdapters(t *testing.T) {
	t.Parallel()

	cf := testFile()

	cookie, headers := cf.SiteHeaders("example.com")
	if cookie != "session=xyz" || headers["X-Site"] != "s" {
		t.Errorf("unexpected headers %q %v", cookie, headers)
	}

	policy := cf.SitePolicy("example.com")
	if policy.MaxDepth != 5 || policy.CrawlDelay != 3*time.Second {
		t.Errorf("unexpected policy %+v", policy)
	}
	if len(policy.FollowPatterns) != 1 || policy.FollowPatterns[0] != "/docs/*" {
		t.Errorf("unexpected follow patterns %v", policy.FollowPatterns)
	}
}

func TestSiteConfigDelay(t *testing.T) {
	t.Parallel()

	tests := map[string]time.Duration{
		"":      0,
		"500ms": 500 * time.Millisecond,
		"2s":    2 * time.Second,
		"bad":   0,
		"-1s":   0,
	}
	for in, want := range tests {
		if got := (SiteConfig{CrawlDelay: in}).Delay(); got != want {
			t.Errorf("Delay(%q): expected %v, got %v", in, want, got)
		}
	}
}
