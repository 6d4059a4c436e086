package urlnorm

import "testing"

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		raw    string
		base   string
		want   string
		wantOK bool
	}{
		{
			name:   "lowercases scheme and host",
			raw:    "HTTPS://Example.COM/Path",
			want:   "https://example.com/Path",
			wantOK: true,
		},
		{
			name:   "collapses repeated slashes and strips trailing slash",
			raw:    "https://example.com/a//b///c/",
			want:   "https://example.com/a/b/c",
			wantOK: true,
		},
		{
			name:   "empty path becomes root",
			raw:    "http://example.com",
			want:   "http://example.com/",
			wantOK: true,
		},
		{
			name:   "root keeps its slash",
			raw:    "http://example.com/",
			want:   "http://example.com/",
			wantOK: true,
		},
		{
			name:   "strips fragment",
			raw:    "https://example.com/page#section",
			want:   "https://example.com/page",
			wantOK: true,
		},
		{
			name:   "sorts query keys and keeps repeated value order",
			raw:    "https://example.com/search?q=go&b=2&a=1&b=1",
			want:   "https://example.com/search?a=1&b=2&b=1&q=go",
			wantOK: true,
		},
		{
			name:   "resolves relative reference",
			raw:    "../about/",
			base:   "https://example.com/docs/intro",
			want:   "https://example.com/about",
			wantOK: true,
		},
		{
			name:   "resolves protocol relative reference",
			raw:    "//Other.example.org/x",
			base:   "https://example.com/",
			want:   "https://other.example.org/x",
			wantOK: true,
		},
		{
			name:   "keeps port",
			raw:    "http://127.0.0.1:8080/a/",
			want:   "http://127.0.0.1:8080/a",
			wantOK: true,
		},
		{
			name:   "keeps default port as written",
			raw:    "https://example.com:443/a",
			want:   "https://example.com:443/a",
			wantOK: true,
		},
		{
			name:   "keeps tracking parameters",
			raw:    "https://example.com/a?utm_source=x&id=1",
			want:   "https://example.com/a?id=1&utm_source=x",
			wantOK: true,
		},
		{
			name:   "rejects mailto",
			raw:    "mailto:someone@example.com",
			base:   "https://example.com/",
			wantOK: false,
		},
		{
			name:   "rejects javascript",
			raw:    "javascript:void(0)",
			base:   "https://example.com/",
			wantOK: false,
		},
		{
			name:   "rejects fragment only",
			raw:    "#top",
			base:   "https://example.com/",
			wantOK: false,
		},
		{
			name:   "rejects ftp",
			raw:    "ftp://example.com/file",
			wantOK: false,
		},
		{
			name:   "rejects relative without base",
			raw:    "/path",
			wantOK: false,
		},
		{
			name:   "rejects empty",
			raw:    "   ",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, ok := Normalize(tt.raw, tt.base)
			if ok != tt.wantOK {
				t.Fatalf("expected ok=%v, got ok=%v (url %q)", tt.wantOK, ok, got)
			}
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"HTTPS://Example.COM//a//b/?z=1&a=2&a=1#frag",
		"http://example.com",
		"https://example.com/path%20with%20spaces/",
		"https://example.com/?q=a+b&q=c",
		"https://user@example.com:8443/x/y/",
		"https://example.com/a/./b/../c",
	}

	for _, in := range inputs {
		once, ok := Normalize(in, "")
		if !ok {
			t.Fatalf("expected %q to normalize", in)
		}
		twice, ok := Normalize(once, "")
		if !ok {
			t.Fatalf("expected %q to normalize again", once)
		}
		if once != twice {
			t.Errorf("normalization not idempotent for %q: %q != %q", in, once, twice)
		}
	}
}

func TestNormalize_EquivalentFormsCollide(t *testing.T) {
	t.Parallel()

	a, _ := Normalize("https://example.com/page/?b=2&a=1", "")
	b, _ := Normalize("https://EXAMPLE.com/page?a=1&b=2#x", "")
	if a != b {
		t.Errorf("expected equivalent URLs to collide, got %q and %q", a, b)
	}
}

func TestHost(t *testing.T) {
	t.Parallel()

	if got := Host("https://Example.com:8443/a"); got != "example.com:8443" {
		t.Errorf("expected 'example.com:8443', got %q", got)
	}
	if got := Host("https://Example.com/a"); got != "example.com" {
		t.Errorf("expected 'example.com', got %q", got)
	}
	if got := Hostname("https://Example.com:8443/a"); got != "example.com" {
		t.Errorf("expected 'example.com', got %q", got)
	}
	if got := Host("::bad"); got != "" {
		t.Errorf("expected empty hostname, got %q", got)
	}
	if !SameHost("http://a.example/x", "https://A.example/y") {
		t.Error("expected hosts to match")
	}
	if SameHost("http://a.example/x", "http://b.example/x") {
		t.Error("expected hosts to differ")
	}
}
