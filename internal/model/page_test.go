package model

import "testing"

// TestPageRecordComputeHash tests the ComputeHash method.
func TestPageRecordComputeHash(t *testing.T) {
	t.Parallel()

	t.Run("computes SHA3-256 hash of the body", func(t *testing.T) {
		t.Parallel()

		page := &PageRecord{}
		page.ComputeHash([]byte(""))
		if page.Hash != "" {
			t.Errorf("expected empty hash, got %q", page.Hash)
		}

		// SHA3-256("abc") from FIPS 202 test vectors.
		page.ComputeHash([]byte("abc"))
		expected := "3a985da74fe225b2045c172d6bd390bd855f086e3e9d525b46bfe24511431532"
		if page.Hash != expected {
			t.Errorf("got %q, expected %q", page.Hash, expected)
		}
	})

	t.Run("different bodies produce different hashes", func(t *testing.T) {
		t.Parallel()

		a := &PageRecord{}
		b := &PageRecord{}
		a.ComputeHash([]byte("<html>a</html>"))
		b.ComputeHash([]byte("<html>b</html>"))
		if a.Hash == b.Hash {
			t.Error("expected different hashes")
		}
	})
}

// TestPageRecordGetHeader tests the GetHeader method.
func TestPageRecordGetHeader(t *testing.T) {
	t.Parallel()

	page := &PageRecord{
		Headers: map[string][]string{
			"Content-Type": {"text/html; charset=utf-8"},
			"Set-Cookie":   {"session=abc123", "theme=dark"},
		},
	}

	if got := page.GetHeader("Set-Cookie"); got != "session=abc123" {
		t.Errorf("got %q, expected 'session=abc123'", got)
	}
	if got := page.GetHeader("X-Missing"); got != "" {
		t.Errorf("expected empty string, got %q", got)
	}
}

// TestPageRecordIsHTML tests the IsHTML method.
func TestPageRecordIsHTML(t *testing.T) {
	t.Parallel()

	tests := []struct {
		contentType string
		want        bool
	}{
		{"text/html", true},
		{"Text/HTML; charset=utf-8", true},
		{"application/xhtml+xml", true},
		{"application/xml", false},
		{"image/png", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.contentType, func(t *testing.T) {
			t.Parallel()

			page := &PageRecord{ContentType: tt.contentType}
			if got := page.IsHTML(); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}
