package fetcher

import (
	"net/http"
	"net/http/cookiejar"
	"strings"
)

// HeaderProvider returns the cookie and extra headers configured for a host.
type HeaderProvider interface {
	SiteHeaders(host string) (cookie string, headers map[string]string)
}

// NewHTTPClient builds the client used for page fetches. base carries the
// connection settings (a SOCKS5 transport, for instance) and defaults to a
// clone of http.DefaultTransport. When headers is set, every request,
// redirects included, gets the cookie and headers configured for its host.
func NewHTTPClient(cfg Config, base http.RoundTripper, headers HeaderProvider) *http.Client {
	cfg = cfg.withDefaults()

	if base == nil {
		base = http.DefaultTransport.(*http.Transport).Clone() //nolint:forcetypeassert // DefaultTransport is always *http.Transport
	}
	if headers != nil {
		base = &headerInjectingTransport{base: base, provider: headers}
	}

	jar, _ := cookiejar.New(nil) //nolint:errcheck // cookiejar.New only fails with invalid options

	maxRedirects := cfg.MaxRedirects
	return &http.Client{
		Transport: base,
		Timeout:   cfg.Timeout,
		Jar:       jar,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}
}

// headerInjectingTransport adds per-host cookies and headers to requests.
type headerInjectingTransport struct {
	base     http.RoundTripper
	provider HeaderProvider
}

// RoundTrip implements http.RoundTripper.
func (t *headerInjectingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	cookie, headers := t.provider.SiteHeaders(strings.ToLower(req.URL.Host))
	if cookie == "" && len(headers) == 0 {
		return t.base.RoundTrip(req)
	}

	clone := req.Clone(req.Context())
	if cookie != "" {
		if existing := clone.Header.Get("Cookie"); existing != "" {
			clone.Header.Set("Cookie", existing+"; "+cookie)
		} else {
			clone.Header.Set("Cookie", cookie)
		}
	}
	for key, value := range headers {
		clone.Header.Set(key, value)
	}
	return t.base.RoundTrip(clone)
}
