// Package tor routes crawl traffic through a SOCKS5 proxy.
//
// Client wraps a golang.org/x/net/proxy SOCKS5 dialer and hands out an
// http.Transport for the fetcher. EmbeddedTor starts a private Tor daemon
// through tornago for crawls that should leave through the Tor network
// without an external Tor installation.
//
//	client, err := tor.NewClient("127.0.0.1:9050")
//	if err != nil {
//		return err
//	}
//	if err := client.CheckConnection(ctx).Error(); err != nil {
//		return err
//	}
//	httpClient := fetcher.NewHTTPClient(cfg, client.Transport(), siteConfig)
package tor
