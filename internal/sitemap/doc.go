// Package sitemap fetches XML sitemaps and turns their entries into
// prioritized crawl candidates.
//
// Both <urlset> documents and <sitemapindex> documents are understood, plain
// or gzip-compressed. Index entries are followed by ProcessHost, which
// records them on the host so that every sitemap is walked at most once.
package sitemap
