package config

import (
	"strings"

	"pagehound/common"
)

// CrawlParams is the crawl policy shared by every worker: which content
// types to fetch, how large a document may be, and how the crawler
// identifies itself. Read-only after Load.
type CrawlParams struct {
	Filetypes []string
	Languages []string
	MaxSize   int64
	UserAgent string
}

const defaultUserAgent = "pagehound/0.1"

// Load reads crawl policy from the environment.
func Load() CrawlParams {
	return CrawlParams{
		Filetypes: common.ParseList(common.GetEnv("CRAWL_FILETYPES", ""), []string{"text/html", "text/plain", "text/xml"}),
		Languages: common.ParseList(common.GetEnv("CRAWL_LANGUAGES", ""), []string{"en"}),
		MaxSize:   common.ParseInt64(common.GetEnv("CRAWL_MAX_SIZE", ""), 10<<20),
		UserAgent: common.GetEnv("CRAWL_USER_AGENT", defaultUserAgent),
	}
}

// TypeAllowed reports whether a content-type header value matches the
// allow-list. Matching is substring based so "text/html; charset=utf-8"
// passes for "text/html".
func (p CrawlParams) TypeAllowed(contentType string) bool {
	if contentType == "" {
		return false
	}
	for _, allowed := range p.Filetypes {
		if allowed != "" && strings.Contains(contentType, allowed) {
			return true
		}
	}
	return false
}

// AcceptHeader builds the Accept header from the allowed filetypes.
func (p CrawlParams) AcceptHeader() string {
	return strings.Join(p.Filetypes, ",") + ";q=0.9"
}

// AcceptLanguageHeader builds the Accept-Language header from the
// accepted languages.
func (p CrawlParams) AcceptLanguageHeader() string {
	return strings.Join(p.Languages, ",") + ";q=0.9"
}
