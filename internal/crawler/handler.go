package crawler

import (
	"net/url"
	"strings"

	"pagehound/internal/config"
)

// LinkMeta is what a handler learns about a link beyond the rewritten
// URL itself.
type LinkMeta struct {
	Host   string // authority, possibly with port
	Domain string // bare hostname for DNS prefetch
}

// LinkHandler is the normalization seam between raw extracted URLs and
// the jobs the extractor emits. Returning an empty URL drops the link.
type LinkHandler interface {
	HandleLink(rawURL string, params config.CrawlParams) (string, LinkMeta)
}

// DefaultLinkHandler keeps http(s) links, strips fragments, and
// lowercases the host.
type DefaultLinkHandler struct{}

func (DefaultLinkHandler) HandleLink(rawURL string, params config.CrawlParams) (string, LinkMeta) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", LinkMeta{}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", LinkMeta{}
	}
	if u.Host == "" {
		return "", LinkMeta{}
	}
	u.Fragment = ""
	u.Host = strings.ToLower(u.Host)
	return u.String(), LinkMeta{Host: u.Host, Domain: u.Hostname()}
}
