package crawler

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"pagehound/internal/config"
	"pagehound/internal/dnscache"
	"pagehound/internal/models"
)

// urlPattern matches http(s) URLs and bare host/path forms in plain
// text. Bare forms are normalized to http:// before use.
var urlPattern = regexp.MustCompile(`(?:https?://)?(?:[a-zA-Z0-9][a-zA-Z0-9-]*\.)+[a-zA-Z]{2,}(?::\d+)?(?:/[^\s"'<>()\[\]{}]*)?`)

// ExtractResult is the outcome of one extraction call. Supported is
// false for document types the extractor cannot parse, which is distinct
// from a supported page that simply contains no links.
type ExtractResult struct {
	Supported bool
	URLs      []string
}

// Extractor turns fetched documents into new jobs. Accepted links are
// streamed onto the work queue one by one, and each handler-attached
// domain is submitted to the DNS buffer without blocking the loop.
type Extractor struct {
	Works   JobQueue
	DNS     *dnscache.Buffer
	Handler LinkHandler
	Params  config.CrawlParams
}

// Extract dispatches on document type, dedupes within the page, pushes a
// job per surviving URL, and returns the set of accepted URLs for
// diagnostics. A parse failure on a supported type returns an error with
// Supported still true.
func (e *Extractor) Extract(ctx context.Context, body []byte, docType, rootURL string) (ExtractResult, error) {
	var (
		raw []string
		err error
	)
	switch {
	case strings.Contains(docType, "html"):
		raw, err = extractHTMLLinks(body, rootURL)
		if err != nil {
			return ExtractResult{Supported: true}, fmt.Errorf("parse html at %s: %w", rootURL, err)
		}
	case strings.Contains(docType, "xml"), strings.Contains(docType, "text/plain"):
		raw = extractTextLinks(body)
	default:
		return ExtractResult{}, nil
	}

	handler := e.Handler
	if handler == nil {
		handler = DefaultLinkHandler{}
	}

	seen := make(map[string]struct{})
	accepted := make([]string, 0, len(raw))
	for _, link := range raw {
		rewritten, meta := handler.HandleLink(link, e.Params)
		if rewritten == "" {
			continue
		}
		if _, dup := seen[rewritten]; dup {
			continue
		}
		job, jerr := models.NewJob(rewritten, meta.Host)
		if jerr != nil {
			continue
		}
		if perr := e.Works.Push(ctx, job); perr != nil {
			log.Printf("push job url=%s: %v", rewritten, perr)
			continue
		}
		seen[rewritten] = struct{}{}
		accepted = append(accepted, rewritten)
		if e.DNS != nil && meta.Domain != "" {
			e.DNS.Submit(meta.Domain)
		}
	}
	return ExtractResult{Supported: true, URLs: accepted}, nil
}

// extractHTMLLinks collects anchor targets and resolves them against the
// page root.
func extractHTMLLinks(body []byte, rootURL string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	base, err := url.Parse(rootURL)
	if err != nil {
		base = nil
	}

	var links []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok || href == "" {
			return
		}
		if base != nil {
			ref, err := url.Parse(strings.TrimSpace(href))
			if err != nil {
				return
			}
			href = base.ResolveReference(ref).String()
		}
		links = append(links, href)
	})
	return links, nil
}

// extractTextLinks scans plain text or XML for URL-shaped tokens and
// prefixes schemeless matches with http://.
func extractTextLinks(body []byte) []string {
	matches := urlPattern.FindAllString(string(body), -1)
	links := make([]string, 0, len(matches))
	for _, m := range matches {
		if m == "" {
			continue
		}
		if !strings.Contains(m, "://") {
			m = "http://" + m
		}
		links = append(links, m)
	}
	return links
}
