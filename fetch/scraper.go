package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/net/html"
)

// scraperRetries bounds how many interstitial redirects are followed for a
// single PDF fetch.
const scraperRetries = 5

// scraperStrategy imitates a browser session closely enough for publisher
// sites fronted by anti-bot interstitials: rotating browser user agents, TLS
// verification off, PDF content sniffing, and handling of interstitial pages
// that expose a delayed redirect anchor.
type scraperStrategy struct {
	client *http.Client
	pause  time.Duration
}

func newScraper() *scraperStrategy {
	return &scraperStrategy{
		client: newInsecureClient(30 * time.Second),
		pause:  5 * time.Second,
	}
}

func (s *scraperStrategy) Name() string { return "scraper" }

func (s *scraperStrategy) Fetch(ctx context.Context, url, dest string) error {
	return s.fetch(ctx, url, dest, 0)
}

func (s *scraperStrategy) fetch(ctx context.Context, url, dest string, attempt int) error {
	var req, err = http.NewRequestWithContext(ctx, "GET", strings.TrimSpace(url), nil)
	if err != nil {
		return fmt.Errorf("building request for %s: %w", url, err)
	}
	setBrowserHeaders(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return fmt.Errorf("fetching %s: status %d", url, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading %s: %w", url, err)
	}
	// Content sniffing below needs the plain bytes.
	body = maybeGunzip(body)

	if !strings.HasSuffix(dest, ".pdf") {
		return os.WriteFile(dest, body, 0o644)
	}

	if bytes.HasPrefix(body, []byte("%PDF-")) {
		return os.WriteFile(dest, body, 0o644)
	}
	if attempt < scraperRetries {
		if redirect := findRedirectAnchor(body); redirect != "" {
			log.WithFields(log.Fields{"url": url, "attempt": attempt + 1}).
				Debug("waiting before following the interstitial redirect")
			select {
			case <-time.After(s.pause):
			case <-ctx.Done():
				return ctx.Err()
			}
			return s.fetch(ctx, redirect, dest, attempt+1)
		}
	}
	return fmt.Errorf("fetching %s: response is not a PDF", url)
}

// findRedirectAnchor scans an HTML page for the <a id="redirect" href=...>
// anchor that interstitial pages expose, and returns its target.
func findRedirectAnchor(body []byte) string {
	var z = html.NewTokenizer(bytes.NewReader(body))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return ""
		case html.StartTagToken, html.SelfClosingTagToken:
			var t = z.Token()
			if t.Data != "a" {
				continue
			}
			var id, href string
			for _, attr := range t.Attr {
				switch attr.Key {
				case "id":
					id = attr.Val
				case "href":
					href = attr.Val
				}
			}
			if id == "redirect" {
				return href
			}
		}
	}
}
