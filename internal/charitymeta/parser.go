// Package charitymeta scrapes a charity's public website for the
// display metadata shown on its atlas card.
package charitymeta

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// CacheKey is the redis key the refresh job writes scraped metadata
// under.
func CacheKey(charityCode string) string {
	return "charitymeta:" + charityCode
}

type CharityMeta struct {
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	ImageURL    string    `json:"image_url,omitempty"`
	FetchedAt   time.Time `json:"fetched_at"`
}

type Parser struct {
	httpClient *http.Client
	log        *zap.Logger
	maxRetries int
}

func NewParser(timeoutMS, maxRetries int, log *zap.Logger) *Parser {
	return &Parser{
		httpClient: &http.Client{
			Timeout: time.Duration(timeoutMS) * time.Millisecond,
		},
		log:        log,
		maxRetries: maxRetries,
	}
}

func (p *Parser) FetchAndParse(ctx context.Context, siteURL string) (*CharityMeta, error) {
	var doc *goquery.Document
	var lastErr error

	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, siteURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
		req.Header.Set("Accept-Language", "en-US,en;q=0.9")

		resp, err := p.httpClient.Do(req)
		if err != nil {
			lastErr = err
			time.Sleep(time.Duration(attempt+1) * 500 * time.Millisecond)
			continue
		}

		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			lastErr = fmt.Errorf("HTTP %d for %s", resp.StatusCode, siteURL)
			time.Sleep(time.Duration(attempt+1) * 500 * time.Millisecond)
			continue
		}

		doc, err = goquery.NewDocumentFromReader(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		lastErr = nil
		break
	}

	if lastErr != nil {
		return nil, lastErr
	}

	meta := &CharityMeta{
		FetchedAt: time.Now(),
	}

	// Open Graph tags first, plain tags as fallback
	meta.Title = metaContent(doc, `meta[property="og:title"]`)
	if meta.Title == "" {
		meta.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}

	meta.Description = metaContent(doc, `meta[property="og:description"]`)
	if meta.Description == "" {
		meta.Description = metaContent(doc, `meta[name="description"]`)
	}
	if runes := []rune(meta.Description); len(runes) > 300 {
		meta.Description = string(runes[:300])
	}

	meta.ImageURL = metaContent(doc, `meta[property="og:image"]`)

	return meta, nil
}

func metaContent(doc *goquery.Document, selector string) string {
	content, _ := doc.Find(selector).First().Attr("content")
	return strings.TrimSpace(content)
}
