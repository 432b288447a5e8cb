// Package scrape extracts article records from third-party HTML pages: the
// Guardian environment section and the NASA Earth Observatory deforestation
// feed. Scrapers never let failures escape as panics or errors past their
// documented boundaries.
package scrape

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/net/html/charset"

	"github.com/ecowatch/ecowatch-service/internal/models"
	"github.com/ecowatch/ecowatch-service/internal/observability"
)

const (
	userAgent   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/113.0.0.0 Safari/537.36"
	maxArticles = 10
)

// NewsScraper extracts environmental news articles from the Guardian
// environment page.
type NewsScraper struct {
	url    string
	client *http.Client
	logger *zap.Logger
	now    func() time.Time
}

// NewNewsScraper creates a news scraper for the given page URL.
func NewNewsScraper(url string, timeout time.Duration, logger *zap.Logger) *NewsScraper {
	return &NewsScraper{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger,
		now:    time.Now,
	}
}

// Articles returns up to ten article records deduplicated by link, dated at
// call time. On any failure it returns an empty (non-nil) slice; the failure
// never propagates to the caller.
func (s *NewsScraper) Articles(ctx context.Context) []models.Article {
	articles := []models.Article{}

	doc, err := s.fetchDocument(ctx)
	if err != nil {
		s.logger.Error("news scrape failed", zap.Error(err))
		return articles
	}

	seen := make(map[string]struct{})
	date := s.now().Format(time.RFC3339)
	doc.Find(`a[data-link-name*="card-@"]`).EachWithBreak(func(_ int, card *goquery.Selection) bool {
		link := card.AttrOr("href", "")
		title := strings.TrimSpace(card.AttrOr("aria-label", ""))
		if title == "" {
			title = strings.TrimSpace(card.Text())
		}
		if link == "" || title == "" {
			return true
		}
		if _, dup := seen[link]; dup {
			return true
		}
		seen[link] = struct{}{}

		articles = append(articles, models.Article{
			Title:   title,
			Source:  "Guardian",
			Date:    date,
			Link:    link,
			Summary: "",
		})
		return len(articles) < maxArticles
	})

	observability.ScrapedArticlesTotal.WithLabelValues("guardian").Add(float64(len(articles)))
	s.logger.Info("news scrape complete", zap.Int("articles", len(articles)))
	return articles
}

func (s *NewsScraper) fetchDocument(ctx context.Context) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch page: HTTP %d", resp.StatusCode)
	}

	// Pages occasionally declare non-UTF-8 charsets; decode before parsing.
	reader, err := charset.NewReader(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, fmt.Errorf("decode charset: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(reader)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}
