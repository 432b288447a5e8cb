package scrape

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/net/html/charset"

	"github.com/ecowatch/ecowatch-service/internal/models"
	"github.com/ecowatch/ecowatch-service/internal/observability"
)

const maxForestArticles = 5

// forestKeywords filters the article list down to deforestation coverage.
var forestKeywords = []string{"forest", "deforest", "tree", "amazon", "rainforest"}

// DeforestationScraper builds the composite deforestation report: recent
// forest-related articles from NASA Earth Observatory plus Global Forest
// Watch loss statistics. The composite is cached for a TTL and — unlike every
// other fetch path in this service — a failed refresh serves the previous
// successful composite instead of erroring. Only when no success has ever
// occurred does Report return an error.
type DeforestationScraper struct {
	pageURL  string
	statsURL string
	client   *http.Client
	logger   *zap.Logger
	ttl      time.Duration
	now      func() time.Time

	mu     sync.Mutex
	last   *models.DeforestationReport
	lastAt time.Time
}

// NewDeforestationScraper creates a deforestation scraper. pageURL is the
// NASA Earth Observatory page, statsURL the GFW summary-stats endpoint, ttl
// the composite cache lifetime.
func NewDeforestationScraper(pageURL, statsURL string, timeout, ttl time.Duration, logger *zap.Logger) *DeforestationScraper {
	return &DeforestationScraper{
		pageURL:  pageURL,
		statsURL: statsURL,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Report returns the composite deforestation report, refreshing it when the
// cached copy is older than the TTL.
func (s *DeforestationScraper) Report(ctx context.Context) (models.DeforestationReport, error) {
	s.mu.Lock()
	if s.last != nil && s.now().Sub(s.lastAt) < s.ttl {
		report := *s.last
		s.mu.Unlock()
		s.logger.Debug("serving cached deforestation report")
		return report, nil
	}
	s.mu.Unlock()

	report, err := s.scrape(ctx)
	if err != nil {
		s.logger.Error("deforestation scrape failed", zap.Error(err))
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.last != nil {
			// Stale beats nothing for a source that moves on a daily cadence.
			return *s.last, nil
		}
		return models.DeforestationReport{}, fmt.Errorf("scrape deforestation data: %w", err)
	}

	s.mu.Lock()
	s.last = &report
	s.lastAt = s.now()
	s.mu.Unlock()
	return report, nil
}

// Stats summarizes forest-loss numbers. Live GFW totals are used when the
// current report carries them; otherwise static published reference figures
// are returned. Stats never fails: a missing report just means the static
// fallback.
func (s *DeforestationScraper) Stats(ctx context.Context) map[string]any {
	report, err := s.Report(ctx)
	if err == nil {
		if _, ok := report.ForestData["totalLoss"]; ok {
			loss := asFloat(report.ForestData["totalLoss"])
			gain := asFloat(report.ForestData["totalGain"])
			return map[string]any{
				"total_loss": loss,
				"total_gain": gain,
				"net_change": loss - gain,
				"years":      report.ForestData["years"],
				"source":     "Global Forest Watch",
			}
		}
	}

	// Published Global Forest Watch reference figures, used when live data
	// is unavailable or lacks totals.
	return map[string]any{
		"total_loss_ha":            411000000,
		"annual_loss_ha":           25600000,
		"primary_forest_loss_2021": 3750000,
		"reference":                "Reference: Global Forest Watch reports approximately 411 million hectares of tree cover loss globally from 2001 to 2021",
		"source":                   "Global Forest Watch (Static Reference)",
		"disclaimer":               "These are static reference values. For real-time data, please refer to globalforestwatch.org",
	}
}

func (s *DeforestationScraper) scrape(ctx context.Context) (models.DeforestationReport, error) {
	articles, err := s.fetchArticles(ctx)
	if err != nil {
		return models.DeforestationReport{}, err
	}

	forestData := s.fetchForestStats(ctx)
	if forestData == nil {
		forestData = map[string]any{}
	}

	observability.ScrapedArticlesTotal.WithLabelValues("nasa").Add(float64(len(articles)))
	return models.DeforestationReport{
		Timestamp:  s.now().Format(time.RFC3339),
		Articles:   articles,
		ForestData: forestData,
		Source:     "NASA Earth Observatory and Global Forest Watch",
	}, nil
}

func (s *DeforestationScraper) fetchArticles(ctx context.Context) ([]models.Article, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.pageURL, nil)
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

	reader, err := charset.NewReader(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, fmt.Errorf("decode charset: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(reader)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	articles := []models.Article{}
	doc.Find(".list-recent-posts .article").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		titleEl := sel.Find(".article-title a").First()
		title := strings.TrimSpace(titleEl.Text())
		date := strings.TrimSpace(sel.Find(".article-date").First().Text())
		if title == "" || date == "" {
			return true
		}
		if !matchesForestKeyword(title) {
			return true
		}

		link := titleEl.AttrOr("href", "")
		if strings.HasPrefix(link, "/") {
			link = s.absoluteLink(link)
		}

		articles = append(articles, models.Article{
			Title:   title,
			Source:  "NASA Earth Observatory",
			Date:    date,
			Link:    link,
			Summary: strings.TrimSpace(sel.Find(".article-excerpt p").First().Text()),
			Image:   sel.Find("img").First().AttrOr("src", ""),
		})
		return len(articles) < maxForestArticles
	})

	return articles, nil
}

// fetchForestStats pulls GFW summary statistics. Failures are non-fatal: the
// composite is still useful with articles alone, so errors collapse to nil.
func (s *DeforestationScraper) fetchForestStats(ctx context.Context) map[string]any {
	u, err := url.Parse(s.statsURL)
	if err != nil {
		return nil
	}
	params := url.Values{}
	params.Set("period", "2001-01-01,2022-12-31")
	params.Set("gladConfirmOnly", "false")
	params.Set("aggregate_values", "true")
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Warn("forest stats fetch failed", zap.Error(err))
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		s.logger.Warn("forest stats fetch failed", zap.Int("status", resp.StatusCode))
		return nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil
	}
	var envelope struct {
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		s.logger.Warn("forest stats decode failed", zap.Error(err))
		return nil
	}
	return envelope.Data
}

func (s *DeforestationScraper) absoluteLink(path string) string {
	u, err := url.Parse(s.pageURL)
	if err != nil {
		return path
	}
	return u.Scheme + "://" + u.Host + path
}

func matchesForestKeyword(title string) bool {
	lower := strings.ToLower(title)
	for _, kw := range forestKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func asFloat(v any) float64 {
	f, _ := v.(float64)
	return f
}
