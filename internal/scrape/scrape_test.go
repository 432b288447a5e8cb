package scrape

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestNewsScraper_ExtractsCards(t *testing.T) {
	page := `<html><body>
		<a data-link-name="news | group-0 | card-@1" href="https://example.com/a" aria-label="Sea levels rising faster than expected">x</a>
		<a data-link-name="news | group-0 | card-@2" href="https://example.com/b">Wildfire season arrives early</a>
		<a data-link-name="news | group-0 | card-@3" href="https://example.com/a" aria-label="Duplicate link">x</a>
		<a href="https://example.com/unrelated">Not a card</a>
	</body></html>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(page))
	}))
	defer srv.Close()

	scraper := NewNewsScraper(srv.URL, 2*time.Second, zap.NewNop())
	articles := scraper.Articles(context.Background())

	if len(articles) != 2 {
		t.Fatalf("len(articles) = %d, want 2 (deduplicated by link)", len(articles))
	}
	if articles[0].Title != "Sea levels rising faster than expected" {
		t.Errorf("Title = %q, want aria-label preferred", articles[0].Title)
	}
	if articles[1].Title != "Wildfire season arrives early" {
		t.Errorf("Title = %q, want text fallback", articles[1].Title)
	}
	for _, a := range articles {
		if a.Source != "Guardian" {
			t.Errorf("Source = %q, want Guardian", a.Source)
		}
		if a.Date == "" {
			t.Error("Date empty, want scrape timestamp")
		}
	}
}

func TestNewsScraper_CapsAtTen(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("<html><body>")
	for i := 0; i < 15; i++ {
		fmt.Fprintf(&sb, `<a data-link-name="card-@%d" href="https://example.com/%d" aria-label="Article %d">x</a>`, i, i, i)
	}
	sb.WriteString("</body></html>")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(sb.String()))
	}))
	defer srv.Close()

	scraper := NewNewsScraper(srv.URL, 2*time.Second, zap.NewNop())
	articles := scraper.Articles(context.Background())
	if len(articles) != 10 {
		t.Errorf("len(articles) = %d, want cap of 10", len(articles))
	}
}

func TestNewsScraper_EmptyOnUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	scraper := NewNewsScraper(srv.URL, 2*time.Second, zap.NewNop())
	articles := scraper.Articles(context.Background())
	if articles == nil {
		t.Fatal("Articles() = nil, want empty slice")
	}
	if len(articles) != 0 {
		t.Errorf("len(articles) = %d, want 0", len(articles))
	}
}

func TestNewsScraper_EmptyOnUnreachableHost(t *testing.T) {
	scraper := NewNewsScraper("http://127.0.0.1:1", time.Second, zap.NewNop())
	if articles := scraper.Articles(context.Background()); len(articles) != 0 {
		t.Errorf("len(articles) = %d, want 0", len(articles))
	}
}

const nasaPage = `<html><body><div class="list-recent-posts">
	<div class="article">
		<div class="article-title"><a href="/images/1">Amazon rainforest loss accelerates</a></div>
		<div class="article-date">May 1, 2024</div>
		<div class="article-excerpt"><p>Satellite imagery shows accelerating clearing.</p></div>
		<img src="/img/1.jpg">
	</div>
	<div class="article">
		<div class="article-title"><a href="/images/2">Ocean temperatures hit record</a></div>
		<div class="article-date">May 2, 2024</div>
	</div>
	<div class="article">
		<div class="article-title"><a href="/images/3">Tree cover changes in Borneo</a></div>
		<div class="article-date">May 3, 2024</div>
	</div>
</div></body></html>`

func newDeforestationTestScraper(t *testing.T, pageHandler http.HandlerFunc) (*DeforestationScraper, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(pageHandler)
	t.Cleanup(srv.Close)
	scraper := NewDeforestationScraper(srv.URL+"/page", srv.URL+"/stats", 2*time.Second, time.Hour, zap.NewNop())
	return scraper, srv
}

func TestDeforestationScraper_FiltersAndResolvesLinks(t *testing.T) {
	scraper, srv := newDeforestationTestScraper(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/stats") {
			_, _ = w.Write([]byte(`{"data": {"totalLoss": 100.0, "totalGain": 40.0, "years": "2001-2022"}}`))
			return
		}
		_, _ = w.Write([]byte(nasaPage))
	})

	report, err := scraper.Report(context.Background())
	if err != nil {
		t.Fatalf("Report() error = %v", err)
	}
	if len(report.Articles) != 2 {
		t.Fatalf("len(Articles) = %d, want 2 forest-related of 3", len(report.Articles))
	}
	if !strings.HasPrefix(report.Articles[0].Link, srv.URL) {
		t.Errorf("Link = %q, want relative link made absolute", report.Articles[0].Link)
	}
	if report.Articles[0].Summary != "Satellite imagery shows accelerating clearing." {
		t.Errorf("Summary = %q", report.Articles[0].Summary)
	}
	if report.ForestData["totalLoss"] != 100.0 {
		t.Errorf("ForestData = %v, want GFW totals merged in", report.ForestData)
	}
	if report.Source == "" || report.Timestamp == "" {
		t.Errorf("report = %+v, missing source or timestamp", report)
	}
}

func TestDeforestationScraper_CachesWithinTTL(t *testing.T) {
	var pageHits int32
	scraper, _ := newDeforestationTestScraper(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/stats") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		atomic.AddInt32(&pageHits, 1)
		_, _ = w.Write([]byte(nasaPage))
	})

	if _, err := scraper.Report(context.Background()); err != nil {
		t.Fatalf("Report() error = %v", err)
	}
	if _, err := scraper.Report(context.Background()); err != nil {
		t.Fatalf("Report() second call error = %v", err)
	}
	if got := atomic.LoadInt32(&pageHits); got != 1 {
		t.Errorf("page fetched %d times, want 1 within TTL", got)
	}
}

func TestDeforestationScraper_ServesStaleOnRefreshFailure(t *testing.T) {
	var fail atomic.Bool
	scraper, _ := newDeforestationTestScraper(t, func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		if strings.HasPrefix(r.URL.Path, "/stats") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(nasaPage))
	})

	first, err := scraper.Report(context.Background())
	if err != nil {
		t.Fatalf("Report() error = %v", err)
	}

	// Expire the composite, then break the upstream.
	scraper.mu.Lock()
	scraper.lastAt = scraper.lastAt.Add(-2 * time.Hour)
	scraper.mu.Unlock()
	fail.Store(true)

	stale, err := scraper.Report(context.Background())
	if err != nil {
		t.Fatalf("Report() error = %v, want stale composite served", err)
	}
	if stale.Timestamp != first.Timestamp {
		t.Errorf("Timestamp = %q, want stale report %q", stale.Timestamp, first.Timestamp)
	}
}

func TestDeforestationScraper_ErrorsWhenNeverSucceeded(t *testing.T) {
	scraper := NewDeforestationScraper("http://127.0.0.1:1", "http://127.0.0.1:1", time.Second, time.Hour, zap.NewNop())
	if _, err := scraper.Report(context.Background()); err == nil {
		t.Fatal("Report() error = nil with no prior success and failing upstream")
	}
}

func TestDeforestationScraper_StatsLiveTotals(t *testing.T) {
	scraper, _ := newDeforestationTestScraper(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/stats") {
			_, _ = w.Write([]byte(`{"data": {"totalLoss": 500.0, "totalGain": 120.0, "years": "2001-2022"}}`))
			return
		}
		_, _ = w.Write([]byte(nasaPage))
	})

	stats := scraper.Stats(context.Background())
	if stats["total_loss"] != 500.0 || stats["total_gain"] != 120.0 {
		t.Errorf("stats = %v, want live totals", stats)
	}
	if stats["net_change"] != 380.0 {
		t.Errorf("net_change = %v, want 380", stats["net_change"])
	}
}

func TestDeforestationScraper_StatsStaticFallback(t *testing.T) {
	scraper := NewDeforestationScraper("http://127.0.0.1:1", "http://127.0.0.1:1", time.Second, time.Hour, zap.NewNop())

	stats := scraper.Stats(context.Background())
	if stats["total_loss_ha"] != 411000000 {
		t.Errorf("stats = %v, want static reference figures", stats)
	}
	if stats["source"] != "Global Forest Watch (Static Reference)" {
		t.Errorf("source = %v", stats["source"])
	}
}
