package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func TestCorrelationIDMiddleware_GeneratesID(t *testing.T) {
	var seen string
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(zap.NewNop()))
	router.HandleFunc("/x", func(w http.ResponseWriter, r *http.Request) {
		seen, _ = r.Context().Value("correlation_id").(string)
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/x", nil))

	if seen == "" {
		t.Error("correlation_id missing from request context")
	}
	if rec.Header().Get("X-Correlation-ID") != seen {
		t.Errorf("response header = %q, want %q", rec.Header().Get("X-Correlation-ID"), seen)
	}
}

func TestCorrelationIDMiddleware_PropagatesIncoming(t *testing.T) {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(zap.NewNop()))
	router.HandleFunc("/x", func(w http.ResponseWriter, r *http.Request) {})

	req := httptest.NewRequest("GET", "/x", nil)
	req.Header.Set("X-Correlation-ID", "incoming-id")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Header().Get("X-Correlation-ID") != "incoming-id" {
		t.Errorf("header = %q, want incoming id echoed", rec.Header().Get("X-Correlation-ID"))
	}
}

func TestCorrelationIDMiddleware_InstallsLogger(t *testing.T) {
	var gotLogger *zap.Logger
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(zap.NewNop()))
	router.HandleFunc("/x", func(w http.ResponseWriter, r *http.Request) {
		gotLogger, _ = r.Context().Value("logger").(*zap.Logger)
	})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/x", nil))
	if gotLogger == nil {
		t.Error("request-scoped logger missing from context")
	}
}

func TestRateLimitMiddleware_Denies(t *testing.T) {
	limiter := rate.NewLimiter(rate.Limit(1), 1)
	router := mux.NewRouter()
	router.Use(RateLimitMiddleware(limiter))
	router.HandleFunc("/x", func(w http.ResponseWriter, r *http.Request) {})

	first := httptest.NewRecorder()
	router.ServeHTTP(first, httptest.NewRequest("GET", "/x", nil))
	if first.Code != http.StatusOK {
		t.Fatalf("first request status = %d, want 200", first.Code)
	}

	second := httptest.NewRecorder()
	router.ServeHTTP(second, httptest.NewRequest("GET", "/x", nil))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429 with exhausted bucket", second.Code)
	}
}

func TestRateLimitMiddleware_NilLimiterDisabled(t *testing.T) {
	router := mux.NewRouter()
	router.Use(RateLimitMiddleware(nil))
	router.HandleFunc("/x", func(w http.ResponseWriter, r *http.Request) {})

	for i := 0; i < 20; i++ {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest("GET", "/x", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want no limiting", i, rec.Code)
		}
	}
}

func TestTimeoutMiddleware_SetsDeadline(t *testing.T) {
	var hadDeadline bool
	router := mux.NewRouter()
	router.Use(TimeoutMiddleware(50 * time.Millisecond))
	router.HandleFunc("/x", func(w http.ResponseWriter, r *http.Request) {
		_, hadDeadline = r.Context().Deadline()
	})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/x", nil))
	if !hadDeadline {
		t.Error("request context has no deadline")
	}
}

func TestMetricsMiddleware_PassesThrough(t *testing.T) {
	router := mux.NewRouter()
	router.Use(MetricsMiddleware)
	router.HandleFunc("/api/bird/{common_name}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/bird/Blue%20Jay", nil))
	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d, want handler status preserved", rec.Code)
	}
}

func TestGetRoute_TemplatesPathVariables(t *testing.T) {
	if got := getRoute(httptest.NewRequest("GET", "/api/bird/Blue%20Jay", nil)); got != "/api/bird/{common_name}" {
		t.Errorf("getRoute() = %q, want template", got)
	}
	if got := getRoute(httptest.NewRequest("GET", "/health", nil)); got != "/health" {
		t.Errorf("getRoute() = %q", got)
	}
}

func TestStatusCodeString(t *testing.T) {
	cases := map[int]string{200: "2xx", 301: "3xx", 404: "4xx", 503: "5xx"}
	for code, want := range cases {
		if got := statusCodeString(code); got != want {
			t.Errorf("statusCodeString(%d) = %q, want %q", code, got, want)
		}
	}
}
