package middleware

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/vidshare/backend/internal/auth"
	"github.com/vidshare/backend/internal/logging"
)

func TestClassify(t *testing.T) {
	cases := map[string]Class{
		"/static/app.js":              ClassAsset,
		"/_next/static/chunk.js":      ClassAsset,
		"/_next/image?url=x":          ClassAsset,
		"/favicon.ico":                ClassAsset,
		"/public/logo.png":            ClassAsset,
		"/api/auth":                   ClassAuthExempt,
		"/api/auth/register":          ClassAuthExempt,
		"/api/auth/video":             ClassAuthExempt,
		"/login":                      ClassAuthExempt,
		"/register":                   ClassAuthExempt,
		"/":                           ClassPublic,
		"/api/videos":                 ClassPublic,
		"/api/videos/123":             ClassPublic,
		"/healthz":                    ClassPublic,
		"/metrics":                    ClassPublic,
		"/upload":                     ClassProtected,
		"/api/uploads":                ClassProtected,
		"/api/authors":                ClassProtected,
		"/dashboard/settings":         ClassProtected,
		"/loginx":                     ClassProtected,
		"/api/videosandmore/whatever": ClassProtected,
	}

	for path, want := range cases {
		if got := Classify(path); got != want {
			t.Errorf("Classify(%q) = %s, want %s", path, got, want)
		}
	}
}

type stubSessions struct {
	session auth.Session
	err     error
	calls   int
}

func (s *stubSessions) FromRequest(*http.Request) (auth.Session, error) {
	s.calls++
	return s.session, s.err
}

func okHandler(seen *auth.Session) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if session, ok := auth.SessionFromContext(r.Context()); ok && seen != nil {
			*seen = session
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestAccessControlRedirectsProtectedWithoutSession(t *testing.T) {
	sessions := &stubSessions{err: auth.ErrUnauthenticated}
	handler := AccessControl(sessions)(okHandler(nil))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/upload?draft=1", nil))

	if rec.Code != http.StatusTemporaryRedirect {
		t.Fatalf("expected 307 got %d", rec.Code)
	}
	location := rec.Header().Get("Location")
	if !strings.HasPrefix(location, "/login?callbackUrl=") || !strings.Contains(location, "%2Fupload%3Fdraft%3D1") {
		t.Fatalf("unexpected redirect target %q", location)
	}
}

func TestAccessControlPassesProtectedWithSession(t *testing.T) {
	want := auth.Session{UserID: "user-1", Email: "a@example.com", ExpiresAt: time.Now().Add(time.Hour)}
	sessions := &stubSessions{session: want}

	var seen auth.Session
	handler := AccessControl(sessions)(okHandler(&seen))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/upload", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if seen.UserID != want.UserID {
		t.Fatalf("expected session on context, got %+v", seen)
	}
}

func TestAccessControlPassesUnprotectedClasses(t *testing.T) {
	for _, path := range []string{"/", "/api/videos", "/api/auth/register", "/login", "/register", "/_next/static/x.js", "/healthz"} {
		sessions := &stubSessions{err: errors.New("no cookie")}
		handler := AccessControl(sessions)(okHandler(nil))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200 got %d", path, rec.Code)
		}
		if Classify(path) == ClassAsset && sessions.calls != 0 {
			t.Fatalf("%s: asset requests should not inspect the session", path)
		}
	}
}

func TestAccessControlAttachesSessionOnExemptPaths(t *testing.T) {
	sessions := &stubSessions{session: auth.Session{UserID: "user-9"}}

	var seen auth.Session
	handler := AccessControl(sessions)(okHandler(&seen))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/auth/video", nil))

	if seen.UserID != "user-9" {
		t.Fatalf("expected session to be attached, got %+v", seen)
	}
}

func TestRequestLoggerRecoversPanics(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if logging.RequestIDFromContext(r.Context()) == "" {
			t.Error("expected request id on context")
		}
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/videos", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", rec.Code)
	}
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Fatal("expected request id header")
	}
	if !strings.Contains(rec.Body.String(), `"error"`) {
		t.Fatalf("expected json error body got %q", rec.Body.String())
	}
	if !strings.Contains(buf.String(), "panic recovered") || !strings.Contains(buf.String(), "request completed") {
		t.Fatalf("expected panic and completion logs, got %s", buf.String())
	}
}

func TestMetricsInstrument(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	handler := metrics.Instrument(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/auth/video", nil))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/auth/video", nil))

	if got := testutil.ToFloat64(metrics.requests.WithLabelValues("auth_exempt", http.MethodPost, "201")); got != 2 {
		t.Fatalf("expected 2 requests counted got %v", got)
	}

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "vidshare_http_requests_total") {
		t.Fatalf("expected exposition to include request counter")
	}
}

func TestMetricsFoldsUnknownMethods(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	handler := metrics.Instrument(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	for _, method := range []string{"PROPFIND", "X-RANDOM-1", "X-RANDOM-2"} {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(method, "/", nil))
	}

	if got := testutil.CollectAndCount(metrics.requests); got != 1 {
		t.Fatalf("expected a single series got %d", got)
	}
	if got := testutil.ToFloat64(metrics.requests.WithLabelValues("public", "other", "200")); got != 3 {
		t.Fatalf("expected 3 requests under other got %v", got)
	}
}

func TestKeyedLimiter(t *testing.T) {
	now := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewKeyedLimiter(1, time.Minute, 2)
	limiter.SetClock(func() time.Time { return now })

	if !limiter.Allow("login:1.2.3.4") || !limiter.Allow("login:1.2.3.4") {
		t.Fatal("expected burst to be allowed")
	}
	if limiter.Allow("login:1.2.3.4") {
		t.Fatal("expected third request to be limited")
	}
	if !limiter.Allow("login:5.6.7.8") {
		t.Fatal("expected other keys to have their own budget")
	}

	now = now.Add(time.Minute)
	if !limiter.Allow("login:1.2.3.4") {
		t.Fatal("expected budget to refill")
	}

	now = now.Add(limiterIdleTTL + time.Second)
	limiter.Allow("fresh")
	if got := limiter.size(); got != 1 {
		t.Fatalf("expected idle buckets to be dropped, have %d", got)
	}
}
