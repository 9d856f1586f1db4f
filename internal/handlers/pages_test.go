package handlers

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func TestLocalRedirect(t *testing.T) {
	cases := map[string]string{
		"":                     "/",
		"/":                    "/",
		"/upload":              "/upload",
		"/upload?draft=1":      "/upload?draft=1",
		"//evil.example":       "/",
		"/\\evil.example":      "/",
		"/%5Cevil.example":     "/",
		"/%2F/evil.example":    "/",
		"\\\\evil.example":     "/",
		"https://evil.example": "/",
		"javascript:alert(1)":  "/",
		"upload":               "/",
		"/\tupload":            "/",
	}

	for target, want := range cases {
		if got := localRedirect(target); got != want {
			t.Errorf("localRedirect(%q) = %q, want %q", target, got, want)
		}
	}
}

func TestPageHandlerLoginDropsOffsiteCallback(t *testing.T) {
	handler := PageHandler{}

	for _, callback := range []string{"//evil.example", "/\\evil.example", "/%5Cevil.example", "https://evil.example"} {
		rec := httptest.NewRecorder()
		handler.Login(rec, httptest.NewRequest(http.MethodGet, "/login?callbackUrl="+url.QueryEscape(callback), nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200 got %d", callback, rec.Code)
		}
		if strings.Contains(rec.Body.String(), "evil.example") {
			t.Fatalf("%s: callback rendered into page", callback)
		}
	}

	rec := httptest.NewRecorder()
	handler.Login(rec, httptest.NewRequest(http.MethodGet, "/login?callbackUrl="+url.QueryEscape("/upload"), nil))
	if !strings.Contains(rec.Body.String(), `upload"`) {
		t.Fatal("same-site callback should be kept")
	}
}

func TestPageHandlerUpload(t *testing.T) {
	handler := PageHandler{Sessions: newTestSessions()}

	rec := httptest.NewRecorder()
	handler.Upload(rec, withSession(httptest.NewRequest(http.MethodGet, "/upload", nil), testSession))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"/api/auth/imagekit-auth", "/api/auth/video", testSession.Email} {
		if !strings.Contains(body, want) {
			t.Fatalf("upload page missing %q", want)
		}
	}

	rec = httptest.NewRecorder()
	handler.Upload(rec, httptest.NewRequest(http.MethodPost, "/upload", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 got %d", rec.Code)
	}
}
