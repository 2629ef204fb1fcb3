package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

// applySecurityHeaders runs a GET / through SecurityHeadersMiddleware and returns
// the response recorder so callers can inspect headers.
func applySecurityHeaders(cfg SecurityHeadersConfig) *httptest.ResponseRecorder {
	r := gin.New()
	r.Use(SecurityHeadersMiddleware(cfg))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	r.ServeHTTP(w, req)
	return w
}

func TestSecurityHeaders_APIDefaults(t *testing.T) {
	w := applySecurityHeaders(APISecurityHeadersConfig(false))

	want := map[string]string{
		"X-Frame-Options":         "DENY",
		"X-Content-Type-Options":  "nosniff",
		"Content-Security-Policy": "default-src 'none'; frame-ancestors 'none'",
		"Referrer-Policy":         "no-referrer",
		"Cache-Control":           "no-store",
		"Pragma":                  "no-cache",
	}
	for header, value := range want {
		if got := w.Header().Get(header); got != value {
			t.Errorf("%s = %q, want %q", header, got, value)
		}
	}
	if got := w.Header().Get("Strict-Transport-Security"); got != "" {
		t.Errorf("HSTS set without TLS: %q", got)
	}
}

func TestSecurityHeaders_HSTSWithTLS(t *testing.T) {
	w := applySecurityHeaders(APISecurityHeadersConfig(true))
	if got := w.Header().Get("Strict-Transport-Security"); got != "max-age=31536000; includeSubDomains" {
		t.Errorf("Strict-Transport-Security = %q", got)
	}
}

func TestSecurityHeaders_EmptyValuesOmitted(t *testing.T) {
	w := applySecurityHeaders(SecurityHeadersConfig{})
	for _, header := range []string{"X-Frame-Options", "Content-Security-Policy", "Referrer-Policy", "Cache-Control"} {
		if got := w.Header().Get(header); got != "" {
			t.Errorf("%s = %q, want omitted", header, got)
		}
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("nosniff must always be set")
	}
}
