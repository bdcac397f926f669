package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"

	applogger "CryptoSignal/pkg/logger"
)

type routes struct{}

type pingRequest struct {
	Name  string `query:"name" json:"name" validate:"required,alpha"`
	Count int    `query:"count" json:"count" default:"2" validate:"gte=1,lte=5"`
}

func (routes) RegisterRoutes(e *echo.Echo) {
	e.GET("/ping", func(c echo.Context) error {
		req := &pingRequest{}
		if verr := ReadAndValidateRequest(c, req); verr != nil {
			return BadRequestResponse(c, verr)
		}
		return SuccessResponse(c, req)
	})
	e.GET("/boom", func(echo.Context) error { panic("boom") })
	e.GET("/missing", func(c echo.Context) error { return AppErrorResponse(c, NotFoundErrorf("no %s", "thing")) })
}

func serve(s *Server, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestServerStack(t *testing.T) {
	s := NewServer(routes{}, applogger.Nop(), WithRegistry(prometheus.NewRegistry()))

	if rec := serve(s, "/ping?name=abc"); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"count":2`) {
		t.Fatalf("ping = %d %s", rec.Code, rec.Body)
	}
	rec := serve(s, "/ping?name=a1&count=9")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid ping status = %d", rec.Code)
	}
	for _, code := range []string{"ERR_ALPHA", "ERR_LTE", `"field":"count"`} {
		if !strings.Contains(rec.Body.String(), code) {
			t.Fatalf("body %s missing %s", rec.Body, code)
		}
	}
	if rec := serve(s, "/boom"); rec.Code != http.StatusInternalServerError {
		t.Fatalf("panic status = %d", rec.Code)
	}
	if rec := serve(s, "/missing"); rec.Code != http.StatusNotFound || !strings.Contains(rec.Body.String(), "ERR_NOT_FOUND") {
		t.Fatalf("missing = %d %s", rec.Code, rec.Body)
	}

	rec = serve(s, "/metrics")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `cryptosignal_http_requests_total{method="GET",route="/ping",status="200"} 1`) {
		t.Fatalf("metrics = %s", rec.Body)
	}
}

func TestCORSPreflight(t *testing.T) {
	s := NewServer(routes{}, applogger.Nop(), WithRegistry(prometheus.NewRegistry()))

	req := httptest.NewRequest(http.MethodOptions, "/ping", nil)
	req.Header.Set(echo.HeaderOrigin, "https://dash.example")
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d", rec.Code)
	}
	h := rec.Header()
	if h.Get(echo.HeaderAccessControlAllowOrigin) != "https://dash.example" || h.Get(echo.HeaderAccessControlMaxAge) != "600" {
		t.Fatalf("headers = %v", h)
	}
	if !strings.Contains(h.Get(echo.HeaderAccessControlExposeHeaders), "Retry-After") {
		t.Fatalf("expose = %q", h.Get(echo.HeaderAccessControlExposeHeaders))
	}
}
