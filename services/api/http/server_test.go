package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/zerotwo/postcode-atlas/services/api/config"
)

func TestCleanCode(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"SW1A 1AA", "SW1A1AA"},
		{"sw1a 1aa", "SW1A1AA"},
		{" sw1a  1aa ", "SW1A1AA"},
		{"SW1A1AA", "SW1A1AA"},
		{"", ""},
		{"   ", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, cleanCode(tt.in), "input %q", tt.in)
	}
}

func TestParseLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := &Server{cfg: config.Config{DefaultLimit: 20, MaxLimit: 100}}

	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"default when absent", "", 20},
		{"explicit value", "limit=5", 5},
		{"clamped to max", "limit=5000", 100},
		{"zero is invalid", "limit=0", -1},
		{"negative is invalid", "limit=-3", -1},
		{"non-numeric is invalid", "limit=lots", -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest(http.MethodGet, "/v1/autocomplete?"+tt.query, nil)
			assert.Equal(t, tt.want, srv.parseLimit(c))
		})
	}
}

func newBearerEngine(token string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(bearerAuthMiddleware(token))
	engine.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })
	return engine
}

func TestBearerAuthMiddleware(t *testing.T) {
	engine := newBearerEngine("sekrit")

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid token", "Bearer sekrit", http.StatusOK},
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"missing header", "", http.StatusUnauthorized},
		{"not bearer", "Basic sekrit", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ping", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			engine.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestCORSMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(corsMiddleware())
	engine.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	// Preflight short-circuits.
	req = httptest.NewRequest(http.MethodOptions, "/ping", nil)
	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
