package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/docfinder/internal/pkg/jwt"
)

func newRouter(mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(mw...)
	r.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(ContextSubjectKey)+"|"+c.GetString(ContextRequestIDKey))
	})
	return r
}

func TestJWTAuth(t *testing.T) {
	secret := []byte("s3cret")
	r := newRouter(RequestID(), JWTAuth(secret))
	token, err := jwt.GenerateToken("cli", "", secret, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		ok     bool
	}{
		{"valid", "Bearer " + token, true},
		{"lower case scheme", "bearer " + token, true},
		{"missing", "", false},
		{"wrong scheme", "Basic " + token, false},
		{"garbage", "Bearer not-a-token", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ping", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			require.Equal(t, http.StatusOK, w.Code)
			if tt.ok {
				require.Contains(t, w.Body.String(), "cli|")
			} else {
				require.NotContains(t, w.Body.String(), "cli|")
			}
		})
	}
}

func TestRequestID(t *testing.T) {
	r := newRouter(RequestID())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	generated := w.Header().Get(HeaderRequestID)
	require.Len(t, generated, 36)
	require.Equal(t, "|"+generated, w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(HeaderRequestID, "abc-123")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, "abc-123", w.Header().Get(HeaderRequestID))
}

func TestCORS(t *testing.T) {
	r := newRouter(CORS([]string{"https://app.example"}))

	req := httptest.NewRequest(http.MethodOptions, "/ping", nil)
	req.Header.Set("Origin", "https://app.example")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, "https://app.example", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	open := newRouter(CORS(nil))
	w = httptest.NewRecorder()
	open.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequireScope(t *testing.T) {
	secret := []byte("s3cret")
	r := newRouter(RequestID(), JWTAuth(secret), RequireScope(ScopeWrite))

	tests := []struct {
		name  string
		scope string
		ok    bool
	}{
		{"unscoped token", "", true},
		{"exact scope", "write", true},
		{"scope list", "read, write", true},
		{"case insensitive", "WRITE", true},
		{"read only", "read", false},
		{"similar name", "writer", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := jwt.GenerateToken("cli", tt.scope, secret, time.Hour)
			require.NoError(t, err)
			req := httptest.NewRequest(http.MethodGet, "/ping", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			require.Equal(t, http.StatusOK, w.Code)
			if tt.ok {
				require.Contains(t, w.Body.String(), "cli|")
			} else {
				require.NotContains(t, w.Body.String(), "cli|")
				require.Contains(t, w.Body.String(), "token scope does not allow this route")
			}
		})
	}

	open := newRouter(RequireScope(ScopeWrite))
	w := httptest.NewRecorder()
	open.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, "|", w.Body.String())
}
