package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/docfinder/internal/ai"
	"github.com/xxxsen/docfinder/internal/config"
	"github.com/xxxsen/docfinder/internal/embedding"
	"github.com/xxxsen/docfinder/internal/filestore"
	"github.com/xxxsen/docfinder/internal/index"
	"github.com/xxxsen/docfinder/internal/middleware"
	"github.com/xxxsen/docfinder/internal/pkg/errcode"
	"github.com/xxxsen/docfinder/internal/pkg/jwt"
	"github.com/xxxsen/docfinder/internal/service"
)

type echoGenerator struct{}

func (echoGenerator) Generate(ctx context.Context, prompt string, override ai.Override) (string, error) {
	out := "generated for " + strconv.Itoa(len(prompt)) + " chars"
	if override.Model != "" {
		out += " by " + override.Model
	}
	if override.Temperature != nil {
		out += " at " + strconv.FormatFloat(*override.Temperature, 'f', -1, 64)
	}
	return out, nil
}

type fixedLister []string

func (l fixedLister) ListModels(ctx context.Context) ([]string, error) {
	return l, nil
}

func newTestRouter(t *testing.T, secret []byte) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store, err := filestore.New(config.FileStoreConfig{Type: "local", Data: map[string]interface{}{"dir": t.TempDir()}})
	require.NoError(t, err)
	embedder := embedding.New(ai.NewEmbedder(ai.NewHashEmbedProvider(256), "hash-256"))
	rag := service.NewRAGService(embedder, index.NewMemory("handler", index.MetricCosine),
		echoGenerator{}, fixedLister{"llama3.2", "nomic-embed-text"}, service.Options{TopK: 2})

	r := gin.New()
	r.Use(middleware.RequestID())
	RegisterRoutes(r.Group("/api/v1"), RouterDeps{
		Documents: NewDocumentHandler(rag, store, 1024),
		Search:    NewSearchHandler(rag),
		JWTSecret: secret,
	})
	return r
}

func doJSON(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	require.Equal(t, http.StatusOK, w.Code)
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func ingestFox(t *testing.T, r http.Handler) {
	t.Helper()
	w := doJSON(r, http.MethodPost, "/api/v1/documents",
		`{"documents":[{"id":"fox.txt","source":"fox.txt","text":"The quick brown fox jumps over the lazy dog."}]}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"document_id":"fox.txt"`)
	require.Contains(t, w.Body.String(), `"indexed":1`)
}

func TestIngestRetrieveQuery(t *testing.T) {
	r := newTestRouter(t, nil)
	ingestFox(t, r)

	w := doJSON(r, http.MethodPost, "/api/v1/retrieve", `{"query":"Which animal jumps?"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"id":"fox.txt:0"`)

	w = doJSON(r, http.MethodPost, "/api/v1/query", `{"query":"Which animal jumps?"}`)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	require.Contains(t, body, `"prompt":`)
	require.Contains(t, body, "generated for")
	require.Contains(t, body, "quick brown fox")

	w = doJSON(r, http.MethodGet, "/api/v1/collection", "")
	require.Contains(t, w.Body.String(), `"count":1`)
	require.Contains(t, w.Body.String(), `"model":"hash-256"`)

	w = doJSON(r, http.MethodGet, "/api/v1/models", "")
	require.Contains(t, w.Body.String(), "nomic-embed-text")
}

func TestDeleteDocument(t *testing.T) {
	r := newTestRouter(t, nil)
	ingestFox(t, r)

	w := doJSON(r, http.MethodDelete, "/api/v1/documents/fox.txt", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"removed":1`)

	w = doJSON(r, http.MethodGet, "/api/v1/collection", "")
	require.Contains(t, w.Body.String(), `"count":0`)
}

func TestBadRequests(t *testing.T) {
	r := newTestRouter(t, nil)
	tests := []struct {
		name string
		path string
		body string
	}{
		{"no documents", "/api/v1/documents", `{"documents":[]}`},
		{"broken json", "/api/v1/documents", `{"documents":`},
		{"empty query", "/api/v1/retrieve", `{"query":"  "}`},
		{"missing query", "/api/v1/query", `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := decode(t, doJSON(r, http.MethodPost, tt.path, tt.body))
			require.Equal(t, errcode.ErrInvalid, env.Code)
		})
	}
}

func uploadRequest(t *testing.T, filename string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUpload(t *testing.T) {
	r := newTestRouter(t, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, uploadRequest(t, "notes.md", []byte("# Notes\n\nThe quick brown fox.")))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"key":"notes.md"`)
	require.Contains(t, w.Body.String(), `"indexed":1`)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, uploadRequest(t, "tool.exe", []byte("MZ")))
	env := decode(t, w)
	require.Equal(t, errcode.ErrInvalidFile, env.Code)
	require.Equal(t, "only .txt and .md files are accepted", env.Msg)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, uploadRequest(t, "big.txt", bytes.Repeat([]byte("a"), 2048)))
	env = decode(t, w)
	require.Equal(t, errcode.ErrInvalidFile, env.Code)
	require.Equal(t, "file exceeds 1MB", env.Msg)
}

func TestRoutesRequireTokenWhenSecretSet(t *testing.T) {
	secret := []byte("handler-secret")
	r := newTestRouter(t, secret)

	env := decode(t, doJSON(r, http.MethodGet, "/api/v1/collection", ""))
	require.Equal(t, errcode.ErrUnauthorized, env.Code)

	token, err := jwt.GenerateToken("cli", "", secret, time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/collection", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	env = decode(t, w)
	require.Zero(t, env.Code)
	require.Contains(t, string(env.Data), `"metric":"cosine"`)
}

func authorized(method, path, body, token string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestTokenScopes(t *testing.T) {
	secret := []byte("handler-secret")
	r := newTestRouter(t, secret)
	writer, err := jwt.GenerateToken("loader", "write", secret, time.Hour)
	require.NoError(t, err)
	reader, err := jwt.GenerateToken("viewer", "read", secret, time.Hour)
	require.NoError(t, err)

	ingest := `{"documents":[{"id":"fox.txt","text":"The quick brown fox jumps over the lazy dog."}]}`
	tests := []struct {
		name   string
		method string
		path   string
		body   string
		token  string
		want   int
	}{
		{"reader cannot ingest", http.MethodPost, "/api/v1/documents", ingest, reader, errcode.ErrUnauthorized},
		{"writer ingests", http.MethodPost, "/api/v1/documents", ingest, writer, 0},
		{"writer cannot retrieve", http.MethodPost, "/api/v1/retrieve", `{"query":"fox"}`, writer, errcode.ErrUnauthorized},
		{"reader retrieves", http.MethodPost, "/api/v1/retrieve", `{"query":"fox"}`, reader, 0},
		{"reader reads collection", http.MethodGet, "/api/v1/collection", "", reader, 0},
		{"reader cannot delete", http.MethodDelete, "/api/v1/documents/fox.txt", "", reader, errcode.ErrUnauthorized},
		{"writer deletes", http.MethodDelete, "/api/v1/documents/fox.txt", "", writer, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, authorized(tt.method, tt.path, tt.body, tt.token))
			env := decode(t, w)
			require.Equal(t, tt.want, env.Code, env.Msg)
		})
	}
}

func TestQueryOverrides(t *testing.T) {
	r := newTestRouter(t, nil)
	ingestFox(t, r)

	env := decode(t, doJSON(r, http.MethodPost, "/api/v1/query",
		`{"query":"Which animal jumps?","model":"qwen2","temperature":0}`))
	require.Zero(t, env.Code)
	var res queryResponse
	require.NoError(t, json.Unmarshal(env.Data, &res))
	require.True(t, strings.HasSuffix(res.Response, " by qwen2 at 0"), res.Response)

	tests := []struct {
		name string
		body string
	}{
		{"temperature too high", `{"query":"q","temperature":2.5}`},
		{"top_p zero", `{"query":"q","top_p":0}`},
		{"negative max_tokens", `{"query":"q","max_tokens":-1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := decode(t, doJSON(r, http.MethodPost, "/api/v1/query", tt.body))
			require.Equal(t, errcode.ErrInvalid, env.Code)
		})
	}
}

func TestBuildFileKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"notes.md", "notes.md"},
		{"../../etc/passwd.txt", "passwd.txt"},
		{`C:\docs\my file.txt`, "my_file.txt"},
		{".hidden.md", "hidden.md"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, buildFileKey(tt.in), tt.in)
	}
}

func TestFormatUploadLimit(t *testing.T) {
	require.Equal(t, "0MB", formatUploadLimit(0))
	require.Equal(t, "1MB", formatUploadLimit(1024))
	require.Equal(t, "20MB", formatUploadLimit(20*1024*1024))
}
