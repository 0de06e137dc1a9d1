package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	appErr "github.com/xxxsen/docfinder/internal/pkg/errors"
)

func TestOpenAICompatibleProvider(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "docfinder", r.Header.Get("X-Title"))
		var req map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "local-model", req["model"])
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"grounded answer"}}]}`))
	})
	mux.HandleFunc("/v1/embeddings", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[{"object":"embedding","index":1,"embedding":[0,1]},{"object":"embedding","index":0,"embedding":[1,0]}],"model":"local-embed"}`))
	})
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[{"id":"local-model","object":"model"},{"id":"local-embed","object":"model"}]}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	args := map[string]interface{}{"base_url": srv.URL + "/v1", "x_title": "docfinder"}
	ctx := context.Background()

	gen, err := NewProvider("openai_compatible", args)
	require.NoError(t, err)
	out, err := gen.Generate(ctx, "local-model", "question", GenerateParams{Temperature: 0.1, TopP: 0.95, MaxTokens: 100})
	require.NoError(t, err)
	require.Equal(t, "grounded answer", out)

	emb, err := NewEmbedProvider("openai_compatible", args)
	require.NoError(t, err)
	vecs, err := emb.Embed(ctx, "local-embed", []string{"first", "second"}, "")
	require.NoError(t, err)
	require.Equal(t, [][]float32{{1, 0}, {0, 1}}, vecs)

	models, err := gen.(IModelLister).ListModels(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"local-model", "local-embed"}, models)
}

func TestOpenAICompatibleProviderErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"unauthorized", http.StatusUnauthorized, appErr.ErrUnauthorized},
		{"rate limited", http.StatusTooManyRequests, appErr.ErrTooMany},
		{"gateway timeout", http.StatusGatewayTimeout, appErr.ErrTimeout},
		{"server error", http.StatusInternalServerError, appErr.ErrUnavailable},
		{"bad request", http.StatusBadRequest, appErr.ErrInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":{"message":"nope","type":"test"}}`))
			}))
			defer srv.Close()
			p, err := NewProvider("openai_compatible", map[string]interface{}{"base_url": srv.URL})
			require.NoError(t, err)
			_, err = p.Generate(context.Background(), "m", "q", GenerateParams{})
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestOpenRouterRequiresKey(t *testing.T) {
	p, err := NewProvider("openrouter", nil)
	require.NoError(t, err)
	_, err = p.Generate(context.Background(), "m", "q", GenerateParams{})
	require.ErrorIs(t, err, appErr.ErrUnavailable)
}

func TestOpenAIProvider(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		messages := req["messages"].([]interface{})
		require.Len(t, messages, 2)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","created":1,"model":"gpt","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"ok"}}]}`))
	})
	mux.HandleFunc("/embeddings", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","model":"e","data":[{"object":"embedding","index":0,"embedding":[0.5,0.25]}],"usage":{"prompt_tokens":1,"total_tokens":1}}`))
	})
	mux.HandleFunc("/models", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p, err := newOpenAIProvider(map[string]interface{}{"api_key": "sk-test", "base_url": srv.URL})
	require.NoError(t, err)
	ctx := context.Background()

	out, err := p.Generate(ctx, "gpt", "q", GenerateParams{SystemPrompt: "sys", Temperature: 0.1, TopP: 0.95, MaxTokens: 10})
	require.NoError(t, err)
	require.Equal(t, "ok", out)

	vecs, err := p.Embed(ctx, "e", []string{"x"}, "")
	require.NoError(t, err)
	require.Equal(t, [][]float32{{0.5, 0.25}}, vecs)

	_, err = p.ListModels(ctx)
	require.ErrorIs(t, err, appErr.ErrUnauthorized)

	noKey, err := newOpenAIProvider(nil)
	require.NoError(t, err)
	_, err = noKey.Generate(ctx, "gpt", "q", GenerateParams{})
	require.ErrorIs(t, err, appErr.ErrUnavailable)
}
