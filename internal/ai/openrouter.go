package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"
)

const defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"

type openrouterConfig struct {
	APIKey      string `json:"api_key"`
	BaseURL     string `json:"base_url"`
	HTTPReferer string `json:"http_referer"`
	XTitle      string `json:"x_title"`
}

// openrouterProvider serves openrouter and any other OpenAI compatible endpoint (vllm, localai, lm studio).
type openrouterProvider struct {
	name   string
	client *goopenai.Client
	hasKey bool
}

type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	for k, v := range t.headers {
		clone.Header.Set(k, v)
	}
	return t.base.RoundTrip(clone)
}

func newOpenRouterProvider(name string, defaultBaseURL string, args interface{}) (*openrouterProvider, error) {
	cfg := &openrouterConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if baseURL == "" {
		return nil, fmt.Errorf("%s base_url is required", name)
	}
	headers := map[string]string{}
	if cfg.HTTPReferer != "" {
		headers["HTTP-Referer"] = cfg.HTTPReferer
	}
	if cfg.XTitle != "" {
		headers["X-Title"] = cfg.XTitle
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	clientCfg := goopenai.DefaultConfig(apiKey)
	clientCfg.BaseURL = strings.TrimRight(baseURL, "/")
	clientCfg.HTTPClient = &http.Client{Transport: &headerTransport{base: http.DefaultTransport, headers: headers}}
	return &openrouterProvider{
		name:   name,
		client: goopenai.NewClientWithConfig(clientCfg),
		// self-hosted compatible servers usually run without a key
		hasKey: apiKey != "" || name != "openrouter",
	}, nil
}

func (p *openrouterProvider) Name() string {
	return p.name
}

func (p *openrouterProvider) Generate(ctx context.Context, model string, prompt string, params GenerateParams) (string, error) {
	if !p.hasKey {
		return "", errNotConfigured(p.name)
	}
	messages := make([]goopenai.ChatCompletionMessage, 0, 2)
	if params.SystemPrompt != "" {
		messages = append(messages, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleSystem, Content: params.SystemPrompt})
	}
	messages = append(messages, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleUser, Content: prompt})
	resp, err := p.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: float32(params.Temperature),
		TopP:        float32(params.TopP),
		MaxTokens:   params.MaxTokens,
	})
	if err != nil {
		return "", p.wrapError(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s response has no choices", p.name)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (p *openrouterProvider) Embed(ctx context.Context, model string, texts []string, taskType string) ([][]float32, error) {
	if !p.hasKey {
		return nil, errNotConfigured(p.name)
	}
	resp, err := p.client.CreateEmbeddings(ctx, goopenai.EmbeddingRequest{
		Input: texts,
		Model: goopenai.EmbeddingModel(model),
	})
	if err != nil {
		return nil, p.wrapError(err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%s returned %d embeddings for %d inputs", p.name, len(resp.Data), len(texts))
	}
	data := resp.Data
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })
	out := make([][]float32, len(data))
	for i, item := range data {
		out[i] = item.Embedding
	}
	return out, nil
}

func (p *openrouterProvider) ListModels(ctx context.Context) ([]string, error) {
	list, err := p.client.ListModels(ctx)
	if err != nil {
		return nil, p.wrapError(err)
	}
	ids := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

func (p *openrouterProvider) wrapError(err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return wrapStatusError(p.name, apiErr.HTTPStatusCode, err)
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return wrapStatusError(p.name, reqErr.HTTPStatusCode, err)
	}
	return wrapTransportError(p.name, err)
}

func init() {
	Register("openrouter", func(args interface{}) (IAIProvider, error) {
		return newOpenRouterProvider("openrouter", defaultOpenRouterBaseURL, args)
	})
	RegisterEmbed("openrouter", func(args interface{}) (IEmbedProvider, error) {
		return newOpenRouterProvider("openrouter", defaultOpenRouterBaseURL, args)
	})
	Register("openai_compatible", func(args interface{}) (IAIProvider, error) {
		return newOpenRouterProvider("openai_compatible", "", args)
	})
	RegisterEmbed("openai_compatible", func(args interface{}) (IEmbedProvider, error) {
		return newOpenRouterProvider("openai_compatible", "", args)
	})
}
