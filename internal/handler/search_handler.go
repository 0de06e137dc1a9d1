package handler

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/docfinder/internal/ai"
	"github.com/xxxsen/docfinder/internal/model"
	"github.com/xxxsen/docfinder/internal/pkg/errcode"
	"github.com/xxxsen/docfinder/internal/pkg/response"
	"github.com/xxxsen/docfinder/internal/service"
)

const maxTopK = 50

type SearchHandler struct {
	rag *service.RAGService
}

func NewSearchHandler(rag *service.RAGService) *SearchHandler {
	return &SearchHandler{rag: rag}
}

type retrieveRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

type queryRequest struct {
	Query       string   `json:"query"`
	Model       string   `json:"model"`
	Temperature *float64 `json:"temperature"`
	TopP        *float64 `json:"top_p"`
	MaxTokens   int      `json:"max_tokens"`
}

func (r queryRequest) override() ai.Override {
	return ai.Override{
		Model:       strings.TrimSpace(r.Model),
		Temperature: r.Temperature,
		TopP:        r.TopP,
		MaxTokens:   r.MaxTokens,
	}
}

type queryResponse struct {
	Prompt   string            `json:"prompt"`
	Context  string            `json:"context"`
	Hits     []model.SearchHit `json:"hits"`
	Dropped  int               `json:"dropped"`
	Response string            `json:"response"`
}

func (h *SearchHandler) Retrieve(c *gin.Context) {
	var req retrieveRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Query) == "" {
		response.Error(c, errcode.ErrInvalid, "query is required")
		return
	}
	if req.TopK <= 0 {
		req.TopK = h.rag.TopK()
	}
	if req.TopK > maxTopK {
		req.TopK = maxTopK
	}
	res, err := h.rag.Retrieve(c.Request.Context(), req.Query, req.TopK)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, res)
}

func (h *SearchHandler) Query(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Query) == "" {
		response.Error(c, errcode.ErrInvalid, "query is required")
		return
	}
	pc, answer, err := h.rag.Query(c.Request.Context(), req.Query, req.override())
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, queryResponse{
		Prompt:   pc.Prompt,
		Context:  pc.Context,
		Hits:     pc.Hits,
		Dropped:  pc.Dropped,
		Response: answer,
	})
}

func (h *SearchHandler) Models(c *gin.Context) {
	models, err := h.rag.ListModels(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"models": models})
}
