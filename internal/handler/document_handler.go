package handler

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/docfinder/internal/filestore"
	"github.com/xxxsen/docfinder/internal/loader"
	"github.com/xxxsen/docfinder/internal/model"
	"github.com/xxxsen/docfinder/internal/pkg/errcode"
	"github.com/xxxsen/docfinder/internal/pkg/response"
	"github.com/xxxsen/docfinder/internal/service"
)

type DocumentHandler struct {
	rag       *service.RAGService
	store     filestore.Store
	uploadMax int64
}

func NewDocumentHandler(rag *service.RAGService, store filestore.Store, uploadMax int64) *DocumentHandler {
	return &DocumentHandler{rag: rag, store: store, uploadMax: uploadMax}
}

type ingestRequest struct {
	Documents []model.Document `json:"documents"`
	ChunkSize int              `json:"chunk_size"`
	Overlap   int              `json:"overlap"`
}

type uploadResponse struct {
	Key    string                `json:"key"`
	Report *service.IngestReport `json:"report"`
}

func (h *DocumentHandler) Ingest(c *gin.Context) {
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	if len(req.Documents) == 0 {
		response.Error(c, errcode.ErrInvalid, "documents are required")
		return
	}
	report, err := h.rag.Ingest(c.Request.Context(), req.Documents, req.ChunkSize, req.Overlap)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, report)
}

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func buildFileKey(filename string) string {
	name := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	name = unsafeKeyChars.ReplaceAllString(name, "_")
	return strings.TrimLeft(name, ".")
}

// Upload stores one .txt or .md file and ingests it with the configured chunking.
func (h *DocumentHandler) Upload(c *gin.Context) {
	if h.store == nil {
		response.Error(c, errcode.ErrUploadFailed, "file store not configured")
		return
	}
	file, err := c.FormFile("file")
	if err != nil {
		response.Error(c, errcode.ErrInvalidFile, "file is required")
		return
	}
	if h.uploadMax > 0 && file.Size > h.uploadMax {
		response.Error(c, errcode.ErrInvalidFile, fmt.Sprintf("file exceeds %s", formatUploadLimit(h.uploadMax)))
		return
	}
	key := buildFileKey(file.Filename)
	if key == "" || !loader.Supported(key) {
		response.Error(c, errcode.ErrInvalidFile, "only .txt and .md files are accepted")
		return
	}
	opened, err := file.Open()
	if err != nil {
		response.Error(c, errcode.ErrInvalidFile, "failed to open file")
		return
	}
	defer opened.Close()
	ctx := c.Request.Context()
	if err := h.store.Save(ctx, key, opened, file.Size); err != nil {
		handleError(c, fmt.Errorf("save upload: %w", err))
		return
	}
	doc, err := loader.LoadObject(ctx, h.store, key)
	if err != nil {
		handleError(c, err)
		return
	}
	report, err := h.rag.Ingest(ctx, []model.Document{doc}, 0, 0)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, uploadResponse{Key: key, Report: report})
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	id := strings.TrimPrefix(c.Param("id"), "/")
	removed, err := h.rag.DeleteDocument(c.Request.Context(), id)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"document_id": id, "removed": removed})
}

func (h *DocumentHandler) Collection(c *gin.Context) {
	info, err := h.rag.Collection(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, info)
}
