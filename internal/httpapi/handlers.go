package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/fyrsmithlabs/chartd/internal/document"
	"github.com/fyrsmithlabs/chartd/internal/ranker"
	"github.com/fyrsmithlabs/chartd/internal/retrieval"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// IngestRequest is the body for POST /api/v1/documents. Text is the
// extracted document text; extraction itself happens upstream. Posting
// an existing document ID reprocesses that document with the new text.
type IngestRequest struct {
	DocumentID string   `json:"document_id"`
	Filename   string   `json:"filename"`
	Categories []string `json:"categories"`
	TotalPages int      `json:"total_pages"`
	Text       string   `json:"text"`
}

// ContextRequest is the body for POST /api/v1/context. Embedding, when
// present, is used as the query vector instead of embedding Query
// server-side.
type ContextRequest struct {
	Query          string     `json:"query"`
	Embedding      []float32  `json:"embedding,omitempty"`
	Categories     []string   `json:"categories,omitempty"`
	UploadedAfter  *time.Time `json:"uploaded_after,omitempty"`
	UploadedBefore *time.Time `json:"uploaded_before,omitempty"`
}

// HealthResponse is the body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleIngestDocument(c echo.Context) error {
	var req IngestRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx := c.Request().Context()

	if req.DocumentID == "" {
		req.DocumentID = uuid.NewString()
	}

	if _, err := s.docs.Get(ctx, req.DocumentID); err != nil {
		if !errors.Is(err, document.ErrNotFound) {
			return echo.NewHTTPError(http.StatusInternalServerError, "loading document failed")
		}
		if req.Filename == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "filename is required")
		}
		doc := &document.Document{
			ID:         req.DocumentID,
			Filename:   req.Filename,
			Categories: req.Categories,
			TotalPages: req.TotalPages,
			UploadedAt: time.Now().UTC(),
			Status:     document.StatusPending,
		}
		if err := s.docs.Put(ctx, doc); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "registering document failed")
		}
	}

	result, err := s.pipeline.Process(ctx, req.DocumentID, req.Text)
	if err != nil {
		s.logger.Warn("document processing failed",
			zap.String("document_id", req.DocumentID),
			zap.Error(err),
		)
		if result != nil {
			// Processing ran but did not reach the embed threshold. The
			// partial report tells the caller what failed.
			return c.JSON(http.StatusUnprocessableEntity, result)
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "document processing failed")
	}

	return c.JSON(http.StatusCreated, result)
}

func (s *Server) handleListDocuments(c echo.Context) error {
	docs, err := s.docs.List(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "listing documents failed")
	}
	return c.JSON(http.StatusOK, docs)
}

func (s *Server) handleGetDocument(c echo.Context) error {
	doc, err := s.docs.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, document.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "document not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "loading document failed")
	}
	return c.JSON(http.StatusOK, doc)
}

func (s *Server) handleDeleteDocument(c echo.Context) error {
	err := s.pipeline.Remove(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, document.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "document not found")
		}
		s.logger.Error("document removal failed",
			zap.String("document_id", c.Param("id")),
			zap.Error(err),
		)
		return echo.NewHTTPError(http.StatusInternalServerError, "document removal failed")
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleGetContext(c echo.Context) error {
	var req ContextRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	filters := ranker.Filters{Categories: req.Categories}
	if req.UploadedAfter != nil {
		filters.UploadedAfter = *req.UploadedAfter
	}
	if req.UploadedBefore != nil {
		filters.UploadedBefore = *req.UploadedBefore
	}

	result, err := s.retriever.GetContext(c.Request().Context(), req.Query, req.Embedding, filters)
	if err != nil {
		if errors.Is(err, retrieval.ErrEmptyQuery) {
			return echo.NewHTTPError(http.StatusBadRequest, "query is required")
		}
		s.logger.Error("context query failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "context query failed")
	}

	return c.JSON(http.StatusOK, result)
}
