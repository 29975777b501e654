package resumes

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"cvscanner-backend/internal/shared/apperr"
	"cvscanner-backend/internal/shared/server/middleware"
	"cvscanner-backend/internal/shared/server/respond"
	"cvscanner-backend/resume/model"
)

// Handler wires HTTP handlers to the résumé pipeline.
type Handler struct {
	Svc            *Service
	MaxUploadBytes int64
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service, maxUploadBytes int64) *Handler {
	return &Handler{Svc: svc, MaxUploadBytes: maxUploadBytes}
}

// RegisterRoutes attaches résumé and document routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/resumes/upload", h.upload)
	rg.GET("/resumes", h.list)
	rg.GET("/resumes/:id", h.get)
	rg.POST("/resumes/:id/analyze", h.analyze)
	rg.GET("/resumes/:id/analysis", h.getAnalysis)
	rg.POST("/resumes/:id/render", h.render)
	rg.GET("/resumes/:id/download", h.download)
	rg.POST("/documents/generate", h.generate)
	rg.GET("/documents/:name", h.downloadGenerated)
}

func requestContext(c *gin.Context) context.Context {
	return WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))
}

func (h *Handler) upload(c *gin.Context) {
	if h.MaxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.MaxUploadBytes)
	}
	fileHeader, err := c.FormFile("image")
	if err != nil {
		if isTooLarge(err) {
			respond.Error(c, http.StatusRequestEntityTooLarge, "file_too_large", "upload exceeds the size limit", gin.H{"maxBytes": h.MaxUploadBytes})
			return
		}
		respond.Error(c, http.StatusBadRequest, "validation_error", "image file is required", []map[string]string{
			{"field": "image", "issue": "required"},
		})
		return
	}

	owner := strings.TrimSpace(c.PostForm("ownerDocument"))
	if owner == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "ownerDocument is required", []map[string]string{
			{"field": "ownerDocument", "issue": "required"},
		})
		return
	}

	analyze := true
	if raw := strings.TrimSpace(c.PostForm("analyze")); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			respond.Error(c, http.StatusBadRequest, "validation_error", "analyze must be a boolean", []map[string]string{
				{"field": "analyze", "issue": "invalid"},
			})
			return
		}
		analyze = parsed
	}

	file, err := fileHeader.Open()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "image could not be read", nil)
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		if isTooLarge(err) {
			respond.Error(c, http.StatusRequestEntityTooLarge, "file_too_large", "upload exceeds the size limit", gin.H{"maxBytes": h.MaxUploadBytes})
			return
		}
		respond.Error(c, http.StatusBadRequest, "validation_error", "image could not be read", nil)
		return
	}

	result, err := h.Svc.Upload(requestContext(c), UploadInput{
		OwnerDocument: owner,
		FileName:      fileHeader.Filename,
		MimeType:      fileHeader.Header.Get("Content-Type"),
		Image:         data,
		CombinedText:  c.PostForm("combinedText"),
		Analyze:       analyze,
	})
	if result.Resume.ID != "" {
		c.Set(middleware.ResumeIDKey, result.Resume.ID)
	}
	if err != nil {
		respond.Failure(c, err)
		return
	}

	respond.JSON(c, http.StatusCreated, gin.H{
		"resume":     result.Resume,
		"extraction": gin.H{"method": result.ExtractionMethod},
		"analysis":   analysisOutcome(c, result),
	})
}

// outcomeSkipped reports an inline analysis rejected before the AI call.
const outcomeSkipped = "SKIPPED"

func analysisOutcome(c *gin.Context, result UploadResult) gin.H {
	out := gin.H{"status": result.Resume.AnalysisStatus.State}
	if !result.Analyzed {
		return out
	}
	if result.AnalysisErr != nil {
		d := respond.Describe(result.AnalysisErr)
		respond.LogFailure("upload.analysis.failed", result.AnalysisErr, d, map[string]any{
			"request_id": middleware.RequestIDFromContext(c),
			"resume_id":  result.Resume.ID,
		})
		out["status"] = StateFailed
		if d.Kind == apperr.KindInsufficientText {
			out["status"] = outcomeSkipped
		}
		out["kind"] = d.Kind
		out["code"] = d.Code
		out["message"] = d.Message
		out["httpStatus"] = d.Status
		if d.Details != nil {
			out["details"] = d.Details
		}
		return out
	}
	out["status"] = StateDone
	if result.Resume.Formatted != nil {
		out["formatted"] = result.Resume.Formatted
	}
	return out
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return true
	}
	return strings.Contains(err.Error(), "request body too large")
}

func (h *Handler) list(c *gin.Context) {
	limit := 20
	offset := 0
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			offset = parsed
		}
	}
	if offset < 0 {
		offset = 0
	}

	list, err := h.Svc.List(requestContext(c), limit, offset)
	if err != nil {
		respond.Failure(c, err)
		return
	}
	respond.OK(c, gin.H{"items": list, "limit": limit, "offset": offset})
}

func (h *Handler) get(c *gin.Context) {
	id := c.Param("id")
	c.Set(middleware.ResumeIDKey, id)
	rec, err := h.Svc.Get(requestContext(c), id)
	if err != nil {
		respond.Failure(c, err)
		return
	}
	respond.OK(c, rec)
}

func (h *Handler) analyze(c *gin.Context) {
	id := c.Param("id")
	c.Set(middleware.ResumeIDKey, id)
	ctx := requestContext(c)

	if async, _ := strconv.ParseBool(c.Query("async")); async {
		if err := h.Svc.Enqueue(ctx, id); err != nil {
			if errors.Is(err, ErrJobQueueNotConfigured) {
				respond.Error(c, http.StatusServiceUnavailable, "queue_unavailable", "asynchronous analysis is not configured", nil)
				return
			}
			respond.Failure(c, err)
			return
		}
		respond.JSON(c, http.StatusAccepted, gin.H{"resumeId": id, "status": "QUEUED"})
		return
	}

	formatted, err := h.Svc.Analyze(ctx, id)
	if err != nil {
		respond.Failure(c, err)
		return
	}
	respond.OK(c, gin.H{
		"message":   "Resume analyzed successfully",
		"resumeId":  id,
		"formatted": formatted,
	})
}

func (h *Handler) getAnalysis(c *gin.Context) {
	id := c.Param("id")
	c.Set(middleware.ResumeIDKey, id)
	rec, err := h.Svc.GetAnalysis(requestContext(c), id)
	if err != nil {
		respond.Failure(c, err)
		return
	}
	respond.OK(c, gin.H{
		"resumeId":       rec.ID,
		"formatted":      rec.Formatted,
		"analysisStatus": rec.AnalysisStatus,
	})
}

func (h *Handler) render(c *gin.Context) {
	id := c.Param("id")
	c.Set(middleware.ResumeIDKey, id)
	rec, err := h.Svc.RenderResume(requestContext(c), id)
	if err != nil {
		respond.Failure(c, err)
		return
	}
	respond.OK(c, gin.H{
		"resumeId":              rec.ID,
		"generatedDocumentPath": rec.GeneratedDocumentPath,
	})
}

func (h *Handler) download(c *gin.Context) {
	id := c.Param("id")
	c.Set(middleware.ResumeIDKey, id)
	dl, err := h.Svc.OpenDocument(requestContext(c), id)
	if err != nil {
		respond.Failure(c, err)
		return
	}
	stream(c, dl)
}

type generateRequest struct {
	DocumentoIdentidad string `json:"documentoIdentidad"`
	model.Formatted
}

func (h *Handler) generate(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid JSON body", nil)
		return
	}
	doc, err := h.Svc.Generate(requestContext(c), GenerateInput{
		Identity:  req.DocumentoIdentidad,
		Formatted: req.Formatted,
	})
	if err != nil {
		if errors.Is(err, ErrIdentityRequired) {
			respond.Error(c, http.StatusBadRequest, "validation_error", "documentoIdentidad is required", []map[string]string{
				{"field": IdentityField, "issue": "required"},
			})
			return
		}
		respond.Failure(c, err)
		return
	}
	respond.OK(c, gin.H{
		"message": "Document generated successfully",
		"file":    doc.Name,
	})
}

func (h *Handler) downloadGenerated(c *gin.Context) {
	dl, err := h.Svc.OpenGenerated(requestContext(c), c.Param("name"))
	if err != nil {
		respond.Failure(c, err)
		return
	}
	stream(c, dl)
}

func stream(c *gin.Context, dl Download) {
	defer dl.Body.Close()
	c.DataFromReader(http.StatusOK, -1, dl.ContentType, dl.Body, map[string]string{
		"Content-Disposition": fmt.Sprintf(`attachment; filename="%s"`, dl.FileName),
	})
}
