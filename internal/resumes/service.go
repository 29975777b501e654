package resumes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"cvscanner-backend/internal/extract"
	"cvscanner-backend/internal/llm"
	"cvscanner-backend/internal/queue"
	"cvscanner-backend/internal/shared/apperr"
	"cvscanner-backend/internal/shared/metrics"
	"cvscanner-backend/internal/shared/storage/object"
	"cvscanner-backend/internal/shared/telemetry"
	"cvscanner-backend/internal/shared/util"
	"cvscanner-backend/resume/model"
	"cvscanner-backend/resume/render"
)

// DefaultMinTextLength is the shortest text worth a structuring call.
const DefaultMinTextLength = 100

const documentStampLayout = "20060102T150405.000000000Z"

// IdentityField is the template field carrying the identity on generated documents.
const IdentityField = "documentoIdentidad"

var generatedNamePattern = regexp.MustCompile(`^cv_[A-Za-z0-9._-]+\.docx$`)

// Extractor turns uploads into text.
type Extractor interface {
	Extract(ctx context.Context, in extract.Input) (extract.Result, error)
}

// DocumentRenderer binds data into a DOCX template.
type DocumentRenderer interface {
	Render(ctx context.Context, formatted model.Formatted) ([]byte, error)
	RenderData(ctx context.Context, data any) ([]byte, error)
}

// ArtifactSaver keeps audit copies of structured payloads.
type ArtifactSaver interface {
	SaveBestEffort(ctx context.Context, resumeID string, raw []byte) string
}

// Service orchestrates extraction, structuring, persistence and rendering.
type Service struct {
	Repo          Repo
	Store         object.ObjectStore
	Extractor     Extractor
	Structurer    llm.Structurer
	Renderer      DocumentRenderer
	Artifacts     ArtifactSaver
	Queue         queue.Client
	MinTextLength int
	Now           func() time.Time
}

// UploadInput is one submitted résumé.
type UploadInput struct {
	OwnerDocument string
	FileName      string
	MimeType      string
	Image         []byte
	// CombinedText is caller-extracted text; when non-blank OCR is skipped.
	CombinedText string
	// Analyze runs structuring inline after extraction.
	Analyze bool
}

// UploadResult reports the stored record and, when requested, the inline
// analysis outcome. AnalysisErr does not fail the upload.
type UploadResult struct {
	Resume           Resume
	ExtractionMethod string
	Analyzed         bool
	AnalysisErr      error
}

// GenerateInput is a fully specified document plus the identity it belongs to.
type GenerateInput struct {
	Identity  string
	Formatted model.Formatted
}

// GeneratedDocument references a file produced by Generate.
type GeneratedDocument struct {
	Name string
	Key  string
}

// Download is an open stored document.
type Download struct {
	Body        io.ReadCloser
	ContentType string
	FileName    string
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) minTextLength() int {
	if s.MinTextLength > 0 {
		return s.MinTextLength
	}
	return DefaultMinTextLength
}

// Upload stores the image, creates the record, extracts text and optionally
// structures it.
func (s *Service) Upload(ctx context.Context, in UploadInput) (UploadResult, error) {
	reqID := RequestIDFromContext(ctx)
	rec := Resume{
		OwnerDocument: strings.TrimSpace(in.OwnerDocument),
		FileName:      in.FileName,
		ImageMimeType: in.MimeType,
		Stage:         StageRaw,
		AnalysisStatus: AnalysisStatus{
			State: StatePending,
		},
	}

	if len(in.Image) > 0 && s.Store != nil {
		fileName, err := util.SanitizeFileName(in.FileName)
		if err != nil {
			fileName = util.FileLabel(in.FileName)
		}
		key, _, sniffed, err := s.Store.Save(ctx, rec.OwnerDocument, fileName, bytes.NewReader(in.Image))
		if err != nil {
			return UploadResult{}, apperr.Wrap(apperr.KindPersistenceFailed, "store upload", err)
		}
		rec.ImageKey = key
		if rec.ImageMimeType == "" {
			rec.ImageMimeType = sniffed
		}
	}

	created, err := s.Repo.Create(ctx, rec)
	if err != nil {
		return UploadResult{}, apperr.Wrap(apperr.KindPersistenceFailed, "create resume", err)
	}
	telemetry.Info("pipeline.upload.created", map[string]any{
		"request_id": reqID,
		"resume_id":  created.ID,
		"image_key":  created.ImageKey,
	})

	result, err := s.Extractor.Extract(ctx, extract.Input{
		Image:        in.Image,
		MimeType:     in.MimeType,
		FileName:     in.FileName,
		SuppliedText: in.CombinedText,
	})
	if err != nil {
		failed := s.recordExtractionFailure(ctx, created, err)
		return UploadResult{Resume: failed}, extractionError(failed.ID, err)
	}
	metrics.IncExtraction(result.Method)
	telemetry.Info("pipeline.extract.ok", map[string]any{
		"request_id": reqID,
		"resume_id":  created.ID,
		"method":     result.Method,
		"length":     utf8.RuneCountInString(result.Text),
	})

	updated, err := s.Repo.Update(ctx, created.ID, Patch{
		ExtractedText:    stringPtr(result.Text),
		ExtractionMethod: stringPtr(result.Method),
		Stage:            stagePtr(StageTextExtracted),
	})
	if err != nil {
		return UploadResult{Resume: created}, persistenceError(created.ID, "store extracted text", err)
	}

	out := UploadResult{Resume: updated, ExtractionMethod: result.Method}
	if !in.Analyze {
		return out, nil
	}
	out.Analyzed = true
	if _, err := s.analyze(ctx, updated); err != nil {
		out.AnalysisErr = err
	}
	if latest, err := s.Repo.GetByID(ctx, updated.ID); err == nil {
		out.Resume = latest
	}
	return out, nil
}

func (s *Service) recordExtractionFailure(ctx context.Context, rec Resume, cause error) Resume {
	metrics.IncExtractionFailed()
	stage := ""
	if appErr, ok := apperr.As(cause); ok {
		stage = appErr.Stage
	}
	telemetry.Error("pipeline.extract.failed", map[string]any{
		"request_id": RequestIDFromContext(ctx),
		"resume_id":  rec.ID,
		"stage":      stage,
		"error":      cause,
	})
	at := s.now()
	updated, err := s.Repo.Update(context.WithoutCancel(ctx), rec.ID, Patch{
		Stage: stagePtr(StageFailed),
		AnalysisStatus: &AnalysisStatus{
			State:   StateFailed,
			Message: cause.Error(),
			Kind:    string(apperr.KindExtractionFailed),
			At:      &at,
		},
	})
	if err != nil {
		telemetry.Error("pipeline.status.write_failed", map[string]any{
			"resume_id": rec.ID,
			"error":     err,
		})
		return rec
	}
	return updated
}

// extractionError normalizes cause into an ExtractionFailed naming the record.
func extractionError(resumeID string, cause error) error {
	out := &apperr.Error{Kind: apperr.KindExtractionFailed, Stage: apperr.StageRecognize, Message: "text extraction failed", Err: cause}
	if appErr, ok := apperr.As(cause); ok && appErr.Kind == apperr.KindExtractionFailed {
		copied := *appErr
		out = &copied
	}
	out.ResourceID = resumeID
	return out
}

// Analyze structures the stored text of record id. It never repeats OCR.
func (s *Service) Analyze(ctx context.Context, id string) (model.Formatted, error) {
	rec, err := s.load(ctx, id)
	if err != nil {
		return model.Formatted{}, err
	}
	return s.analyze(ctx, rec)
}

func (s *Service) analyze(ctx context.Context, rec Resume) (model.Formatted, error) {
	if err := s.checkTextLength(rec); err != nil {
		return model.Formatted{}, err
	}

	structurer := s.Structurer
	if structurer == nil {
		structurer = llm.PlaceholderClient{}
	}

	reqID := RequestIDFromContext(ctx)
	metrics.IncStructuringStarted()
	start := time.Now()
	out, err := structurer.Structure(ctx, rec.ExtractedText)
	metrics.ObserveStructuringDurationMs(metrics.SinceMillis(start))
	if err != nil {
		appErr := structuringError(err)
		appErr.ResourceID = rec.ID
		metrics.IncStructuringFailed(string(appErr.Kind))
		telemetry.Error("pipeline.structure.failed", map[string]any{
			"request_id": reqID,
			"resume_id":  rec.ID,
			"kind":       string(appErr.Kind),
			"field":      appErr.Field,
			"error":      err,
		})
		s.recordStructuringFailure(ctx, rec, appErr)
		return model.Formatted{}, appErr
	}

	if s.Artifacts != nil && len(out.Raw) > 0 {
		s.Artifacts.SaveBestEffort(ctx, rec.ID, out.Raw)
	}

	formatted := out.Formatted.Normalize()
	at := s.now()
	if _, err := s.Repo.Update(ctx, rec.ID, Patch{
		Stage:          stagePtr(StageAnalyzed),
		AnalysisStatus: &AnalysisStatus{State: StateDone, Message: "CV processed successfully", At: &at},
		Formatted:      &formatted,
	}); err != nil {
		return model.Formatted{}, persistenceError(rec.ID, "store structured resume", err)
	}
	metrics.IncStructuringCompleted()
	telemetry.Info("pipeline.structure.ok", map[string]any{
		"request_id": reqID,
		"resume_id":  rec.ID,
		"model":      out.Model,
	})
	return formatted, nil
}

func (s *Service) checkTextLength(rec Resume) error {
	length := utf8.RuneCountInString(rec.ExtractedText)
	if length >= s.minTextLength() {
		return nil
	}
	return &apperr.Error{
		Kind:       apperr.KindInsufficientText,
		Message:    fmt.Sprintf("resume text has %d characters; at least %d are required for analysis", length, s.minTextLength()),
		ResourceID: rec.ID,
		Minimum:    s.minTextLength(),
		Length:     length,
	}
}

// recordStructuringFailure keeps earlier structured data untouched. Without
// it the record is marked FAILED; a rate-limited record keeps its stage so
// the caller can simply retry.
func (s *Service) recordStructuringFailure(ctx context.Context, rec Resume, cause *apperr.Error) {
	if rec.Formatted != nil {
		return
	}
	stage := StageFailed
	if cause.Kind == apperr.KindStructuringRateLimited {
		stage = rec.Stage
	}
	at := s.now()
	if _, err := s.Repo.Update(context.WithoutCancel(ctx), rec.ID, Patch{
		Stage: stagePtr(stage),
		AnalysisStatus: &AnalysisStatus{
			State:   StateFailed,
			Message: cause.Error(),
			Kind:    string(cause.Kind),
			At:      &at,
		},
	}); err != nil {
		telemetry.Error("pipeline.status.write_failed", map[string]any{
			"resume_id": rec.ID,
			"error":     err,
		})
	}
}

func structuringError(err error) *apperr.Error {
	if appErr, ok := apperr.As(err); ok && apperr.IsStructuring(appErr.Kind) {
		copied := *appErr
		return &copied
	}
	return apperr.Wrap(apperr.KindStructuringFailed, "structuring failed", err)
}

// Enqueue validates the record and queues an asynchronous analyze job.
func (s *Service) Enqueue(ctx context.Context, id string) error {
	if s.Queue == nil {
		return ErrJobQueueNotConfigured
	}
	rec, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := s.checkTextLength(rec); err != nil {
		return err
	}
	msg := queue.Message{
		ResumeID:   rec.ID,
		RequestID:  RequestIDFromContext(ctx),
		EnqueuedAt: s.now().Format(time.RFC3339),
		Version:    queue.MessageVersion,
	}
	if err := s.Queue.Send(ctx, msg); err != nil {
		return apperr.Wrap(apperr.KindPersistenceFailed, "enqueue analyze job", err)
	}
	telemetry.Info("pipeline.analyze.enqueued", map[string]any{
		"request_id": msg.RequestID,
		"resume_id":  rec.ID,
	})
	return nil
}

// GetAnalysis returns the record when it has structured data.
func (s *Service) GetAnalysis(ctx context.Context, id string) (Resume, error) {
	rec, err := s.load(ctx, id)
	if err != nil {
		return Resume{}, err
	}
	if rec.Formatted == nil {
		return Resume{}, &apperr.Error{Kind: apperr.KindRecordNotFound, Message: "resume has not been analyzed", ResourceID: id}
	}
	return rec, nil
}

// Get returns one record.
func (s *Service) Get(ctx context.Context, id string) (Resume, error) {
	return s.load(ctx, id)
}

// List returns records newest first.
func (s *Service) List(ctx context.Context, limit, offset int) ([]Resume, error) {
	list, err := s.Repo.List(ctx, limit, offset)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistenceFailed, "list resumes", err)
	}
	return list, nil
}

// RenderResume renders the record's structured data and records the document.
func (s *Service) RenderResume(ctx context.Context, id string) (Resume, error) {
	rec, err := s.load(ctx, id)
	if err != nil {
		return Resume{}, err
	}
	if rec.Formatted == nil {
		return Resume{}, &apperr.Error{Kind: apperr.KindRecordNotFound, Message: "resume has not been analyzed", ResourceID: id}
	}

	docx, err := s.Renderer.Render(ctx, *rec.Formatted)
	if err != nil {
		return Resume{}, s.renderFailure(ctx, rec.ID, err)
	}

	key := fmt.Sprintf("documents/%s/cv_%s_%s.docx", util.FileLabel(rec.ID), util.FileLabel(rec.OwnerDocument), s.now().Format(documentStampLayout))
	if _, err := s.Store.SaveWithKey(ctx, key, render.ContentType, bytes.NewReader(docx)); err != nil {
		return Resume{}, persistenceError(rec.ID, "store rendered document", err)
	}

	updated, err := s.Repo.Update(ctx, rec.ID, Patch{
		GeneratedDocumentPath: stringPtr(key),
		Stage:                 stagePtr(StageRendered),
	})
	if err != nil {
		return Resume{}, persistenceError(rec.ID, "record rendered document", err)
	}
	metrics.IncRender()
	telemetry.Info("pipeline.render.ok", map[string]any{
		"request_id": RequestIDFromContext(ctx),
		"resume_id":  rec.ID,
		"key":        key,
		"bytes":      len(docx),
	})
	return updated, nil
}

// Generate renders an arbitrary structured document for identity.
func (s *Service) Generate(ctx context.Context, in GenerateInput) (GeneratedDocument, error) {
	identity := strings.TrimSpace(in.Identity)
	if identity == "" {
		return GeneratedDocument{}, ErrIdentityRequired
	}

	data, err := generateData(in.Formatted, identity)
	if err != nil {
		return GeneratedDocument{}, apperr.Wrap(apperr.KindRenderFailed, "prepare document data", err)
	}
	docx, err := s.Renderer.RenderData(ctx, data)
	if err != nil {
		return GeneratedDocument{}, s.renderFailure(ctx, "", err)
	}

	name := fmt.Sprintf("cv_%s_%s.docx", util.FileLabel(identity), s.now().Format(documentStampLayout))
	key := "generated/" + name
	if _, err := s.Store.SaveWithKey(ctx, key, render.ContentType, bytes.NewReader(docx)); err != nil {
		return GeneratedDocument{}, apperr.Wrap(apperr.KindPersistenceFailed, "store generated document", err)
	}
	metrics.IncRender()
	telemetry.Info("pipeline.generate.ok", map[string]any{
		"request_id": RequestIDFromContext(ctx),
		"key":        key,
	})
	return GeneratedDocument{Name: name, Key: key}, nil
}

func generateData(formatted model.Formatted, identity string) (map[string]any, error) {
	payload, err := json.Marshal(formatted.Normalize())
	if err != nil {
		return nil, err
	}
	data := map[string]any{}
	if err := json.Unmarshal(payload, &data); err != nil {
		return nil, err
	}
	data[IdentityField] = identity
	return data, nil
}

func (s *Service) renderFailure(ctx context.Context, resumeID string, err error) error {
	metrics.IncRenderFailed()
	telemetry.Error("pipeline.render.failed", map[string]any{
		"request_id": RequestIDFromContext(ctx),
		"resume_id":  resumeID,
		"field":      render.FieldOf(err),
		"error":      err,
	})
	if apperr.Is(err, apperr.KindRenderFailed) {
		return err
	}
	return apperr.Wrap(apperr.KindRenderFailed, "render document", err)
}

// OpenDocument opens the record's generated document for download.
func (s *Service) OpenDocument(ctx context.Context, id string) (Download, error) {
	rec, err := s.load(ctx, id)
	if err != nil {
		return Download{}, err
	}
	if rec.GeneratedDocumentPath == "" {
		return Download{}, &apperr.Error{Kind: apperr.KindRecordNotFound, Message: "no document has been generated for this resume", ResourceID: id}
	}
	body, err := s.openObject(ctx, rec.GeneratedDocumentPath, id)
	if err != nil {
		return Download{}, err
	}
	return Download{
		Body:        body,
		ContentType: render.ContentType,
		FileName:    "cv_" + util.FileLabel(rec.OwnerDocument) + ".docx",
	}, nil
}

// OpenGenerated opens a document produced by Generate.
func (s *Service) OpenGenerated(ctx context.Context, name string) (Download, error) {
	if !generatedNamePattern.MatchString(name) || strings.Contains(name, "..") {
		return Download{}, &apperr.Error{Kind: apperr.KindRecordNotFound, Message: "document not found"}
	}
	body, err := s.openObject(ctx, "generated/"+name, "")
	if err != nil {
		return Download{}, err
	}
	return Download{Body: body, ContentType: render.ContentType, FileName: name}, nil
}

func (s *Service) openObject(ctx context.Context, key, resumeID string) (io.ReadCloser, error) {
	body, err := s.Store.Open(ctx, key)
	if err != nil {
		if errors.Is(err, object.ErrNotFound) {
			return nil, &apperr.Error{Kind: apperr.KindRecordNotFound, Message: "document file is missing", ResourceID: resumeID, Err: err}
		}
		return nil, apperr.Wrap(apperr.KindPersistenceFailed, "open document", err)
	}
	return body, nil
}

func (s *Service) load(ctx context.Context, id string) (Resume, error) {
	rec, err := s.Repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Resume{}, &apperr.Error{Kind: apperr.KindRecordNotFound, Message: "resume not found", ResourceID: id, Err: err}
		}
		return Resume{}, persistenceError(id, "load resume", err)
	}
	return rec, nil
}

func persistenceError(id, message string, err error) error {
	return &apperr.Error{Kind: apperr.KindPersistenceFailed, Message: message, ResourceID: id, Err: err}
}
