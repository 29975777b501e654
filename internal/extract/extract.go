package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"path/filepath"
	"strings"

	// Scanner and phone formats beyond the stdlib decoders.
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"cvscanner-backend/internal/shared/apperr"
)

// Extraction methods reported in Result.Method.
const (
	MethodSupplied = "supplied"
	MethodOCR      = "ocr"
	MethodPDFText  = "pdf-text"
	MethodDOCXText = "docx-text"
)

const (
	mimePDF  = "application/pdf"
	mimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// Input is one extraction request.
type Input struct {
	Image    []byte
	MimeType string
	FileName string
	// SuppliedText, when non-blank, is used verbatim and OCR is skipped.
	SuppliedText string
}

// Result is the extracted text and how it was obtained.
type Result struct {
	Text     string
	Method   string
	Language string
}

// Extractor turns uploads into plain text. It never retries and has no side effects.
type Extractor struct {
	Engine   Engine
	Language string
}

// New returns an Extractor using engine with a single fixed OCR locale.
func New(engine Engine, language string) *Extractor {
	if strings.TrimSpace(language) == "" {
		language = "spa"
	}
	return &Extractor{Engine: engine, Language: language}
}

// Extract returns the text for in. Failures are apperr ExtractionFailed errors
// whose Stage is "decode" or "recognize".
func (e *Extractor) Extract(ctx context.Context, in Input) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if strings.TrimSpace(in.SuppliedText) != "" {
		return Result{Text: in.SuppliedText, Method: MethodSupplied}, nil
	}
	if len(in.Image) == 0 {
		return Result{}, extractionFailed(apperr.StageDecode, "upload is empty", nil)
	}

	switch detectKind(in.MimeType, in.FileName, in.Image) {
	case mimePDF:
		text, err := extractPDF(in.Image)
		if err != nil {
			return Result{}, extractionFailed(apperr.StageDecode, "read pdf text layer", err)
		}
		return textResult(normalizeText(text), MethodPDFText, "")
	case mimeDOCX:
		text, err := extractDOCX(in.Image)
		if err != nil {
			return Result{}, extractionFailed(apperr.StageDecode, "read docx text", err)
		}
		return textResult(normalizeText(text), MethodDOCXText, "")
	}

	if _, _, err := image.DecodeConfig(bytes.NewReader(in.Image)); err != nil {
		return Result{}, extractionFailed(apperr.StageDecode, "decode image", err)
	}
	if e.Engine == nil {
		return Result{}, extractionFailed(apperr.StageRecognize, "no OCR engine configured", nil)
	}

	raw, err := e.Engine.Recognize(ctx, in.Image, e.Language)
	if err != nil {
		stage := apperr.StageRecognize
		if errors.Is(err, ErrImageDecode) {
			stage = apperr.StageDecode
		}
		return Result{}, extractionFailed(stage, "ocr failed", err)
	}
	return textResult(normalizeText(raw), MethodOCR, e.Language)
}

func textResult(text, method, language string) (Result, error) {
	if text == "" {
		stage := apperr.StageRecognize
		if method != MethodOCR {
			stage = apperr.StageDecode
		}
		return Result{}, extractionFailed(stage, fmt.Sprintf("no text found (%s)", method), nil)
	}
	return Result{Text: text, Method: method, Language: language}, nil
}

func extractionFailed(stage, message string, cause error) error {
	return &apperr.Error{
		Kind:    apperr.KindExtractionFailed,
		Stage:   stage,
		Message: message,
		Err:     cause,
	}
}

// detectKind classifies the upload as pdf, docx or (by default) image.
func detectKind(mimeType, fileName string, data []byte) string {
	clean := strings.ToLower(strings.TrimSpace(strings.Split(mimeType, ";")[0]))
	ext := strings.ToLower(filepath.Ext(fileName))

	if clean == mimePDF || ext == ".pdf" || bytes.HasPrefix(data, []byte("%PDF-")) {
		return mimePDF
	}
	if clean == mimeDOCX || ext == ".docx" {
		return mimeDOCX
	}
	sniffed := http.DetectContentType(data)
	if sniffed == "application/zip" && isDOCX(data) {
		return mimeDOCX
	}
	return "image"
}
