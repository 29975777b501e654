package render

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"cvscanner-backend/internal/shared/apperr"
	"cvscanner-backend/resume/model"
)

// ContentType is the MIME type of rendered documents.
const ContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

var templatedPartPattern = regexp.MustCompile(`^word/(document|header[0-9]*|footer[0-9]*)\.xml$`)

// Renderer binds structured résumés into a DOCX template.
type Renderer struct {
	// TemplatePath points at a .docx template; empty uses DefaultTemplate.
	TemplatePath string
}

// New returns a Renderer for the given template path.
func New(templatePath string) *Renderer {
	return &Renderer{TemplatePath: strings.TrimSpace(templatePath)}
}

// Render binds a Formatted résumé. The same input and template always yield the same bytes.
func (r *Renderer) Render(ctx context.Context, formatted model.Formatted) ([]byte, error) {
	return r.RenderData(ctx, formatted.Normalize())
}

// RenderData binds any JSON-shaped value into the template.
func (r *Renderer) RenderData(ctx context.Context, data any) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tpl, err := r.template()
	if err != nil {
		return nil, err
	}
	return RenderTemplate(tpl, data)
}

func (r *Renderer) template() ([]byte, error) {
	if r == nil || r.TemplatePath == "" {
		return DefaultTemplate()
	}
	tpl, err := os.ReadFile(filepath.Clean(r.TemplatePath))
	if err != nil {
		return nil, renderFailed("", "load template", err)
	}
	return tpl, nil
}

// RenderTemplate binds data into the given template bytes.
func RenderTemplate(tpl []byte, data any) ([]byte, error) {
	values, err := toData(data)
	if err != nil {
		return nil, err
	}

	reader, err := zip.NewReader(bytes.NewReader(tpl), int64(len(tpl)))
	if err != nil {
		return nil, renderFailed("", "template is not a valid docx archive", err)
	}
	if !hasDocumentPart(reader) {
		return nil, renderFailed("", "template has no word/document.xml", nil)
	}

	var output bytes.Buffer
	writer := zip.NewWriter(&output)

	for _, file := range reader.File {
		content, err := readZipFile(file)
		if err != nil {
			return nil, renderFailed("", "read template part "+file.Name, err)
		}
		if templatedPartPattern.MatchString(normalizeZipName(file.Name)) {
			rendered, err := renderPart(string(content), values)
			if err != nil {
				return nil, err
			}
			content = []byte(rendered)
		}
		if err := writeZipFile(writer, file, content); err != nil {
			return nil, renderFailed("", "write document part "+file.Name, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, renderFailed("", "finalize document", err)
	}
	return output.Bytes(), nil
}

func toData(data any) (map[string]any, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, renderFailed("", "encode template data", err)
	}
	var values map[string]any
	if err := json.Unmarshal(raw, &values); err != nil || values == nil {
		return nil, renderFailed("", "template data must be an object", err)
	}
	return values, nil
}

// zeroItems maps each list field of the résumé schema to an empty element,
// used to check loop bodies when the data has no items.
var zeroItems = func() map[string]any {
	sample := model.Formatted{
		Expertise:       []string{""},
		KeyAchievements: []string{""},
		Experience:      []model.Experience{{Responsibilities: []string{""}}},
		Education:       []model.Education{{}},
		Languages:       []string{""},
		Certifications:  []string{""},
		Awards:          []string{""},
	}
	out := map[string]any{}
	values, err := toData(sample)
	if err != nil {
		return out
	}
	collectZeroItems(values, out)
	return out
}()

func collectZeroItems(v any, out map[string]any) {
	m, ok := v.(map[string]any)
	if !ok {
		return
	}
	for key, child := range m {
		switch c := child.(type) {
		case []any:
			if len(c) == 0 {
				continue
			}
			if _, seen := out[key]; !seen {
				out[key] = c[0]
			}
			collectZeroItems(c[0], out)
		case map[string]any:
			collectZeroItems(c, out)
		}
	}
}

func hasDocumentPart(reader *zip.Reader) bool {
	for _, file := range reader.File {
		if normalizeZipName(file.Name) == "word/document.xml" {
			return true
		}
	}
	return false
}

func readZipFile(file *zip.File) ([]byte, error) {
	rc, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	return io.ReadAll(rc)
}

// writeZipFile keeps the template's entry order, method and modification time
// so output bytes depend only on the template and the data.
func writeZipFile(writer *zip.Writer, source *zip.File, content []byte) error {
	method := source.Method
	if method != zip.Store && method != zip.Deflate {
		method = zip.Deflate
	}
	header := &zip.FileHeader{
		Name:     normalizeZipName(source.Name),
		Method:   method,
		Modified: source.Modified,
	}
	dst, err := writer.CreateHeader(header)
	if err != nil {
		return err
	}
	_, err = dst.Write(content)
	return err
}

func normalizeZipName(name string) string {
	return strings.ReplaceAll(name, "\\", "/")
}

func renderFailed(field, message string, cause error) error {
	return &apperr.Error{Kind: apperr.KindRenderFailed, Message: message, Field: field, Err: cause}
}

// FieldOf returns the template field a render error points at, if any.
func FieldOf(err error) string {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return appErr.Field
	}
	return ""
}
