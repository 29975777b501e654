package render

import (
	"archive/zip"
	"bytes"
	"strings"
	"sync"
	"time"
)

// templateModTime stamps every entry of the built-in template.
var templateModTime = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

const contentTypesXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"><Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/><Default Extension="xml" ContentType="application/xml"/><Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/></Types>`

const rootRelsXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"><Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/></Relationships>`

const documentOpen = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`

const documentClose = `<w:sectPr><w:pgSz w:w="11906" w:h="16838"/><w:pgMar w:top="1134" w:right="1134" w:bottom="1134" w:left="1134" w:header="708" w:footer="708" w:gutter="0"/></w:sectPr></w:body></w:document>`

var (
	defaultTemplateOnce  sync.Once
	defaultTemplateBytes []byte
	defaultTemplateErr   error
)

// DefaultTemplate returns the built-in résumé template. It is generated in
// code with fixed timestamps, so it is byte-stable across runs.
func DefaultTemplate() ([]byte, error) {
	defaultTemplateOnce.Do(func() {
		defaultTemplateBytes, defaultTemplateErr = PackDocx(DefaultDocumentXML())
	})
	if defaultTemplateErr != nil {
		return nil, renderFailed("", "build default template", defaultTemplateErr)
	}
	return defaultTemplateBytes, nil
}

// DefaultDocumentXML is the word/document.xml of the built-in template.
func DefaultDocumentXML() string {
	var b strings.Builder
	b.WriteString(documentOpen)

	para(&b, "name", "{{fullName}}")
	para(&b, "meta", "{{profession}}")
	para(&b, "meta", "{{contact.email}}")
	para(&b, "meta", "{{contact.address}}")
	para(&b, "meta", "{{contact.website}}")

	para(&b, "sectionHeading", "Perfil profesional")
	para(&b, "", "{{summary}}")

	listSection(&b, "Áreas de experticia", "expertise")
	listSection(&b, "Logros clave", "keyAchievements")

	para(&b, "sectionHeading", "Experiencia")
	para(&b, "", "{{#experience}}")
	para(&b, "roleLine", "{{jobTitle}} | {{company}}")
	para(&b, "meta", "{{startDate}} - {{endDate}}")
	para(&b, "", "{{#responsibilities}}")
	para(&b, "", "• {{.}}")
	para(&b, "", "{{/responsibilities}}")
	para(&b, "", "{{/experience}}")

	para(&b, "sectionHeading", "Educación")
	para(&b, "", "{{#education}}")
	para(&b, "roleLine", "{{degree}} | {{institution}}")
	para(&b, "meta", "{{startDate}} - {{endDate}}")
	para(&b, "", "{{details}}")
	para(&b, "", "{{/education}}")

	listSection(&b, "Idiomas", "languages")
	listSection(&b, "Certificaciones", "certifications")
	listSection(&b, "Reconocimientos", "awards")

	b.WriteString(documentClose)
	return b.String()
}

func listSection(b *strings.Builder, heading, field string) {
	para(b, "sectionHeading", heading)
	para(b, "", "{{#"+field+"}}")
	para(b, "", "• {{.}}")
	para(b, "", "{{/"+field+"}}")
}

func para(b *strings.Builder, style, text string) {
	b.WriteString("<w:p><w:r>")
	if s, ok := StyleMap[style]; ok {
		b.WriteString(s.runProperties())
	}
	b.WriteString(`<w:t xml:space="preserve">`)
	b.WriteString(escapeText(text))
	b.WriteString("</w:t></w:r></w:p>")
}

// PackDocx wraps a document.xml body into a minimal DOCX package.
func PackDocx(documentXML string) ([]byte, error) {
	parts := []struct {
		name string
		body string
	}{
		{"[Content_Types].xml", contentTypesXML},
		{"_rels/.rels", rootRelsXML},
		{"word/document.xml", documentXML},
	}

	var buf bytes.Buffer
	writer := zip.NewWriter(&buf)
	for _, part := range parts {
		dst, err := writer.CreateHeader(&zip.FileHeader{
			Name:     part.name,
			Method:   zip.Deflate,
			Modified: templateModTime,
		})
		if err != nil {
			return nil, err
		}
		if _, err := dst.Write([]byte(part.body)); err != nil {
			return nil, err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
