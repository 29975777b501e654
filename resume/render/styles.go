package render

import (
	"strconv"
	"strings"
)

// RunStyle captures the inline run formatting used by the built-in template.
type RunStyle struct {
	Bold   bool
	Italic bool
	Size   int
	Color  string
}

const (
	HeadingColor = "1F2937"
	NameColor    = "111111"
	MetaColor    = "4B5563"
	HeadingSize  = 24
	NameSize     = 32
)

// StyleMap centralizes the formatting for key résumé elements.
var StyleMap = map[string]RunStyle{
	"name": {
		Bold:  true,
		Size:  NameSize,
		Color: NameColor,
	},
	"sectionHeading": {
		Bold:  true,
		Size:  HeadingSize,
		Color: HeadingColor,
	},
	"roleLine": {
		Bold: true,
	},
	"meta": {
		Italic: true,
		Color:  MetaColor,
	},
}

// runProperties renders a <w:rPr> element in schema order (b, i, color, sz).
func (s RunStyle) runProperties() string {
	var b strings.Builder
	if s.Bold {
		b.WriteString("<w:b/>")
	}
	if s.Italic {
		b.WriteString("<w:i/>")
	}
	if s.Color != "" {
		b.WriteString(`<w:color w:val="` + s.Color + `"/>`)
	}
	if s.Size > 0 {
		b.WriteString(`<w:sz w:val="` + strconv.Itoa(s.Size) + `"/>`)
	}
	if b.Len() == 0 {
		return ""
	}
	return "<w:rPr>" + b.String() + "</w:rPr>"
}
