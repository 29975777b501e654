package render

import (
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"
)

var (
	paragraphOpenPattern = regexp.MustCompile(`<w:p[\s>/]`)
	textOpenPattern      = regexp.MustCompile(`<w:t[\s>/]`)
	tagPattern           = regexp.MustCompile(`\{\{\s*([#/]?)\s*([^{}]*?)\s*\}\}`)
)

const (
	tokenLiteral = iota
	tokenVar
	tokenOpen
	tokenClose
)

type token struct {
	kind int
	name string
	text string
}

// segment is either a whole <w:p> element or the raw markup between paragraphs.
type segment struct {
	raw    string
	para   bool
	tokens []token
}

func (s segment) hasTags() bool {
	for _, tok := range s.tokens {
		if tok.kind != tokenLiteral {
			return true
		}
	}
	return false
}

// renderPart binds data into one WordprocessingML part (document, header, footer).
func renderPart(xmlText string, data map[string]any) (string, error) {
	segs, err := splitSegments(xmlText)
	if err != nil {
		return "", err
	}
	if _, err := renderSegments(segs, &scope{value: data, checking: true}); err != nil {
		return "", err
	}
	return renderSegments(segs, &scope{value: data})
}

func splitSegments(xmlText string) ([]segment, error) {
	var segs []segment
	pos := 0
	for pos < len(xmlText) {
		loc := paragraphOpenPattern.FindStringIndex(xmlText[pos:])
		if loc == nil {
			segs = append(segs, segment{raw: xmlText[pos:]})
			break
		}
		start := pos + loc[0]
		if start > pos {
			segs = append(segs, segment{raw: xmlText[pos:start]})
		}
		end, err := paragraphEnd(xmlText, start)
		if err != nil {
			return nil, renderFailed("", "template markup is malformed", err)
		}
		raw := xmlText[start:end]
		toks, err := tokenize(paragraphText(raw))
		if err != nil {
			return nil, err
		}
		segs = append(segs, segment{raw: raw, para: true, tokens: toks})
		pos = end
	}
	return segs, nil
}

// paragraphEnd returns the offset just past the paragraph opened at start,
// following nested paragraphs (text boxes) to the matching close tag.
func paragraphEnd(xmlText string, start int) (int, error) {
	depth := 0
	pos := start
	for {
		openLoc := paragraphOpenPattern.FindStringIndex(xmlText[pos:])
		closeIdx := strings.Index(xmlText[pos:], "</w:p>")
		if openLoc == nil && closeIdx < 0 {
			return 0, errors.New("unterminated paragraph")
		}
		if openLoc != nil && (closeIdx < 0 || openLoc[0] < closeIdx) {
			tagStart := pos + openLoc[0]
			gt := strings.IndexByte(xmlText[tagStart:], '>')
			if gt < 0 {
				return 0, errors.New("unterminated paragraph tag")
			}
			tagEnd := tagStart + gt
			pos = tagEnd + 1
			if xmlText[tagEnd-1] == '/' {
				if depth == 0 {
					return pos, nil
				}
				continue
			}
			depth++
			continue
		}
		pos += closeIdx + len("</w:p>")
		depth--
		if depth <= 0 {
			return pos, nil
		}
	}
}

type textSpan struct {
	start, end               int
	contentStart, contentEnd int
}

func textSpans(p string) []textSpan {
	var spans []textSpan
	pos := 0
	for {
		loc := textOpenPattern.FindStringIndex(p[pos:])
		if loc == nil {
			return spans
		}
		start := pos + loc[0]
		gt := strings.IndexByte(p[start:], '>')
		if gt < 0 {
			return spans
		}
		gt += start
		if p[gt-1] == '/' {
			pos = gt + 1
			continue
		}
		closeIdx := strings.Index(p[gt+1:], "</w:t>")
		if closeIdx < 0 {
			return spans
		}
		contentEnd := gt + 1 + closeIdx
		end := contentEnd + len("</w:t>")
		spans = append(spans, textSpan{start: start, end: end, contentStart: gt + 1, contentEnd: contentEnd})
		pos = end
	}
}

func paragraphText(p string) string {
	var b strings.Builder
	for _, span := range textSpans(p) {
		b.WriteString(html.UnescapeString(p[span.contentStart:span.contentEnd]))
	}
	return b.String()
}

// rewriteParagraph merges the paragraph's runs: the first text element carries
// the rendered text and later ones are emptied, keeping run formatting intact.
func rewriteParagraph(p, text string) string {
	spans := textSpans(p)
	if len(spans) == 0 {
		return p
	}
	var b strings.Builder
	b.WriteString(p[:spans[0].start])
	writeTextRuns(&b, text)
	prev := spans[0].end
	for _, span := range spans[1:] {
		b.WriteString(p[prev:span.start])
		b.WriteString("<w:t></w:t>")
		prev = span.end
	}
	b.WriteString(p[prev:])
	return b.String()
}

func writeTextRuns(b *strings.Builder, text string) {
	for i, line := range strings.Split(text, "\n") {
		if i > 0 {
			b.WriteString("<w:br/>")
		}
		b.WriteString(`<w:t xml:space="preserve">`)
		b.WriteString(escapeText(line))
		b.WriteString("</w:t>")
	}
}

func escapeText(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

func tokenize(text string) ([]token, error) {
	var toks []token
	pos := 0
	for _, m := range tagPattern.FindAllStringSubmatchIndex(text, -1) {
		if m[0] > pos {
			toks = append(toks, token{kind: tokenLiteral, text: text[pos:m[0]]})
		}
		name := text[m[4]:m[5]]
		kind := tokenVar
		switch text[m[2]:m[3]] {
		case "#":
			kind = tokenOpen
		case "/":
			kind = tokenClose
		}
		if name == "" {
			return nil, renderFailed(text[m[0]:m[1]], "empty placeholder", nil)
		}
		toks = append(toks, token{kind: kind, name: name})
		pos = m[1]
	}
	if pos < len(text) {
		toks = append(toks, token{kind: tokenLiteral, text: text[pos:]})
	}
	for _, tok := range toks {
		if tok.kind == tokenLiteral && strings.Contains(tok.text, "{{") {
			return nil, renderFailed(strings.TrimSpace(tok.text), "unterminated placeholder", nil)
		}
	}
	return toks, nil
}

// standaloneTag reports a paragraph holding only a loop open or close tag.
func standaloneTag(toks []token) (token, bool) {
	var found *token
	for i := range toks {
		tok := toks[i]
		if tok.kind == tokenLiteral {
			if strings.TrimSpace(tok.text) != "" {
				return token{}, false
			}
			continue
		}
		if found != nil || (tok.kind != tokenOpen && tok.kind != tokenClose) {
			return token{}, false
		}
		found = &toks[i]
	}
	if found == nil {
		return token{}, false
	}
	return *found, true
}

func renderSegments(segs []segment, sc *scope) (string, error) {
	var b strings.Builder
	for i := 0; i < len(segs); i++ {
		seg := segs[i]
		if !seg.para || !seg.hasTags() {
			b.WriteString(seg.raw)
			continue
		}
		if tag, ok := standaloneTag(seg.tokens); ok {
			if tag.kind == tokenClose {
				return "", renderFailed(tag.name, "loop closed without being opened", nil)
			}
			j, err := matchingCloseSegment(segs, i, tag.name)
			if err != nil {
				return "", err
			}
			value, found := sc.lookup(tag.name)
			if !found {
				return "", renderFailed(tag.name, "unknown field", nil)
			}
			for _, item := range sc.items(tag.name, value) {
				out, err := renderSegments(segs[i+1:j], sc.push(item))
				if err != nil {
					return "", err
				}
				b.WriteString(out)
			}
			i = j
			continue
		}
		out, err := renderParagraph(seg, sc)
		if err != nil {
			return "", err
		}
		b.WriteString(out)
	}
	return b.String(), nil
}

// renderParagraph binds one paragraph. Without inline loops only the runs a
// placeholder spans are merged; other runs are left as they are.
func renderParagraph(seg segment, sc *scope) (string, error) {
	if hasLoopTokens(seg.tokens) {
		text, err := renderTokens(seg.tokens, sc)
		if err != nil {
			return "", err
		}
		return rewriteParagraph(seg.raw, text), nil
	}

	spans := textSpans(seg.raw)
	offsets := make([]int, len(spans)+1)
	var full strings.Builder
	for i, span := range spans {
		offsets[i] = full.Len()
		full.WriteString(html.UnescapeString(seg.raw[span.contentStart:span.contentEnd]))
	}
	offsets[len(spans)] = full.Len()
	text := full.String()

	var b strings.Builder
	prev := 0
	for _, g := range placeholderGroups(text, offsets) {
		toks, err := tokenize(text[offsets[g.first]:offsets[g.last+1]])
		if err != nil {
			return "", err
		}
		rendered, err := renderTokens(toks, sc)
		if err != nil {
			return "", err
		}
		b.WriteString(seg.raw[prev:spans[g.first].start])
		writeTextRuns(&b, rendered)
		prev = spans[g.first].end
		for _, span := range spans[g.first+1 : g.last+1] {
			b.WriteString(seg.raw[prev:span.start])
			b.WriteString("<w:t></w:t>")
			prev = span.end
		}
	}
	b.WriteString(seg.raw[prev:])
	return b.String(), nil
}

type spanGroup struct {
	first, last int
}

// placeholderGroups returns the runs of text spans each placeholder covers,
// merging groups that share a span. offsets[i] is where span i starts in text.
func placeholderGroups(text string, offsets []int) []spanGroup {
	var groups []spanGroup
	n := len(offsets) - 1
	for _, m := range tagPattern.FindAllStringIndex(text, -1) {
		first := 0
		for first < n-1 && offsets[first+1] <= m[0] {
			first++
		}
		last := first
		for last < n-1 && offsets[last+1] < m[1] {
			last++
		}
		if len(groups) > 0 && first <= groups[len(groups)-1].last {
			if last > groups[len(groups)-1].last {
				groups[len(groups)-1].last = last
			}
			continue
		}
		groups = append(groups, spanGroup{first: first, last: last})
	}
	return groups
}

func hasLoopTokens(toks []token) bool {
	for _, tok := range toks {
		if tok.kind == tokenOpen || tok.kind == tokenClose {
			return true
		}
	}
	return false
}

func matchingCloseSegment(segs []segment, open int, name string) (int, error) {
	depth := 0
	for k := open + 1; k < len(segs); k++ {
		if !segs[k].para {
			continue
		}
		tag, ok := standaloneTag(segs[k].tokens)
		if !ok {
			continue
		}
		if tag.kind == tokenOpen {
			depth++
			continue
		}
		if depth > 0 {
			depth--
			continue
		}
		if tag.name != name {
			return 0, renderFailed(name, fmt.Sprintf("loop closed by {{/%s}}", tag.name), nil)
		}
		return k, nil
	}
	return 0, renderFailed(name, "loop is never closed", nil)
}

func renderTokens(toks []token, sc *scope) (string, error) {
	var b strings.Builder
	for i := 0; i < len(toks); i++ {
		tok := toks[i]
		switch tok.kind {
		case tokenLiteral:
			b.WriteString(tok.text)
		case tokenVar:
			value, found := sc.lookup(tok.name)
			if !found {
				return "", renderFailed(tok.name, "unknown field", nil)
			}
			text, err := formatValue(tok.name, value)
			if err != nil {
				return "", err
			}
			b.WriteString(text)
		case tokenClose:
			return "", renderFailed(tok.name, "loop closed without being opened", nil)
		case tokenOpen:
			j, err := matchingCloseToken(toks, i)
			if err != nil {
				return "", err
			}
			value, found := sc.lookup(tok.name)
			if !found {
				return "", renderFailed(tok.name, "unknown field", nil)
			}
			for _, item := range sc.items(tok.name, value) {
				out, err := renderTokens(toks[i+1:j], sc.push(item))
				if err != nil {
					return "", err
				}
				b.WriteString(out)
			}
			i = j
		}
	}
	return b.String(), nil
}

func matchingCloseToken(toks []token, open int) (int, error) {
	name := toks[open].name
	depth := 0
	for k := open + 1; k < len(toks); k++ {
		switch toks[k].kind {
		case tokenOpen:
			depth++
		case tokenClose:
			if depth > 0 {
				depth--
				continue
			}
			if toks[k].name != name {
				return 0, renderFailed(name, fmt.Sprintf("loop closed by {{/%s}}", toks[k].name), nil)
			}
			return k, nil
		}
	}
	return 0, renderFailed(name, "loop is never closed", nil)
}

type scope struct {
	parent *scope
	value  any
	// checking walks every loop body once, even for empty lists, so unknown
	// fields fail regardless of the data.
	checking bool
}

func (s *scope) push(value any) *scope {
	return &scope{parent: s, value: value, checking: s.checking}
}

func (s *scope) items(name string, value any) []any {
	if !s.checking {
		return loopItems(value)
	}
	list, ok := value.([]any)
	if !ok {
		return []any{value}
	}
	if len(list) > 0 {
		return list
	}
	if zero, ok := zeroItems[name[strings.LastIndex(name, ".")+1:]]; ok {
		return []any{zero}
	}
	return []any{anyItem{}}
}

// anyItem stands in for an element of an empty list whose shape is unknown.
type anyItem struct{}

// lookup resolves "." to the current item and dotted paths against the
// innermost scope that defines the first segment.
func (s *scope) lookup(path string) (any, bool) {
	if path == "." {
		return s.value, true
	}
	parts := strings.Split(path, ".")
	for sc := s; sc != nil; sc = sc.parent {
		if _, ok := sc.value.(anyItem); ok {
			return nil, true
		}
		m, ok := sc.value.(map[string]any)
		if !ok {
			continue
		}
		v, ok := m[parts[0]]
		if !ok {
			continue
		}
		for _, part := range parts[1:] {
			child, ok := v.(map[string]any)
			if !ok {
				return nil, false
			}
			if v, ok = child[part]; !ok {
				return nil, false
			}
		}
		return v, true
	}
	return nil, false
}

func loopItems(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		return t
	case bool:
		if t {
			return []any{nil}
		}
		return nil
	case string:
		if t == "" {
			return nil
		}
		return []any{t}
	case float64:
		if t == 0 {
			return nil
		}
		return []any{t}
	default:
		return []any{t}
	}
}

func formatValue(name string, v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case bool:
		return strconv.FormatBool(t), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case json.Number:
		return t.String(), nil
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			s, err := formatValue(name, item)
			if err != nil {
				return "", err
			}
			if s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", "), nil
	default:
		return "", renderFailed(name, "object cannot be printed; use a loop", nil)
	}
}
