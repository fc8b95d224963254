// Package ingest turns uploaded files, web pages, and YouTube videos into
// chunks in the knowledge base.
package ingest

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
)

// Section is one extraction unit of a document: a PDF page, a PPTX slide,
// or the whole file for formats without pages. Page is 1-based.
type Section struct {
	Text string
	Page int
}

// SupportedExtensions lists the file types accepted for upload.
var SupportedExtensions = []string{".pdf", ".docx", ".pptx", ".txt", ".md"}

// ExtractDocument extracts text sections from an uploaded file, dispatching
// on the filename extension.
func ExtractDocument(filename string, data []byte) ([]Section, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".pdf":
		return extractPDF(data)
	case ".docx":
		return extractDOCX(data)
	case ".pptx":
		return extractPPTX(data)
	case ".txt", ".md":
		return extractPlain(data)
	default:
		return nil, fmt.Errorf("unsupported file format: %s (supported: %s)",
			ext, strings.Join(SupportedExtensions, ", "))
	}
}

// extractPDF returns one section per page so chunks can cite page numbers.
func extractPDF(data []byte) ([]Section, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("reading PDF: %w", err)
	}

	var sections []Section
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extracting PDF page %d: %w", i, err)
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		sections = append(sections, Section{Text: text, Page: i})
	}
	if len(sections) == 0 {
		return nil, fmt.Errorf("no extractable text in PDF")
	}
	return sections, nil
}

// extractDOCX pulls text runs out of the document XML. Paragraph ends map
// to newlines; DOCX has no page numbers, so everything is page 1.
func extractDOCX(data []byte) ([]Section, error) {
	reader, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("reading DOCX: %w", err)
	}
	defer reader.Close()

	content := reader.Editable().GetContent()
	text := extractXMLText(content, "<w:t", "</w:t>", "</w:p>")
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("no extractable text in DOCX")
	}
	return []Section{{Text: text, Page: 1}}, nil
}

var slideNameRe = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

// extractPPTX reads slide XML from the zip container, one section per slide.
func extractPPTX(data []byte) ([]Section, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("reading PPTX: %w", err)
	}

	type slide struct {
		num  int
		text string
	}
	var slides []slide
	for _, file := range zr.File {
		m := slideNameRe.FindStringSubmatch(file.Name)
		if m == nil {
			continue
		}
		num, _ := strconv.Atoi(m[1])

		rc, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("opening slide %d: %w", num, err)
		}
		raw, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("reading slide %d: %w", num, err)
		}

		text := extractXMLText(string(raw), "<a:t", "</a:t>", "</a:p>")
		if strings.TrimSpace(text) == "" {
			continue
		}
		slides = append(slides, slide{num: num, text: text})
	}

	if len(slides) == 0 {
		return nil, fmt.Errorf("no extractable text in PPTX")
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].num < slides[j].num })

	sections := make([]Section, len(slides))
	for i, s := range slides {
		sections[i] = Section{Text: s.text, Page: s.num}
	}
	return sections, nil
}

func extractPlain(data []byte) ([]Section, error) {
	text := string(data)
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("file is empty")
	}
	return []Section{{Text: text, Page: 1}}, nil
}

// extractXMLText collects the text between openTag...> and closeTag pairs,
// inserting newlines at paragraph boundaries. A real XML parser is overkill
// for Office markup where text always lives in <w:t>/<a:t> runs.
func extractXMLText(xmlContent, openTag, closeTag, paragraphEnd string) string {
	var sb strings.Builder
	rest := xmlContent
	for {
		start := strings.Index(rest, openTag)
		if start < 0 {
			break
		}
		// Paragraph boundaries before this run become newlines.
		if strings.Contains(rest[:start], paragraphEnd) && sb.Len() > 0 {
			sb.WriteString("\n")
		}
		rest = rest[start+len(openTag):]

		// Skip to the end of the opening tag (it may carry attributes).
		gt := strings.Index(rest, ">")
		if gt < 0 {
			break
		}
		rest = rest[gt+1:]

		end := strings.Index(rest, closeTag)
		if end < 0 {
			break
		}
		if sb.Len() > 0 && !strings.HasSuffix(sb.String(), "\n") {
			sb.WriteString(" ")
		}
		sb.WriteString(rest[:end])
		rest = rest[end+len(closeTag):]
	}
	return strings.TrimSpace(sb.String())
}
