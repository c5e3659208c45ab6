// Package extract pulls page-level plain text and file metadata out of the
// supported document formats. PDF is the primary format; DOCX, XLSX,
// Markdown and plain text ride along with page numbers synthesized where the
// format has none.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gmtext "github.com/yuin/goldmark/text"
)

// Page is the text of one page (or sheet, for paginated-by-sheet formats).
type Page struct {
	Number int
	Text   string
}

// Info is the free-text metadata of a source file.
type Info struct {
	Title      string
	Author     string
	Subject    string
	PagesCount int
	FileSize   int64
}

// Supported reports whether the file extension is one the pipeline can
// ingest.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf", ".docx", ".xlsx", ".txt", ".md":
		return true
	}
	return false
}

// Pages extracts the text of every non-empty page of the file.
func Pages(path string) ([]Page, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".pdf":
		return pdfPages(path)
	case ".docx":
		return docxPages(path)
	case ".xlsx":
		return xlsxPages(path)
	case ".txt":
		return textPages(path)
	case ".md":
		return markdownPages(path)
	default:
		return nil, fmt.Errorf("unsupported file format: %s", ext)
	}
}

// Metadata reads title/author/subject and page count where the format
// carries them. The filename stem stands in for a missing title.
func Metadata(path string) Info {
	info := Info{Title: stem(path)}
	if stat, err := os.Stat(path); err == nil {
		info.FileSize = stat.Size()
	}

	if strings.ToLower(filepath.Ext(path)) != ".pdf" {
		return info
	}

	f, reader, err := openPDF(path)
	if err != nil {
		log.Warn().Err(err).Str("file", path).Msg("Failed to read PDF metadata")
		return info
	}
	defer f.Close()

	info.PagesCount = reader.NumPage()
	dict := reader.Trailer().Key("Info")
	if title := strings.TrimSpace(dict.Key("Title").Text()); title != "" {
		info.Title = title
	}
	info.Author = strings.TrimSpace(dict.Key("Author").Text())
	info.Subject = strings.TrimSpace(dict.Key("Subject").Text())
	return info
}

func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func openPDF(path string) (*os.File, *pdf.Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	reader, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return f, reader, nil
}

func pdfPages(path string) (pages []Page, err error) {
	// the pdf library panics on some malformed files
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("failed to extract text from %s: %v", path, r)
		}
	}()

	f, reader, err := openPDF(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to extract page %d of %s: %v", i, path, err)
		}
		if strings.TrimSpace(pageText) == "" {
			log.Warn().Str("file", path).Int("page", i).Msg("No text found on page")
			continue
		}
		pages = append(pages, Page{Number: i, Text: strings.TrimSpace(pageText)})
	}
	return pages, nil
}

func docxPages(path string) ([]Page, error) {
	r, err := docx.ReadDocxFile(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	content := r.Editable().GetContent()
	content = stripXMLTags(content)
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}
	// DOCX has no page numbers
	return []Page{{Number: 1, Text: strings.TrimSpace(content)}}, nil
}

func xlsxPages(path string) ([]Page, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var pages []Page
	for sheetNum, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			continue
		}
		var text strings.Builder
		text.WriteString("Sheet: " + sheetName + "\n")
		for _, row := range rows {
			text.WriteString(strings.Join(row, "\t"))
			text.WriteString("\n")
		}
		if strings.TrimSpace(text.String()) == "" {
			continue
		}
		// one sheet per page, 1-based
		pages = append(pages, Page{Number: sheetNum + 1, Text: text.String()})
	}
	return pages, nil
}

func textPages(path string) ([]Page, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(string(data)) == "" {
		return nil, nil
	}
	return []Page{{Number: 1, Text: string(data)}}, nil
}

// markdownPages renders markdown to plain text by walking the goldmark AST
// and collecting the text segments, paragraph breaks preserved.
func markdownPages(path string) ([]Page, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	md := goldmark.New()
	doc := md.Parser().Parse(gmtext.NewReader(src))

	var text strings.Builder
	err = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.Text:
			if entering {
				text.Write(node.Segment.Value(src))
				if node.HardLineBreak() || node.SoftLineBreak() {
					text.WriteString(" ")
				}
			}
		case *ast.Paragraph, *ast.Heading, *ast.ListItem:
			if !entering {
				text.WriteString("\n\n")
			}
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, err
	}

	out := strings.TrimSpace(text.String())
	if out == "" {
		return nil, nil
	}
	return []Page{{Number: 1, Text: out}}, nil
}

func stripXMLTags(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return b.String()
}
