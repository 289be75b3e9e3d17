package render

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/jung-kurt/gofpdf"
	"golang.org/x/net/html"

	"mailinvoice/internal/util"
)

const (
	footerMargin = 30
	lineHeight   = 5
	cellPadding  = 1.5
)

// Settings carries document metadata and page geometry.
type Settings struct {
	Title   string
	Creator string
	Author  string
	// Margins are left, top and right in millimetres.
	Margins [3]float64
	Footer  string
}

// Renderer turns an invoice HTML document into PDF bytes.
type Renderer interface {
	Render(doc string, s Settings, w io.Writer) error
}

// PDFRenderer lays out the invoice HTML on A4 pages with the core fonts.
type PDFRenderer struct{}

func NewPDFRenderer() *PDFRenderer {
	return &PDFRenderer{}
}

func (r *PDFRenderer) Render(doc string, s Settings, w io.Writer) error {
	parsed, err := goquery.NewDocumentFromReader(strings.NewReader(doc))
	if err != nil {
		return fmt.Errorf("parse invoice html: %w", err)
	}
	body := parsed.Find("body")
	if body.Length() == 0 {
		return fmt.Errorf("invoice html has no body")
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(s.Title, true)
	pdf.SetCreator(s.Creator, true)
	pdf.SetAuthor(s.Author, true)
	pdf.SetMargins(s.Margins[0], s.Margins[1], s.Margins[2])
	pdf.SetAutoPageBreak(true, footerMargin)
	if s.Footer != "" {
		pdf.SetFooterFunc(func() {
			pdf.SetY(-footerMargin + 5)
			pdf.SetFont("Arial", "I", 7)
			pdf.SetTextColor(90, 90, 90)
			pdf.MultiCell(0, 3.5, tr(s.Footer), "T", "C", false)
			pdf.SetTextColor(0, 0, 0)
		})
	}
	pdf.AddPage()

	l := &layout{pdf: pdf, tr: tr}
	l.block(body.Nodes[0])
	if err := pdf.Error(); err != nil {
		return fmt.Errorf("layout invoice: %w", err)
	}
	return pdf.Output(w)
}

// RenderFile renders into path through a temporary file in the same
// directory and validates the result before returning.
func RenderFile(r Renderer, doc string, s Settings, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".invoice-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := r.Render(doc, s, tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := ValidatePDFFile(tmpName); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

type layout struct {
	pdf *gofpdf.Fpdf
	tr  func(string) string
}

type run struct {
	text string
	bold bool
	size float64
	br   bool
}

type textLine struct {
	text string
	bold bool
	size float64
}

func (l *layout) block(n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			if text := util.NormalizeSpaces(c.Data); text != "" {
				l.paragraph([]run{{text: text, size: 10}})
			}
		case html.ElementNode:
			switch c.Data {
			case "head", "style", "script", "title":
			case "table":
				l.table(c)
			case "br":
				l.pdf.Ln(lineHeight)
			case "h1", "h2", "h3", "p":
				l.paragraph(collectRuns(c, isHeading(c.Data), fontSize(c.Data), nil))
			default:
				l.block(c)
			}
		}
	}
}

func (l *layout) paragraph(runs []run) {
	atLineStart := true
	height := lineHeight
	for _, r := range runs {
		if r.br {
			l.pdf.Ln(lineHeight)
			atLineStart = true
			continue
		}
		text := util.CollapseInlineSpaces(strings.ReplaceAll(r.text, "\n", " "))
		if atLineStart {
			text = strings.TrimLeft(text, " ")
		}
		if text == "" {
			continue
		}
		style := ""
		if r.bold {
			style = "B"
		}
		l.pdf.SetFont("Arial", style, r.size)
		if r.size > 10 {
			height = lineHeight + 2
		}
		l.pdf.Write(float64(height), l.tr(text))
		atLineStart = false
	}
	l.pdf.Ln(float64(height) + 1.5)
}

func (l *layout) table(n *html.Node) {
	sel := goquery.NewDocumentFromNode(n).Selection
	bordered := sel.HasClass("invoice-table")
	left, _, right, bottom := l.pdf.GetMargins()
	pageW, pageH := l.pdf.GetPageSize()
	width := pageW - left - right

	sel.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.ChildrenFiltered("td, th")
		if cells.Length() == 0 {
			return
		}
		widths := columnWidths(cells.Length(), bordered, width)

		cellLines := make([][]textLine, cells.Length())
		rowHeight := lineHeight + 2*cellPadding
		cells.Each(func(i int, cell *goquery.Selection) {
			lines := wrapLines(l.pdf, l.tr, linesOf(collectRuns(cell.Nodes[0], goquery.NodeName(cell) == "th", 9, nil)), widths[i]-2*cellPadding)
			cellLines[i] = lines
			h := float64(len(lines))*lineHeight + 2*cellPadding
			if h > rowHeight {
				rowHeight = h
			}
		})

		if l.pdf.GetY()+rowHeight > pageH-bottom {
			l.pdf.AddPage()
		}
		y := l.pdf.GetY()
		x := left
		for i, lines := range cellLines {
			if bordered {
				fill := goquery.NodeName(cells.Eq(i)) == "th"
				if fill {
					l.pdf.SetFillColor(235, 235, 235)
					l.pdf.Rect(x, y, widths[i], rowHeight, "FD")
				} else {
					l.pdf.Rect(x, y, widths[i], rowHeight, "D")
				}
			}
			align := cellAlign(i, cells.Length(), bordered)
			for j, line := range lines {
				style := ""
				if line.bold {
					style = "B"
				}
				l.pdf.SetFont("Arial", style, line.size)
				l.pdf.SetXY(x+cellPadding, y+cellPadding+float64(j)*lineHeight)
				l.pdf.CellFormat(widths[i]-2*cellPadding, lineHeight, line.text, "", 0, align, false, 0, "")
			}
			x += widths[i]
		}
		l.pdf.SetXY(left, y+rowHeight)
	})
	l.pdf.Ln(4)
}

func columnWidths(n int, bordered bool, total float64) []float64 {
	ratios := []float64{0.22, 0.34, 0.12, 0.16, 0.16}
	widths := make([]float64, n)
	for i := range widths {
		if bordered && n == len(ratios) {
			widths[i] = total * ratios[i]
		} else {
			widths[i] = total / float64(n)
		}
	}
	return widths
}

func cellAlign(i, n int, bordered bool) string {
	if bordered {
		if i >= 2 {
			return "R"
		}
		return "L"
	}
	if n == 3 {
		return []string{"L", "C", "R"}[i]
	}
	return "L"
}

// collectRuns flattens inline content into styled runs. Nested blocks and
// <br> become line breaks.
func collectRuns(n *html.Node, bold bool, size float64, out []run) []run {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			out = append(out, run{text: c.Data, bold: bold, size: size})
		case html.ElementNode:
			switch c.Data {
			case "br":
				out = append(out, run{br: true})
			case "strong", "b", "th":
				out = collectRuns(c, true, size, out)
			case "p", "div", "h1", "h2", "h3":
				if len(out) > 0 && !out[len(out)-1].br {
					out = append(out, run{br: true})
				}
				childSize := size
				if isHeading(c.Data) {
					childSize = fontSize(c.Data)
				}
				out = collectRuns(c, bold || isHeading(c.Data), childSize, out)
				out = append(out, run{br: true})
			default:
				out = collectRuns(c, bold, size, out)
			}
		}
	}
	return out
}

func linesOf(runs []run) []textLine {
	var lines []textLine
	var cur strings.Builder
	bold, size, seen := true, 0.0, false
	flush := func() {
		text := util.NormalizeSpaces(cur.String())
		if text != "" {
			lines = append(lines, textLine{text: text, bold: bold && seen, size: size})
		}
		cur.Reset()
		bold, size, seen = true, 0.0, false
	}
	for _, r := range runs {
		if r.br {
			flush()
			continue
		}
		cur.WriteString(r.text)
		if strings.TrimSpace(r.text) == "" {
			continue
		}
		seen = true
		bold = bold && r.bold
		if r.size > size {
			size = r.size
		}
	}
	flush()
	return lines
}

func wrapLines(pdf *gofpdf.Fpdf, tr func(string) string, lines []textLine, width float64) []textLine {
	var out []textLine
	for _, line := range lines {
		style := ""
		if line.bold {
			style = "B"
		}
		pdf.SetFont("Arial", style, line.size)
		for _, part := range pdf.SplitLines([]byte(tr(line.text)), width) {
			out = append(out, textLine{text: string(part), bold: line.bold, size: line.size})
		}
	}
	return out
}

func isHeading(tag string) bool {
	return tag == "h1" || tag == "h2" || tag == "h3"
}

func fontSize(tag string) float64 {
	switch tag {
	case "h1":
		return 16
	case "h2":
		return 13
	case "h3":
		return 11
	}
	return 10
}
