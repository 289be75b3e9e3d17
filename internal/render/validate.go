package render

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
)

// MaxPDFSize bounds a generated invoice.
const MaxPDFSize = 10 << 20

var ErrInvalidPDF = errors.New("invalid pdf")

// ValidatePDFFile checks that path is a readable, non-empty PDF under
// MaxPDFSize.
func ValidatePDFFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPDF, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrInvalidPDF, path)
	}
	if info.Size() == 0 {
		return fmt.Errorf("%w: %s is empty", ErrInvalidPDF, path)
	}
	if info.Size() > MaxPDFSize {
		return fmt.Errorf("%w: %s is %d bytes", ErrInvalidPDF, path, info.Size())
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPDF, err)
	}
	defer f.Close()

	header := make([]byte, 4)
	if _, err := io.ReadFull(f, header); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidPDF, path, err)
	}
	if !bytes.Equal(header, []byte("%PDF")) {
		return fmt.Errorf("%w: %s has no pdf header", ErrInvalidPDF, path)
	}
	return nil
}

// Info summarises a rendered invoice.
type Info struct {
	Path  string
	Size  int64
	Pages int
	Text  string
}

// Inspect validates path and extracts the plain text of every page.
func Inspect(path string) (Info, error) {
	if err := ValidatePDFFile(path); err != nil {
		return Info{}, err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return Info{}, err
	}
	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrInvalidPDF, err)
	}

	info := Info{Path: path, Size: int64(len(content)), Pages: reader.NumPage()}
	var parts []string
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if strings.TrimSpace(text) != "" {
			parts = append(parts, text)
		}
	}
	info.Text = strings.Join(parts, "\n")
	return info, nil
}
