package extract

import (
	"fmt"
	"io"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// extractPDF validates the file with pdfcpu for a page count, then pulls the
// text of every page with ledongthuc/pdf. A failed validation is only logged:
// the text reader is more forgiving than pdfcpu and often still succeeds.
func (e *Extractor) extractPDF(filePath string) (res Result, err error) {
	pages, verr := countPages(filePath)
	if verr != nil {
		e.log.Warn("PDF failed structural validation; extracting text anyway.", "path", filePath, "error", verr)
	}

	// ledongthuc/pdf panics on some malformed content streams.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf reader panicked: %v", r)
		}
	}()

	f, reader, err := pdf.Open(filePath)
	if err != nil {
		return Result{}, fmt.Errorf("failed to open PDF file: %w", err)
	}
	defer f.Close()

	plain, err := reader.GetPlainText()
	if err != nil {
		return Result{}, fmt.Errorf("failed to extract plain text: %w", err)
	}
	content, err := io.ReadAll(plain)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read plain text: %w", err)
	}
	return Result{Text: string(content), Pages: pages}, nil
}

func countPages(filePath string) (int, error) {
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	if err := api.ValidateFile(filePath, cfg); err != nil {
		return 0, fmt.Errorf("failed to validate PDF: %w", err)
	}
	pages, err := api.PageCountFile(filePath)
	if err != nil {
		return 0, fmt.Errorf("failed to get page count: %w", err)
	}
	return pages, nil
}
