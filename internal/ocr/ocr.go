// Package ocr extracts per-page text from PDF files.
package ocr

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/policy-audit/internal/config"
)

// Extractor returns the text of each page of a PDF, in page order. Page i
// of the document is element i-1; pages without text are empty strings.
type Extractor interface {
	ExtractPages(ctx context.Context, pdfPath string) ([]string, error)
}

// NewExtractor creates an Extractor based on config.
func NewExtractor(cfg config.OCRConfig) (Extractor, error) {
	switch cfg.Provider {
	case "native", "":
		return NewNative(), nil
	case "pdftotext", "local":
		return NewPdfToText(cfg.PdfToTextPath), nil
	case "mistral":
		if cfg.MistralKey == "" {
			return nil, eris.New("ocr: mistral provider requires ocr.mistral_key")
		}
		return NewMistralOCR(cfg.MistralKey, cfg.MistralModel), nil
	default:
		return nil, eris.Errorf("ocr: unknown provider %q", cfg.Provider)
	}
}
