package ocr

import (
	"context"
	"os"

	"github.com/ledongthuc/pdf"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Native extracts the embedded text layer of a PDF in-process.
type Native struct{}

// NewNative creates a Native extractor.
func NewNative() *Native {
	return &Native{}
}

// ExtractPages reads each page's plain text. A page whose text cannot be
// decoded is logged and left empty rather than failing the document.
func (n *Native) ExtractPages(ctx context.Context, pdfPath string) (pages []string, err error) {
	f, err := os.Open(pdfPath)
	if err != nil {
		return nil, eris.Wrapf(err, "ocr: open %s", pdfPath)
	}
	defer f.Close() //nolint:errcheck

	info, err := f.Stat()
	if err != nil {
		return nil, eris.Wrapf(err, "ocr: stat %s", pdfPath)
	}

	// The parser panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			pages, err = nil, eris.Errorf("ocr: parse %s: %v", pdfPath, r)
		}
	}()

	r, err := pdf.NewReader(f, info.Size())
	if err != nil {
		return nil, eris.Wrapf(err, "ocr: parse %s", pdfPath)
	}

	total := r.NumPage()
	pages = make([]string, total)
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "ocr: extraction cancelled")
		}
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			zap.L().Warn("ocr: skipping unreadable page", zap.String("path", pdfPath), zap.Int("page", i), zap.Error(err))
			continue
		}
		pages[i-1] = text
	}
	return pages, nil
}
