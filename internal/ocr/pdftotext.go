package ocr

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/rotisserie/eris"
)

// PdfToText extracts text from PDFs using the pdftotext CLI tool.
type PdfToText struct {
	binPath string
}

// NewPdfToText creates a PdfToText extractor. If binPath is empty, "pdftotext" is used.
func NewPdfToText(binPath string) *PdfToText {
	if binPath == "" {
		binPath = "pdftotext"
	}
	return &PdfToText{binPath: binPath}
}

// ExtractPages runs pdftotext in reading order and splits its output on the
// form feed it emits after every page.
func (p *PdfToText) ExtractPages(ctx context.Context, pdfPath string) ([]string, error) {
	cmd := exec.CommandContext(ctx, p.binPath, "-enc", "UTF-8", pdfPath, "-")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, eris.Wrapf(err, "ocr: pdftotext failed for %s: %s", pdfPath, stderr.String())
	}

	return splitFormFeeds(stdout.String()), nil
}

func splitFormFeeds(out string) []string {
	if out == "" {
		return nil
	}
	pages := strings.Split(out, "\f")
	// pdftotext terminates the last page with a form feed too.
	if last := len(pages) - 1; last > 0 && strings.TrimSpace(pages[last]) == "" {
		pages = pages[:last]
	}
	return pages
}
