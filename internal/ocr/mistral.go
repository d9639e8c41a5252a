package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/policy-audit/internal/resilience"
)

const (
	mistralOCREndpoint  = "https://api.mistral.ai/v1/ocr"
	defaultMistralModel = "mistral-ocr-latest"
	// maxMistralPages bounds the page slice built from reported indices.
	maxMistralPages = 10000
)

// MistralOCR reads policy and questionnaire PDFs through the Mistral OCR
// API. Useful for scanned documents with no text layer.
type MistralOCR struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
}

// NewMistralOCR creates a MistralOCR extractor. If model is empty, the default is used.
func NewMistralOCR(apiKey, model string) *MistralOCR {
	if model == "" {
		model = defaultMistralModel
	}
	return &MistralOCR{
		apiKey:   apiKey,
		model:    model,
		endpoint: mistralOCREndpoint,
		client:   &http.Client{Timeout: 5 * time.Minute},
	}
}

type mistralOCRRequest struct {
	Model    string             `json:"model"`
	Document mistralOCRDocument `json:"document"`
}

type mistralOCRDocument struct {
	Type        string `json:"type"`
	DocumentURL string `json:"document_url"`
}

type mistralOCRResponse struct {
	Pages []mistralOCRPage `json:"pages"`
}

type mistralOCRPage struct {
	Index    int    `json:"index"`
	Markdown string `json:"markdown"`
}

// ExtractPages returns one string per physical page of the PDF at pdfPath.
// Pages are placed by their reported zero-based index; a page the API
// omits comes back as "" so page numbers stay aligned with the document.
func (m *MistralOCR) ExtractPages(ctx context.Context, pdfPath string) ([]string, error) {
	body, err := m.requestBody(pdfPath)
	if err != nil {
		return nil, err
	}

	resp, err := m.post(ctx, body)
	if err != nil {
		return nil, err
	}

	pages, err := placePages(resp.Pages)
	if err != nil {
		return nil, eris.Wrapf(err, "ocr: mistral pages for %s", pdfPath)
	}
	zap.L().Debug("ocr: mistral extracted pages",
		zap.String("path", pdfPath),
		zap.Int("reported", len(resp.Pages)),
		zap.Int("pages", len(pages)),
	)
	return pages, nil
}

// requestBody encodes the PDF as a base64 data URL document.
func (m *MistralOCR) requestBody(pdfPath string) ([]byte, error) {
	data, err := os.ReadFile(pdfPath)
	if err != nil {
		return nil, eris.Wrapf(err, "ocr: read PDF %s", pdfPath)
	}

	body, err := json.Marshal(mistralOCRRequest{
		Model: m.model,
		Document: mistralOCRDocument{
			Type:        "document_url",
			DocumentURL: "data:application/pdf;base64," + base64.StdEncoding.EncodeToString(data),
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "ocr: marshal mistral request")
	}
	return body, nil
}

func (m *MistralOCR) post(ctx context.Context, body []byte) (*mistralOCRResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "ocr: create mistral request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.apiKey)

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "ocr: mistral API call")
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "ocr: read mistral response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resilience.WithStatus(
			eris.Errorf("ocr: mistral API returned %d: %s", resp.StatusCode, string(raw)),
			resp.StatusCode,
		)
	}

	var out mistralOCRResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, eris.Wrap(err, "ocr: unmarshal mistral response")
	}
	return &out, nil
}

// placePages lays reported pages out by index. Duplicate indices keep the
// last reported text.
func placePages(reported []mistralOCRPage) ([]string, error) {
	n := 0
	for _, p := range reported {
		if p.Index < 0 || p.Index >= maxMistralPages {
			return nil, eris.Errorf("page index %d out of range", p.Index)
		}
		n = max(n, p.Index+1)
	}

	pages := make([]string, n)
	for _, p := range reported {
		pages[p.Index] = p.Markdown
	}
	return pages, nil
}
