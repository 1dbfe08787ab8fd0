package pdftext

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"os"

	"github.com/rotisserie/eris"
)

const (
	mistralOCREndpoint  = "https://api.mistral.ai/v1/ocr"
	defaultMistralModel = "mistral-ocr-latest"
)

// MistralOCR extracts text from PDFs using the Mistral OCR API. Pages come
// back as markdown, so tables arrive as pipe-delimited rows.
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
		client:   &http.Client{},
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

// ExtractPages sends the PDF to Mistral OCR and returns one Page per OCR page.
func (m *MistralOCR) ExtractPages(ctx context.Context, pdfPath string) ([]Page, error) {
	data, err := os.ReadFile(pdfPath)
	if err != nil {
		return nil, eris.Wrapf(err, "pdftext: read PDF %s", pdfPath)
	}

	reqBody := mistralOCRRequest{
		Model: m.model,
		Document: mistralOCRDocument{
			Type:        "document_url",
			DocumentURL: "data:application/pdf;base64," + base64.StdEncoding.EncodeToString(data),
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, eris.Wrap(err, "pdftext: marshal mistral request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, eris.Wrap(err, "pdftext: create mistral request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.apiKey)

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "pdftext: mistral API call")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "pdftext: read mistral response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("pdftext: mistral API returned %d: %s", resp.StatusCode, string(respBody))
	}

	var ocrResp mistralOCRResponse
	if err := json.Unmarshal(respBody, &ocrResp); err != nil {
		return nil, eris.Wrap(err, "pdftext: unmarshal mistral response")
	}

	pages := make([]Page, 0, len(ocrResp.Pages))
	for _, p := range ocrResp.Pages {
		pages = append(pages, Page{Number: p.Index + 1, Text: p.Markdown})
	}
	return pages, nil
}
