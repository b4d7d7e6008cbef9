package docai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"rfqdesk/internal"
	"rfqdesk/internal/config"
	"rfqdesk/internal/util"
)

// Client calls the document-AI extraction service used as the expensive
// fallback behind the layered extractor. It satisfies
// internal.FallbackExtractor; the request timeout lives here, not in the
// pipeline.
type Client struct {
	cfg        config.Config
	httpClient *http.Client
}

func NewClient(cfg config.Config) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: time.Duration(cfg.DocAITimeoutMs) * time.Millisecond},
	}
}

type extractRequest struct {
	Documents []extractDocument `json:"documents"`
}

type extractDocument struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type extractResponse struct {
	Items       []extractItem `json:"items"`
	ExternalRef string        `json:"externalRef"`
	Confidence  float64       `json:"confidence"`
	Warnings    []string      `json:"warnings"`
}

type extractItem struct {
	Description string  `json:"description"`
	Qty         float64 `json:"qty"`
	Unit        string  `json:"unit"`
	RefCode     string  `json:"refCode"`
	Brand       string  `json:"brand"`
}

func (c *Client) ExtractViaFallback(attachments []internal.Attachment) (internal.ExtractionResult, float64, []string, error) {
	if strings.TrimSpace(c.cfg.DocAIBaseURL) == "" {
		return internal.ExtractionResult{}, 0, nil, errors.New("missing DOCAI_BASE_URL")
	}
	if len(attachments) == 0 {
		return internal.ExtractionResult{}, 0, nil, errors.New("no documents to extract")
	}

	payload := extractRequest{Documents: make([]extractDocument, 0, len(attachments))}
	for _, att := range attachments {
		payload.Documents = append(payload.Documents, extractDocument{
			Filename:    att.Filename,
			ContentType: att.ContentType,
			Content:     base64.StdEncoding.EncodeToString(att.Content),
		})
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return internal.ExtractionResult{}, 0, nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(c.cfg.DocAITimeoutMs)*time.Millisecond)
	defer cancel()

	endpoint := strings.TrimRight(c.cfg.DocAIBaseURL, "/") + "/extract"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return internal.ExtractionResult{}, 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.DocAIAPIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return internal.ExtractionResult{}, 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return internal.ExtractionResult{}, 0, nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return internal.ExtractionResult{}, 0, nil, fmt.Errorf("docai error: status=%d body=%s", resp.StatusCode, string(respBody))
	}

	var parsed extractResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return internal.ExtractionResult{}, 0, nil, err
	}

	result := internal.ExtractionResult{Method: internal.MethodFallback}
	for _, item := range parsed.Items {
		desc := strings.TrimSpace(item.Description)
		if desc == "" {
			continue
		}
		line := internal.LineItem{Description: desc, Qty: item.Qty}
		if line.Qty <= 0 {
			line.Qty = 1
			line.IsEstimated = true
		}
		if unit := strings.TrimSpace(item.Unit); unit != "" {
			line.Unit = util.StringPtr(unit)
		}
		if ref := strings.TrimSpace(item.RefCode); ref != "" {
			line.RefCode = util.StringPtr(ref)
		}
		if brand := strings.TrimSpace(item.Brand); brand != "" {
			line.Brand = util.StringPtr(brand)
		}
		result.Items = append(result.Items, line)
	}
	if ref := strings.TrimSpace(parsed.ExternalRef); ref != "" {
		result.ExternalRef = util.StringPtr(ref)
	}

	return result, parsed.Confidence, parsed.Warnings, nil
}
