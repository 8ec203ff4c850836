package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"voucherDesk/internal/layout"
)

// PrintRequest 是内部打印接口的请求体。Sample 为 true 时使用字段字典的示例数据。
type PrintRequest struct {
	Data   map[string]string `json:"data,omitempty"`
	Sample bool              `json:"sample,omitempty"`
}

// PrintDocument 是内部打印接口返回的、已渲染好的单据 HTML。
type PrintDocument struct {
	HTML          string            `json:"html"`
	Page          layout.Dimensions `json:"page"`
	MissingFields []string          `json:"missingFields,omitempty"`
}

// PrintStatusError 表示内部接口返回了非 2xx 状态。
type PrintStatusError struct {
	StatusCode int
	Body       string
}

func (e *PrintStatusError) Error() string {
	return fmt.Sprintf("internal print html status %d: %s", e.StatusCode, e.Body)
}

// PrintClient 从 API 内部接口拉取单据 HTML。
// 只允许 Worker 通过 Header 携带 INTERNAL_API_SECRET 访问。
type PrintClient struct {
	baseURL string
	secret  string
	http    *http.Client
}

func NewPrintClient(baseURL, secret string) *PrintClient {
	return &PrintClient{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		secret:  strings.TrimSpace(secret),
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// Fetch 请求 /v1/internal/templates/:id/print-html。
func (c *PrintClient) Fetch(ctx context.Context, templateID string, req PrintRequest, correlationID string) (*PrintDocument, error) {
	if c.secret == "" {
		return nil, fmt.Errorf("internal api secret missing")
	}
	if c.baseURL == "" {
		return nil, fmt.Errorf("internal api base url missing")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode print request: %w", err)
	}

	targetURL := fmt.Sprintf("%s/v1/internal/templates/%s/print-html", c.baseURL, templateID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, targetURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build internal request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Internal-Secret", c.secret)
	if correlationID != "" {
		httpReq.Header.Set("X-Correlation-ID", correlationID)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request internal print html: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 8*1024))
		return nil, &PrintStatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var doc PrintDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode internal print html: %w", err)
	}
	if strings.TrimSpace(doc.HTML) == "" {
		return nil, fmt.Errorf("internal print html is empty")
	}
	return &doc, nil
}
