package invoker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dunamismax/pixelbench/internal/domain"
)

const maxResponseBytes = 64 << 20

// HTTP invokes functions hosted by the stage server.
type HTTP struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTP(baseURL string, timeout time.Duration) *HTTP {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTP{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (h *HTTP) Invoke(ctx context.Context, functionID string, req domain.Request) (domain.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return domain.Response{}, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/functions/%s/invoke", h.baseURL, url.PathEscape(functionID))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.Response{}, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(httpReq)
	if err != nil {
		return domain.Response{}, fmt.Errorf("invoke %s: %w", functionID, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		return domain.Response{}, fmt.Errorf("%w: %s", ErrThrottled, functionID)
	case http.StatusNotFound:
		return domain.Response{}, fmt.Errorf("%w: %s", ErrUnknownFunction, functionID)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return domain.Response{}, fmt.Errorf("read response: %w", err)
	}

	var out domain.Response
	if err := json.Unmarshal(raw, &out); err != nil {
		return domain.Response{}, fmt.Errorf("decode response status=%d: %w", resp.StatusCode, err)
	}
	if !out.Success && out.Error == nil {
		return domain.Response{}, fmt.Errorf("function %s returned status=%d without an error", functionID, resp.StatusCode)
	}
	return out, nil
}
