package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/shawkym/room-upgrader/internal/version"
	"github.com/shawkym/room-upgrader/pkg/config"
)

const httpDefaultTimeout = 5 * time.Second

type httpNotifier struct {
	name    string
	method  string
	url     string
	headers map[string]string
	client  *resty.Client
}

func newHTTPNotifier(_ context.Context, cfg config.NotifierConfig) (Notifier, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("notifier %q missing url", cfg.Name)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = httpDefaultTimeout
	}
	method := strings.ToUpper(strings.TrimSpace(cfg.Method))
	if method == "" {
		method = http.MethodPost
	}

	return &httpNotifier{
		name:    nameOr(cfg, TypeHTTP),
		method:  method,
		url:     cfg.URL,
		headers: cfg.Headers,
		client: resty.New().
			SetTimeout(timeout).
			SetHeader("User-Agent", version.UserAgent()),
	}, nil
}

func (h *httpNotifier) Name() string { return h.name }
func (h *httpNotifier) Type() string { return TypeHTTP }

func (h *httpNotifier) Notify(ctx context.Context, evt Event) error {
	req := h.client.R().
		SetContext(ctx).
		SetBody(evt)

	if len(h.headers) > 0 {
		req.SetHeaders(h.headers)
	}
	req.SetHeader("Content-Type", "application/json")

	resp, err := req.Execute(h.method, h.url)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	if resp.IsError() || resp.StatusCode() >= 300 {
		return fmt.Errorf("http response status %d: %s", resp.StatusCode(), bodySnippet(resp.Body()))
	}
	return nil
}

func bodySnippet(body []byte) string {
	if len(body) > 512 {
		body = body[:512]
	}
	return strings.TrimSpace(string(body))
}
