package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// EndpointConfig points a collaborator client at one HTTP endpoint.
type EndpointConfig struct {
	URL     string
	Headers map[string]string
	Timeout time.Duration
}

type endpoint struct {
	name    string
	adapter Adapter
	config  EndpointConfig
}

func newEndpoint(name string, adapter Adapter, config EndpointConfig) endpoint {
	if adapter == nil {
		adapter = NewRESTAdapter(nil)
	}
	config.URL = strings.TrimSpace(config.URL)
	return endpoint{name: name, adapter: adapter, config: config}
}

func (e endpoint) postJSON(ctx context.Context, url string, payload any, idempotency string) (Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Response{}, transportWrapError(
			err,
			goerrors.CategoryBadInput,
			"transport: encode "+e.name+" request",
			http.StatusBadRequest,
			map[string]any{"client": e.name},
		)
	}
	return e.do(ctx, Request{
		Method:      http.MethodPost,
		URL:         url,
		Body:        body,
		Idempotency: idempotency,
	})
}

func (e endpoint) get(ctx context.Context, url string) (Response, error) {
	return e.do(ctx, Request{Method: http.MethodGet, URL: url})
}

func (e endpoint) do(ctx context.Context, req Request) (Response, error) {
	if strings.TrimSpace(req.URL) == "" {
		return Response{}, transportError(
			"transport: "+e.name+" endpoint url is required",
			goerrors.CategoryInternal,
			http.StatusInternalServerError,
			map[string]any{"client": e.name},
		)
	}
	headers := map[string]string{"Accept": "application/json"}
	for key, value := range e.config.Headers {
		headers[key] = value
	}
	req.Headers = headers
	req.Timeout = e.config.Timeout
	return e.adapter.Do(ctx, req)
}

func (e endpoint) decode(res Response, target any) error {
	if err := json.Unmarshal(res.Body, target); err != nil {
		return transportWrapError(
			err,
			goerrors.CategoryExternal,
			"transport: decode "+e.name+" response",
			http.StatusBadGateway,
			map[string]any{
				"client":      e.name,
				"status_code": res.StatusCode,
				"body":        bodySnippet(res.Body),
			},
		)
	}
	return nil
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

// isRefusal reports a 4xx the upstream used to refuse the request itself,
// as opposed to a timeout or throttling response.
func isRefusal(status int) bool {
	return status >= 400 && status < 500 &&
		status != http.StatusRequestTimeout &&
		status != http.StatusTooManyRequests
}
