package transport

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/goliatone/go-claimintake/core"
	goerrors "github.com/goliatone/go-errors"
)

const maxErrorBodySnippet = 256

func transportError(
	message string,
	category goerrors.Category,
	code int,
	metadata map[string]any,
) error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(transportTextCode(category))
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func transportWrapError(
	source error,
	category goerrors.Category,
	message string,
	code int,
	metadata map[string]any,
) error {
	if source == nil {
		return transportError(message, category, code, metadata)
	}
	err := goerrors.Wrap(source, category, message).
		WithCode(code).
		WithTextCode(transportTextCode(category))
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

// statusError reports a non-2xx upstream response that carried no usable
// body. 4xx stays bad input, everything else is an upstream failure.
func statusError(client string, res Response) error {
	category := goerrors.CategoryExternal
	code := http.StatusBadGateway
	if res.StatusCode >= 400 && res.StatusCode < 500 && res.StatusCode != http.StatusRequestTimeout && res.StatusCode != http.StatusTooManyRequests {
		category = goerrors.CategoryBadInput
		code = res.StatusCode
	}
	return transportError(
		fmt.Sprintf("transport: %s returned status %d", client, res.StatusCode),
		category,
		code,
		map[string]any{
			"client":      client,
			"status_code": res.StatusCode,
			"body":        bodySnippet(res.Body),
		},
	)
}

func bodySnippet(body []byte) string {
	text := strings.TrimSpace(string(body))
	if len(text) > maxErrorBodySnippet {
		return text[:maxErrorBodySnippet]
	}
	return text
}

func transportTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return core.ClaimErrorBadInput
	case goerrors.CategoryExternal:
		return core.ClaimErrorUpstreamFailed
	default:
		return core.ClaimErrorInternal
	}
}
