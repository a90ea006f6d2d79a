package transport

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-claimintake/core"
)

type insurerResponseBody struct {
	Success    bool   `json:"success"`
	ClaimAckID string `json:"claim_ack_id"`
	AckID      string `json:"ack_id"`
	Message    string `json:"message"`
	Error      string `json:"error"`
}

// InsurerClient submits claims to the insurer/TPA over HTTP. The draft
// idempotency token travels in the body and in the Idempotency-Key header.
type InsurerClient struct {
	endpoint endpoint
}

func NewInsurerClient(adapter Adapter, config EndpointConfig) *InsurerClient {
	return &InsurerClient{endpoint: newEndpoint("insurer", adapter, config)}
}

// SubmitClaim maps a refusal status (4xx) to an unsuccessful response so the
// coordinator reports it as a rejection. Transport failures, 5xx, timeouts and
// throttling come back as errors.
func (c *InsurerClient) SubmitClaim(ctx context.Context, payload core.ClaimPayload) (core.InsurerResponse, error) {
	if c == nil {
		return core.InsurerResponse{}, fmt.Errorf("transport: insurer client is nil")
	}
	res, err := c.endpoint.postJSON(ctx, c.endpoint.config.URL, payload, payload.IdempotencyToken)
	if err != nil {
		return core.InsurerResponse{}, err
	}

	switch {
	case isSuccess(res.StatusCode):
		var body insurerResponseBody
		if err := c.endpoint.decode(res, &body); err != nil {
			return core.InsurerResponse{}, err
		}
		return core.InsurerResponse{
			Success:    body.Success,
			ClaimAckID: strings.TrimSpace(firstNonEmpty(body.ClaimAckID, body.AckID)),
			Message:    firstNonEmpty(body.Message, body.Error),
		}, nil
	case isRefusal(res.StatusCode):
		var body insurerResponseBody
		message := ""
		if c.endpoint.decode(res, &body) == nil {
			message = firstNonEmpty(body.Message, body.Error)
		}
		if message == "" {
			message = fmt.Sprintf("insurer refused the claim with status %d", res.StatusCode)
		}
		return core.InsurerResponse{Success: false, Message: message}, nil
	default:
		return core.InsurerResponse{}, statusError(c.endpoint.name, res)
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

var _ core.InsurerAPI = (*InsurerClient)(nil)
