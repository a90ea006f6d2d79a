package transport

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-claimintake/core"
)

type localRecordResponseBody struct {
	Success bool   `json:"success"`
	ClaimID string `json:"claim_id"`
	ID      string `json:"id"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

// LocalRecordClient writes accepted claims to the local system of record.
type LocalRecordClient struct {
	endpoint endpoint
}

func NewLocalRecordClient(adapter Adapter, config EndpointConfig) *LocalRecordClient {
	return &LocalRecordClient{endpoint: newEndpoint("local_record", adapter, config)}
}

func (c *LocalRecordClient) PersistClaim(ctx context.Context, record core.LocalClaimRecord) (core.LocalRecordResponse, error) {
	if c == nil {
		return core.LocalRecordResponse{}, fmt.Errorf("transport: local record client is nil")
	}
	res, err := c.endpoint.postJSON(ctx, c.endpoint.config.URL, record, record.IdempotencyToken)
	if err != nil {
		return core.LocalRecordResponse{}, err
	}
	if !isSuccess(res.StatusCode) && !isRefusal(res.StatusCode) {
		return core.LocalRecordResponse{}, statusError(c.endpoint.name, res)
	}

	var body localRecordResponseBody
	if err := c.endpoint.decode(res, &body); err != nil {
		if isRefusal(res.StatusCode) {
			return core.LocalRecordResponse{}, statusError(c.endpoint.name, res)
		}
		return core.LocalRecordResponse{}, err
	}
	return core.LocalRecordResponse{
		Success: body.Success && isSuccess(res.StatusCode),
		ClaimID: strings.TrimSpace(firstNonEmpty(body.ClaimID, body.ID)),
		Message: firstNonEmpty(body.Message, body.Error),
	}, nil
}

var _ core.LocalRecordAPI = (*LocalRecordClient)(nil)
