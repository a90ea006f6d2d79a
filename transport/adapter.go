package transport

import (
	"context"
	"time"
)

type Request struct {
	Method               string
	URL                  string
	Headers              map[string]string
	Query                map[string]string
	Body                 []byte
	Timeout              time.Duration
	Idempotency          string
	MaxResponseBodyBytes int64
}

type Response struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Metadata   map[string]any
}

// Adapter executes one request against a collaborator endpoint.
type Adapter interface {
	Kind() string
	Do(ctx context.Context, req Request) (Response, error)
}
