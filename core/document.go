package core

import (
	"encoding/json"
	"fmt"
	"strings"
)

type DocumentKind string

const (
	DocumentNone     DocumentKind = ""
	DocumentURL      DocumentKind = "url"
	DocumentBase64   DocumentKind = "base64"
	DocumentRejected DocumentKind = "rejected"
)

// DocumentHandle is an opaque reference to an uploaded document. Value holds
// the url or base64 payload; Reason is only set for rejected uploads.
type DocumentHandle struct {
	Kind   DocumentKind `json:"kind"`
	Value  string       `json:"value,omitempty"`
	Reason string       `json:"reason,omitempty"`
}

func DocumentFromURL(url string) DocumentHandle {
	return DocumentHandle{Kind: DocumentURL, Value: strings.TrimSpace(url)}
}

func DocumentFromBase64(data string) DocumentHandle {
	return DocumentHandle{Kind: DocumentBase64, Value: strings.TrimSpace(data)}
}

func RejectedDocument(reason string) DocumentHandle {
	return DocumentHandle{Kind: DocumentRejected, Reason: strings.TrimSpace(reason)}
}

// Attached reports whether the handle references usable document content.
func (d DocumentHandle) Attached() bool {
	switch d.Kind {
	case DocumentURL, DocumentBase64:
		return strings.TrimSpace(d.Value) != ""
	default:
		return false
	}
}

type uploadResponse struct {
	Kind    string `json:"kind"`
	Value   string `json:"value"`
	Reason  string `json:"reason"`
	URL     string `json:"url"`
	FileURL string `json:"file_url"`
	Base64  string `json:"base64"`
	Data    string `json:"data"`
	Message string `json:"message"`
	Error   string `json:"error"`
	Success *bool  `json:"success"`
}

// ParseUploadResponse normalizes an upload endpoint body into a
// DocumentHandle. Bodies may be tagged ({kind, value|reason}), carry a url or
// base64 field directly, or be a bare JSON string holding a url.
func ParseUploadResponse(body []byte) (DocumentHandle, error) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return DocumentHandle{}, fmt.Errorf("core: upload response is empty")
	}
	if strings.HasPrefix(trimmed, `"`) {
		var raw string
		if err := json.Unmarshal([]byte(trimmed), &raw); err != nil {
			return DocumentHandle{}, fmt.Errorf("core: decode upload response: %w", err)
		}
		return handleFromValue(raw), nil
	}

	var resp uploadResponse
	if err := json.Unmarshal([]byte(trimmed), &resp); err != nil {
		return DocumentHandle{}, fmt.Errorf("core: decode upload response: %w", err)
	}

	switch DocumentKind(strings.ToLower(strings.TrimSpace(resp.Kind))) {
	case DocumentURL:
		return DocumentFromURL(resp.Value), nil
	case DocumentBase64:
		return DocumentFromBase64(resp.Value), nil
	case DocumentRejected:
		return RejectedDocument(firstNonEmpty(resp.Reason, resp.Message, resp.Error)), nil
	}

	if resp.Success != nil && !*resp.Success {
		return RejectedDocument(firstNonEmpty(resp.Reason, resp.Message, resp.Error, "upload rejected")), nil
	}
	if url := firstNonEmpty(resp.URL, resp.FileURL); url != "" {
		return DocumentFromURL(url), nil
	}
	if data := firstNonEmpty(resp.Base64, resp.Data); data != "" {
		return DocumentFromBase64(data), nil
	}
	if reason := firstNonEmpty(resp.Reason, resp.Message, resp.Error); reason != "" {
		return RejectedDocument(reason), nil
	}
	return DocumentHandle{}, fmt.Errorf("core: upload response has no document reference")
}

func handleFromValue(raw string) DocumentHandle {
	raw = strings.TrimSpace(raw)
	lower := strings.ToLower(raw)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return DocumentFromURL(raw)
	}
	return DocumentFromBase64(raw)
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
