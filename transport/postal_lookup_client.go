package transport

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/goliatone/go-claimintake/core"
)

const pincodePlaceholder = "{pincode}"

type postalRecordBody struct {
	Status string `json:"status"`
	City   string `json:"city"`
	State  string `json:"state"`
}

type postOfficeBody struct {
	Name     string `json:"Name"`
	District string `json:"District"`
	State    string `json:"State"`
}

type postOfficeEnvelope struct {
	Status     string           `json:"Status"`
	Message    string           `json:"Message"`
	PostOffice []postOfficeBody `json:"PostOffice"`
}

// PostalLookupClient resolves a pincode to city and state. The endpoint URL
// may carry a {pincode} placeholder; otherwise the pincode is appended as a
// path segment. Both flat {status, city, state} bodies and post office
// directory bodies ([{Status, PostOffice: [{District, State}]}]) are read.
type PostalLookupClient struct {
	endpoint endpoint
}

func NewPostalLookupClient(adapter Adapter, config EndpointConfig) *PostalLookupClient {
	return &PostalLookupClient{endpoint: newEndpoint("postal_lookup", adapter, config)}
}

func (c *PostalLookupClient) LookupPincode(ctx context.Context, pincode string) (core.PostalAddress, error) {
	if c == nil {
		return core.PostalAddress{}, fmt.Errorf("transport: postal lookup client is nil")
	}
	pincode = strings.TrimSpace(pincode)
	res, err := c.endpoint.get(ctx, c.lookupURL(pincode))
	if err != nil {
		return core.PostalAddress{}, err
	}
	if res.StatusCode == http.StatusNotFound {
		return core.PostalAddress{}, core.ErrPincodeNotFound
	}
	if !isSuccess(res.StatusCode) {
		return core.PostalAddress{}, statusError(c.endpoint.name, res)
	}

	if bytes.HasPrefix(bytes.TrimSpace(res.Body), []byte("[")) {
		var envelopes []postOfficeEnvelope
		if err := c.endpoint.decode(res, &envelopes); err != nil {
			return core.PostalAddress{}, err
		}
		return addressFromPostOffices(envelopes)
	}

	var body postalRecordBody
	if err := c.endpoint.decode(res, &body); err != nil {
		return core.PostalAddress{}, err
	}
	if isErrorStatus(body.Status) || (strings.TrimSpace(body.City) == "" && strings.TrimSpace(body.State) == "") {
		return core.PostalAddress{}, core.ErrPincodeNotFound
	}
	return core.PostalAddress{
		Status: strings.TrimSpace(body.Status),
		City:   strings.TrimSpace(body.City),
		State:  strings.TrimSpace(body.State),
	}, nil
}

func (c *PostalLookupClient) lookupURL(pincode string) string {
	base := c.endpoint.config.URL
	escaped := url.PathEscape(pincode)
	if strings.Contains(base, pincodePlaceholder) {
		return strings.ReplaceAll(base, pincodePlaceholder, escaped)
	}
	if base == "" {
		return ""
	}
	return strings.TrimRight(base, "/") + "/" + escaped
}

func addressFromPostOffices(envelopes []postOfficeEnvelope) (core.PostalAddress, error) {
	for _, envelope := range envelopes {
		if isErrorStatus(envelope.Status) {
			continue
		}
		for _, office := range envelope.PostOffice {
			city := strings.TrimSpace(office.District)
			state := strings.TrimSpace(office.State)
			if city == "" && state == "" {
				continue
			}
			return core.PostalAddress{
				Status: firstNonEmpty(envelope.Status, "Success"),
				City:   city,
				State:  state,
			}, nil
		}
	}
	return core.PostalAddress{}, core.ErrPincodeNotFound
}

func isErrorStatus(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "error", "failed", "failure", "not_found", "404":
		return true
	default:
		return false
	}
}

var _ core.PostalLookup = (*PostalLookupClient)(nil)
