package policystore

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/org/mdmagent/pkg/models"
)

var (
	// ErrMalformedPayload is returned for bodies that are not a policy object.
	ErrMalformedPayload = errors.New("malformed policy payload")
	// ErrEnvelopeStatus is returned when a {status, data} envelope is not OK.
	ErrEnvelopeStatus = errors.New("policy envelope status is not OK")
	// ErrNotWorkTime is returned for wrappers with another plugin id or no policy.
	ErrNotWorkTime = errors.New("payload is not a work-time policy")
)

// ParseWrapper decodes a local configuration payload. Only payloads that look
// like a JSON object are attempted.
func ParseWrapper(payload string) (*models.PolicyWrapper, error) {
	trimmed := strings.TrimSpace(payload)
	if !strings.HasPrefix(trimmed, "{") {
		return nil, ErrNotWorkTime
	}
	var w models.PolicyWrapper
	if err := json.Unmarshal([]byte(trimmed), &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if !w.IsWorkTime() {
		return nil, ErrNotWorkTime
	}
	return &w, nil
}

// ParsePolicyBody decodes a "get policy" response. The body is either a bare
// policy object or an envelope of the form {"status": "OK", "data": {...}}.
func ParsePolicyBody(body []byte) (*models.PolicyDocument, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: invalid JSON", ErrMalformedPayload)
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return nil, fmt.Errorf("%w: not an object", ErrMalformedPayload)
	}

	raw := body
	if status := root.Get("status"); status.Exists() {
		if !strings.EqualFold(status.String(), "OK") {
			return nil, fmt.Errorf("%w: %q", ErrEnvelopeStatus, status.String())
		}
		data := root.Get("data")
		if !data.IsObject() {
			return nil, fmt.Errorf("%w: envelope data is not an object", ErrMalformedPayload)
		}
		raw = []byte(data.Raw)
	} else if root.Get("data").Exists() {
		// An envelope without a status is never read as a bare policy.
		return nil, fmt.Errorf("%w: envelope without status", ErrMalformedPayload)
	}

	var doc models.PolicyDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return &doc, nil
}
