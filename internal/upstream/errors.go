package upstream

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Error is the normalized upstream failure every caller sees. Raw transport
// and body shapes never cross this boundary; the orchestrator only inspects
// Code, Message and Status.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("upstream %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("upstream %d: %s", e.Status, e.Message)
}

// AsError unwraps a normalized upstream error, nil if err is something else.
func AsError(err error) *Error {
	var ue *Error
	if errors.As(err, &ue) {
		return ue
	}
	return nil
}

// normalizeError builds an *Error from a non-2xx response body. The
// platform answers either a flat {message, code} or an enveloped
// {error: {code, message}}; both collapse to the same shape here.
func normalizeError(status int, body []byte) *Error {
	var flat struct {
		Message string `json:"message"`
		Code    string `json:"code"`
		Detail  string `json:"detail"`
	}
	if err := json.Unmarshal(body, &flat); err == nil {
		msg := flat.Message
		if msg == "" {
			msg = flat.Detail
		}
		if msg != "" {
			return &Error{Status: status, Code: flat.Code, Message: msg}
		}
	}

	var enveloped struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &enveloped); err == nil && enveloped.Error.Message != "" {
		return &Error{Status: status, Code: enveloped.Error.Code, Message: enveloped.Error.Message}
	}

	return &Error{Status: status, Message: http.StatusText(status)}
}

// transportError wraps connection-level failures (no HTTP status reached).
func transportError(err error) *Error {
	return &Error{Status: 0, Code: "TRANSPORT", Message: err.Error()}
}
