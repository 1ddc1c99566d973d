// Package handlers implements the inbound HTTP surface: chat completions
// with model-aware rewriting and think tag filtering, the health probe and
// the generic passthrough for every other upstream route.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"
)

// ErrorResponse is the OpenAI-compatible error envelope.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the error payload.
type ErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
}

// BuildErrorResponseBody renders an error body for status. When errText is
// itself a JSON document (an upstream error payload) it passes through
// verbatim; otherwise an OpenAI-style envelope is synthesized.
func BuildErrorResponseBody(status int, errText string) []byte {
	if gjson.Valid(errText) && gjson.Parse(errText).IsObject() {
		return []byte(errText)
	}
	body, _ := json.Marshal(ErrorResponse{Error: ErrorDetail{
		Message: errText,
		Type:    errorTypeForStatus(status),
	}})
	return body
}

func errorTypeForStatus(status int) string {
	switch {
	case status == http.StatusBadRequest:
		return "invalid_request_error"
	case status == http.StatusGatewayTimeout:
		return "timeout_error"
	case status >= 500:
		return "upstream_error"
	default:
		return "proxy_error"
	}
}

func writeError(c *gin.Context, status int, errText string) {
	c.Data(status, "application/json", BuildErrorResponseBody(status, errText))
	c.Abort()
}
