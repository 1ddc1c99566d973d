// Package transform rewrites inbound chat completion bodies according to
// a resolved model context: upstream model substitution, parameter
// override merging and user message augmentation. Payloads stay raw JSON
// bytes end to end; only the touched fields are rewritten.
package transform

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/jeffnash/cot-proxy/internal/registry"
)

// ErrMalformedRequest marks client errors: bodies that are not JSON
// objects, or that lack a messages array when one is required.
var ErrMalformedRequest = errors.New("malformed request")

// Apply rewrites rawJSON for the upstream call described by ctx. The input
// slice is never modified. Fields not addressed by ctx, including stream,
// pass through byte for byte.
func Apply(rawJSON []byte, ctx registry.ResolvedContext) ([]byte, error) {
	if !gjson.ValidBytes(rawJSON) {
		return nil, fmt.Errorf("%w: body is not valid JSON", ErrMalformedRequest)
	}
	root := gjson.ParseBytes(rawJSON)
	if !root.IsObject() {
		return nil, fmt.Errorf("%w: body is not a JSON object", ErrMalformedRequest)
	}

	out := rawJSON
	var err error

	if ctx.UpstreamModel != "" {
		out, err = sjson.SetBytes(out, "model", ctx.UpstreamModel)
		if err != nil {
			return nil, fmt.Errorf("set model: %w", err)
		}
	}

	for key, value := range ctx.Overrides {
		out, err = sjson.SetBytes(out, escapeKey(key), value)
		if err != nil {
			return nil, fmt.Errorf("set %s: %w", key, err)
		}
	}

	if ctx.AppendText != "" {
		out, err = appendToLastUserMessage(out, ctx.AppendText)
		if err != nil {
			return nil, err
		}
	}

	return out, nil
}

// appendToLastUserMessage appends text to the content of the most recent
// user message, or adds a new user message when the conversation has none.
func appendToLastUserMessage(body []byte, text string) ([]byte, error) {
	messages := gjson.GetBytes(body, "messages")
	if !messages.IsArray() {
		return nil, fmt.Errorf("%w: append requires a messages array", ErrMalformedRequest)
	}

	arr := messages.Array()
	for i := len(arr) - 1; i >= 0; i-- {
		if arr[i].Get("role").String() != "user" {
			continue
		}
		content := arr[i].Get("content")
		if content.Exists() && content.Type != gjson.String {
			// Multimodal content parts; leave them intact and add the
			// text as its own user message instead.
			break
		}
		path := fmt.Sprintf("messages.%d.content", i)
		return sjson.SetBytes(body, path, content.String()+text)
	}

	// No user message yet; add one carrying just the configured text.
	return sjson.SetBytes(body, "messages.-1", map[string]any{
		"role":    "user",
		"content": text,
	})
}

// escapeKey protects override names against sjson path syntax so a key
// like "options.num_ctx" sets a top-level field, not a nested one.
func escapeKey(key string) string {
	r := strings.NewReplacer(".", `\.`, "*", `\*`, "?", `\?`, "|", `\|`, "#", `\#`, "@", `\@`)
	return r.Replace(key)
}
