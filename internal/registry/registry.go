// Package registry resolves the behavior attached to a requested model
// name: the upstream model to call, the parameter overrides to merge and
// the think tag filtering settings for the response.
package registry

import (
	log "github.com/sirupsen/logrus"

	"github.com/jeffnash/cot-proxy/internal/config"
)

// fallbackModel is the profile consulted when a request carries no model
// field at all.
const fallbackModel = "default"

// ResolvedContext is the fully resolved per-request behavior. Every field
// is populated; resolution never fails.
type ResolvedContext struct {
	// RequestedModel is the model name taken from the request body (or
	// "default" when the body had none).
	RequestedModel string

	// UpstreamModel is the model name to send upstream. Empty means the
	// request body's model field is left untouched.
	UpstreamModel string

	// Overrides are typed parameter values merged into the top level of
	// the outbound body.
	Overrides map[string]any

	// AppendText is appended to the most recent user message when set.
	AppendText string

	// FilterEnabled gates response think tag filtering.
	FilterEnabled bool

	// ThinkTagStart and ThinkTagEnd are the tag pair to filter. Always
	// populated, even when filtering is disabled.
	ThinkTagStart string
	ThinkTagEnd   string
}

// Resolve maps a requested model name to its behavior under cfg. Field by
// field the precedence is matched profile, then global defaults, then the
// hard-coded fallbacks. Matching is exact and case sensitive; an unmatched
// model yields a transparent pass-through context.
func Resolve(requestedModel string, cfg *config.Config) ResolvedContext {
	name := requestedModel
	if name == "" {
		name = fallbackModel
	}

	ctx := ResolvedContext{
		RequestedModel: name,
		ThinkTagStart:  cfg.DefaultThinkStart,
		ThinkTagEnd:    cfg.DefaultThinkEnd,
	}
	if ctx.ThinkTagStart == "" {
		ctx.ThinkTagStart = config.DefaultThinkStartTag
	}
	if ctx.ThinkTagEnd == "" {
		ctx.ThinkTagEnd = config.DefaultThinkEndTag
	}

	profile, ok := cfg.Profile(name)
	if !ok {
		log.Debugf("registry: no profile for model %q, passing through", name)
		return ctx
	}

	ctx.UpstreamModel = profile.UpstreamModelName
	ctx.Overrides = profile.Params
	ctx.AppendText = profile.AppendToLastUserMessage
	ctx.FilterEnabled = profile.EnableThinkTagFiltering
	if profile.ThinkTagStart != "" {
		ctx.ThinkTagStart = profile.ThinkTagStart
	}
	if profile.ThinkTagEnd != "" {
		ctx.ThinkTagEnd = profile.ThinkTagEnd
	}

	log.Debugf("registry: model %q resolved (upstream=%q filter=%v overrides=%d)",
		name, ctx.UpstreamModel, ctx.FilterEnabled, len(ctx.Overrides))
	return ctx
}
