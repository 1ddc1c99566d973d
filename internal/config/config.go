// Package config provides configuration management for the cot-proxy server.
// It handles loading settings from a YAML file and from environment
// variables (environment wins), parsing the declarative LLM_PARAMS model
// profile language, and exposing an immutable configuration snapshot that
// is safe to share across concurrent requests.
package config

import (
	"sync/atomic"
	"time"
)

// Hard-coded fallbacks used when neither a model profile nor the global
// configuration supplies a value.
const (
	DefaultThinkStartTag = "<think>"
	DefaultThinkEndTag   = "</think>"

	// DefaultRequestTimeout bounds a single upstream request.
	DefaultRequestTimeout = 120 * time.Second

	// DefaultPort is the inbound listen port.
	DefaultPort = 5000
)

// Config is the application's configuration. A Config is immutable once
// built; hot reload swaps a freshly built Config into a Store rather than
// mutating the one in flight.
type Config struct {
	// Port is the inbound HTTP listen port.
	Port int `yaml:"port"`

	// TargetBaseURL is the upstream API base URL. Required. Always
	// normalized to end with a trailing slash so path joins behave.
	TargetBaseURL string `yaml:"target-base-url"`

	// RequestTimeout bounds a single upstream call, including reading a
	// non-streaming response body.
	RequestTimeout time.Duration `yaml:"-"`

	// RequestTimeoutSeconds is the YAML-facing form of RequestTimeout.
	RequestTimeoutSeconds int `yaml:"request-timeout-seconds"`

	// Debug enables debug-level logging.
	Debug bool `yaml:"debug"`

	// DefaultThinkStart and DefaultThinkEnd are the global think tag pair
	// used by profiles that do not configure their own.
	DefaultThinkStart string `yaml:"think-tag"`
	DefaultThinkEnd   string `yaml:"think-end-tag"`

	// ProxyURL optionally routes upstream traffic through an egress proxy
	// (http, https or socks5).
	ProxyURL string `yaml:"proxy-url"`

	// LogFile enables rotated file logging when set.
	LogFile string `yaml:"log-file"`

	// Profiles lists per-model behavior profiles. When the same model name
	// appears more than once the last definition wins.
	Profiles []ModelProfile `yaml:"models"`

	profileIndex map[string]*ModelProfile
}

// ModelProfile describes the behavior attached to one externally visible
// model name. All fields other than Model are optional and fall back to
// the global defaults.
type ModelProfile struct {
	// Model is the externally visible model name, matched against request
	// bodies by exact, case-sensitive string equality.
	Model string `yaml:"model"`

	// UpstreamModelName replaces the model name in the outbound request.
	// Empty means the requested name is forwarded unchanged.
	UpstreamModelName string `yaml:"upstream-model-name"`

	// ThinkTagStart and ThinkTagEnd override the global think tag pair.
	ThinkTagStart string `yaml:"think-tag-start"`
	ThinkTagEnd   string `yaml:"think-tag-end"`

	// EnableThinkTagFiltering turns on response filtering for this model.
	EnableThinkTagFiltering bool `yaml:"enable-think-tag-filtering"`

	// AppendToLastUserMessage is appended verbatim to the most recent user
	// message of every request (or added as a new user message when none
	// exists).
	AppendToLastUserMessage string `yaml:"append-to-last-user-message"`

	// Params holds parameter overrides merged verbatim into the top level
	// of the outbound request body. Values are already converted to their
	// JSON types (number, bool, string or null).
	Params map[string]any `yaml:"-"`

	// RawParams is the YAML-facing form of Params; values are converted by
	// the loader using the same rules as LLM_PARAMS values.
	RawParams map[string]string `yaml:"params"`
}

// Profile returns the profile registered for the given model name.
func (c *Config) Profile(model string) (*ModelProfile, bool) {
	if c == nil || c.profileIndex == nil {
		return nil, false
	}
	p, ok := c.profileIndex[model]
	return p, ok
}

// buildIndex rebuilds the exact-match profile lookup table. Later entries
// shadow earlier ones with the same model name.
func (c *Config) buildIndex() {
	c.profileIndex = make(map[string]*ModelProfile, len(c.Profiles))
	for i := range c.Profiles {
		if c.Profiles[i].Model == "" {
			continue
		}
		c.profileIndex[c.Profiles[i].Model] = &c.Profiles[i]
	}
}

// Store holds the current Config and supports atomic replacement on
// reload. Readers call Current and never observe a partially built
// configuration.
type Store struct {
	v atomic.Pointer[Config]
}

// NewStore returns a Store seeded with cfg.
func NewStore(cfg *Config) *Store {
	s := &Store{}
	s.v.Store(cfg)
	return s
}

// Current returns the active configuration snapshot.
func (s *Store) Current() *Config { return s.v.Load() }

// Replace installs a new configuration snapshot.
func (s *Store) Replace(cfg *Config) { s.v.Store(cfg) }
