package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Load builds a Config from the optional YAML file at path and the
// process environment. Environment variables win over file values. An
// empty path skips the file entirely (environment-only deployments).
func Load(path string) (*Config, error) {
	cfg := &Config{
		Port:              DefaultPort,
		RequestTimeout:    DefaultRequestTimeout,
		DefaultThinkStart: DefaultThinkStartTag,
		DefaultThinkEnd:   DefaultThinkEndTag,
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
		if cfg.RequestTimeoutSeconds > 0 {
			cfg.RequestTimeout = time.Duration(cfg.RequestTimeoutSeconds) * time.Second
		}
		for i := range cfg.Profiles {
			cfg.Profiles[i].Params = convertRawParams(cfg.Profiles[i].RawParams)
		}
	}

	applyEnv(cfg)

	if err := finalize(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays the environment variable surface onto cfg. LLM_PARAMS
// replaces the whole profile set when present.
func applyEnv(cfg *Config) {
	if v := os.Getenv("TARGET_BASE_URL"); v != "" {
		cfg.TargetBaseURL = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Port = n
		} else {
			log.Warnf("config: ignoring invalid PORT %q", v)
		}
	}
	if v := os.Getenv("API_REQUEST_TIMEOUT"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			cfg.RequestTimeout = time.Duration(secs) * time.Second
		} else {
			log.Warnf("config: ignoring invalid API_REQUEST_TIMEOUT %q", v)
		}
	}
	if v := os.Getenv("DEBUG"); v != "" {
		cfg.Debug = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("THINK_TAG"); v != "" {
		cfg.DefaultThinkStart = v
	}
	if v := os.Getenv("THINK_END_TAG"); v != "" {
		cfg.DefaultThinkEnd = v
	}
	if v := os.Getenv("PROXY_URL"); v != "" {
		cfg.ProxyURL = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.LogFile = v
	}
	if v := os.Getenv("LLM_PARAMS"); v != "" {
		cfg.Profiles = ParseLLMParams(v)
	}
}

// finalize validates and normalizes a fully overlaid Config and builds
// the profile index.
func finalize(cfg *Config) error {
	if cfg.TargetBaseURL == "" {
		return fmt.Errorf("config: TARGET_BASE_URL is required")
	}
	if !strings.HasPrefix(cfg.TargetBaseURL, "http://") && !strings.HasPrefix(cfg.TargetBaseURL, "https://") {
		return fmt.Errorf("config: target base URL %q must be http or https", cfg.TargetBaseURL)
	}
	if !strings.HasSuffix(cfg.TargetBaseURL, "/") {
		cfg.TargetBaseURL += "/"
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.DefaultThinkStart == "" {
		cfg.DefaultThinkStart = DefaultThinkStartTag
	}
	if cfg.DefaultThinkEnd == "" {
		cfg.DefaultThinkEnd = DefaultThinkEndTag
	}
	cfg.buildIndex()
	return nil
}

func convertRawParams(raw map[string]string) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		out[k] = ConvertParamValue(k, unescapeValue(v))
	}
	return out
}
