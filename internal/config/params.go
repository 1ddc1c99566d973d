package config

import (
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Reserved profile keys in the LLM_PARAMS language. Every other key is a
// raw parameter override merged into the outbound request body.
const (
	keyModel             = "model"
	keyUpstreamModelName = "upstream_model_name"
	keyEnableFiltering   = "enable_think_tag_filtering"
	keyThinkTagStart     = "think_tag_start"
	keyThinkTagEnd       = "think_tag_end"
	keyAppendToLastUser  = "append_to_last_user_message"
)

// paramKinds maps well-known parameter names to the JSON type their values
// are converted to before merging. Unknown parameters stay strings.
var paramKinds = map[string]byte{
	"temperature":        'f',
	"top_p":              'f',
	"presence_penalty":   'f',
	"frequency_penalty":  'f',
	"repetition_penalty": 'f',
	"top_k":              'i',
	"max_tokens":         'i',
	"seed":               'i',
	"n":                  'i',
	"num_ctx":            'i',
	"num_predict":        'i',
	"repeat_last_n":      'i',
	"batch_size":         'i',
	"echo":               'b',
	"stream":             'b',
	"mirostat":           'b',
}

// ParseLLMParams parses the declarative model profile language:
//
//	model=NAME,key=value,...;model=NAME2,key=value,...
//
// Entries are separated by ';' and must start with a model= pair; entries
// that do not are skipped with a warning, as are pairs without '='.
// Reserved keys configure the profile itself, every other pair becomes a
// typed parameter override. A literal `\n` inside a value is unescaped to
// a newline.
func ParseLLMParams(raw string) []ModelProfile {
	var profiles []ModelProfile
	for _, entry := range strings.Split(raw, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		p, ok := parseProfileEntry(entry)
		if !ok {
			continue
		}
		profiles = append(profiles, p)
	}
	return profiles
}

func parseProfileEntry(entry string) (ModelProfile, bool) {
	p := ModelProfile{Params: map[string]any{}}
	sawModel := false

	for i, pair := range strings.Split(entry, ",") {
		key, value, found := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if i == 0 && (!found || key != keyModel) {
			log.Warnf("config: skipping LLM_PARAMS entry %q: first pair must be model=NAME", entry)
			return ModelProfile{}, false
		}
		if !found {
			log.Warnf("config: skipping malformed pair %q in LLM_PARAMS entry", pair)
			continue
		}
		value = unescapeValue(strings.TrimSpace(value))

		switch key {
		case keyModel:
			p.Model = value
			sawModel = true
		case keyUpstreamModelName:
			p.UpstreamModelName = value
		case keyEnableFiltering:
			p.EnableThinkTagFiltering = strings.EqualFold(value, "true")
		case keyThinkTagStart:
			p.ThinkTagStart = value
		case keyThinkTagEnd:
			p.ThinkTagEnd = value
		case keyAppendToLastUser:
			p.AppendToLastUserMessage = value
		default:
			p.Params[key] = ConvertParamValue(key, value)
		}
	}

	if !sawModel || p.Model == "" {
		log.Warnf("config: skipping LLM_PARAMS entry %q: no model name", entry)
		return ModelProfile{}, false
	}
	return p, true
}

// ConvertParamValue converts a raw string parameter value to the JSON type
// registered for the parameter name. An empty value or the literal "null"
// (any case) becomes JSON null for every parameter. A value that fails
// conversion is kept as the raw string with a warning so a typo degrades
// rather than drops the parameter.
func ConvertParamValue(key, value string) any {
	if value == "" || strings.EqualFold(value, "null") {
		return nil
	}
	switch paramKinds[key] {
	case 'f':
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			log.Warnf("config: parameter %s=%q is not a number, passing through as string", key, value)
			return value
		}
		return f
	case 'i':
		n, err := strconv.Atoi(value)
		if err != nil {
			log.Warnf("config: parameter %s=%q is not an integer, passing through as string", key, value)
			return value
		}
		return n
	case 'b':
		switch strings.ToLower(value) {
		case "true":
			return true
		case "false":
			return false
		}
		log.Warnf("config: parameter %s=%q is not a boolean, passing through as string", key, value)
		return value
	default:
		return value
	}
}

// unescapeValue turns the two-character sequence `\n` into a newline.
// LLM_PARAMS values travel through environment variables, which cannot
// carry raw newlines portably.
func unescapeValue(v string) string {
	return strings.ReplaceAll(v, `\n`, "\n")
}
