package config

import (
	"reflect"
	"testing"
)

func TestParseLLMParamsSingleProfile(t *testing.T) {
	profiles := ParseLLMParams("model=gpt-4,temperature=0.7,max_tokens=500")
	if len(profiles) != 1 {
		t.Fatalf("got %d profiles, want 1", len(profiles))
	}
	p := profiles[0]
	if p.Model != "gpt-4" {
		t.Errorf("model = %q, want gpt-4", p.Model)
	}
	want := map[string]any{"temperature": 0.7, "max_tokens": 500}
	if !reflect.DeepEqual(p.Params, want) {
		t.Errorf("params = %#v, want %#v", p.Params, want)
	}
}

func TestParseLLMParamsMultipleProfiles(t *testing.T) {
	profiles := ParseLLMParams("model=a,temperature=0.1;model=b,temperature=0.9")
	if len(profiles) != 2 {
		t.Fatalf("got %d profiles, want 2", len(profiles))
	}
	if profiles[0].Model != "a" || profiles[1].Model != "b" {
		t.Errorf("models = %q, %q", profiles[0].Model, profiles[1].Model)
	}
}

func TestParseLLMParamsReservedKeys(t *testing.T) {
	profiles := ParseLLMParams(
		"model=Qwen3-Thinking,upstream_model_name=Qwen3-32B," +
			"enable_think_tag_filtering=true,think_tag_start=<reasoning>," +
			"think_tag_end=</reasoning>,append_to_last_user_message=/think,temperature=0.6")
	if len(profiles) != 1 {
		t.Fatalf("got %d profiles, want 1", len(profiles))
	}
	p := profiles[0]
	if p.UpstreamModelName != "Qwen3-32B" {
		t.Errorf("upstream = %q", p.UpstreamModelName)
	}
	if !p.EnableThinkTagFiltering {
		t.Error("filtering not enabled")
	}
	if p.ThinkTagStart != "<reasoning>" || p.ThinkTagEnd != "</reasoning>" {
		t.Errorf("tags = %q/%q", p.ThinkTagStart, p.ThinkTagEnd)
	}
	if p.AppendToLastUserMessage != "/think" {
		t.Errorf("append = %q", p.AppendToLastUserMessage)
	}
	// Reserved keys never leak into the override map.
	for _, k := range []string{keyModel, keyUpstreamModelName, keyEnableFiltering, keyThinkTagStart, keyThinkTagEnd, keyAppendToLastUser} {
		if _, ok := p.Params[k]; ok {
			t.Errorf("reserved key %q leaked into params", k)
		}
	}
	if p.Params["temperature"] != 0.6 {
		t.Errorf("temperature = %#v", p.Params["temperature"])
	}
}

func TestParseLLMParamsSkipsMalformedEntries(t *testing.T) {
	profiles := ParseLLMParams("temperature=0.7;model=ok,top_k=40;;garbage")
	if len(profiles) != 1 {
		t.Fatalf("got %d profiles, want 1", len(profiles))
	}
	if profiles[0].Model != "ok" {
		t.Errorf("model = %q, want ok", profiles[0].Model)
	}
	if profiles[0].Params["top_k"] != 40 {
		t.Errorf("top_k = %#v, want 40", profiles[0].Params["top_k"])
	}
}

func TestParseLLMParamsDropsEntryWithMalformedFirstPair(t *testing.T) {
	// A first pair without '=' makes the whole entry malformed; a later
	// model= pair must not legitimize it.
	profiles := ParseLLMParams("garbage,model=x,temperature=0.5")
	if len(profiles) != 0 {
		t.Fatalf("got %d profiles, want entry dropped: %+v", len(profiles), profiles)
	}
}

func TestParseLLMParamsEmptyValueBecomesNull(t *testing.T) {
	profiles := ParseLLMParams("model=m,temperature=,top_k=40")
	if len(profiles) != 1 {
		t.Fatalf("got %d profiles, want 1", len(profiles))
	}
	v, ok := profiles[0].Params["temperature"]
	if !ok || v != nil {
		t.Errorf("temperature = %#v (present=%v), want JSON null", v, ok)
	}
	if profiles[0].Params["top_k"] != 40 {
		t.Errorf("top_k = %#v, want 40", profiles[0].Params["top_k"])
	}
}

func TestParseLLMParamsSkipsPairWithoutEquals(t *testing.T) {
	profiles := ParseLLMParams("model=m,notapair,temperature=0.5")
	if len(profiles) != 1 {
		t.Fatalf("got %d profiles, want 1", len(profiles))
	}
	if profiles[0].Params["temperature"] != 0.5 {
		t.Errorf("temperature = %#v", profiles[0].Params["temperature"])
	}
	if _, ok := profiles[0].Params["notapair"]; ok {
		t.Error("pair without '=' should be dropped")
	}
}

func TestParseLLMParamsUnescapesNewlines(t *testing.T) {
	profiles := ParseLLMParams(`model=m,append_to_last_user_message=line1\nline2`)
	if got := profiles[0].AppendToLastUserMessage; got != "line1\nline2" {
		t.Errorf("append = %q, want embedded newline", got)
	}
}

func TestParseLLMParamsDuplicateModelLastWins(t *testing.T) {
	cfg := &Config{
		TargetBaseURL: "http://up/",
		Profiles:      ParseLLMParams("model=m,temperature=0.1;model=m,temperature=0.9"),
	}
	cfg.buildIndex()
	p, ok := cfg.Profile("m")
	if !ok {
		t.Fatal("profile not found")
	}
	if p.Params["temperature"] != 0.9 {
		t.Errorf("temperature = %#v, want last definition to win", p.Params["temperature"])
	}
}

func TestConvertParamValueTypes(t *testing.T) {
	cases := []struct {
		key, val string
		want     any
	}{
		{"temperature", "0.9", 0.9},
		{"top_p", "1", 1.0},
		{"top_k", "50", 50},
		{"max_tokens", "2048", 2048},
		{"seed", "-1", -1},
		{"mirostat", "true", true},
		{"echo", "FALSE", false},
		{"stream", "true", true},
		{"stop", "###", "###"},
		{"temperature", "null", nil},
		{"anything", "NULL", nil},
		{"temperature", "", nil},
		{"stop", "", nil},
		{"temperature", "hot", "hot"},
		{"top_k", "many", "many"},
		{"mirostat", "maybe", "maybe"},
	}
	for _, c := range cases {
		if got := ConvertParamValue(c.key, c.val); got != c.want {
			t.Errorf("ConvertParamValue(%q, %q) = %#v, want %#v", c.key, c.val, got, c.want)
		}
	}
}
