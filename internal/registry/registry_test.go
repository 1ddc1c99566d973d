package registry

import (
	"testing"

	"github.com/jeffnash/cot-proxy/internal/config"
)

func mustConfig(t *testing.T, llmParams string) *config.Config {
	t.Helper()
	t.Setenv("TARGET_BASE_URL", "http://upstream/")
	t.Setenv("LLM_PARAMS", llmParams)
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return cfg
}

func TestResolveMatchedProfile(t *testing.T) {
	cfg := mustConfig(t, "model=Qwen3-Thinking,upstream_model_name=Qwen3-32B,"+
		"enable_think_tag_filtering=true,temperature=0.6,append_to_last_user_message=/think")
	ctx := Resolve("Qwen3-Thinking", cfg)
	if ctx.UpstreamModel != "Qwen3-32B" {
		t.Errorf("upstream = %q", ctx.UpstreamModel)
	}
	if !ctx.FilterEnabled {
		t.Error("filtering should be enabled")
	}
	if ctx.Overrides["temperature"] != 0.6 {
		t.Errorf("temperature override = %#v", ctx.Overrides["temperature"])
	}
	if ctx.AppendText != "/think" {
		t.Errorf("append = %q", ctx.AppendText)
	}
	if ctx.ThinkTagStart != "<think>" || ctx.ThinkTagEnd != "</think>" {
		t.Errorf("tags = %q/%q, want global defaults", ctx.ThinkTagStart, ctx.ThinkTagEnd)
	}
}

func TestResolveUnknownModelPassesThrough(t *testing.T) {
	cfg := mustConfig(t, "model=known")
	ctx := Resolve("unknown", cfg)
	if ctx.UpstreamModel != "" {
		t.Errorf("upstream = %q, want empty", ctx.UpstreamModel)
	}
	if ctx.FilterEnabled {
		t.Error("filtering should be off")
	}
	if len(ctx.Overrides) != 0 || ctx.AppendText != "" {
		t.Errorf("unexpected behavior attached: %+v", ctx)
	}
}

func TestResolveIsCaseSensitive(t *testing.T) {
	cfg := mustConfig(t, "model=GPT-4,enable_think_tag_filtering=true")
	if ctx := Resolve("gpt-4", cfg); ctx.FilterEnabled {
		t.Error("lowercase name must not match uppercase profile")
	}
}

func TestResolveEmptyModelUsesDefaultProfile(t *testing.T) {
	cfg := mustConfig(t, "model=default,upstream_model_name=fallback-model")
	ctx := Resolve("", cfg)
	if ctx.RequestedModel != "default" {
		t.Errorf("requested = %q", ctx.RequestedModel)
	}
	if ctx.UpstreamModel != "fallback-model" {
		t.Errorf("upstream = %q", ctx.UpstreamModel)
	}
}

func TestResolveProfileTagOverridesGlobal(t *testing.T) {
	t.Setenv("THINK_TAG", "<global>")
	t.Setenv("THINK_END_TAG", "</global>")
	cfg := mustConfig(t, "model=a,enable_think_tag_filtering=true;"+
		"model=b,enable_think_tag_filtering=true,think_tag_start=<own>,think_tag_end=</own>")

	a := Resolve("a", cfg)
	if a.ThinkTagStart != "<global>" || a.ThinkTagEnd != "</global>" {
		t.Errorf("a tags = %q/%q, want globals", a.ThinkTagStart, a.ThinkTagEnd)
	}
	b := Resolve("b", cfg)
	if b.ThinkTagStart != "<own>" || b.ThinkTagEnd != "</own>" {
		t.Errorf("b tags = %q/%q, want profile tags", b.ThinkTagStart, b.ThinkTagEnd)
	}
}

func TestResolveFilteringDefaultsOff(t *testing.T) {
	cfg := mustConfig(t, "model=m,upstream_model_name=n")
	if ctx := Resolve("m", cfg); ctx.FilterEnabled {
		t.Error("filtering must default to off")
	}
}
