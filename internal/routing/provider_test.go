package routing

import "testing"

func TestInferProvider(t *testing.T) {
	cases := map[string]string{
		"claude-3-opus":  "anthropic",
		"gpt-4o":         "openai",
		"o3-mini":        "openai",
		"o4-mini":        "openai",
		"gemini-1.5-pro": "google",
	}
	for model, want := range cases {
		got, ok := InferProvider(model)
		if !ok {
			t.Fatalf("InferProvider(%q): expected a match", model)
		}
		if got != want {
			t.Errorf("InferProvider(%q) = %q, want %q", model, got, want)
		}
	}
}

func TestInferProviderUnknown(t *testing.T) {
	if _, ok := InferProvider("llama-3-70b"); ok {
		t.Fatal("expected no match for unrecognized model prefix")
	}
}
