package routing

import "strings"

// InferProvider maps a model name prefix to its provider, per spec's
// model-override step: claude* -> anthropic, gpt*/o3/o4 -> openai,
// gemini* -> google. Unlike the broader pattern matcher this table
// replaces (internal/models/provider.go in the teacher), an unrecognized
// prefix is reported as an error rather than silently defaulted, per the
// "unknown provider in modelOverride" open question: the router turns this
// into an invalid_request rather than guessing.
func InferProvider(model string) (string, bool) {
	ml := strings.ToLower(model)
	switch {
	case strings.HasPrefix(ml, "claude"):
		return "anthropic", true
	case strings.HasPrefix(ml, "gpt"), strings.HasPrefix(ml, "o3"), strings.HasPrefix(ml, "o4"):
		return "openai", true
	case strings.HasPrefix(ml, "gemini"):
		return "google", true
	default:
		return "", false
	}
}
