package routing

// legacyAliases maps legacy/ambiguous request-type strings to their
// canonical "<app>:<task>" key (spec.md §9 open question). coach-chat is
// ambiguous between fitness and nutrition; the source defaults to fitness,
// and this preserves that default while flagging it here.
var legacyAliases = map[string]string{
	"meal-scan":        "nutrition:meal-scan",
	"meal-text":        "nutrition:meal-text",
	"coach-chat":       "fitness:coach-chat", // ambiguous: could be nutrition:coach-chat
	"workout-analysis": "fitness:workout-analysis",
	"memory-refresh":   "meetings:memory-refresh",
}

// NormalizeRequestType maps a legacy alias to its canonical key, or returns
// the input unchanged if it is already canonical or unrecognized (an
// unrecognized key still fails lookup in Select/SelectDegraded, producing
// the 400 invalid_request spec.md requires).
func NormalizeRequestType(requestType string) string {
	if canonical, ok := legacyAliases[requestType]; ok {
		return canonical
	}
	return requestType
}
