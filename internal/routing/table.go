// Package routing implements the static routing table (C2): for each
// (request type, preference) pair a primary/fallback route, plus a parallel
// degraded table used when the caller's budget status is degraded.
package routing

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// Preference is the routing bias a request is evaluated under.
type Preference string

const (
	PreferenceQuality  Preference = "quality"
	PreferenceBalanced Preference = "balanced"
	PreferenceCost     Preference = "cost"
	// PreferenceDegraded is never requested by a caller; it is assigned
	// internally when the degraded table is selected.
	PreferenceDegraded Preference = "degraded"
)

// ModelRef identifies one (provider, model) pair a route may call.
type ModelRef struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

// Defaults carries the per-route call parameters.
type Defaults struct {
	MaxTokens    int     `yaml:"max_tokens"`
	Temperature  float64 `yaml:"temperature"`
	SystemPrompt string  `yaml:"system_prompt"`
	IsVision     bool    `yaml:"is_vision"`
}

// Route is a primary model plus an ordered fallback list.
type Route struct {
	Primary   ModelRef   `yaml:"primary"`
	Fallbacks []ModelRef `yaml:"fallbacks"`
	Defaults  Defaults   `yaml:"defaults"`
}

// Chain returns [primary, ...fallbacks] as the ordered list the fallback
// chain (C4) traverses.
func (r Route) Chain() []ModelRef {
	out := make([]ModelRef, 0, len(r.Fallbacks)+1)
	out = append(out, r.Primary)
	out = append(out, r.Fallbacks...)
	return out
}

// requestTypeRoutes is the {quality, balanced, cost} triple for one RequestType.
type requestTypeRoutes struct {
	Quality  Route `yaml:"quality"`
	Balanced Route `yaml:"balanced"`
	Cost     Route `yaml:"cost"`
}

func (r requestTypeRoutes) forPreference(p Preference) (Route, bool) {
	switch p {
	case PreferenceQuality:
		return r.Quality, true
	case PreferenceBalanced:
		return r.Balanced, true
	case PreferenceCost:
		return r.Cost, true
	default:
		return Route{}, false
	}
}

type document struct {
	Routes map[string]requestTypeRoutes `yaml:"routes"`
}

type degradedDocument struct {
	Routes map[string]Route `yaml:"routes"`
}

// Table is the immutable, concurrent-read-safe routing table plus its
// parallel degraded table.
type Table struct {
	mu       sync.RWMutex
	doc      document
	degraded degradedDocument
	path     string
	degPath  string
}

var defaultPaths = []string{os.Getenv("GOVERNOR_ROUTING_PATH"), "/app/config/routing.yaml", "./config/routing.yaml"}
var defaultDegradedPaths = []string{os.Getenv("GOVERNOR_ROUTING_DEGRADED_PATH"), "/app/config/routing.degraded.yaml", "./config/routing.degraded.yaml"}

func findUp(name string) (string, bool) {
	wd, err := os.Getwd()
	if err != nil {
		return "", false
	}
	for i := 0; i < 6; i++ {
		cand := filepath.Join(wd, "config", name)
		if _, err := os.Stat(cand); err == nil {
			return cand, true
		}
		wd = filepath.Dir(wd)
	}
	return "", false
}

func resolvePath(explicit string, candidates []string, fallbackName string) string {
	if explicit != "" {
		return explicit
	}
	for _, p := range candidates {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	if p, ok := findUp(fallbackName); ok {
		return p
	}
	return ""
}

// NewTable loads the routing table and its degraded counterpart.
func NewTable(path, degradedPath string) (*Table, error) {
	t := &Table{
		path:    resolvePath(path, defaultPaths, "routing.yaml"),
		degPath: resolvePath(degradedPath, defaultDegradedPaths, "routing.degraded.yaml"),
	}
	if err := t.Reload(); err != nil {
		return nil, err
	}
	return t, nil
}

// Reload re-reads both YAML documents. On error the previous snapshot is
// left in place (atomic pointer-style swap via the mutex-guarded fields).
func (t *Table) Reload() error {
	var doc document
	if t.path != "" {
		data, err := os.ReadFile(t.path)
		if err != nil {
			return fmt.Errorf("routing: read %s: %w", t.path, err)
		}
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("routing: parse %s: %w", t.path, err)
		}
	}
	var deg degradedDocument
	if t.degPath != "" {
		data, err := os.ReadFile(t.degPath)
		if err != nil {
			return fmt.Errorf("routing: read %s: %w", t.degPath, err)
		}
		if err := yaml.Unmarshal(data, &deg); err != nil {
			return fmt.Errorf("routing: parse %s: %w", t.degPath, err)
		}
	}
	t.mu.Lock()
	t.doc = doc
	t.degraded = deg
	t.mu.Unlock()
	return nil
}

// ErrUnknownRequestType signals a request type absent from the table, which
// spec.md §7 classifies as a fatal 400 invalid_request.
var ErrUnknownRequestType = fmt.Errorf("unknown request type")

// Select returns the route for (requestType, preference) from the normal
// table.
func (t *Table) Select(requestType string, preference Preference) (Route, error) {
	canonical := NormalizeRequestType(requestType)
	t.mu.RLock()
	defer t.mu.RUnlock()
	rts, ok := t.doc.Routes[canonical]
	if !ok {
		return Route{}, fmt.Errorf("%w: %s", ErrUnknownRequestType, requestType)
	}
	route, ok := rts.forPreference(preference)
	if !ok {
		return Route{}, fmt.Errorf("routing: unsupported preference %q", preference)
	}
	return route, nil
}

// SelectDegraded returns the degraded table's single cheap route for a
// request type, and whether one exists.
func (t *Table) SelectDegraded(requestType string) (Route, bool) {
	canonical := NormalizeRequestType(requestType)
	t.mu.RLock()
	defer t.mu.RUnlock()
	route, ok := t.degraded.Routes[canonical]
	return route, ok
}
