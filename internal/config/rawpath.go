package config

import (
	"fmt"
	"regexp"
	"strings"
)

// Raw config trees are the map[string]any form of the YAML file, edited by
// dotted key paths such as "dialog.replyDelayMs".

var segmentPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*$`)

// ValidationError rejects an edit whose result does not validate.
type ValidationError struct {
	Issues []ValidationIssue
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 1 {
		return "config rejected: " + e.Issues[0].String()
	}
	return fmt.Sprintf("config rejected: %s (and %d more)", e.Issues[0], len(e.Issues)-1)
}

// Messages returns every issue as a string.
func (e *ValidationError) Messages() []string {
	out := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		out[i] = issue.String()
	}
	return out
}

// ParseConfigPath splits a dotted key path. Every segment must look like a
// YAML key of this config: a letter followed by letters, digits, '_' or '-'.
func ParseConfigPath(raw string) ([]string, error) {
	if raw == "" {
		return nil, &ConfigError{Message: "empty config path"}
	}
	parts := strings.Split(raw, ".")
	for _, p := range parts {
		if p == "" {
			return nil, &ConfigError{Message: fmt.Sprintf("config path %q contains an empty segment", raw)}
		}
		if !segmentPattern.MatchString(p) {
			return nil, &ConfigError{Message: fmt.Sprintf("config path %q has invalid segment %q", raw, p)}
		}
	}
	return parts, nil
}

// GetValueAtPath returns the value stored under path.
func GetValueAtPath(root map[string]any, path []string) (any, bool) {
	if len(path) == 0 {
		return nil, false
	}
	parent, ok := descend(root, path[:len(path)-1], false)
	if !ok {
		return nil, false
	}
	v, ok := parent[path[len(path)-1]]
	return v, ok
}

// SetValueAtPath stores value under path. Missing or non-map intermediate
// values are replaced with maps.
func SetValueAtPath(root map[string]any, path []string, value any) {
	if len(path) == 0 {
		return
	}
	parent, _ := descend(root, path[:len(path)-1], true)
	parent[path[len(path)-1]] = value
}

// UnsetValueAtPath removes the value under path and any maps left empty by
// the removal. It reports whether a value was removed.
func UnsetValueAtPath(root map[string]any, path []string) bool {
	if len(path) == 0 {
		return false
	}
	key := path[0]
	if len(path) == 1 {
		if _, ok := root[key]; !ok {
			return false
		}
		delete(root, key)
		return true
	}
	child, ok := root[key].(map[string]any)
	if !ok || !UnsetValueAtPath(child, path[1:]) {
		return false
	}
	if len(child) == 0 {
		delete(root, key)
	}
	return true
}

func descend(root map[string]any, path []string, create bool) (map[string]any, bool) {
	cur := root
	for _, key := range path {
		next, ok := cur[key].(map[string]any)
		if !ok {
			if !create {
				return nil, false
			}
			next = map[string]any{}
			cur[key] = next
		}
		cur = next
	}
	return cur, true
}

// CloneRaw deep-copies the map levels of a raw config tree. Slices and scalar
// values are shared.
func CloneRaw(src map[string]any) map[string]any {
	dst := make(map[string]any, len(src))
	for k, v := range src {
		if m, ok := v.(map[string]any); ok {
			v = CloneRaw(m)
		}
		dst[k] = v
	}
	return dst
}

// ApplyEdit runs edit on a copy of raw and returns the edited tree with the
// config it parses to. raw itself is never modified. A result that fails
// validation is rejected with a *ValidationError.
func ApplyEdit(raw map[string]any, edit func(map[string]any) error) (map[string]any, Config, error) {
	candidate := CloneRaw(raw)
	if err := edit(candidate); err != nil {
		return nil, Config{}, err
	}
	cfg, err := ParseRaw(candidate)
	if err != nil {
		return nil, Config{}, err
	}
	if issues := Validate(&cfg); len(issues) > 0 {
		return nil, Config{}, &ValidationError{Issues: issues}
	}
	return candidate, cfg, nil
}
