package biz

import (
	"encoding/json"
	"fmt"
	"sort"
	"unicode/utf8"
)

// Helpers for loosely typed engine payloads.

func stringField(m map[string]interface{}, key string) string {
	if m == nil {
		return ""
	}
	switch v := m[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// firstString returns the first non-empty string among keys.
func firstString(m map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		if s := stringField(m, key); s != "" {
			return s
		}
	}
	return ""
}

// valueOr returns m[key], or def when missing.
func valueOr(m map[string]interface{}, key string, def interface{}) interface{} {
	if m == nil {
		return def
	}
	if v, ok := m[key]; ok {
		return v
	}
	return def
}

// mapField returns m[key] when it is an object.
func mapField(m map[string]interface{}, key string) (map[string]interface{}, bool) {
	if m == nil {
		return nil, false
	}
	v, ok := m[key].(map[string]interface{})
	return v, ok
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// render formats a payload fragment for prompt text.
func render(v interface{}) string {
	if v == nil {
		return "{}"
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(raw)
}

// truncateRunes cuts s to at most n characters.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

// withDegraded merges the degraded list into a map payload; absent when empty.
func withDegraded(data map[string]interface{}, degraded []string) map[string]interface{} {
	if len(degraded) > 0 {
		data["degraded"] = degraded
	} else {
		delete(data, "degraded")
	}
	return data
}
