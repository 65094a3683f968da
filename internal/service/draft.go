// Package service implements the ingestion and reconciliation engine.
package service

import (
	"strconv"
	"strings"
)

// Action is one step of a draft: a tool name plus its parameters as the
// model produced them. Parameters are validated at the executor boundary.
type Action struct {
	Tool   string         `json:"tool"`
	Params map[string]any `json:"params"`
}

// Draft is the structured, not-yet-committed output of the orchestrator.
type Draft struct {
	Actions       []Action `json:"actions"`
	Analysis      string   `json:"analysis"`
	Clarification string   `json:"clarification,omitempty"`
	Error         string   `json:"error,omitempty"`
}

func errorDraft(reason string) Draft {
	return Draft{Actions: []Action{}, Error: reason}
}

// paramString fetches a string parameter, tolerating absent keys.
func paramString(params map[string]any, key string) string {
	v, ok := params[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// paramNumber fetches a numeric parameter. JSON numbers decode as float64;
// models occasionally quote them, so strings are parsed too.
func paramNumber(params map[string]any, key string) (float64, bool) {
	v, ok := params[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
