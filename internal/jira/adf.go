package jira

import (
	"encoding/json"
	"strings"
)

// FlattenDescription turns a Jira description into plain text.
//
// Jira v3 returns descriptions as ADF (Atlassian Document Format) documents,
// older instances and some proxies return plain strings. Every leaf "text"
// node is collected in document order, at any depth, and the pieces are
// joined with a single space. Nodes missing "text" or "content" are skipped.
func FlattenDescription(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		// Not JSON at all
		return string(raw)
	}

	if s, ok := doc.(string); ok {
		return s
	}

	var parts []string
	collectText(doc, &parts)
	return strings.Join(parts, " ")
}

func collectText(node interface{}, parts *[]string) {
	switch n := node.(type) {
	case map[string]interface{}:
		if text, ok := n["text"].(string); ok {
			if t := strings.TrimSpace(text); t != "" {
				*parts = append(*parts, t)
			}
		}
		if content, ok := n["content"]; ok {
			collectText(content, parts)
		}
	case []interface{}:
		for _, child := range n {
			collectText(child, parts)
		}
	}
}
