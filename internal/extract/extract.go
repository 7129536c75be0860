// Package extract pulls executable source out of free-form model responses.
package extract

import (
	"regexp"
	"strings"
)

// The sentinel tag is preferred over markdown fences because models emit
// fences for illustrative snippets too.
var (
	tagged = regexp.MustCompile(`(?s)<code>(.*?)</code>`)
	fenced = regexp.MustCompile("(?s)```([A-Za-z0-9_+-]+)[ \\t]*\\r?\\n(.*?)```")
)

// Languages are the fence annotations accepted as code.
var Languages = map[string]bool{
	"javascript": true,
	"js":         true,
	"typescript": true,
	"ts":         true,
	"jsx":        true,
	"tsx":        true,
	"node":       true,
	"mjs":        true,
}

// Code returns the trimmed body of the first <code> block, or of the first
// fenced block whose language tag is recognized. ok is false when neither is
// present. An empty block yields ("", true).
func Code(response string) (code string, ok bool) {
	if m := tagged.FindStringSubmatch(response); m != nil {
		return strings.TrimSpace(m[1]), true
	}

	for _, m := range fenced.FindAllStringSubmatch(response, -1) {
		if Languages[strings.ToLower(m[1])] {
			return strings.TrimSpace(m[2]), true
		}
	}

	return "", false
}
