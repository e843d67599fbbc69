package dispatch

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Extraction strategies, tried in order; first success wins
const (
	StrategyJSON      = "json_files"
	StrategyCodeBlock = "code_block"
	StrategyRaw       = "raw"
)

type extractedFile struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

var codeBlockRe = regexp.MustCompile("(?s)```[a-zA-Z0-9]*\n(.*?)```")

// Extract pulls generated code out of a raw model response. It tries a
// structured array-of-files parse, then labeled code blocks, then falls
// back to the raw text.
func Extract(raw string) (string, string) {
	if content, ok := extractJSONFiles(raw); ok {
		return content, StrategyJSON
	}
	if content, ok := extractCodeBlocks(raw); ok {
		return content, StrategyCodeBlock
	}
	return strings.TrimSpace(raw), StrategyRaw
}

// extractJSONFiles parses the response as a JSON array of {path, content}
// entries. Responses wrapped in a single code fence are unwrapped first.
func extractJSONFiles(raw string) (string, bool) {
	candidate := strings.TrimSpace(raw)
	if m := codeBlockRe.FindStringSubmatch(candidate); m != nil && strings.HasPrefix(strings.TrimSpace(m[1]), "[") {
		candidate = strings.TrimSpace(m[1])
	}
	if !strings.HasPrefix(candidate, "[") {
		return "", false
	}

	var files []extractedFile
	if err := json.Unmarshal([]byte(candidate), &files); err != nil {
		return "", false
	}

	var parts []string
	for _, f := range files {
		if strings.TrimSpace(f.Content) == "" {
			continue
		}
		if f.Path != "" {
			parts = append(parts, "// "+f.Path+"\n"+f.Content)
		} else {
			parts = append(parts, f.Content)
		}
	}
	if len(parts) == 0 {
		return "", false
	}

	return strings.Join(parts, "\n\n"), true
}

// extractCodeBlocks concatenates every fenced code block in the response
func extractCodeBlocks(raw string) (string, bool) {
	matches := codeBlockRe.FindAllStringSubmatch(raw, -1)
	if len(matches) == 0 {
		return "", false
	}

	var parts []string
	for _, m := range matches {
		block := strings.TrimRight(m[1], "\n")
		if strings.TrimSpace(block) == "" {
			continue
		}
		parts = append(parts, block)
	}
	if len(parts) == 0 {
		return "", false
	}

	return strings.Join(parts, "\n\n"), true
}
