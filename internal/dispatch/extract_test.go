package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractJSONFiles(t *testing.T) {
	raw := `[{"path": "Card.tsx", "content": "export function Card() {}"}]`

	content, strategy := Extract(raw)
	assert.Equal(t, StrategyJSON, strategy)
	assert.Contains(t, content, "// Card.tsx")
	assert.Contains(t, content, "export function Card() {}")
}

func TestExtractJSONFilesInsideFence(t *testing.T) {
	raw := "Here you go:\n```json\n[{\"path\": \"a.ts\", \"content\": \"const a = 1\"}]\n```"

	content, strategy := Extract(raw)
	assert.Equal(t, StrategyJSON, strategy)
	assert.Contains(t, content, "const a = 1")
}

func TestExtractCodeBlocks(t *testing.T) {
	raw := "Some prose.\n```tsx\nexport function Card() {}\n```\nMore prose.\n```css\n.card { color: red }\n```"

	content, strategy := Extract(raw)
	assert.Equal(t, StrategyCodeBlock, strategy)
	assert.Contains(t, content, "export function Card() {}")
	assert.Contains(t, content, ".card { color: red }")
	assert.NotContains(t, content, "Some prose")
}

func TestExtractRawFallback(t *testing.T) {
	content, strategy := Extract("  just plain text  ")
	assert.Equal(t, StrategyRaw, strategy)
	assert.Equal(t, "just plain text", content)
}

func TestExtractMalformedJSONFallsThrough(t *testing.T) {
	_, strategy := Extract(`[{"path": "a.ts", "content": `)
	assert.Equal(t, StrategyRaw, strategy)
}
