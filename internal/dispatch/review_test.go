package dispatch

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelfReviewClean(t *testing.T) {
	review := SelfReview("export function Card() { return null }", &Context{})
	assert.True(t, review.Passed)
	assert.Empty(t, review.Issues)
}

func TestSelfReviewPlaceholderAndMissingShared(t *testing.T) {
	code := "export function Card() {\n  // TODO: fix\n  return null\n}"
	review := SelfReview(code, &Context{SharedComponents: []string{"Button"}})

	assert.False(t, review.Passed)
	require.GreaterOrEqual(t, len(review.Issues), 2)

	found := false
	for _, issue := range review.Issues {
		if strings.Contains(issue, "placeholder") {
			found = true
		}
	}
	assert.True(t, found, "expected a placeholder issue, got %v", review.Issues)
}

func TestSelfReviewMultibyteRunesBeforeMarker(t *testing.T) {
	// Lowercasing U+023A grows it from 2 to 3 bytes; the marker offset in
	// the lowered string must not be used to slice the original.
	code := "ȺȺȺȺȺȺȺȺ TODO"
	review := SelfReview(code, &Context{})

	assert.False(t, review.Passed)
	require.NotEmpty(t, review.Issues)
	assert.Contains(t, review.Issues[0], "TODO")
}

func TestSelfReviewAnimationWithoutGuard(t *testing.T) {
	code := ".spinner { animation: spin 1s linear infinite }"
	review := SelfReview(code, &Context{})

	assert.False(t, review.Passed)
	require.NotEmpty(t, review.Issues)
	assert.Contains(t, review.Issues[0], "animation:")
	assert.Contains(t, review.Issues[0], "prefers-reduced-motion")
}

func TestSelfReviewAnimationWithGuardPasses(t *testing.T) {
	code := "@media (prefers-reduced-motion: no-preference) { .spinner { animation: spin 1s } }"
	review := SelfReview(code, &Context{})
	assert.True(t, review.Passed)
}

func TestSelfReviewLiteralColors(t *testing.T) {
	tokens := &TokenSet{Colors: map[string]string{
		"primary": "#1a2b3c",
	}}
	code := ".card { color: #1a2b3c; background: #ff0000 }"

	review := SelfReview(code, &Context{Tokens: tokens})
	assert.False(t, review.Passed)
	require.Len(t, review.Issues, 1)
	assert.Contains(t, review.Issues[0], "#ff0000")
}

func TestSelfReviewUsesSharedComponent(t *testing.T) {
	code := `import { Button } from "./shared"` + "\nexport function Card() { return Button }"
	review := SelfReview(code, &Context{SharedComponents: []string{"Button"}})
	assert.True(t, review.Passed)
}
