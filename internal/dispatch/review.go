package dispatch

import (
	"fmt"
	"regexp"
	"strings"
)

// Review is the outcome of the static self-review gate
type Review struct {
	Passed bool     `json:"passed"`
	Issues []string `json:"issues,omitempty"`
}

var placeholderMarkers = []string{
	"TODO",
	"FIXME",
	"PLACEHOLDER",
	"TBD",
	"lorem ipsum",
}

var animationMarkers = []string{
	"@keyframes",
	"animation:",
	"animation-",
	"transition:",
	"animate-",
	".animate(",
}

var (
	hexColorRe  = regexp.MustCompile(`#[0-9a-fA-F]{3,8}\b`)
	funcColorRe = regexp.MustCompile(`(?:rgba?|hsla?)\([^)]*\)`)
)

// SelfReview runs the deterministic, network-free quality gate over
// extracted code. Every failing check reports the literal offending
// substring so remediation prompts can quote it back.
func SelfReview(code string, ctx *Context) Review {
	var issues []string

	issues = append(issues, checkPlaceholders(code)...)
	issues = append(issues, checkReducedMotion(code)...)
	issues = append(issues, checkSharedComponents(code, ctx)...)
	issues = append(issues, checkLiteralColors(code, ctx)...)

	return Review{Passed: len(issues) == 0, Issues: issues}
}

func checkPlaceholders(code string) []string {
	var issues []string
	// Byte offsets into the lowered string do not map back to code when
	// lowercasing changes rune widths, so report the marker itself.
	lowered := strings.ToLower(code)
	for _, marker := range placeholderMarkers {
		if strings.Contains(lowered, strings.ToLower(marker)) {
			issues = append(issues,
				fmt.Sprintf("unresolved placeholder marker %q found", marker))
		}
	}
	return issues
}

func checkReducedMotion(code string) []string {
	if strings.Contains(code, "prefers-reduced-motion") {
		return nil
	}

	var issues []string
	for _, marker := range animationMarkers {
		if strings.Contains(code, marker) {
			issues = append(issues,
				fmt.Sprintf("animation construct %q lacks a prefers-reduced-motion guard", marker))
		}
	}
	return issues
}

func checkSharedComponents(code string, ctx *Context) []string {
	if ctx == nil {
		return nil
	}

	var issues []string
	for _, name := range ctx.SharedComponents {
		if !strings.Contains(code, name) {
			issues = append(issues,
				fmt.Sprintf("required shared component %q is not used", name))
		}
	}
	return issues
}

func checkLiteralColors(code string, ctx *Context) []string {
	if ctx == nil || ctx.Tokens == nil {
		return nil
	}

	var issues []string
	seen := make(map[string]bool)
	literals := hexColorRe.FindAllString(code, -1)
	literals = append(literals, funcColorRe.FindAllString(code, -1)...)

	for _, literal := range literals {
		key := strings.ToLower(literal)
		if seen[key] {
			continue
		}
		seen[key] = true

		if !ctx.Tokens.HasColor(literal) {
			issues = append(issues,
				fmt.Sprintf("literal color %q is not in the design-token set", literal))
		}
	}
	return issues
}
