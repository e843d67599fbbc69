package dispatch

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/specflow/internal/errors"
)

// TokenSet is the design-token vocabulary the self-review gate enforces
type TokenSet struct {
	Colors  map[string]string `yaml:"colors"`
	Spacing map[string]string `yaml:"spacing,omitempty"`
	Fonts   map[string]string `yaml:"fonts,omitempty"`
}

// LoadTokens reads a design-token set from a YAML file
func LoadTokens(path string) (*TokenSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewFileNotFoundError(path)
		}
		return nil, errors.Wrap(errors.ErrCodeFileReadFailed, "reading design tokens", err)
	}

	var tokens TokenSet
	if err := yaml.Unmarshal(data, &tokens); err != nil {
		return nil, errors.NewFileUnmarshalError(path, "yaml", err)
	}
	return &tokens, nil
}

// HasColor reports whether a literal color value belongs to the token set.
// Comparison is case-insensitive.
func (t *TokenSet) HasColor(value string) bool {
	needle := strings.ToLower(strings.TrimSpace(value))
	for _, v := range t.Colors {
		if strings.ToLower(strings.TrimSpace(v)) == needle {
			return true
		}
	}
	return false
}
