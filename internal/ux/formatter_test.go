package ux

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPrinterUnknownFormat(t *testing.T) {
	_, err := NewPrinter("xml", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown format")
}

func TestPrinterJSON(t *testing.T) {
	var buf bytes.Buffer
	p, err := NewPrinter("json", &buf)
	require.NoError(t, err)

	require.NoError(t, p.Print(map[string]any{"phase": "intake"}))
	assert.Contains(t, buf.String(), `"phase": "intake"`)
}

func TestPrinterYAML(t *testing.T) {
	var buf bytes.Buffer
	p, err := NewPrinter("yaml", &buf)
	require.NoError(t, err)

	require.NoError(t, p.Print(map[string]any{"phase": "intake"}))
	assert.Contains(t, buf.String(), "phase: intake")
}

func TestPrinterTextString(t *testing.T) {
	var buf bytes.Buffer
	p, err := NewPrinter("text", &buf)
	require.NoError(t, err)

	require.NoError(t, p.Print("hello"))
	assert.Equal(t, "hello\n", buf.String())
}

func TestPrinterTextStructFallsBackToYAML(t *testing.T) {
	var buf bytes.Buffer
	p, err := NewPrinter("", &buf)
	require.NoError(t, err)

	require.NoError(t, p.Print(struct {
		Phase string `yaml:"phase"`
	}{Phase: "intake"}))
	assert.Contains(t, buf.String(), "phase: intake")
}

func TestStatusBadge(t *testing.T) {
	assert.True(t, strings.Contains(StatusBadge("completed"), "completed"))
	assert.True(t, strings.Contains(StatusBadge("failed"), "failed"))
	assert.True(t, strings.Contains(StatusBadge("pending"), "pending"))
	assert.True(t, strings.Contains(StatusBadge("other"), "other"))
}
