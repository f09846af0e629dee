package tui

import (
	"os"
	"testing"

	"github.com/charmbracelet/x/ansi"
	"github.com/stretchr/testify/assert"
)

// unsetEnv removes key for the duration of the test.
func unsetEnv(t *testing.T, key string) {
	t.Helper()
	if val, ok := os.LookupEnv(key); ok {
		t.Cleanup(func() { os.Setenv(key, val) })
	}
	os.Unsetenv(key)
}

func TestHelpRenderer_NoColorReturnsMarkdown(t *testing.T) {
	hr := NewHelpRenderer(true)
	md := "# Title\n\nplain *text*"
	assert.Equal(t, md, hr.Render(md))
}

func TestHelpRenderer_RendersMarkdown(t *testing.T) {
	hr := NewHelpRenderer(false)
	hr.SetWidth(60)

	out := ansi.Strip(hr.Render("# Keys\n\n**ctrl+s** sends"))
	assert.Contains(t, out, "Keys")
	assert.Contains(t, out, "ctrl+s sends")
	assert.NotContains(t, out, "**")
}

func TestHelpRenderer_WidthChangeClearsCache(t *testing.T) {
	hr := NewHelpRenderer(true)
	hr.Render("cached")
	assert.Len(t, hr.cache, 1)

	hr.SetWidth(40)
	assert.Empty(t, hr.cache)
	hr.SetWidth(40)
	assert.Empty(t, hr.cache)
}

func TestMainHelpMarkdownListsKeys(t *testing.T) {
	md := MainHelpMarkdown()
	for _, k := range []string{"ctrl+s", "ctrl+l", "ctrl+r", "ctrl+p", "ctrl+k", "alt+1", "f1", "esc"} {
		assert.Contains(t, md, k)
	}
}
