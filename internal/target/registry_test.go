package target

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistry(t *testing.T) {
	r := Default()

	assert.Equal(t, []string{"chatgpt", "gemini", "perplexity", "claude", "mistral", "browser"}, r.IDs())
	assert.Len(t, r.Automation(), 5)

	b, ok := r.Lookup(BrowserID)
	require.True(t, ok)
	assert.True(t, b.IsBrowser())
	assert.Equal(t, DefaultBrowserURL, b.URL)

	for _, tgt := range r.Automation() {
		assert.NotEmpty(t, tgt.InputSelector, tgt.ID)
		assert.NotEmpty(t, tgt.SubmitSelector, tgt.ID)
	}
}

func TestRegistryAllReturnsCopy(t *testing.T) {
	r := Default()
	all := r.All()
	all[0].ID = "mutated"

	first, ok := r.Lookup("chatgpt")
	require.True(t, ok)
	assert.Equal(t, "chatgpt", first.ID)
	assert.Equal(t, "chatgpt", r.IDs()[0])
}

func TestNewRegistry_Rejects(t *testing.T) {
	base := Defaults()[0]

	tests := []struct {
		name    string
		targets []Target
	}{
		{name: "empty", targets: nil},
		{name: "duplicate id", targets: []Target{base, base}},
		{
			name: "automation without input selector",
			targets: []Target{func() Target {
				t := base
				t.InputSelector = ""
				return t
			}()},
		},
		{
			name: "bad url",
			targets: []Target{func() Target {
				t := base
				t.URL = "not a url"
				return t
			}()},
		},
		{
			name: "two browsers",
			targets: []Target{
				{ID: "b1", DisplayName: "B1", URL: "https://a.example", Partition: "p1", Kind: KindBrowser},
				{ID: "b2", DisplayName: "B2", URL: "https://b.example", Partition: "p2", Kind: KindBrowser},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(tt.targets)
			assert.Error(t, err)
		})
	}
}

func TestNewRegistry_DefaultsKindToAutomation(t *testing.T) {
	tgt := Defaults()[0]
	tgt.Kind = ""

	r, err := NewRegistry([]Target{tgt})
	require.NoError(t, err)

	got, _ := r.Lookup("chatgpt")
	assert.Equal(t, KindAutomation, got.Kind)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "targets.yaml")
	content := `targets:
  - id: local
    display_name: Local Chat
    url: http://localhost:3000/
    partition: persist:local
    input_selector: "textarea#prompt"
    submit_selector: "button.send, button[type=submit]"
  - id: browser
    display_name: Browser
    url: https://duckduckgo.com
    partition: persist:browser
    kind: browser
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	r, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"local", "browser"}, r.IDs())

	local, ok := r.Lookup("local")
	require.True(t, ok)
	assert.Equal(t, "button.send, button[type=submit]", local.SubmitSelector)
	assert.Equal(t, KindAutomation, local.Kind)
}

func TestLoadFile_Errors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("targets: [[["), 0600))
	_, err = LoadFile(path)
	assert.Error(t, err)
}

func TestMustLookup(t *testing.T) {
	r := Default()
	_, err := r.MustLookup("nope")
	assert.True(t, errors.Is(err, ErrUnknownTarget))
}

func TestPartitionDir(t *testing.T) {
	tgt := Target{Partition: "persist:chat gpt/x"}
	assert.Equal(t, "persist_chat_gpt_x", tgt.PartitionDir())
}
