// Package target defines the catalogue of chat applications chatcast drives.
package target

import (
	"fmt"
	"strings"
)

// Kind distinguishes chat applications that receive injected input from the
// plain web browser pseudo-target, which receives a search instead.
type Kind string

const (
	// KindAutomation is a chat web application with an input surface and a
	// submit control.
	KindAutomation Kind = "automation"

	// KindBrowser is the general purpose browser pane. It has no locators.
	KindBrowser Kind = "browser"
)

// BrowserID is the identifier of the built-in browser pseudo-target.
const BrowserID = "browser"

// DefaultBrowserURL is where the browser pseudo-target starts.
const DefaultBrowserURL = "https://www.google.com"

// Target describes one automation target. Targets are immutable once a
// Registry has been built from them.
type Target struct {
	// ID is unique within a registry and stable across versions; it is used as
	// the persistence key for enabled state and last-known URLs.
	ID string `yaml:"id" json:"id" validate:"required,alphanum,lowercase"`

	// DisplayName is shown in CLI and TUI output.
	DisplayName string `yaml:"display_name" json:"display_name" validate:"required"`

	// URL is the default address a new session opens.
	URL string `yaml:"url" json:"url" validate:"required,http_url"`

	// Partition names the isolated storage partition, e.g. "persist:chatgpt".
	Partition string `yaml:"partition" json:"partition" validate:"required"`

	// InputSelector locates the input surface. May be a selector list;
	// the first match wins.
	InputSelector string `yaml:"input_selector" json:"input_selector,omitempty" validate:"required_if=Kind automation"`

	// SubmitSelector locates the send control. May be a selector list.
	SubmitSelector string `yaml:"submit_selector" json:"submit_selector,omitempty" validate:"required_if=Kind automation"`

	// Color is a display hint.
	Color string `yaml:"color" json:"color,omitempty"`

	Kind Kind `yaml:"kind" json:"kind" validate:"required,oneof=automation browser"`
}

// IsBrowser reports whether t is the browser pseudo-target.
func (t Target) IsBrowser() bool {
	return t.Kind == KindBrowser
}

// PartitionDir converts the partition name into a directory name that is
// safe on every platform ("persist:chatgpt" -> "persist_chatgpt").
func (t Target) PartitionDir() string {
	replacer := strings.NewReplacer(":", "_", "/", "_", "\\", "_", " ", "_")
	return replacer.Replace(t.Partition)
}

func (t Target) String() string {
	return fmt.Sprintf("%s (%s)", t.DisplayName, t.ID)
}

// Defaults returns the built-in target table in dispatch order.
func Defaults() []Target {
	return []Target{
		{
			ID:             "chatgpt",
			DisplayName:    "ChatGPT",
			URL:            "https://chat.openai.com",
			Partition:      "persist:chatgpt",
			InputSelector:  `div#prompt-textarea[contenteditable="true"]`,
			SubmitSelector: `button[data-testid="send-button"]`,
			Color:          "green",
			Kind:           KindAutomation,
		},
		{
			ID:             "gemini",
			DisplayName:    "Gemini",
			URL:            "https://gemini.google.com/app",
			Partition:      "persist:gemini",
			InputSelector:  `div.ql-editor[contenteditable="true"]`,
			SubmitSelector: `button.send-button[aria-label="Send message"]`,
			Color:          "blue",
			Kind:           KindAutomation,
		},
		{
			ID:             "perplexity",
			DisplayName:    "Perplexity",
			URL:            "https://www.perplexity.ai/",
			Partition:      "persist:perplexity",
			InputSelector:  `#ask-input, div[contenteditable="true"][role="textbox"]`,
			SubmitSelector: `button[data-testid="submit-button"], button[aria-label="Submit"]`,
			Color:          "purple",
			Kind:           KindAutomation,
		},
		{
			ID:             "claude",
			DisplayName:    "Claude",
			URL:            "https://claude.ai/new",
			Partition:      "persist:claude",
			InputSelector:  `div[contenteditable="true"][role="textbox"][data-testid="chat-input"]`,
			SubmitSelector: `button[aria-label="메시지 보내기"], button[aria-label*="Send"]`,
			Color:          "orange",
			Kind:           KindAutomation,
		},
		{
			ID:             "mistral",
			DisplayName:    "Mistral",
			URL:            "https://chat.mistral.ai/",
			Partition:      "persist:mistral",
			InputSelector:  `div.ProseMirror[contenteditable="true"]`,
			SubmitSelector: `button[type="submit"][aria-label="Send question"], button[type="submit"]`,
			Color:          "red",
			Kind:           KindAutomation,
		},
		{
			ID:          BrowserID,
			DisplayName: "Browser",
			URL:         DefaultBrowserURL,
			Partition:   "persist:browser",
			Color:       "gray",
			Kind:        KindBrowser,
		},
	}
}
