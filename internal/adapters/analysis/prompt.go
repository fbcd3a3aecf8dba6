// Package analysis holds what the language-model backends share.
package analysis

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const SystemPrompt = `You are an expert cloud infrastructure analyst with access to a live inventory of the user's cloud environment.

Format every answer as Markdown:
- use ## for main headings and ### for subheadings
- use bullet points for lists and numbered lists for steps
- use **bold** for important terms and metrics
- use ` + "`code`" + ` formatting for identifiers such as instance ids
- separate major sections with horizontal rules

Base every figure on the inventory below. Say so when a section could not be retrieved instead of guessing.

Cloud inventory:
%s`

// SystemInstruction renders the fixed instruction around the inventory context.
func SystemInstruction(context string) string {
	return fmt.Sprintf(SystemPrompt, context)
}

var placeholderKeys = []string{
	"sk-your-openai-key",
	"sk-ant-REDACTED",
}

// UsableKey reports whether key is set and not a sample value.
func UsableKey(key string) bool {
	key = strings.TrimSpace(key)
	if key == "" {
		return false
	}
	for _, placeholder := range placeholderKeys {
		if key == placeholder {
			return false
		}
	}

	return !strings.Contains(key, "YOUR_") && !strings.Contains(key, "your-")
}

var ErrEmptyAnswer = errors.New("backend returned no text")

// StatusError turns a non-2xx response into an error carrying a bounded
// excerpt of the body.
func StatusError(backend string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return fmt.Errorf("%s: unexpected status %d: %s", backend, resp.StatusCode, strings.TrimSpace(string(body)))
}
