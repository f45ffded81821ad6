package hooks

import (
	"path/filepath"
	"strings"
)

// Event is the JSON an assistant host sends on stdin to a hook.
// Different events populate different subsets of the fields.
type Event struct {
	SessionID     string `json:"session_id"`
	CWD           string `json:"cwd"`
	HookEventName string `json:"hook_event_name"`

	// UserPromptSubmit
	Prompt string `json:"prompt,omitempty"`

	// SessionEnd
	Reason string   `json:"reason,omitempty"`
	Topics []string `json:"topics,omitempty"`
}

// Project returns the name of the working directory, which usually matches a
// project entity.
func (e *Event) Project() string {
	cwd := strings.TrimSpace(e.CWD)
	if cwd == "" {
		return ""
	}
	base := filepath.Base(filepath.Clean(cwd))
	if base == "." || base == string(filepath.Separator) {
		return ""
	}
	return base
}
