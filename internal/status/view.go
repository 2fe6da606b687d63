package status

import "github.com/acolita/devremote/internal/prompt"

// View is an immutable snapshot of a Sink.
type View struct {
	Host   string
	Status string

	// PromptID is zero when no prompt is pending and changes every time
	// a new prompt is set, so surfaces can tell two identical messages apart.
	Prompt       string
	PromptID     uint64
	Kind         prompt.Kind
	Masked       bool
	Confirmation bool

	Input string

	// FocusSeq increases whenever the sink asks for input focus.
	FocusSeq uint64

	Err string

	// Connected is set once the prompt surface was replaced by a project.
	Connected bool
	// Closed is set on the final view of a removed window.
	Closed bool
}

// HasPrompt reports whether a prompt is pending.
func (v View) HasPrompt() bool {
	return v.PromptID != 0
}

// Displayed returns the line the surface should show. A pending prompt
// always wins over the status line.
func (v View) Displayed() string {
	if v.HasPrompt() {
		return v.Prompt
	}
	return v.Status
}
