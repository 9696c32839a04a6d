package action

import (
	"context"
	"fmt"

	"github.com/mzizi/muundo/model"
)

// ConfirmDescriptor is a named confirmation dialog definition. The action
// path selects the descriptor.
type ConfirmDescriptor struct {
	Title        string
	Message      string
	Destructive  bool
	ConfirmLabel string
	CancelLabel  string
}

// ConfirmPrompt describes a confirmation dialog the client must show before
// proceeding with the follow-up action.
type ConfirmPrompt struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Message     string `json:"message,omitempty"`
	Destructive bool   `json:"destructive"`

	// OnConfirm is the action string dispatched if the user accepts.
	OnConfirm string `json:"on_confirm,omitempty"`
	Confirm   string `json:"confirm_label"`
	Cancel    string `json:"cancel_label"`
}

// DefaultConfirmDescriptors returns the built-in confirmation set. A
// deployment swaps in its own map when wiring the router.
func DefaultConfirmDescriptors() map[string]ConfirmDescriptor {
	return map[string]ConfirmDescriptor{
		"signOut": {
			Title:        "Sign out?",
			Message:      "You can sign back in at any time.",
			ConfirmLabel: "Sign out",
			CancelLabel:  "Stay",
		},
		"deleteAccount": {
			Title:        "Delete account?",
			Message:      "This permanently removes your account and activity history.",
			Destructive:  true,
			ConfirmLabel: "Delete",
			CancelLabel:  "Keep account",
		},
		"clearHistory": {
			Title:        "Clear history?",
			Message:      "Viewed items will no longer appear in your feed.",
			Destructive:  true,
			ConfirmLabel: "Clear",
			CancelLabel:  "Cancel",
		},
	}
}

// NewConfirmHandler returns a handler for confirm:// actions. The action
// path must name a registered descriptor; an unknown name is an error for
// the router to report, never a generic prompt.
func NewConfirmHandler(descriptors map[string]ConfirmDescriptor) Handler {
	return HandlerFunc(func(_ context.Context, a model.Action, payload map[string]any) (any, error) {
		d, ok := descriptors[a.Path]
		if !ok {
			return nil, fmt.Errorf("unknown confirm name %q", a.Path)
		}
		prompt := ConfirmPrompt{
			ID:          a.Path,
			Title:       d.Title,
			Message:     d.Message,
			Destructive: d.Destructive,
			Confirm:     d.ConfirmLabel,
			Cancel:      d.CancelLabel,
		}
		if prompt.Confirm == "" {
			prompt.Confirm = "Confirm"
		}
		if prompt.Cancel == "" {
			prompt.Cancel = "Cancel"
		}
		if v, ok := payload["on_confirm"].(string); ok {
			prompt.OnConfirm = v
		}
		return prompt, nil
	})
}
