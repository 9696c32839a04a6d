package action

import (
	"context"
	"fmt"
	"strings"

	"github.com/mzizi/muundo/model"
)

// ShareTemplate declares the share-sheet content for one content type.
// Fields may reference payload values with {field} placeholders.
type ShareTemplate struct {
	Title   string
	Message string
	URL     string
}

// ShareContent is the payload handed to the platform share sheet.
type ShareContent struct {
	Type  string `json:"type"`
	Title string `json:"title,omitempty"`
	Text  string `json:"text,omitempty"`
	URL   string `json:"url,omitempty"`
}

// DefaultShareTemplates returns the built-in share templates, keyed by
// content type.
func DefaultShareTemplates() map[string]ShareTemplate {
	return map[string]ShareTemplate{
		"activity": {
			Title:   "{name}",
			Message: "Join me at {name}!",
			URL:     "https://app.muundo.example/activity/{id}",
		},
		"profile": {
			Title:   "{name} on Muundo",
			Message: "Check out {name}'s profile",
			URL:     "https://app.muundo.example/profile/{id}",
		},
	}
}

// NewShareHandler returns a handler for share:// actions. The action path
// names the content type; the matching template is filled from the payload.
// An unknown content type is an error for the router to report.
func NewShareHandler(templates map[string]ShareTemplate) Handler {
	return HandlerFunc(func(_ context.Context, a model.Action, payload map[string]any) (any, error) {
		tpl, ok := templates[a.Path]
		if !ok {
			return nil, fmt.Errorf("unknown share content type %q", a.Path)
		}
		return ShareContent{
			Type:  a.Path,
			Title: interpolate(tpl.Title, payload),
			Text:  interpolate(tpl.Message, payload),
			URL:   interpolate(tpl.URL, payload),
		}, nil
	})
}

// interpolate substitutes {field} placeholders with payload values.
// Placeholders with no matching payload field are left as-is.
func interpolate(tpl string, payload map[string]any) string {
	if len(payload) == 0 || !strings.ContainsRune(tpl, '{') {
		return tpl
	}
	pairs := make([]string, 0, 2*len(payload))
	for k, v := range payload {
		pairs = append(pairs, "{"+k+"}", fmt.Sprint(v))
	}
	return strings.NewReplacer(pairs...).Replace(tpl)
}
