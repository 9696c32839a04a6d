package model

import (
	"fmt"
	"strings"
)

// Action schemes understood by the router.
const (
	SchemeNavigate    = "navigate"
	SchemeModal       = "modal"
	SchemeBottomSheet = "bottomsheet"
	SchemeShare       = "share"
	SchemeAPI         = "api"
	SchemeConfirm     = "confirm"
)

// ActionNone is the literal no-op action string.
const ActionNone = "none"

// Action is a parsed "scheme://path" command string. Actions are stateless
// and parsed on each use.
type Action struct {
	Scheme string
	Path   string
}

// NoOp reports whether the action does nothing when executed.
func (a Action) NoOp() bool {
	return a.Scheme == ""
}

// String reassembles the wire form of the action.
func (a Action) String() string {
	if a.NoOp() {
		return ActionNone
	}
	return a.Scheme + "://" + a.Path
}

// ParseAction parses an action string. The literal "none" yields a no-op
// action. Any other string must contain "://" with a known scheme before it.
func ParseAction(s string) (Action, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == ActionNone {
		return Action{}, nil
	}

	idx := strings.Index(s, "://")
	if idx <= 0 {
		return Action{}, fmt.Errorf("malformed action %q: missing scheme separator", s)
	}

	scheme := s[:idx]
	path := s[idx+3:]

	switch scheme {
	case SchemeNavigate, SchemeModal, SchemeBottomSheet,
		SchemeShare, SchemeAPI, SchemeConfirm:
		return Action{Scheme: scheme, Path: path}, nil
	default:
		return Action{}, fmt.Errorf("unknown action scheme %q in %q", scheme, s)
	}
}
