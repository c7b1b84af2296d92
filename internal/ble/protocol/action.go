package protocol

import (
	"fmt"
	"strings"
)

// ButtonAction is the 32-bit action code stored per gesture. The numbering is
// shared with the firmware and must never change.
type ButtonAction uint32

const (
	ActionNone           ButtonAction = 0x0000
	ActionPlayPause      ButtonAction = 0x0001
	ActionNextTrack      ButtonAction = 0x0002
	ActionPreviousTrack  ButtonAction = 0x0003
	ActionVolumeUp       ButtonAction = 0x0004
	ActionVolumeDown     ButtonAction = 0x0005
	ActionToggleANC      ButtonAction = 0x0006
	ActionVoiceAssistant ButtonAction = 0x0007
	ActionAnswerCall     ButtonAction = 0x0008
	ActionRejectCall     ButtonAction = 0x0009
	ActionEndCall        ButtonAction = 0x000A
	ActionMuteMic        ButtonAction = 0x000B
	ActionTransparency   ButtonAction = 0x000C
	ActionANCOff         ButtonAction = 0x000D
)

const actionCount = 14

type actionInfo struct {
	name  string
	label string
}

var actions = [actionCount]actionInfo{
	ActionNone:           {"none", "None"},
	ActionPlayPause:      {"play-pause", "Play/Pause"},
	ActionNextTrack:      {"next-track", "Next Track"},
	ActionPreviousTrack:  {"previous-track", "Previous Track"},
	ActionVolumeUp:       {"volume-up", "Volume Up"},
	ActionVolumeDown:     {"volume-down", "Volume Down"},
	ActionToggleANC:      {"toggle-anc", "Toggle ANC"},
	ActionVoiceAssistant: {"voice-assistant", "Voice Assistant"},
	ActionAnswerCall:     {"answer-call", "Answer Call"},
	ActionRejectCall:     {"reject-call", "Reject Call"},
	ActionEndCall:        {"end-call", "End Call"},
	ActionMuteMic:        {"mute-mic", "Mute Microphone"},
	ActionTransparency:   {"transparency", "Transparency Mode"},
	ActionANCOff:         {"anc-off", "ANC Off"},
}

// ActionFromCode maps a wire code to its action. Codes this client does not
// know (including firmware-only custom slots) decode to ActionNone.
func ActionFromCode(code uint32) ButtonAction {
	if code >= actionCount {
		return ActionNone
	}
	return ButtonAction(code)
}

// Actions returns every known action in wire-code order.
func Actions() []ButtonAction {
	out := make([]ButtonAction, actionCount)
	for i := range out {
		out[i] = ButtonAction(i)
	}
	return out
}

// Code returns the wire code.
func (a ButtonAction) Code() uint32 { return uint32(a) }

// Label returns the human-readable name shown to users.
func (a ButtonAction) Label() string {
	if a >= actionCount {
		return actions[ActionNone].label
	}
	return actions[a].label
}

// String returns the CLI name, e.g. "play-pause".
func (a ButtonAction) String() string {
	if a >= actionCount {
		return fmt.Sprintf("action(0x%04x)", uint32(a))
	}
	return actions[a].name
}

// ParseButtonAction accepts a CLI name ("volume-up"), case-insensitive.
func ParseButtonAction(s string) (ButtonAction, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, info := range actions {
		if info.name == s {
			return ButtonAction(i), nil
		}
	}
	return ActionNone, fmt.Errorf("protocol: unknown action %q: %w", s, ErrInvalidInput)
}

// Gesture identifies one of the four touch gestures an earbud recognizes.
type Gesture int

const (
	GestureSingleTap Gesture = iota
	GestureDoubleTap
	GestureTripleTap
	GestureLongPress
)

var gestureNames = [...]string{"single-tap", "double-tap", "triple-tap", "long-press"}

// Gestures returns the gestures in wire order.
func Gestures() []Gesture {
	return []Gesture{GestureSingleTap, GestureDoubleTap, GestureTripleTap, GestureLongPress}
}

func (g Gesture) String() string {
	if g < 0 || int(g) >= len(gestureNames) {
		return fmt.Sprintf("gesture(%d)", int(g))
	}
	return gestureNames[g]
}

// ParseGesture accepts "single-tap", "double", "long" and similar forms.
func ParseGesture(s string) (Gesture, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range gestureNames {
		if s == name || s == strings.SplitN(name, "-", 2)[0] {
			return Gesture(i), nil
		}
	}
	return 0, fmt.Errorf("protocol: unknown gesture %q: %w", s, ErrInvalidInput)
}

// Side selects the left or right earbud.
type Side int

const (
	SideLeft Side = iota
	SideRight
)

func (s Side) String() string {
	if s == SideRight {
		return "right"
	}
	return "left"
}

// ParseSide accepts "left"/"l" or "right"/"r".
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "left", "l":
		return SideLeft, nil
	case "right", "r":
		return SideRight, nil
	}
	return 0, fmt.Errorf("protocol: unknown side %q: %w", s, ErrInvalidInput)
}
