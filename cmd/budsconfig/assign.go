package main

import (
	"fmt"
	"strings"

	"github.com/chaz8081/budsconfig/internal/ble/protocol"
)

// assignment binds one gesture on one earbud.
type assignment struct {
	side    protocol.Side
	gesture protocol.Gesture
	action  protocol.ButtonAction
}

// parseAssignment parses "<side>.<gesture>=<action>", e.g.
// "left.double=voice-assistant". Side "both" yields two assignments.
func parseAssignment(s string) ([]assignment, error) {
	key, value, ok := strings.Cut(s, "=")
	if !ok {
		return nil, fmt.Errorf("%q: want <side>.<gesture>=<action>", s)
	}
	sideName, gestureName, ok := strings.Cut(key, ".")
	if !ok {
		return nil, fmt.Errorf("%q: want <side>.<gesture>=<action>", s)
	}

	gesture, err := protocol.ParseGesture(gestureName)
	if err != nil {
		return nil, err
	}
	action, err := protocol.ParseButtonAction(value)
	if err != nil {
		return nil, err
	}

	var sides []protocol.Side
	if strings.EqualFold(strings.TrimSpace(sideName), "both") {
		sides = []protocol.Side{protocol.SideLeft, protocol.SideRight}
	} else {
		side, err := protocol.ParseSide(sideName)
		if err != nil {
			return nil, err
		}
		sides = []protocol.Side{side}
	}

	out := make([]assignment, 0, len(sides))
	for _, side := range sides {
		out = append(out, assignment{side: side, gesture: gesture, action: action})
	}
	return out, nil
}
