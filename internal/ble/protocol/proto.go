// Package protocol implements the binary records exchanged with OpenPineBuds
// firmware over the configuration GATT service.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/blang/semver"
)

var (
	// ErrMalformedPayload is returned when a record read from the device has
	// the wrong shape.
	ErrMalformedPayload = errors.New("protocol: malformed payload")
	// ErrInvalidInput is returned when a caller-supplied value cannot be encoded.
	ErrInvalidInput = errors.New("protocol: invalid input")
)

const (
	// EarbudConfigSize is the wire size of one earbud's mapping record.
	EarbudConfigSize = 16
	// FirmwareVersionMinSize is the shortest acceptable version record.
	FirmwareVersionMinSize = 3
	// ApplyFrameSize is command + target + left record + right record.
	ApplyFrameSize = 2 + 2*EarbudConfigSize
	// SupportedMajor is the only config layout major version firmware accepts.
	SupportedMajor = 1
)

// EarbudConfig maps each gesture of one earbud to an action. It is a value
// type: edits produce a new EarbudConfig rather than mutating a shared one.
type EarbudConfig struct {
	SingleTap ButtonAction
	DoubleTap ButtonAction
	TripleTap ButtonAction
	LongPress ButtonAction
}

// DefaultLeft matches the firmware's factory mapping for the left earbud.
func DefaultLeft() EarbudConfig {
	return EarbudConfig{
		SingleTap: ActionPlayPause,
		DoubleTap: ActionPreviousTrack,
		TripleTap: ActionVolumeDown,
		LongPress: ActionToggleANC,
	}
}

// DefaultRight matches the firmware's factory mapping for the right earbud.
func DefaultRight() EarbudConfig {
	return EarbudConfig{
		SingleTap: ActionPlayPause,
		DoubleTap: ActionNextTrack,
		TripleTap: ActionVolumeUp,
		LongPress: ActionToggleANC,
	}
}

// Action returns the action bound to g.
func (c EarbudConfig) Action(g Gesture) ButtonAction {
	switch g {
	case GestureSingleTap:
		return c.SingleTap
	case GestureDoubleTap:
		return c.DoubleTap
	case GestureTripleTap:
		return c.TripleTap
	case GestureLongPress:
		return c.LongPress
	}
	return ActionNone
}

// WithAction returns a copy of c with g bound to a.
func (c EarbudConfig) WithAction(g Gesture, a ButtonAction) EarbudConfig {
	switch g {
	case GestureSingleTap:
		c.SingleTap = a
	case GestureDoubleTap:
		c.DoubleTap = a
	case GestureTripleTap:
		c.TripleTap = a
	case GestureLongPress:
		c.LongPress = a
	}
	return c
}

// MarshalEarbudConfig encodes a mapping record.
//
//	offset 0:  single tap (uint32 LE)
//	offset 4:  double tap (uint32 LE)
//	offset 8:  triple tap (uint32 LE)
//	offset 12: long press (uint32 LE)
func MarshalEarbudConfig(c EarbudConfig) []byte {
	buf := make([]byte, EarbudConfigSize)
	binary.LittleEndian.PutUint32(buf[0:], c.SingleTap.Code())
	binary.LittleEndian.PutUint32(buf[4:], c.DoubleTap.Code())
	binary.LittleEndian.PutUint32(buf[8:], c.TripleTap.Code())
	binary.LittleEndian.PutUint32(buf[12:], c.LongPress.Code())
	return buf
}

// UnmarshalEarbudConfig decodes a mapping record. Unknown action codes become
// ActionNone.
func UnmarshalEarbudConfig(data []byte) (EarbudConfig, error) {
	if len(data) != EarbudConfigSize {
		return EarbudConfig{}, fmt.Errorf("%w: earbud config must be %d bytes, got %d",
			ErrMalformedPayload, EarbudConfigSize, len(data))
	}
	return EarbudConfig{
		SingleTap: ActionFromCode(binary.LittleEndian.Uint32(data[0:])),
		DoubleTap: ActionFromCode(binary.LittleEndian.Uint32(data[4:])),
		TripleTap: ActionFromCode(binary.LittleEndian.Uint32(data[8:])),
		LongPress: ActionFromCode(binary.LittleEndian.Uint32(data[12:])),
	}, nil
}

// FirmwareVersion is the config layout version reported by the device.
type FirmwareVersion struct {
	Major uint8
	Minor uint8
	Patch uint8
}

func (v FirmwareVersion) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Semver converts v for comparison against configured minimums.
func (v FirmwareVersion) Semver() semver.Version {
	return semver.Version{Major: uint64(v.Major), Minor: uint64(v.Minor), Patch: uint64(v.Patch)}
}

// Supported reports whether firmware will accept configs written by this client.
func (v FirmwareVersion) Supported() bool {
	return v.Major == SupportedMajor
}

// UnmarshalFirmwareVersion decodes {major, minor, patch}. Firmware sends a
// fourth reserved byte; anything past the third byte is ignored.
func UnmarshalFirmwareVersion(data []byte) (FirmwareVersion, error) {
	if len(data) < FirmwareVersionMinSize {
		return FirmwareVersion{}, fmt.Errorf("%w: version must be at least %d bytes, got %d",
			ErrMalformedPayload, FirmwareVersionMinSize, len(data))
	}
	return FirmwareVersion{Major: data[0], Minor: data[1], Patch: data[2]}, nil
}

// MarshalApplyFrame builds the apply-command frame the checksum is computed over.
//
//	byte 0:      command
//	byte 1:      target
//	bytes 2-17:  left earbud config
//	bytes 18-33: right earbud config
func MarshalApplyFrame(cmd Command, target Target, left, right []byte) ([]byte, error) {
	if len(left) != EarbudConfigSize {
		return nil, fmt.Errorf("%w: left config must be %d bytes, got %d", ErrInvalidInput, EarbudConfigSize, len(left))
	}
	if len(right) != EarbudConfigSize {
		return nil, fmt.Errorf("%w: right config must be %d bytes, got %d", ErrInvalidInput, EarbudConfigSize, len(right))
	}
	buf := make([]byte, 0, ApplyFrameSize)
	buf = append(buf, byte(cmd), byte(target))
	buf = append(buf, left...)
	buf = append(buf, right...)
	return buf, nil
}
