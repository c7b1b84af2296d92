package protocol

import (
	"fmt"
	"strings"
)

// Command is the first byte of an apply-command frame.
type Command uint8

const (
	CommandApplyAndSave     Command = 0x01
	CommandApplyWithoutSave Command = 0x02
	CommandResetToDefaults  Command = 0x03
	CommandRebootDevice     Command = 0xFF
)

var commandNames = map[Command]string{
	CommandApplyAndSave:     "apply-and-save",
	CommandApplyWithoutSave: "apply-without-save",
	CommandResetToDefaults:  "reset-to-defaults",
	CommandRebootDevice:     "reboot",
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("command(0x%02x)", uint8(c))
}

// ParseCommand accepts the names printed by Command.String.
func ParseCommand(s string) (Command, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for c, name := range commandNames {
		if name == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("protocol: unknown command %q: %w", s, ErrInvalidInput)
}

// Target is the second byte of an apply-command frame.
type Target uint8

const (
	TargetBoth  Target = 0x00
	TargetLeft  Target = 0x01
	TargetRight Target = 0x02
)

func (t Target) String() string {
	switch t {
	case TargetBoth:
		return "both"
	case TargetLeft:
		return "left"
	case TargetRight:
		return "right"
	}
	return fmt.Sprintf("target(0x%02x)", uint8(t))
}

// ParseTarget accepts "both", "left" or "right".
func ParseTarget(s string) (Target, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "both", "":
		return TargetBoth, nil
	case "left":
		return TargetLeft, nil
	case "right":
		return TargetRight, nil
	}
	return 0, fmt.Errorf("protocol: unknown target %q: %w", s, ErrInvalidInput)
}

// DeviceStatus is reported by firmware on the status characteristic.
type DeviceStatus uint8

const (
	StatusSuccess       DeviceStatus = 0x00
	StatusInvalidConfig DeviceStatus = 0x01
	StatusChecksumError DeviceStatus = 0x02
	StatusStorageError  DeviceStatus = 0x03
	StatusNotSupported  DeviceStatus = 0x04
	StatusUnknownError  DeviceStatus = 0xFF
)

// StatusFromCode maps unrecognized codes to StatusUnknownError.
func StatusFromCode(code uint8) DeviceStatus {
	switch s := DeviceStatus(code); s {
	case StatusSuccess, StatusInvalidConfig, StatusChecksumError, StatusStorageError, StatusNotSupported:
		return s
	}
	return StatusUnknownError
}

// UnmarshalDeviceStatus reads the status code from a notification payload.
func UnmarshalDeviceStatus(data []byte) (DeviceStatus, error) {
	if len(data) < 1 {
		return StatusUnknownError, fmt.Errorf("%w: empty status notification", ErrMalformedPayload)
	}
	return StatusFromCode(data[0]), nil
}

func (s DeviceStatus) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusInvalidConfig:
		return "invalid config"
	case StatusChecksumError:
		return "checksum error"
	case StatusStorageError:
		return "storage error"
	case StatusNotSupported:
		return "not supported"
	}
	return "unknown error"
}
