package protocol

import (
	"bytes"
	"fmt"
	"unicode/utf8"
)

// MaxDeviceNameBytes is the firmware's storage limit for the advertised name.
const MaxDeviceNameBytes = 32

// MarshalDeviceName validates and encodes a new advertised name.
func MarshalDeviceName(name string) ([]byte, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: device name must not be empty", ErrInvalidInput)
	}
	if len(name) > MaxDeviceNameBytes {
		return nil, fmt.Errorf("%w: device name is %d bytes, max %d", ErrInvalidInput, len(name), MaxDeviceNameBytes)
	}
	if !utf8.ValidString(name) {
		return nil, fmt.Errorf("%w: device name is not valid UTF-8", ErrInvalidInput)
	}
	return []byte(name), nil
}

// UnmarshalDeviceName decodes the name characteristic. An empty payload means
// the firmware is using its factory name.
func UnmarshalDeviceName(data []byte) (string, error) {
	if len(data) > MaxDeviceNameBytes {
		return "", fmt.Errorf("%w: device name is %d bytes, max %d", ErrMalformedPayload, len(data), MaxDeviceNameBytes)
	}
	if i := bytes.IndexByte(data, 0); i >= 0 {
		data = data[:i]
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: device name is not valid UTF-8", ErrMalformedPayload)
	}
	return string(data), nil
}

// TruncateName shortens name to at most maxBytes without splitting a UTF-8
// character. Trailing spaces left by the cut are dropped.
func TruncateName(name string, maxBytes int) string {
	if len(name) <= maxBytes {
		return name
	}
	split := maxBytes
	for split > 0 && !utf8.RuneStart(name[split]) {
		split--
	}
	return string(bytes.TrimRight([]byte(name[:split]), " "))
}
