//go:build !linux

package ble

import "tinygo.org/x/bluetooth"

// writeWithResponse performs an acknowledged write request.
func writeWithResponse(c bluetooth.DeviceCharacteristic, _, _ string, data []byte) error {
	_, err := c.Write(data)
	return err
}
