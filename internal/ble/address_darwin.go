package ble

import "tinygo.org/x/bluetooth"

// parseAddress converts a CoreBluetooth peripheral UUID string.
func parseAddress(s string) (bluetooth.Address, error) {
	uuid, err := bluetooth.ParseUUID(s)
	if err != nil {
		return bluetooth.Address{}, err
	}
	var addr bluetooth.Address
	addr.UUID = uuid
	return addr, nil
}
