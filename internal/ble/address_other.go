//go:build !darwin

package ble

import "tinygo.org/x/bluetooth"

// parseAddress converts a "AA:BB:CC:DD:EE:FF" MAC string.
func parseAddress(s string) (bluetooth.Address, error) {
	mac, err := bluetooth.ParseMAC(s)
	if err != nil {
		return bluetooth.Address{}, err
	}
	return bluetooth.Address{MACAddress: bluetooth.MACAddress{MAC: mac}}, nil
}
