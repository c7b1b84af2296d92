//go:build !linux

package ble

// checkAdapterPowered is a no-op off Linux; the platform stack reports a
// disabled radio from Enable itself.
func checkAdapterPowered() error { return nil }
