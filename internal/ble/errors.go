package ble

import "errors"

var (
	// ErrTransportUnavailable means there is no usable Bluetooth adapter.
	ErrTransportUnavailable = errors.New("ble: bluetooth transport unavailable")
	// ErrServiceNotFound means the peripheral does not expose the
	// configuration service, usually because it runs the wrong firmware.
	ErrServiceNotFound = errors.New("ble: configuration service not found (wrong firmware?)")
	// ErrCharacteristicMissing means the service lacks a required characteristic.
	ErrCharacteristicMissing = errors.New("ble: required characteristic missing")
	// ErrDiscoveryFailed means service enumeration did not complete.
	ErrDiscoveryFailed = errors.New("ble: service discovery failed")
	// ErrOperationNotInitiated means the transport rejected a read or write
	// synchronously; no completion will follow.
	ErrOperationNotInitiated = errors.New("ble: operation not initiated")
	// ErrOperationFailed means a read or write completed with a failure status.
	ErrOperationFailed = errors.New("ble: operation failed")
	// ErrNotReady means a read or write was requested before the session
	// located its characteristics.
	ErrNotReady = errors.New("ble: session not ready")
	// ErrCharacteristicUnavailable means an optional characteristic was not
	// found on this device.
	ErrCharacteristicUnavailable = errors.New("ble: characteristic not available on device")
	// ErrSessionActive means Connect was called while a link already exists.
	ErrSessionActive = errors.New("ble: session already active")
	// ErrDisconnected resolves work that was pending when the link dropped.
	ErrDisconnected = errors.New("ble: disconnected")
	// ErrBusy means a load or save of the same kind is still outstanding.
	ErrBusy = errors.New("ble: operation already in progress")
	// ErrClosed means the orchestrator has been shut down.
	ErrClosed = errors.New("ble: orchestrator closed")
)
