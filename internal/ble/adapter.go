// Package ble drives an OpenPineBuds configuration session over Bluetooth Low
// Energy. It turns the transport's asynchronous callbacks into a single
// ordered event stream, runs the connection state machine, and serializes
// characteristic reads and writes so only one GATT operation is ever in
// flight on the link.
package ble

import (
	"context"
	"strings"
)

// OpenPineBuds configuration service and characteristic UUIDs. Each is the
// Bluetooth base UUID with a 16-bit short form in 0xFFC0-0xFFC6.
const (
	ServiceUUID          = "0000ffc0-0000-1000-8000-00805f9b34fb"
	LeftConfigCharUUID   = "0000ffc1-0000-1000-8000-00805f9b34fb"
	RightConfigCharUUID  = "0000ffc2-0000-1000-8000-00805f9b34fb"
	VersionCharUUID      = "0000ffc3-0000-1000-8000-00805f9b34fb"
	DeviceNameCharUUID   = "0000ffc4-0000-1000-8000-00805f9b34fb"
	ApplyCommandCharUUID = "0000ffc5-0000-1000-8000-00805f9b34fb"
	StatusCharUUID       = "0000ffc6-0000-1000-8000-00805f9b34fb"
)

// CharKind names a characteristic of the configuration service.
type CharKind int

const (
	CharLeftConfig CharKind = iota
	CharRightConfig
	CharVersion
	CharDeviceName
	CharApplyCommand
	CharStatus
)

var charKinds = [...]struct {
	name     string
	uuid     string
	required bool
}{
	CharLeftConfig:   {"left-config", LeftConfigCharUUID, true},
	CharRightConfig:  {"right-config", RightConfigCharUUID, true},
	CharVersion:      {"version", VersionCharUUID, true},
	CharDeviceName:   {"device-name", DeviceNameCharUUID, false},
	CharApplyCommand: {"apply-command", ApplyCommandCharUUID, false},
	CharStatus:       {"status", StatusCharUUID, false},
}

// UUID returns the characteristic's 128-bit UUID string.
func (k CharKind) UUID() string {
	if k < 0 || int(k) >= len(charKinds) {
		return ""
	}
	return charKinds[k].uuid
}

func (k CharKind) String() string {
	if k < 0 || int(k) >= len(charKinds) {
		return "unknown"
	}
	return charKinds[k].name
}

// charKindForUUID maps a UUID reported by the transport back to a CharKind.
func charKindForUUID(uuid string) (CharKind, bool) {
	for i, c := range charKinds {
		if strings.EqualFold(c.uuid, uuid) {
			return CharKind(i), true
		}
	}
	return 0, false
}

// Device is a discovered peripheral advertising the configuration service.
// Address is its identity; Name and RSSI change between sightings.
type Device struct {
	Address string
	Name    string // empty when the advertisement carried no local name
	RSSI    int
}

// Transport abstracts the host Bluetooth stack for testing.
//
// Connect, DiscoverServices, Read, Write and Subscribe only initiate work: a nil error
// means the operation was accepted and its outcome will arrive later as a
// LinkEvent on Events. A non-nil error means it was rejected outright and no
// event will follow.
type Transport interface {
	// Enable powers on the adapter. Returns ErrTransportUnavailable when
	// there is no usable radio.
	Enable() error
	// Scan reports peripherals advertising serviceUUID to found until ctx
	// is cancelled. It blocks for the duration of the scan.
	Scan(ctx context.Context, serviceUUID string, found func(Device)) error
	// Connect starts connecting to address. Success is LinkEstablished,
	// failure is LinkLost.
	Connect(ctx context.Context, address string) error
	// Disconnect tears down the current link, if any.
	Disconnect() error
	// DiscoverServices starts enumeration; the result is ServicesAvailable
	// or DiscoveryFailed.
	DiscoverServices() error
	// Read starts a characteristic read; the result is CharacteristicRead.
	Read(charUUID string) error
	// Write starts a write-with-response; the result is CharacteristicWritten.
	Write(charUUID string, data []byte) error
	// Subscribe starts enabling notifications; the result is Subscribed and
	// each value pushed afterwards arrives as Notification.
	Subscribe(charUUID string) error
	// Events delivers every link callback in the order the stack raised them.
	Events() <-chan LinkEvent
}

// LinkEvent is a callback raised by the transport.
type LinkEvent interface {
	linkEvent()
}

// LinkEstablished reports a connected link.
type LinkEstablished struct{}

// LinkLost reports that the link dropped or a connect attempt failed.
type LinkLost struct {
	Err error
}

// ServicesAvailable carries the enumerated GATT table, keyed by service UUID,
// each listing the characteristic UUIDs it contains.
type ServicesAvailable struct {
	Services map[string][]string
}

// DiscoveryFailed reports that service enumeration did not complete.
type DiscoveryFailed struct {
	Code int
}

// CharacteristicRead is the outcome of a Read.
type CharacteristicRead struct {
	UUID string
	Data []byte
	OK   bool
}

// CharacteristicWritten is the outcome of a Write.
type CharacteristicWritten struct {
	UUID string
	OK   bool
}

// Subscribed is the outcome of a Subscribe.
type Subscribed struct {
	UUID string
	OK   bool
}

// Notification carries a value pushed by the peripheral.
type Notification struct {
	UUID string
	Data []byte
}

func (LinkEstablished) linkEvent()       {}
func (LinkLost) linkEvent()              {}
func (ServicesAvailable) linkEvent()     {}
func (DiscoveryFailed) linkEvent()       {}
func (CharacteristicRead) linkEvent()    {}
func (CharacteristicWritten) linkEvent() {}
func (Subscribed) linkEvent()            {}
func (Notification) linkEvent()          {}
