//go:build linux

package ble

import (
	"fmt"

	"github.com/godbus/dbus/v5"
)

const (
	bluezBusName     = "org.bluez"
	bluezAdapterPath = "/org/bluez/hci0"
	bluezAdapter     = "org.bluez.Adapter1"
	dbusPropsGet     = "org.freedesktop.DBus.Properties.Get"
)

// checkAdapterPowered asks BlueZ whether hci0 is powered. tinygo's Enable
// succeeds against a powered-off adapter on Linux and every later operation
// then fails, so this is checked up front.
func checkAdapterPowered() error {
	conn, err := dbus.SystemBus()
	if err != nil {
		return fmt.Errorf("%w: connect to system bus: %v", ErrTransportUnavailable, err)
	}
	var v dbus.Variant
	obj := conn.Object(bluezBusName, dbus.ObjectPath(bluezAdapterPath))
	if err := obj.Call(dbusPropsGet, 0, bluezAdapter, "Powered").Store(&v); err != nil {
		return fmt.Errorf("%w: query %s: %v (is bluetooth.service running?)", ErrTransportUnavailable, bluezAdapterPath, err)
	}
	powered, ok := v.Value().(bool)
	if !ok {
		return fmt.Errorf("%w: Powered property is %T, not bool", ErrTransportUnavailable, v.Value())
	}
	if !powered {
		return fmt.Errorf("%w: adapter %s is powered off", ErrTransportUnavailable, bluezAdapterPath)
	}
	return nil
}
