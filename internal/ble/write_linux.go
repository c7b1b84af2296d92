//go:build linux

package ble

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/godbus/dbus/v5"
	"tinygo.org/x/bluetooth"
)

const (
	bluezGattCharacteristic = "org.bluez.GattCharacteristic1"
	bluezWriteValue         = "org.bluez.GattCharacteristic1.WriteValue"
	dbusGetManagedObjects   = "org.freedesktop.DBus.ObjectManager.GetManagedObjects"
)

type managedObjects map[dbus.ObjectPath]map[string]map[string]dbus.Variant

// writeWithResponse performs an acknowledged write request. tinygo only
// exposes write commands on Linux, so the request goes to BlueZ directly
// and returns once the peripheral has acknowledged it.
func writeWithResponse(_ bluetooth.DeviceCharacteristic, address, charUUID string, data []byte) error {
	conn, err := dbus.SystemBus()
	if err != nil {
		return fmt.Errorf("connect to system bus: %w", err)
	}

	var objects managedObjects
	root := conn.Object(bluezBusName, dbus.ObjectPath("/"))
	if err := root.Call(dbusGetManagedObjects, 0).Store(&objects); err != nil {
		return fmt.Errorf("list bluez objects: %w", err)
	}
	path, ok := characteristicPath(objects, bluezDevicePath(address), charUUID)
	if !ok {
		return fmt.Errorf("%w: %s on %s", errUnknown, charUUID, address)
	}

	options := map[string]dbus.Variant{"type": dbus.MakeVariant("request")}
	return conn.Object(bluezBusName, path).Call(bluezWriteValue, 0, data, options).Err
}

// bluezDevicePath returns the object path BlueZ uses for a peer on hci0.
func bluezDevicePath(address string) dbus.ObjectPath {
	mac := strings.ReplaceAll(strings.ToUpper(address), ":", "_")
	return dbus.ObjectPath(bluezAdapterPath + "/dev_" + mac)
}

// characteristicPath finds the characteristic with charUUID under device.
// Duplicates resolve to the lowest path, the order tinygo enumerates in.
func characteristicPath(objects managedObjects, device dbus.ObjectPath, charUUID string) (dbus.ObjectPath, bool) {
	prefix := string(device) + "/"
	for _, path := range slices.Sorted(maps.Keys(objects)) {
		if !strings.HasPrefix(string(path), prefix) {
			continue
		}
		props, ok := objects[path][bluezGattCharacteristic]
		if !ok {
			continue
		}
		if uuid, ok := props["UUID"].Value().(string); ok && strings.EqualFold(uuid, charUUID) {
			return path, true
		}
	}
	return "", false
}
