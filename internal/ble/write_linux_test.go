//go:build linux

package ble

import (
	"testing"

	"github.com/godbus/dbus/v5"
	"tinygo.org/x/bluetooth"
)

// Acknowledged writes on Linux must not depend on tinygo's DeviceCharacteristic.Write.
var _ func(bluetooth.DeviceCharacteristic, string, string, []byte) error = writeWithResponse

func TestBluezDevicePath(t *testing.T) {
	got := bluezDevicePath("aa:bb:cc:dd:ee:0f")
	if want := dbus.ObjectPath("/org/bluez/hci0/dev_AA_BB_CC_DD_EE_0F"); got != want {
		t.Errorf("bluezDevicePath() = %q, want %q", got, want)
	}
}

func gattChar(uuid string) map[string]map[string]dbus.Variant {
	return map[string]map[string]dbus.Variant{
		bluezGattCharacteristic: {"UUID": dbus.MakeVariant(uuid)},
	}
}

func TestCharacteristicPath(t *testing.T) {
	device := bluezDevicePath(testAddress)
	other := bluezDevicePath("11:22:33:44:55:66")
	objects := managedObjects{
		other + "/service0010/char0011":  gattChar(LeftConfigCharUUID),
		device:                           {"org.bluez.Device1": {}},
		device + "/service0010":          {"org.bluez.GattService1": {"UUID": dbus.MakeVariant(ServiceUUID)}},
		device + "/service0010/char0014": gattChar(RightConfigCharUUID),
		device + "/service0010/char0012": gattChar(LeftConfigCharUUID),
		device + "/service0020/char0022": gattChar(LeftConfigCharUUID),
	}

	tests := []struct {
		name   string
		uuid   string
		want   dbus.ObjectPath
		wantOK bool
	}{
		{"left config", LeftConfigCharUUID, device + "/service0010/char0012", true},
		{"upper case uuid", "0000FFC2-0000-1000-8000-00805F9B34FB", device + "/service0010/char0014", true},
		{"not exposed", VersionCharUUID, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := characteristicPath(objects, device, tt.uuid)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("characteristicPath() = %q, %v, want %q, %v", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}
