package ble

import (
	"testing"

	"tinygo.org/x/bluetooth"
)

func TestUUIDsUseBluetoothBase(t *testing.T) {
	tests := []struct {
		short uint16
		got   string
	}{
		{0xFFC0, ServiceUUID},
		{0xFFC1, LeftConfigCharUUID},
		{0xFFC2, RightConfigCharUUID},
		{0xFFC3, VersionCharUUID},
		{0xFFC4, DeviceNameCharUUID},
		{0xFFC5, ApplyCommandCharUUID},
		{0xFFC6, StatusCharUUID},
	}
	for _, tt := range tests {
		want := bluetooth.New16BitUUID(tt.short).String()
		if tt.got != want {
			t.Errorf("UUID for 0x%04X = %s, want %s", tt.short, tt.got, want)
		}
	}
}

func TestCharKindForUUID(t *testing.T) {
	for kind := CharLeftConfig; kind <= CharStatus; kind++ {
		got, ok := charKindForUUID(kind.UUID())
		if !ok || got != kind {
			t.Errorf("charKindForUUID(%s) = %v, %v; want %v", kind.UUID(), got, ok, kind)
		}
	}
	if _, ok := charKindForUUID("00002a00-0000-1000-8000-00805f9b34fb"); ok {
		t.Error("unrelated UUID matched a configuration characteristic")
	}
	if got := CharKind(99).String(); got != "unknown" {
		t.Errorf("CharKind(99).String() = %q, want unknown", got)
	}
}
