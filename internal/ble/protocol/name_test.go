package protocol

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestMarshalDeviceName(t *testing.T) {
	got, err := MarshalDeviceName("PineBuds Pro")
	if err != nil {
		t.Fatalf("MarshalDeviceName() error = %v", err)
	}
	if string(got) != "PineBuds Pro" {
		t.Errorf("got %q", got)
	}

	for _, bad := range []string{"", strings.Repeat("x", 33), "\xff\xfe"} {
		if _, err := MarshalDeviceName(bad); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("MarshalDeviceName(%q) error = %v, want ErrInvalidInput", bad, err)
		}
	}
}

func TestUnmarshalDeviceName(t *testing.T) {
	got, err := UnmarshalDeviceName([]byte("Buds\x00\x00\x00"))
	if err != nil {
		t.Fatalf("UnmarshalDeviceName() error = %v", err)
	}
	if got != "Buds" {
		t.Errorf("got %q, want %q", got, "Buds")
	}

	empty, err := UnmarshalDeviceName(nil)
	if err != nil || empty != "" {
		t.Errorf("UnmarshalDeviceName(nil) = %q, %v; want empty, nil", empty, err)
	}

	if _, err := UnmarshalDeviceName(make([]byte, 40)); !errors.Is(err, ErrMalformedPayload) {
		t.Errorf("oversized name error = %v, want ErrMalformedPayload", err)
	}
}

func TestTruncateNameRespectsUTF8(t *testing.T) {
	// 31 ASCII bytes followed by a 3-byte rune: the cut must drop the rune.
	name := strings.Repeat("a", 31) + "日本"
	got := TruncateName(name, MaxDeviceNameBytes)
	if len(got) != 31 {
		t.Errorf("len = %d, want 31", len(got))
	}
	if !utf8.ValidString(got) {
		t.Errorf("TruncateName produced invalid UTF-8: %q", got)
	}
	if TruncateName("short", 32) != "short" {
		t.Error("short names must pass through unchanged")
	}
	if got := TruncateName("abc def", 4); got != "abc" {
		t.Errorf("TruncateName trailing space = %q, want %q", got, "abc")
	}
}
