package ble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"
)

const (
	// maxReadSize bounds a single characteristic read (the ATT maximum).
	maxReadSize = 512
	// scanStopRetry paces StopScan retries while a scan is still starting up.
	scanStopRetry = 10 * time.Millisecond
)

var (
	errNoLink   = errors.New("no active link")
	errLinkBusy = errors.New("another GATT operation is in flight")
	errUnknown  = errors.New("characteristic not discovered")
)

// TinygoTransport implements Transport on tinygo-org/bluetooth. The library's
// calls block, so each accepted operation runs in its own goroutine and
// reports back through Events. It refuses to start a GATT operation while
// another is running.
//
// On macOS, device addresses are CoreBluetooth UUIDs rather than MACs.
type TinygoTransport struct {
	adapter *bluetooth.Adapter
	events  chan LinkEvent
	done    chan struct{}

	mu         sync.Mutex
	enabled    bool
	closed     bool
	address    string
	connecting bool
	gen        uint64 // bumped on every disconnect so stale connects are dropped
	device     *bluetooth.Device
	chars      map[string]bluetooth.DeviceCharacteristic // keyed by lowercase UUID
	busy       bool
}

// NewTinygoTransport creates a transport on the default adapter.
func NewTinygoTransport() *TinygoTransport {
	return &TinygoTransport{
		adapter: bluetooth.DefaultAdapter,
		events:  make(chan LinkEvent, 64),
		done:    make(chan struct{}),
	}
}

// Compile-time check that TinygoTransport implements Transport.
var _ Transport = (*TinygoTransport)(nil)

func (t *TinygoTransport) Events() <-chan LinkEvent {
	return t.events
}

func (t *TinygoTransport) post(ev LinkEvent) {
	select {
	case t.events <- ev:
	case <-t.done:
	}
}

func (t *TinygoTransport) Enable() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.enabled {
		return nil
	}
	if err := checkAdapterPowered(); err != nil {
		return err
	}
	if err := t.adapter.Enable(); err != nil {
		return fmt.Errorf("%w: %v", ErrTransportUnavailable, err)
	}

	t.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		if connected {
			return
		}
		t.mu.Lock()
		match := t.device != nil && strings.EqualFold(device.Address.String(), t.address)
		if match {
			t.dropLinkLocked()
		}
		t.mu.Unlock()
		if match {
			slog.Warn("[BLE] link lost", "address", device.Address.String())
			t.post(LinkLost{})
		}
	})
	t.enabled = true
	return nil
}

func (t *TinygoTransport) Scan(ctx context.Context, serviceUUID string, found func(Device)) error {
	uuid, err := bluetooth.ParseUUID(serviceUUID)
	if err != nil {
		return fmt.Errorf("ble: parse service UUID: %w", err)
	}

	err = scanUntilDone(ctx, t.adapter, func(result bluetooth.ScanResult) {
		if !result.HasServiceUUID(uuid) {
			return
		}
		found(Device{
			Address: result.Address.String(),
			Name:    result.LocalName(),
			RSSI:    int(result.RSSI),
		})
	})
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("ble: scan: %w", err)
	}
	return nil
}

// scanAdapter is the part of *bluetooth.Adapter that drives discovery.
type scanAdapter interface {
	Scan(callback func(*bluetooth.Adapter, bluetooth.ScanResult)) error
	StopScan() error
}

// scanUntilDone runs a scan until ctx is cancelled. StopScan fails while
// the scan is still registering itself, so it is retried until Scan
// returns.
func scanUntilDone(ctx context.Context, a scanAdapter, found func(bluetooth.ScanResult)) error {
	if ctx.Err() != nil {
		return nil
	}

	stopped := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-stopped:
			return
		}
		tick := time.NewTicker(scanStopRetry)
		defer tick.Stop()
		for {
			err := a.StopScan()
			if err == nil {
				return
			}
			slog.Debug("[BLE] stop scan", "error", err)
			select {
			case <-stopped:
				return
			case <-tick.C:
			}
		}
	}()

	err := a.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
		found(result)
	})
	close(stopped)
	return err
}

func (t *TinygoTransport) Connect(ctx context.Context, address string) error {
	addr, err := parseAddress(address)
	if err != nil {
		return fmt.Errorf("ble: parse address %q: %w", address, err)
	}

	t.mu.Lock()
	if t.device != nil || t.connecting {
		t.mu.Unlock()
		return fmt.Errorf("ble: already linked to %s", t.address)
	}
	t.connecting = true
	t.address = address
	gen := t.gen
	t.mu.Unlock()

	// tinygo's Connect blocks with its own timeout and cannot be cancelled,
	// so a cancelled ctx only discards the result.
	go func() {
		device, err := t.adapter.Connect(addr, bluetooth.ConnectionParams{})

		t.mu.Lock()
		stale := t.gen != gen
		t.connecting = false
		if err == nil && !stale && ctx.Err() != nil {
			err = ctx.Err()
		}
		if err != nil || stale {
			if !stale {
				t.address = ""
			}
			t.mu.Unlock()
			if err == nil {
				_ = device.Disconnect()
				return
			}
			if !stale {
				t.post(LinkLost{Err: fmt.Errorf("ble: connect to %s: %w", address, err)})
			}
			return
		}
		t.device = &device
		t.mu.Unlock()

		slog.Info("[BLE] link established", "address", address)
		t.post(LinkEstablished{})
	}()
	return nil
}

func (t *TinygoTransport) Disconnect() error {
	t.mu.Lock()
	device := t.device
	t.dropLinkLocked()
	t.mu.Unlock()

	if device == nil {
		return nil
	}
	return device.Disconnect()
}

// dropLinkLocked forgets the current link.
func (t *TinygoTransport) dropLinkLocked() {
	t.gen++
	t.device = nil
	t.chars = nil
	t.busy = false
	t.address = ""
	t.connecting = false
}

func (t *TinygoTransport) DiscoverServices() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.device == nil {
		return errNoLink
	}
	if t.busy {
		return errLinkBusy
	}
	t.busy = true
	device, gen := t.device, t.gen

	go func() {
		services, err := device.DiscoverServices(nil)
		if err != nil {
			slog.Error("[BLE] discover services", "error", err)
			if t.endOp(gen) {
				t.post(DiscoveryFailed{Code: -1})
			}
			return
		}

		table := make(map[string][]string, len(services))
		chars := make(map[string]bluetooth.DeviceCharacteristic)
		for _, svc := range services {
			svcUUID := strings.ToLower(svc.UUID().String())
			cs, err := svc.DiscoverCharacteristics(nil)
			if err != nil {
				slog.Warn("[BLE] discover characteristics", "service", svcUUID, "error", err)
				table[svcUUID] = nil
				continue
			}
			names := make([]string, 0, len(cs))
			for _, c := range cs {
				u := strings.ToLower(c.UUID().String())
				names = append(names, u)
				if svcUUID == ServiceUUID {
					chars[u] = c
				}
			}
			table[svcUUID] = names
		}

		t.mu.Lock()
		if t.gen == gen {
			t.chars = chars
		}
		t.mu.Unlock()
		if t.endOp(gen) {
			t.post(ServicesAvailable{Services: table})
		}
	}()
	return nil
}

// gattOp is a claim on the link for one characteristic operation.
type gattOp struct {
	char    bluetooth.DeviceCharacteristic
	gen     uint64
	address string
}

// beginOp claims the link for one characteristic operation.
func (t *TinygoTransport) beginOp(uuid string) (gattOp, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.device == nil {
		return gattOp{}, errNoLink
	}
	if t.busy {
		return gattOp{}, errLinkBusy
	}
	c, ok := t.chars[strings.ToLower(uuid)]
	if !ok {
		return gattOp{}, fmt.Errorf("%w: %s", errUnknown, uuid)
	}
	t.busy = true
	return gattOp{char: c, gen: t.gen, address: t.address}, nil
}

// endOp releases the link and reports whether the result still belongs to
// the current link.
func (t *TinygoTransport) endOp(gen uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.gen != gen {
		return false
	}
	t.busy = false
	return true
}

func (t *TinygoTransport) Read(charUUID string) error {
	op, err := t.beginOp(charUUID)
	if err != nil {
		return err
	}
	go func() {
		buf := make([]byte, maxReadSize)
		n, err := op.char.Read(buf)
		if !t.endOp(op.gen) {
			return
		}
		if err != nil {
			slog.Warn("[BLE] read failed", "uuid", charUUID, "error", err)
			t.post(CharacteristicRead{UUID: charUUID})
			return
		}
		t.post(CharacteristicRead{UUID: charUUID, Data: buf[:n], OK: true})
	}()
	return nil
}

func (t *TinygoTransport) Write(charUUID string, data []byte) error {
	op, err := t.beginOp(charUUID)
	if err != nil {
		return err
	}
	payload := append([]byte(nil), data...)
	go func() {
		err := writeWithResponse(op.char, op.address, charUUID, payload)
		if !t.endOp(op.gen) {
			return
		}
		if err != nil {
			slog.Warn("[BLE] write failed", "uuid", charUUID, "error", err)
		}
		t.post(CharacteristicWritten{UUID: charUUID, OK: err == nil})
	}()
	return nil
}

// Subscribe writes the notification descriptor. It occupies the link like
// any other characteristic operation.
func (t *TinygoTransport) Subscribe(charUUID string) error {
	op, err := t.beginOp(charUUID)
	if err != nil {
		return err
	}
	go func() {
		c := op.char
		err := c.EnableNotifications(func(buf []byte) {
			t.post(Notification{UUID: charUUID, Data: append([]byte(nil), buf...)})
		})
		if !t.endOp(op.gen) {
			return
		}
		if err != nil {
			slog.Warn("[BLE] enable notifications failed", "uuid", charUUID, "error", err)
		}
		t.post(Subscribed{UUID: charUUID, OK: err == nil})
	}()
	return nil
}

// Close releases the link and unblocks any goroutine waiting to post.
func (t *TinygoTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	close(t.done)
	t.mu.Unlock()
	return t.Disconnect()
}
