package ble

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ScanAggregator collects discovered devices keyed by address. Devices keep
// the order they were first seen in; repeat sightings update the stored
// record rather than adding a duplicate. It never expires entries on its own.
type ScanAggregator struct {
	mu      sync.Mutex
	order   []string
	devices map[string]Device
}

// NewScanAggregator returns an empty aggregator.
func NewScanAggregator() *ScanAggregator {
	return &ScanAggregator{devices: make(map[string]Device)}
}

// Add records a sighting and reports whether the address was new. A repeat
// sighting always takes the new RSSI; the name is only replaced when the
// new advertisement carried one.
func (a *ScanAggregator) Add(d Device) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	existing, ok := a.devices[d.Address]
	if !ok {
		a.order = append(a.order, d.Address)
		a.devices[d.Address] = d
		return true
	}
	existing.RSSI = d.RSSI
	if d.Name != "" {
		existing.Name = d.Name
	}
	a.devices[d.Address] = existing
	return false
}

// Devices returns a snapshot in first-seen order.
func (a *ScanAggregator) Devices() []Device {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Device, 0, len(a.order))
	for _, addr := range a.order {
		out = append(out, a.devices[addr])
	}
	return out
}

// Lookup returns the stored record for address.
func (a *ScanAggregator) Lookup(address string) (Device, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	d, ok := a.devices[address]
	return d, ok
}

// Len returns the number of distinct devices seen.
func (a *ScanAggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.order)
}

// Reset forgets every device.
func (a *ScanAggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.order = nil
	a.devices = make(map[string]Device)
}

// Scanner runs one discovery subscription at a time and feeds its results
// into a ScanAggregator.
type Scanner struct {
	transport Transport
	agg       *ScanAggregator

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// NewScanner creates a Scanner that records into agg.
func NewScanner(transport Transport, agg *ScanAggregator) *Scanner {
	return &Scanner{transport: transport, agg: agg}
}

// Start stops any running scan, clears the aggregator and begins a new
// subscription filtered by the configuration service. The scan runs until
// Stop is called or ctx is cancelled.
func (s *Scanner) Start(ctx context.Context) {
	s.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.agg.Reset()
	s.err = nil
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	go func() {
		defer close(done)
		err := s.transport.Scan(ctx, ServiceUUID, func(d Device) {
			if s.agg.Add(d) {
				slog.Debug("[SCAN] found device", "address", d.Address, "name", d.Name, "rssi", d.RSSI)
			}
		})
		if err != nil && ctx.Err() == nil {
			slog.Error("[SCAN] scan failed", "error", err)
			s.mu.Lock()
			s.err = fmt.Errorf("ble: scan: %w", err)
			s.mu.Unlock()
		}
	}()
}

// Stop unsubscribes from discovery and waits for the scan to wind down.
// Calling it when no scan is running is a no-op.
func (s *Scanner) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Scanning reports whether a subscription is active.
func (s *Scanner) Scanning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done == nil {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// Err returns the error that ended the last scan early, if any.
func (s *Scanner) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// ScanForDevices scans for devices advertising the configuration service
// for the given duration and returns what it found.
func ScanForDevices(transport Transport, timeout time.Duration) ([]Device, error) {
	if err := transport.Enable(); err != nil {
		return nil, fmt.Errorf("ble: enable adapter: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	agg := NewScanAggregator()
	err := transport.Scan(ctx, ServiceUUID, func(d Device) { agg.Add(d) })
	if err != nil && ctx.Err() == nil {
		return nil, fmt.Errorf("ble: scan: %w", err)
	}
	return agg.Devices(), nil
}
