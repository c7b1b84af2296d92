package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/urfave/cli"

	"github.com/chaz8081/budsconfig/internal/ble"
)

// device is an orchestrator running over the system Bluetooth stack for the
// lifetime of one command.
type device struct {
	transport *ble.TinygoTransport
	orch      *ble.Orchestrator
	cancel    context.CancelFunc
}

// openDevice connects to the device named by --address, device.address, or
// the only one in range, and waits for its configuration to load. The
// returned update carries any load error; the device stays usable.
func openDevice(c *cli.Context) (*device, ble.Update, error) {
	transport := ble.NewTinygoTransport()

	address, err := resolveAddress(c.String("address"), cfg.Device.Address, func() ([]ble.Device, error) {
		fmt.Printf("No address given, scanning for %s...\n", cfg.Scan.Timeout)
		return ble.ScanForDevices(transport, cfg.Scan.Timeout)
	})
	if err != nil {
		transport.Close()
		return nil, ble.Update{}, err
	}

	minFirmware, err := cfg.MinFirmware()
	if err != nil {
		transport.Close()
		return nil, ble.Update{}, err
	}
	opts := ble.DefaultOptions()
	opts.SettleDelay = cfg.Session.SettleDelay
	opts.MinFirmware = minFirmware

	ctx, cancel := context.WithCancel(context.Background())
	d := &device{
		transport: transport,
		orch:      ble.NewOrchestrator(transport, opts),
		cancel:    cancel,
	}
	go func() {
		if err := d.orch.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("event loop stopped", "error", err)
		}
	}()

	fmt.Printf("Connecting to %s...\n", address)
	if err := d.orch.Connect(ctx, address); err != nil {
		d.Close()
		return nil, ble.Update{}, err
	}
	if _, err := waitFor(d.orch, ble.UpdateConnected, cfg.Session.ConnectTimeout); err != nil {
		d.Close()
		return nil, ble.Update{}, fmt.Errorf("connect to %s: %w", address, err)
	}
	u, err := waitFor(d.orch, ble.UpdateLoaded, cfg.Session.ReadyTimeout)
	if err != nil {
		d.Close()
		return nil, ble.Update{}, fmt.Errorf("load configuration: %w", err)
	}
	return d, u, nil
}

// Close disconnects and releases the adapter.
func (d *device) Close() {
	if err := d.orch.Close(); err != nil {
		slog.Warn("disconnect failed", "error", err)
	}
	d.cancel()
	if err := d.transport.Close(); err != nil {
		slog.Debug("transport close", "error", err)
	}
}

// resolveAddress picks the device to talk to: the flag, then the config,
// then a scan that must find exactly one device.
func resolveAddress(flag, configured string, scan func() ([]ble.Device, error)) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if configured != "" {
		return configured, nil
	}
	devices, err := scan()
	if err != nil {
		return "", err
	}
	switch len(devices) {
	case 0:
		return "", errors.New("no earbuds found; make sure they are out of the case and in range")
	case 1:
		return devices[0].Address, nil
	}
	addrs := make([]string, len(devices))
	for i, d := range devices {
		addrs[i] = d.Address
	}
	return "", fmt.Errorf("found %d devices (%s); pick one with --address", len(devices), strings.Join(addrs, ", "))
}

// waitFor returns the next update of type want. Errors and disconnects seen
// on the way end the wait.
func waitFor(orch *ble.Orchestrator, want ble.UpdateType, timeout time.Duration) (ble.Update, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case u, ok := <-orch.Updates():
			if !ok {
				return ble.Update{}, ble.ErrClosed
			}
			if u.Type == want {
				return u, nil
			}
			switch u.Type {
			case ble.UpdateError:
				return u, u.Err
			case ble.UpdateDisconnected:
				if u.Err != nil {
					return u, fmt.Errorf("%w: %w", ble.ErrDisconnected, u.Err)
				}
				return u, ble.ErrDisconnected
			case ble.UpdateStatus:
				slog.Info("device status", "status", u.Snapshot.Status)
			}
		case <-timer.C:
			return ble.Update{}, fmt.Errorf("timed out after %s waiting for %s", timeout, want)
		}
	}
}

// await waits for a load or save result.
func await(ch <-chan error, timeout time.Duration) error {
	select {
	case err := <-ch:
		return err
	case <-time.After(timeout):
		return fmt.Errorf("timed out after %s", timeout)
	}
}
