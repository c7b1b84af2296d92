package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/urfave/cli"

	"github.com/chaz8081/budsconfig/internal/ble"
	"github.com/chaz8081/budsconfig/internal/ble/protocol"
	"github.com/chaz8081/budsconfig/internal/config"
)

func initCommand(c *cli.Context) error {
	path, err := config.WriteDefault()
	if err != nil {
		return err
	}
	if path == "" {
		fmt.Printf("Config already exists at %s\n", config.DefaultConfigPath())
		return nil
	}
	fmt.Printf("Wrote %s\n", path)
	return nil
}

func scanCommand(c *cli.Context) error {
	timeout := c.Duration("timeout")
	if timeout <= 0 {
		timeout = cfg.Scan.Timeout
	}

	transport := ble.NewTinygoTransport()
	defer transport.Close()
	orch := ble.NewOrchestrator(transport, ble.DefaultOptions())
	defer orch.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := orch.StartScan(ctx); err != nil {
		return err
	}
	fmt.Printf("Scanning for %s (Ctrl+C to stop early)...\n", timeout)
	<-ctx.Done()
	orch.StopScan()

	devices := orch.Devices()
	if len(devices) == 0 {
		fmt.Println("No earbuds found.")
		return nil
	}
	printDevices(os.Stdout, devices)
	return nil
}

func showCommand(c *cli.Context) error {
	d, u, err := openDevice(c)
	if err != nil {
		return err
	}
	defer d.Close()

	if u.Err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", u.Err)
	}
	printSnapshot(os.Stdout, u.Snapshot)
	return nil
}

func setCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return errors.New("nothing to set; usage: budsconfig set <side>.<gesture>=<action> ...")
	}
	var assignments []assignment
	for _, arg := range c.Args() {
		as, err := parseAssignment(arg)
		if err != nil {
			return err
		}
		assignments = append(assignments, as...)
	}

	d, u, err := openDevice(c)
	if err != nil {
		return err
	}
	defer d.Close()

	if c.Bool("defaults") {
		d.orch.SetConfig(protocol.SideLeft, protocol.DefaultLeft())
		d.orch.SetConfig(protocol.SideRight, protocol.DefaultRight())
	} else if u.Err != nil {
		return fmt.Errorf("not saving over a partially read mapping (use --defaults to start fresh): %w", u.Err)
	}
	for _, a := range assignments {
		d.orch.SetAction(a.side, a.gesture, a.action)
	}

	if err := await(d.orch.Save(), cfg.Session.ReadyTimeout); err != nil {
		return err
	}
	fmt.Println("Saved.")
	printSnapshot(os.Stdout, d.orch.Snapshot())
	return nil
}

func renameCommand(c *cli.Context) error {
	name := strings.TrimSpace(strings.Join(c.Args(), " "))
	if c.Bool("truncate") {
		name = protocol.TruncateName(name, protocol.MaxDeviceNameBytes)
	}
	// Reject bad names before touching the radio.
	if _, err := protocol.MarshalDeviceName(name); err != nil {
		return err
	}

	d, _, err := openDevice(c)
	if err != nil {
		return err
	}
	defer d.Close()

	if err := await(d.orch.SaveDeviceName(name), cfg.Session.ReadyTimeout); err != nil {
		return err
	}
	fmt.Printf("Device name set to %q.\n", name)
	return nil
}

func checksumCommand(c *cli.Context) error {
	cmd, err := protocol.ParseCommand(c.String("command"))
	if err != nil {
		return err
	}
	target, err := protocol.ParseTarget(c.String("target"))
	if err != nil {
		return err
	}

	var sum uint16
	if c.String("address") == "" {
		sum, err = protocol.ApplyCommandChecksum(cmd, target,
			protocol.MarshalEarbudConfig(protocol.DefaultLeft()),
			protocol.MarshalEarbudConfig(protocol.DefaultRight()))
	} else {
		d, u, openErr := openDevice(c)
		if openErr != nil {
			return openErr
		}
		defer d.Close()
		if u.Err != nil {
			return u.Err
		}
		sum, err = d.orch.ApplyChecksum(cmd, target)
	}
	if err != nil {
		return err
	}
	fmt.Printf("%s/%s: 0x%04X\n", cmd, target, sum)
	return nil
}

func actionsCommand(c *cli.Context) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CODE\tNAME\tLABEL")
	for _, a := range protocol.Actions() {
		fmt.Fprintf(w, "0x%02X\t%s\t%s\n", a.Code(), a, a.Label())
	}
	if err := w.Flush(); err != nil {
		return err
	}

	names := make([]string, 0, 4)
	for _, g := range protocol.Gestures() {
		names = append(names, g.String())
	}
	fmt.Printf("\nGestures: %s\n", strings.Join(names, ", "))
	fmt.Println("Sides: left, right, both")
	return nil
}

func printDevices(out io.Writer, devices []ble.Device) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ADDRESS\tNAME\tRSSI")
	for _, d := range devices {
		name := d.Name
		if name == "" {
			name = "(unnamed)"
		}
		fmt.Fprintf(w, "%s\t%s\t%d dBm\n", d.Address, name, d.RSSI)
	}
	w.Flush()
}

func printSnapshot(out io.Writer, snap ble.Snapshot) {
	fmt.Fprintf(out, "Device:   %s\n", snap.Address)
	if snap.DeviceName != "" {
		fmt.Fprintf(out, "Name:     %s\n", snap.DeviceName)
	}
	if snap.HasVersion {
		fw := snap.Version.String()
		if !snap.Version.Supported() {
			fw += " (unsupported config layout)"
		}
		fmt.Fprintf(out, "Firmware: %s\n", fw)
	}
	if snap.HasStatus {
		fmt.Fprintf(out, "Status:   %s\n", snap.Status)
	}
	fmt.Fprintln(out)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "GESTURE\tLEFT\tRIGHT")
	for _, g := range protocol.Gestures() {
		fmt.Fprintf(w, "%s\t%s\t%s\n", g, snap.Left.Action(g).Label(), snap.Right.Action(g).Label())
	}
	w.Flush()
}
