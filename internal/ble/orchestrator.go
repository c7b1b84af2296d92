package ble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/blang/semver"

	"github.com/chaz8081/budsconfig/internal/ble/protocol"
)

// Options configures the Orchestrator.
type Options struct {
	// SettleDelay is the minimum pause between one GATT operation completing
	// and the next being issued, whichever job either belongs to. Zero relies
	// purely on completion ordering; 100ms matches the pacing older Android
	// stacks needed.
	SettleDelay time.Duration
	// MinFirmware triggers a warning when the device reports an older version.
	MinFirmware semver.Version
	// UpdateBuffer is the capacity of the Updates channel.
	UpdateBuffer int
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		MinFirmware:  semver.Version{Major: protocol.SupportedMajor},
		UpdateBuffer: 32,
	}
}

// UpdateType identifies an Update.
type UpdateType int

const (
	UpdateConnected UpdateType = iota
	UpdateReady
	UpdateLoaded
	UpdateSaved
	UpdateStatus
	UpdateError
	UpdateDisconnected
)

func (t UpdateType) String() string {
	switch t {
	case UpdateConnected:
		return "connected"
	case UpdateReady:
		return "ready"
	case UpdateLoaded:
		return "loaded"
	case UpdateSaved:
		return "saved"
	case UpdateStatus:
		return "status"
	case UpdateError:
		return "error"
	case UpdateDisconnected:
		return "disconnected"
	}
	return fmt.Sprintf("update(%d)", int(t))
}

// Update is published on the Updates channel whenever something the caller
// may want to render changes. Snapshot is taken at publish time.
type Update struct {
	Type     UpdateType
	Err      error
	Snapshot Snapshot
}

// Snapshot is a consistent copy of the orchestrator's state.
type Snapshot struct {
	State      State
	Address    string
	Left       protocol.EarbudConfig
	Right      protocol.EarbudConfig
	Version    protocol.FirmwareVersion
	HasVersion bool
	DeviceName string
	Status     protocol.DeviceStatus
	HasStatus  bool
}

type opKind int

const (
	opRead opKind = iota
	opWrite
	opSubscribe
)

type operation struct {
	kind opKind
	char CharKind
	data []byte
	load *loadJob
	save *saveJob
}

type loadJob struct {
	remaining int
	errs      []error
	done      chan error
}

type saveJob struct {
	what      string
	batch     WriteBatch
	errs      []error
	done      chan error
	finished  bool
	onSuccess func()
}

// Orchestrator owns a configuration session end to end: the scanner and its
// device list, the GATT session, the per-earbud config snapshot, and the
// queue that keeps at most one GATT operation outstanding on the link.
//
// Transport events must be fed through Run. Every other method is safe for
// concurrent use.
type Orchestrator struct {
	transport Transport
	session   *Session
	devices   *ScanAggregator
	scanner   *Scanner
	opts      Options

	mu         sync.Mutex
	left       protocol.EarbudConfig
	right      protocol.EarbudConfig
	version    protocol.FirmwareVersion
	hasVersion bool
	name       string
	status     protocol.DeviceStatus
	hasStatus  bool

	queue    []operation
	inflight *operation
	lastDone time.Time // when the link last completed an operation
	waiting  bool      // settle timer armed
	timer    *time.Timer
	gen      uint64

	load *loadJob
	save *saveJob

	updates chan Update
	closed  bool
}

// NewOrchestrator creates an Orchestrator over transport. Configs start at
// the firmware factory defaults until a load replaces them.
func NewOrchestrator(transport Transport, opts Options) *Orchestrator {
	if opts.SettleDelay < 0 {
		opts.SettleDelay = 0
	}
	if opts.UpdateBuffer <= 0 {
		opts.UpdateBuffer = 32
	}
	devices := NewScanAggregator()
	return &Orchestrator{
		transport: transport,
		session:   NewSession(transport),
		devices:   devices,
		scanner:   NewScanner(transport, devices),
		opts:      opts,
		left:      protocol.DefaultLeft(),
		right:     protocol.DefaultRight(),
		updates:   make(chan Update, opts.UpdateBuffer),
	}
}

// Updates returns the channel of published updates. It is closed by Close.
func (o *Orchestrator) Updates() <-chan Update {
	return o.updates
}

// State returns the session state.
func (o *Orchestrator) State() State {
	return o.session.State()
}

// Run drains transport events until ctx is cancelled or the transport
// closes its event channel. Call it exactly once, in its own goroutine.
func (o *Orchestrator) Run(ctx context.Context) error {
	events := o.transport.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			o.dispatch(ev)
		}
	}
}

func (o *Orchestrator) dispatch(ev LinkEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.handleLocked(o.session.Handle(ev))
}

// StartScan tears down any current session, clears the device list and
// starts discovering devices that advertise the configuration service.
func (o *Orchestrator) StartScan(ctx context.Context) error {
	if o.isClosed() {
		return ErrClosed
	}
	if err := o.transport.Enable(); err != nil {
		return fmt.Errorf("ble: enable adapter: %w", err)
	}
	if err := o.Disconnect(); err != nil {
		slog.Warn("[BLE] teardown before scan failed", "error", err)
	}
	o.scanner.Start(ctx)
	slog.Info("[BLE] scanning")
	return nil
}

// StopScan ends discovery. It is safe to call at any time.
func (o *Orchestrator) StopScan() {
	o.scanner.Stop()
}

// Devices returns the devices discovered by the current or last scan.
func (o *Orchestrator) Devices() []Device {
	return o.devices.Devices()
}

// Connect stops scanning, tears down any existing session and starts
// connecting to address. Loading begins automatically once the session is
// ready; watch Updates for UpdateLoaded.
func (o *Orchestrator) Connect(ctx context.Context, address string) error {
	if o.isClosed() {
		return ErrClosed
	}
	o.scanner.Stop()
	if err := o.transport.Enable(); err != nil {
		return fmt.Errorf("ble: enable adapter: %w", err)
	}
	if o.session.State() != StateDisconnected {
		if err := o.Disconnect(); err != nil {
			slog.Warn("[BLE] teardown before connect failed", "error", err)
		}
	}
	return o.session.Connect(ctx, address)
}

// Disconnect drops the link. Pending loads and saves resolve with
// ErrDisconnected.
func (o *Orchestrator) Disconnect() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	events, err := o.session.Disconnect()
	o.handleLocked(events)
	return err
}

// Close disconnects, stops scanning and closes the Updates channel.
func (o *Orchestrator) Close() error {
	o.scanner.Stop()

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil
	}
	events, err := o.session.Disconnect()
	o.handleLocked(events)
	o.abortLocked(ErrClosed)
	o.closed = true
	close(o.updates)
	return err
}

func (o *Orchestrator) isClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

// Snapshot returns a copy of the current state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

func (o *Orchestrator) snapshotLocked() Snapshot {
	return Snapshot{
		State:      o.session.State(),
		Address:    o.session.Address(),
		Left:       o.left,
		Right:      o.right,
		Version:    o.version,
		HasVersion: o.hasVersion,
		DeviceName: o.name,
		Status:     o.status,
		HasStatus:  o.hasStatus,
	}
}

// SetConfig replaces one earbud's mapping. It is not written to the device
// until Save.
func (o *Orchestrator) SetConfig(side protocol.Side, cfg protocol.EarbudConfig) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if side == protocol.SideRight {
		o.right = cfg
	} else {
		o.left = cfg
	}
}

// SetAction rebinds one gesture on one earbud.
func (o *Orchestrator) SetAction(side protocol.Side, g protocol.Gesture, a protocol.ButtonAction) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if side == protocol.SideRight {
		o.right = o.right.WithAction(g, a)
	} else {
		o.left = o.left.WithAction(g, a)
	}
}

// ApplyChecksum returns the CRC-16/XMODEM of the apply frame for the
// current configs. How firmware expects it transmitted is not settled, so
// it is only computed here.
func (o *Orchestrator) ApplyChecksum(cmd protocol.Command, target protocol.Target) (uint16, error) {
	o.mu.Lock()
	left := protocol.MarshalEarbudConfig(o.left)
	right := protocol.MarshalEarbudConfig(o.right)
	o.mu.Unlock()
	return protocol.ApplyCommandChecksum(cmd, target, left, right)
}

func resolved(err error) <-chan error {
	ch := make(chan error, 1)
	ch <- err
	return ch
}

// Load reads both configs, the firmware version and, when present, the
// device name, one after another. The returned channel yields exactly one
// result; a failed step does not stop the rest.
func (o *Orchestrator) Load() <-chan error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return resolved(ErrClosed)
	}
	if o.load != nil {
		return resolved(fmt.Errorf("ble: load: %w", ErrBusy))
	}
	if o.session.State() != StateReady {
		return resolved(fmt.Errorf("ble: load: %w", ErrNotReady))
	}
	return o.startLoadLocked()
}

func (o *Orchestrator) startLoadLocked() <-chan error {
	kinds := []CharKind{CharLeftConfig, CharRightConfig, CharVersion}
	if o.session.Has(CharDeviceName) {
		kinds = append(kinds, CharDeviceName)
	}
	job := &loadJob{remaining: len(kinds), done: make(chan error, 1)}
	o.load = job
	for _, k := range kinds {
		o.queue = append(o.queue, operation{kind: opRead, char: k, load: job})
	}
	slog.Info("[BLE] loading configuration", "reads", len(kinds))
	o.advanceLocked()
	return job.done
}

// Save writes the current left and right configs. Both writes are
// attempted even if the first fails; the returned channel yields exactly
// one result once both have an outcome.
func (o *Orchestrator) Save() <-chan error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return resolved(ErrClosed)
	}
	if o.save != nil {
		return resolved(fmt.Errorf("ble: save: %w", ErrBusy))
	}
	left := protocol.MarshalEarbudConfig(o.left)
	right := protocol.MarshalEarbudConfig(o.right)
	job := &saveJob{what: "config", batch: NewWriteBatch(2), done: make(chan error, 1)}
	o.save = job
	o.queue = append(o.queue,
		operation{kind: opWrite, char: CharLeftConfig, data: left, save: job},
		operation{kind: opWrite, char: CharRightConfig, data: right, save: job},
	)
	slog.Info("[BLE] saving configuration")
	o.advanceLocked()
	return job.done
}

// SaveDeviceName writes a new advertised name (at most 32 bytes of UTF-8).
func (o *Orchestrator) SaveDeviceName(name string) <-chan error {
	data, err := protocol.MarshalDeviceName(name)
	if err != nil {
		return resolved(fmt.Errorf("ble: save device name: %w", err))
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return resolved(ErrClosed)
	}
	if o.save != nil {
		return resolved(fmt.Errorf("ble: save device name: %w", ErrBusy))
	}
	job := &saveJob{
		what:      "device name",
		batch:     NewWriteBatch(1),
		done:      make(chan error, 1),
		onSuccess: func() { o.name = name },
	}
	o.save = job
	o.queue = append(o.queue, operation{kind: opWrite, char: CharDeviceName, data: data, save: job})
	o.advanceLocked()
	return job.done
}

// handleLocked reacts to session events.
func (o *Orchestrator) handleLocked(events []Event) {
	for _, e := range events {
		switch e.Type {
		case EventConnected:
			o.publishLocked(Update{Type: UpdateConnected})
		case EventReady:
			o.publishLocked(Update{Type: UpdateReady})
			if o.session.Has(CharStatus) {
				o.queue = append(o.queue, operation{kind: opSubscribe, char: CharStatus})
			}
			if o.load == nil {
				o.startLoadLocked()
			}
		case EventRead:
			o.completeLocked(opRead, e.Char, e.Data, e.Err)
		case EventWritten:
			o.completeLocked(opWrite, e.Char, nil, e.Err)
		case EventSubscribed:
			o.completeLocked(opSubscribe, e.Char, nil, e.Err)
		case EventStatus:
			o.status, o.hasStatus = e.Status, true
			slog.Info("[BLE] device status", "status", e.Status)
			o.publishLocked(Update{Type: UpdateStatus})
		case EventError:
			o.abortLocked(e.Err)
			o.publishLocked(Update{Type: UpdateError, Err: e.Err})
		case EventDisconnected:
			cause := ErrDisconnected
			if e.Err != nil {
				cause = fmt.Errorf("%w: %w", ErrDisconnected, e.Err)
			}
			o.abortLocked(cause)
			o.publishLocked(Update{Type: UpdateDisconnected, Err: e.Err})
		}
	}
}

// completeLocked matches a result to the in-flight operation and moves the
// queue forward.
func (o *Orchestrator) completeLocked(kind opKind, char CharKind, data []byte, err error) {
	op := o.inflight
	if op == nil || op.kind != kind || op.char != char {
		slog.Debug("[BLE] unsolicited result", "char", char, "error", err)
		return
	}
	o.inflight = nil
	o.lastDone = time.Now()

	if kind == opRead && err == nil {
		err = o.applyReadLocked(char, data)
	}
	o.resolveLocked(op, err)
	o.advanceLocked()
}

// applyReadLocked decodes a read payload into the snapshot. On a decode
// error the previous value is kept.
func (o *Orchestrator) applyReadLocked(char CharKind, data []byte) error {
	switch char {
	case CharLeftConfig, CharRightConfig:
		cfg, err := protocol.UnmarshalEarbudConfig(data)
		if err != nil {
			slog.Warn("[BLE] failed to decode config", "char", char, "error", err)
			return err
		}
		if char == CharLeftConfig {
			o.left = cfg
		} else {
			o.right = cfg
		}
		slog.Debug("[BLE] config loaded", "char", char, "config", cfg)
	case CharVersion:
		v, err := protocol.UnmarshalFirmwareVersion(data)
		if err != nil {
			slog.Warn("[BLE] failed to decode firmware version", "error", err)
			return err
		}
		o.version, o.hasVersion = v, true
		slog.Info("[BLE] firmware version", "version", v.String())
		if !v.Supported() {
			slog.Warn("[BLE] firmware config layout not supported", "version", v.String(), "supported_major", protocol.SupportedMajor)
		} else if v.Semver().LT(o.opts.MinFirmware) {
			slog.Warn("[BLE] firmware older than configured minimum", "version", v.String(), "min", o.opts.MinFirmware.String())
		}
	case CharDeviceName:
		name, err := protocol.UnmarshalDeviceName(data)
		if err != nil {
			slog.Warn("[BLE] failed to decode device name", "error", err)
			return err
		}
		o.name = name
	}
	return nil
}

// advanceLocked issues the next queued operation unless one is in flight.
func (o *Orchestrator) advanceLocked() {
	if o.inflight != nil || o.waiting || len(o.queue) == 0 {
		return
	}
	if wait := o.settleRemainingLocked(); wait > 0 {
		o.waiting = true
		gen := o.gen
		o.timer = time.AfterFunc(wait, func() {
			o.mu.Lock()
			defer o.mu.Unlock()
			if o.gen != gen {
				return
			}
			o.waiting = false
			o.advanceLocked()
		})
		return
	}
	o.issueLocked()
}

// settleRemainingLocked returns how much of the settle delay is left since
// the last completion.
func (o *Orchestrator) settleRemainingLocked() time.Duration {
	if o.opts.SettleDelay <= 0 || o.lastDone.IsZero() {
		return 0
	}
	return o.opts.SettleDelay - time.Since(o.lastDone)
}

// issueLocked sends queued operations until the transport accepts one.
// Rejected operations resolve as failures immediately: no callback will
// ever arrive for them.
func (o *Orchestrator) issueLocked() {
	for o.inflight == nil && len(o.queue) > 0 {
		op := o.queue[0]
		o.queue = o.queue[1:]

		var err error
		switch op.kind {
		case opRead:
			err = o.session.RequestRead(op.char)
		case opWrite:
			err = o.session.RequestWrite(op.char, op.data)
		case opSubscribe:
			err = o.session.RequestSubscribe(op.char)
		}
		if err != nil {
			slog.Warn("[BLE] operation not initiated", "char", op.char, "error", err)
			o.resolveLocked(&op, err)
			continue
		}
		o.inflight = &op
	}
}

// abortLocked cancels the queue and resolves every outstanding operation
// with cause.
func (o *Orchestrator) abortLocked(cause error) {
	o.gen++
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
	o.waiting = false
	o.lastDone = time.Time{}

	var pending []operation
	if o.inflight != nil {
		pending = append(pending, *o.inflight)
		o.inflight = nil
	}
	pending = append(pending, o.queue...)
	o.queue = nil

	for i := range pending {
		o.resolveLocked(&pending[i], cause)
	}
}

func (o *Orchestrator) resolveLocked(op *operation, err error) {
	switch {
	case op.kind == opSubscribe:
		if err != nil {
			slog.Warn("[BLE] status notifications unavailable", "error", err)
		} else {
			slog.Debug("[BLE] subscribed", "char", op.char)
		}

	case op.load != nil:
		job := op.load
		job.remaining--
		if err != nil {
			job.errs = append(job.errs, err)
		}
		if job.remaining > 0 {
			return
		}
		if o.load == job {
			o.load = nil
		}
		var result error
		if len(job.errs) > 0 {
			result = fmt.Errorf("ble: load: %w", errors.Join(job.errs...))
			slog.Warn("[BLE] configuration loaded with errors", "failed", len(job.errs))
		} else {
			slog.Info("[BLE] configuration loaded")
		}
		job.done <- result
		o.publishLocked(Update{Type: UpdateLoaded, Err: result})

	case op.save != nil:
		job := op.save
		if job.finished {
			return
		}
		job.batch = job.batch.Resolve(err == nil)
		if err != nil {
			job.errs = append(job.errs, err)
		}
		slog.Debug("[BLE] write resolved", "char", op.char, "pending", job.batch.Pending(), "errors", job.batch.Errors())
		if !job.batch.Done() {
			return
		}
		job.finished = true
		if o.save == job {
			o.save = nil
		}
		var result error
		if job.batch.Failed() {
			result = fmt.Errorf("ble: save %s: %d of %d writes failed: %w",
				job.what, job.batch.Errors(), job.batch.Total(), errors.Join(job.errs...))
			slog.Error("[BLE] save failed", "what", job.what, "errors", job.batch.Errors())
		} else {
			if job.onSuccess != nil {
				job.onSuccess()
			}
			slog.Info("[BLE] saved", "what", job.what)
		}
		job.done <- result
		o.publishLocked(Update{Type: UpdateSaved, Err: result})
	}
}

// publishLocked sends an update without blocking. When the buffer is full
// the oldest update is dropped.
func (o *Orchestrator) publishLocked(u Update) {
	if o.closed {
		return
	}
	u.Snapshot = o.snapshotLocked()
	select {
	case o.updates <- u:
		return
	default:
	}
	slog.Warn("[BLE] update buffer full, dropping oldest")
	select {
	case <-o.updates:
	default:
	}
	select {
	case o.updates <- u:
	default:
	}
}
