package ble

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/chaz8081/budsconfig/internal/ble/protocol"
)

var errMockRejected = errors.New("mock: rejected")

// mockTransport records every request and never calls back on its own;
// tests feed LinkEvents explicitly.
type mockTransport struct {
	mu sync.Mutex

	events chan LinkEvent

	enableErr    error
	connectErr   error
	discoverErr  error
	subscribeErr error
	rejectRead   map[string]error
	rejectWrite  map[string]error

	scanDevices []Device
	scanErr     error
	scans       int

	calls       []string
	writes      map[string][][]byte
	subscribed  []string
	connects    []string
	disconnects int
}

func newMockTransport() *mockTransport {
	return &mockTransport{
		events:      make(chan LinkEvent, 16),
		rejectRead:  make(map[string]error),
		rejectWrite: make(map[string]error),
		writes:      make(map[string][][]byte),
	}
}

func (m *mockTransport) Enable() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enableErr
}

func (m *mockTransport) Scan(ctx context.Context, serviceUUID string, found func(Device)) error {
	m.mu.Lock()
	m.scans++
	devices := append([]Device(nil), m.scanDevices...)
	scanErr := m.scanErr
	m.mu.Unlock()

	for _, d := range devices {
		found(d)
	}
	if scanErr != nil {
		return scanErr
	}
	<-ctx.Done()
	return nil
}

func (m *mockTransport) Connect(ctx context.Context, address string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connects = append(m.connects, address)
	return m.connectErr
}

func (m *mockTransport) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnects++
	return nil
}

func (m *mockTransport) DiscoverServices() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "discover")
	return m.discoverErr
}

func (m *mockTransport) Read(charUUID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "read:"+charUUID)
	return m.rejectRead[charUUID]
}

func (m *mockTransport) Write(charUUID string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "write:"+charUUID)
	if err := m.rejectWrite[charUUID]; err != nil {
		return err
	}
	m.writes[charUUID] = append(m.writes[charUUID], append([]byte(nil), data...))
	return nil
}

func (m *mockTransport) Subscribe(charUUID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "subscribe:"+charUUID)
	if m.subscribeErr != nil {
		return m.subscribeErr
	}
	m.subscribed = append(m.subscribed, charUUID)
	return nil
}

func (m *mockTransport) Events() <-chan LinkEvent {
	return m.events
}

func (m *mockTransport) callLog() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *mockTransport) lastCall() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return ""
	}
	return m.calls[len(m.calls)-1]
}

func (m *mockTransport) resetCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

const testAddress = "AA:BB:CC:DD:EE:FF"

// fullServiceTable returns a GATT table exposing every configuration
// characteristic plus an unrelated service.
func fullServiceTable() map[string][]string {
	return map[string][]string{
		"00001800-0000-1000-8000-00805f9b34fb": {"00002a00-0000-1000-8000-00805f9b34fb"},
		ServiceUUID: {
			LeftConfigCharUUID, RightConfigCharUUID, VersionCharUUID,
			DeviceNameCharUUID, ApplyCommandCharUUID, StatusCharUUID,
		},
	}
}

// requiredServiceTable exposes only the characteristics a session needs.
func requiredServiceTable() map[string][]string {
	return map[string][]string{
		ServiceUUID: {LeftConfigCharUUID, RightConfigCharUUID, VersionCharUUID},
	}
}

// newReadyOrchestrator returns an orchestrator whose session is Ready, with
// status notifications acknowledged and the automatic load in flight (its
// first read issued).
func newReadyOrchestrator(t *testing.T, opts Options) (*Orchestrator, *mockTransport) {
	t.Helper()
	m := newMockTransport()
	o := NewOrchestrator(m, opts)
	if err := o.Connect(context.Background(), testAddress); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	o.dispatch(LinkEstablished{})
	o.dispatch(ServicesAvailable{Services: fullServiceTable()})
	if got := o.State(); got != StateReady {
		t.Fatalf("State() = %v, want ready", got)
	}
	if got := m.lastCall(); got != "subscribe:"+StatusCharUUID {
		t.Fatalf("first call after ready = %q, want subscribe to status", got)
	}
	o.dispatch(Subscribed{UUID: StatusCharUUID, OK: true})
	waitCall(t, m, "read:"+LeftConfigCharUUID)
	return o, m
}

// waitCall waits until want is the most recent transport call.
func waitCall(t *testing.T, m *mockTransport, want string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for m.lastCall() != want {
		if time.Now().After(deadline) {
			t.Fatalf("%s never issued, last call %q", want, m.lastCall())
		}
		time.Sleep(2 * time.Millisecond)
	}
}

var (
	testLeft = protocol.EarbudConfig{
		SingleTap: protocol.ActionVolumeUp,
		DoubleTap: protocol.ActionVoiceAssistant,
		TripleTap: protocol.ActionNone,
		LongPress: protocol.ActionANCOff,
	}
	testRight = protocol.EarbudConfig{
		SingleTap: protocol.ActionVolumeDown,
		DoubleTap: protocol.ActionNextTrack,
		TripleTap: protocol.ActionPreviousTrack,
		LongPress: protocol.ActionTransparency,
	}
	testVersion = []byte{1, 2, 3, 0}
	testName    = "PineBuds Pro"
)

// finishLoad answers the four reads of the automatic load.
func finishLoad(t *testing.T, o *Orchestrator) {
	t.Helper()
	o.dispatch(CharacteristicRead{UUID: LeftConfigCharUUID, Data: protocol.MarshalEarbudConfig(testLeft), OK: true})
	o.dispatch(CharacteristicRead{UUID: RightConfigCharUUID, Data: protocol.MarshalEarbudConfig(testRight), OK: true})
	o.dispatch(CharacteristicRead{UUID: VersionCharUUID, Data: testVersion, OK: true})
	name, err := protocol.MarshalDeviceName(testName)
	if err != nil {
		t.Fatalf("MarshalDeviceName() error = %v", err)
	}
	o.dispatch(CharacteristicRead{UUID: DeviceNameCharUUID, Data: name, OK: true})
}

// finishLoadPaced answers the automatic load like finishLoad, waiting for
// each read to be issued first so it works with a settle delay.
func finishLoadPaced(t *testing.T, o *Orchestrator, m *mockTransport) {
	t.Helper()
	name, err := protocol.MarshalDeviceName(testName)
	if err != nil {
		t.Fatalf("MarshalDeviceName() error = %v", err)
	}
	steps := []CharacteristicRead{
		{UUID: LeftConfigCharUUID, Data: protocol.MarshalEarbudConfig(testLeft), OK: true},
		{UUID: RightConfigCharUUID, Data: protocol.MarshalEarbudConfig(testRight), OK: true},
		{UUID: VersionCharUUID, Data: testVersion, OK: true},
		{UUID: DeviceNameCharUUID, Data: name, OK: true},
	}
	for _, step := range steps {
		waitCall(t, m, "read:"+step.UUID)
		o.dispatch(step)
	}
}

// waitUpdate returns the next update of type want, skipping others.
func waitUpdate(t *testing.T, o *Orchestrator, want UpdateType) Update {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case u, ok := <-o.Updates():
			if !ok {
				t.Fatalf("Updates() closed while waiting for %v", want)
			}
			if u.Type == want {
				return u
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %v update", want)
		}
	}
}

// receive returns the result on ch or fails after a timeout.
func receive(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for result")
		return nil
	}
}

// pending reports whether ch has no result yet.
func pending(ch <-chan error) bool {
	select {
	case <-ch:
		return false
	default:
		return true
	}
}
