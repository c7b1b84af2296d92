package ble

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/chaz8081/budsconfig/internal/ble/protocol"
)

// State is the lifecycle stage of a Session. It only ever advances
// Disconnected → Connecting → Connected → Ready, or collapses back to
// Disconnected.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	// StateConnected covers service discovery: the link is up but the
	// configuration characteristics have not been located yet.
	StateConnected
	// StateReady means every required characteristic has been located.
	StateReady
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReady:
		return "ready"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// EventType identifies a session event.
type EventType int

const (
	EventConnected EventType = iota
	EventReady
	EventDisconnected
	EventRead
	EventWritten
	EventSubscribed
	EventStatus
	EventError
)

func (t EventType) String() string {
	switch t {
	case EventConnected:
		return "connected"
	case EventReady:
		return "ready"
	case EventDisconnected:
		return "disconnected"
	case EventRead:
		return "read"
	case EventWritten:
		return "written"
	case EventSubscribed:
		return "subscribed"
	case EventStatus:
		return "status"
	case EventError:
		return "error"
	}
	return fmt.Sprintf("event(%d)", int(t))
}

// Event is produced by Session.Handle for the layer above. Read and write
// events carry the characteristic and, for reads, the raw payload; Err is
// nil on success. The session never interprets payloads.
type Event struct {
	Type   EventType
	Char   CharKind
	Data   []byte
	Err    error
	Status protocol.DeviceStatus
}

// Session owns one GATT connection and the characteristic handles located
// on it. Its state changes only in response to transport callbacks fed
// through Handle, plus the explicit Connect and Disconnect commands.
type Session struct {
	transport Transport

	mu      sync.Mutex
	state   State
	address string
	chars   map[CharKind]string
}

// NewSession creates a disconnected session over transport.
func NewSession(transport Transport) *Session {
	return &Session{transport: transport}
}

// State returns the current lifecycle stage.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Address returns the peripheral the session is bound to, or "".
func (s *Session) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.address
}

// Has reports whether kind was located during discovery.
func (s *Session) Has(kind CharKind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.chars[kind]
	return ok
}

// Connect starts connecting to address. The session must be disconnected.
func (s *Session) Connect(ctx context.Context, address string) error {
	s.mu.Lock()
	if s.state != StateDisconnected {
		s.mu.Unlock()
		return fmt.Errorf("ble: connect to %s: %w", address, ErrSessionActive)
	}
	s.state = StateConnecting
	s.address = address
	s.mu.Unlock()

	slog.Info("[SESSION] connecting", "address", address)
	if err := s.transport.Connect(ctx, address); err != nil {
		s.mu.Lock()
		if s.state == StateConnecting {
			s.state = StateDisconnected
			s.address = ""
		}
		s.mu.Unlock()
		return fmt.Errorf("ble: connect to %s: %w", address, err)
	}
	return nil
}

// Disconnect asks the transport to drop the link and collapses the session
// immediately. A later LinkLost from the transport is then a no-op.
func (s *Session) Disconnect() ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if s.state != StateDisconnected {
		if err = s.transport.Disconnect(); err != nil {
			slog.Warn("[SESSION] transport disconnect failed", "error", err)
			err = fmt.Errorf("ble: disconnect: %w", err)
		}
	}
	return s.linkLostLocked(nil), err
}

// Handle applies one transport callback and returns the events it produced.
func (s *Session) Handle(ev LinkEvent) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev := ev.(type) {
	case LinkEstablished:
		return s.linkEstablishedLocked()
	case LinkLost:
		return s.linkLostLocked(ev.Err)
	case ServicesAvailable:
		return s.servicesAvailableLocked(ev.Services)
	case DiscoveryFailed:
		if s.state != StateConnected {
			return nil
		}
		slog.Error("[SESSION] service discovery failed", "code", ev.Code)
		return []Event{{Type: EventError, Err: fmt.Errorf("%w: status %d", ErrDiscoveryFailed, ev.Code)}}
	case CharacteristicRead:
		kind, ok := s.resultKindLocked(ev.UUID, "read")
		if !ok {
			return nil
		}
		out := Event{Type: EventRead, Char: kind}
		if ev.OK {
			out.Data = append([]byte(nil), ev.Data...)
		} else {
			out.Err = fmt.Errorf("ble: read %s: %w", kind, ErrOperationFailed)
		}
		return []Event{out}
	case CharacteristicWritten:
		kind, ok := s.resultKindLocked(ev.UUID, "write")
		if !ok {
			return nil
		}
		out := Event{Type: EventWritten, Char: kind}
		if !ev.OK {
			out.Err = fmt.Errorf("ble: write %s: %w", kind, ErrOperationFailed)
		}
		return []Event{out}
	case Subscribed:
		kind, ok := s.resultKindLocked(ev.UUID, "subscribe")
		if !ok {
			return nil
		}
		out := Event{Type: EventSubscribed, Char: kind}
		if !ev.OK {
			out.Err = fmt.Errorf("ble: subscribe %s: %w", kind, ErrOperationFailed)
		}
		return []Event{out}
	case Notification:
		kind, ok := s.resultKindLocked(ev.UUID, "notification")
		if !ok || kind != CharStatus {
			return nil
		}
		status, err := protocol.UnmarshalDeviceStatus(ev.Data)
		if err != nil {
			slog.Warn("[SESSION] bad status notification", "error", err)
			return nil
		}
		return []Event{{Type: EventStatus, Char: CharStatus, Status: status}}
	}
	return nil
}

func (s *Session) linkEstablishedLocked() []Event {
	if s.state != StateConnecting {
		slog.Debug("[SESSION] ignoring link established", "state", s.state)
		return nil
	}
	s.state = StateConnected
	slog.Info("[SESSION] connected, discovering services", "address", s.address)

	events := []Event{{Type: EventConnected}}
	// Enumeration does not start on its own.
	if err := s.transport.DiscoverServices(); err != nil {
		events = append(events, Event{
			Type: EventError,
			Err:  fmt.Errorf("ble: discover services: %w: %w", ErrOperationNotInitiated, err),
		})
	}
	return events
}

func (s *Session) linkLostLocked(cause error) []Event {
	s.chars = nil
	if s.state == StateDisconnected {
		return nil
	}
	slog.Info("[SESSION] disconnected", "address", s.address, "from", s.state)
	s.state = StateDisconnected
	s.address = ""
	return []Event{{Type: EventDisconnected, Err: cause}}
}

func (s *Session) servicesAvailableLocked(services map[string][]string) []Event {
	if s.state != StateConnected {
		slog.Debug("[SESSION] ignoring service table", "state", s.state)
		return nil
	}

	var chars []string
	found := false
	for svc, cs := range services {
		if strings.EqualFold(svc, ServiceUUID) {
			chars, found = cs, true
			break
		}
	}
	if !found {
		slog.Error("[SESSION] configuration service not found", "expected", ServiceUUID, "services", len(services))
		return []Event{{Type: EventError, Err: ErrServiceNotFound}}
	}

	located := make(map[CharKind]string)
	for _, uuid := range chars {
		if kind, ok := charKindForUUID(uuid); ok {
			located[kind] = uuid
		}
	}
	for i, c := range charKinds {
		if _, ok := located[CharKind(i)]; c.required && !ok {
			slog.Error("[SESSION] required characteristic missing", "char", CharKind(i))
			return []Event{{Type: EventError, Err: fmt.Errorf("%w: %s", ErrCharacteristicMissing, CharKind(i))}}
		}
	}

	s.chars = located
	s.state = StateReady
	slog.Info("[SESSION] ready", "characteristics", len(located))
	return []Event{{Type: EventReady}}
}

func (s *Session) resultKindLocked(uuid, what string) (CharKind, bool) {
	if s.state != StateReady {
		slog.Debug("[SESSION] dropping stale result", "op", what, "uuid", uuid, "state", s.state)
		return 0, false
	}
	kind, ok := charKindForUUID(uuid)
	if !ok {
		slog.Debug("[SESSION] result for unknown characteristic", "op", what, "uuid", uuid)
		return 0, false
	}
	return kind, true
}

// RequestRead starts a read of kind. It fails with ErrNotReady before the
// session is ready, and with ErrOperationNotInitiated when the transport
// rejects the request; in both cases no result event will follow.
func (s *Session) RequestRead(kind CharKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	uuid, err := s.handleLocked(kind)
	if err != nil {
		return fmt.Errorf("ble: read %s: %w", kind, err)
	}
	if err := s.transport.Read(uuid); err != nil {
		return fmt.Errorf("ble: read %s: %w: %w", kind, ErrOperationNotInitiated, err)
	}
	return nil
}

// RequestWrite starts a write of data to kind, with the same failure modes
// as RequestRead.
func (s *Session) RequestWrite(kind CharKind, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	uuid, err := s.handleLocked(kind)
	if err != nil {
		return fmt.Errorf("ble: write %s: %w", kind, err)
	}
	if err := s.transport.Write(uuid, data); err != nil {
		return fmt.Errorf("ble: write %s: %w: %w", kind, ErrOperationNotInitiated, err)
	}
	return nil
}

// RequestSubscribe starts enabling notifications on kind, with the same
// failure modes as RequestRead.
func (s *Session) RequestSubscribe(kind CharKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	uuid, err := s.handleLocked(kind)
	if err != nil {
		return fmt.Errorf("ble: subscribe %s: %w", kind, err)
	}
	if err := s.transport.Subscribe(uuid); err != nil {
		return fmt.Errorf("ble: subscribe %s: %w: %w", kind, ErrOperationNotInitiated, err)
	}
	return nil
}

func (s *Session) handleLocked(kind CharKind) (string, error) {
	if s.state != StateReady {
		return "", ErrNotReady
	}
	uuid, ok := s.chars[kind]
	if !ok {
		return "", ErrCharacteristicUnavailable
	}
	return uuid, nil
}
