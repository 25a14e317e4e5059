package transport

import (
	"sync"

	"github.com/openclaw/wa-bridge/internal/domain"
)

// Status values derived from the session state.
const (
	StatusConnected    = "connected"
	StatusWaitingForQR = "waiting_for_qr"
	StatusDisconnected = "disconnected"
)

// State is the process-wide session record. Invariants: ready implies no
// pending QR and non-nil info; shuttingDown is monotonic.
type State struct {
	mu           sync.RWMutex
	ready        bool
	qr           string
	info         *domain.SessionInfo
	shuttingDown bool
}

// NewState returns a disconnected state.
func NewState() *State { return &State{} }

// SetQR records a fresh pairing code.
func (s *State) SetQR(qr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.qr = qr
}

// SetReady marks the session connected and captures the account info.
func (s *State) SetReady(info *domain.SessionInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = true
	s.qr = ""
	s.info = info
}

// SetAuthenticated clears the pending QR without touching readiness.
func (s *State) SetAuthenticated() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.qr = ""
}

// SetDisconnected drops readiness and the account info.
func (s *State) SetDisconnected() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = false
	s.info = nil
}

// BeginShutdown marks the state as shutting down. Never unset.
func (s *State) BeginShutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shuttingDown = true
}

// Ready reports whether the session is connected and usable.
func (s *State) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// QR returns the pending pairing code, empty when none.
func (s *State) QR() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.qr
}

// Info returns the account info, nil when not connected.
func (s *State) Info() *domain.SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.info
}

// ShuttingDown reports whether shutdown has begun.
func (s *State) ShuttingDown() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shuttingDown
}

// Status derives the externally visible connection status.
func (s *State) Status() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch {
	case s.ready:
		return StatusConnected
	case s.qr != "":
		return StatusWaitingForQR
	default:
		return StatusDisconnected
	}
}
