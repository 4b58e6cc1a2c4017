// Package session holds the single alert currently on screen and fans
// its changes out to the presentation layer.
package session

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/redalert/redalert/internal/audio"
	"github.com/redalert/redalert/internal/types"
)

// Source is the part of the transport client a session needs
type Source interface {
	State() types.ConnectionState
	OnStateChange(func(types.ConnectionState)) func()
	OnAlert(func(types.Alert)) func()
	Connect()
	Disconnect()
}

// Snapshot is what observers see after every change. Alert is nil when
// nothing is displayed. Seq identifies the held alert: every Receive gets
// a new one, so two identical payloads are still two alerts.
type Snapshot struct {
	Alert  *types.Alert          `json:"alert"`
	Seq    uint64                `json:"seq,omitempty"`
	Status types.ConnectionState `json:"status"`
}

// Session owns the current-alert slot. A newer alert always replaces the
// displayed one; there is no queue.
type Session struct {
	source Source
	cue    audio.Emitter
	logger zerolog.Logger

	mu        sync.Mutex
	current   *types.Alert
	seq       uint64
	status    types.ConnectionState
	closed    bool
	nextID    int
	observers map[int]func(Snapshot)

	// snapshots queued in change order; one goroutine delivers at a time
	pending    []Snapshot
	delivering bool

	detach    []func()
	closeOnce sync.Once
}

// New attaches a session to source. Call Start to begin connecting.
func New(source Source, cue audio.Emitter, logger zerolog.Logger) *Session {
	if cue == nil {
		cue = audio.Nop{}
	}
	s := &Session{
		source:    source,
		cue:       cue,
		logger:    logger.With().Str("component", "session").Logger(),
		status:    source.State(),
		observers: make(map[int]func(Snapshot)),
	}
	s.detach = []func(){
		source.OnAlert(s.Receive),
		source.OnStateChange(s.onStatus),
	}
	return s
}

// Start asks the transport to connect
func (s *Session) Start() {
	s.source.Connect()
}

// Reconnect recycles the transport connection on request
func (s *Session) Reconnect() {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}
	s.logger.Info().Msg("Manual reconnect requested")
	s.source.Disconnect()
	s.source.Connect()
}

// Receive displays alert, replacing whatever was shown, and plays the cue
func (s *Session) Receive(alert types.Alert) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	replaced := s.current != nil
	a := alert
	s.current = &a
	s.seq++
	seq := s.seq
	s.queueLocked()
	s.mu.Unlock()

	s.logger.Info().
		Str("title", alert.Title).
		Bool("urgent", alert.IsUrgent).
		Bool("replaced", replaced).
		Uint64("seq", seq).
		Msg("Displaying alert")

	s.deliver()
	s.cue.Play()
}

// Clear removes the displayed alert. Clearing an empty slot does nothing.
// User actions should use Acknowledge so a newer alert is never cleared
// unseen.
func (s *Session) Clear() {
	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return
	}
	title := s.current.Title
	s.current = nil
	s.queueLocked()
	s.mu.Unlock()

	s.logger.Debug().Str("title", title).Msg("Alert cleared")
	s.deliver()
}

// Acknowledge clears the alert identified by seq. It reports false and
// leaves the slot alone when that alert has already been replaced or
// cleared.
func (s *Session) Acknowledge(seq uint64) bool {
	s.mu.Lock()
	if s.current == nil || s.seq != seq {
		held := s.current != nil
		s.mu.Unlock()
		s.logger.Debug().Uint64("seq", seq).Bool("newer_held", held).Msg("Ignoring stale acknowledgement")
		return false
	}
	title := s.current.Title
	s.current = nil
	s.queueLocked()
	s.mu.Unlock()

	s.logger.Debug().Str("title", title).Uint64("seq", seq).Msg("Alert acknowledged")
	s.deliver()
	return true
}

// Current returns a copy of the displayed alert, if any
func (s *Session) Current() (types.Alert, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return types.Alert{}, false
	}
	return *s.current, true
}

// ConnectionStatus reports the transport's state
func (s *Session) ConnectionStatus() types.ConnectionState {
	return s.source.State()
}

// Snapshot returns the present view
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe registers fn for every change to the alert or status. The
// returned func unregisters it and is safe to call more than once.
func (s *Session) Subscribe(fn func(Snapshot)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.observers[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.observers, id)
			s.mu.Unlock()
		})
	}
}

// Close detaches from the transport and disconnects it. Later calls and
// later alerts are ignored.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		for _, cancel := range s.detach {
			cancel()
		}
		s.source.Disconnect()
		s.logger.Debug().Msg("Session closed")
	})
}

func (s *Session) onStatus(state types.ConnectionState) {
	s.mu.Lock()
	if s.closed || s.status == state {
		s.mu.Unlock()
		return
	}
	s.status = state
	s.queueLocked()
	s.mu.Unlock()

	s.deliver()
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{Status: s.status}
	if s.current != nil {
		a := *s.current
		snap.Alert = &a
		snap.Seq = s.seq
	}
	return snap
}

// queueLocked records the state as of this change. Queueing in the same
// critical section as the change keeps delivery in change order.
func (s *Session) queueLocked() {
	s.pending = append(s.pending, s.snapshotLocked())
}

// deliver drains the queue unless another goroutine already is. Observers
// run outside the lock, so they may call back into the session; their
// changes are queued and delivered after the current snapshot.
func (s *Session) deliver() {
	s.mu.Lock()
	if s.delivering {
		s.mu.Unlock()
		return
	}
	s.delivering = true
	for len(s.pending) > 0 {
		snap := s.pending[0]
		s.pending[0] = Snapshot{}
		s.pending = s.pending[1:]
		fns := make([]func(Snapshot), 0, len(s.observers))
		for _, fn := range s.observers {
			fns = append(fns, fn)
		}
		s.mu.Unlock()

		for _, fn := range fns {
			fn(snap)
		}

		s.mu.Lock()
	}
	s.delivering = false
	s.mu.Unlock()
}
