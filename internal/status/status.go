// Package status holds the observable sync status consumed by the UI and
// rebroadcast across client processes by the coordinator.
package status

import "sync"

// Phase is the state of one sync direction.
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseRunning Phase = "running"
	PhaseError   Phase = "error"
)

// Snapshot is one point-in-time view of the sync engine.
type Snapshot struct {
	Pull         Phase  `json:"pull"`
	Push         Phase  `json:"push"`
	QueueDepth   int    `json:"queueDepth"`
	LastReplayTS int64  `json:"lastReplayTs,omitempty"` // epoch ms
	LastError    string `json:"lastError,omitempty"`
}

// Store is a threadsafe status holder with change notification.
//
// The only business rule it carries: moving a phase to idle or running
// clears the last error, and moving to error without an explicit message
// preserves whatever message was already there.
type Store struct {
	mu      sync.Mutex
	snap    Snapshot
	subs    map[int]func(Snapshot)
	nextSub int
}

// New returns a store in the all-idle state.
func New() *Store {
	return &Store{
		snap: Snapshot{Pull: PhaseIdle, Push: PhaseIdle},
		subs: make(map[int]func(Snapshot)),
	}
}

// Get returns the current snapshot.
func (s *Store) Get() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// Subscribe registers fn to be called after every change. The returned
// function cancels the subscription.
func (s *Store) Subscribe(fn func(Snapshot)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Store) update(mutate func(*Snapshot)) {
	s.mu.Lock()
	mutate(&s.snap)
	snap := s.snap
	subs := make([]func(Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()
	for _, fn := range subs {
		fn(snap)
	}
}

func coalesceError(snap *Snapshot, phase Phase, msg string) {
	switch phase {
	case PhaseIdle, PhaseRunning:
		snap.LastError = ""
	case PhaseError:
		if msg != "" {
			snap.LastError = msg
		}
	}
}

// SetPull moves the pull phase. msg is only consulted for PhaseError.
func (s *Store) SetPull(phase Phase, msg string) {
	s.update(func(snap *Snapshot) {
		snap.Pull = phase
		coalesceError(snap, phase, msg)
	})
}

// SetPush moves the push phase. msg is only consulted for PhaseError.
func (s *Store) SetPush(phase Phase, msg string) {
	s.update(func(snap *Snapshot) {
		snap.Push = phase
		coalesceError(snap, phase, msg)
	})
}

// SetQueueDepth records the number of dirty records awaiting push.
func (s *Store) SetQueueDepth(n int) {
	if n < 0 {
		n = 0
	}
	s.update(func(snap *Snapshot) {
		snap.QueueDepth = n
	})
}

// MarkReplay stamps the last time a push cycle made observable progress.
func (s *Store) MarkReplay(ts int64) {
	s.update(func(snap *Snapshot) {
		snap.LastReplayTS = ts
	})
}

// SetSnapshot replaces the whole snapshot, used when a rebroadcast status
// arrives from the leader or a leader change resets shared state.
func (s *Store) SetSnapshot(snap Snapshot) {
	s.update(func(current *Snapshot) {
		*current = snap
	})
}

// ResetError clears the last error without touching the phases.
func (s *Store) ResetError() {
	s.update(func(snap *Snapshot) {
		snap.LastError = ""
	})
}
