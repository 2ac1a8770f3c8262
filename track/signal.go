package track

import "sync"

// signal is a re-armable broadcast wakeup: wait returns a channel that
// closes on the next notify. Swapping in a fresh channel on every notify
// (rather than reusing sync.Cond) lets callers combine the wait with a
// context's Done channel in a select statement.
type signal struct {
	mu sync.Mutex
	ch chan struct{}
}

func newSignal() *signal {
	return &signal{ch: make(chan struct{})}
}

// wait returns the channel that will close on the next call to notify.
// Callers must capture this channel under the same lock that guards the
// state they just checked, so that a notify racing the check is not lost.
func (s *signal) wait() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ch
}

// notify wakes every waiter currently holding a channel from wait.
func (s *signal) notify() {
	s.mu.Lock()
	old := s.ch
	s.ch = make(chan struct{})
	s.mu.Unlock()
	close(old)
}
