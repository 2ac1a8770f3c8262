package pacer

import "sync"

// signal is the same re-armable broadcast wakeup used by package track
// and package jitter: wait returns a channel that closes on the next
// notify, captured under the same lock guarding the state being checked.
type signal struct {
	mu sync.Mutex
	ch chan struct{}
}

func newSignal() *signal {
	return &signal{ch: make(chan struct{})}
}

func (s *signal) wait() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ch
}

func (s *signal) notify() {
	s.mu.Lock()
	old := s.ch
	s.ch = make(chan struct{})
	s.mu.Unlock()
	close(old)
}
