package video

import (
	"sync"
	"time"

	"github.com/go-hang/hang/track"
)

// catchUpThreshold is the §4.9 commit threshold: a pending rendition's
// frame is considered caught up to live once its scheduler wait
// completed with less sleep than this.
const catchUpThreshold = 200 * time.Millisecond

// Switcher implements §4.9's make-before-break rendition switch: a new
// rendition is opened as "pending" while the current one stays
// "active"; once a pending frame's presentation wait turns out to be
// short (the pending track has caught up to the live edge), the
// switcher commits — closing the old active track and promoting
// pending in its place.
//
// Grounded on track.Track/Group's ownership-with-explicit-Close
// discipline: committing a switch means exactly one Close call on the
// superseded track, by the new owner, never the old one.
type Switcher struct {
	log func(activeName string)

	mu          sync.Mutex
	activeName  string
	active      *track.Track
	pendingName string
	pending     *track.Track
}

// NewSwitcher constructs a Switcher with no active rendition yet.
// onCommit, if non-nil, is called with the new rendition's name every
// time a switch commits.
func NewSwitcher(onCommit func(activeName string)) *Switcher {
	return &Switcher{log: onCommit}
}

// SetInitial sets the first active rendition with no prior rendition to
// close. It is only valid before any BeginSwitch call.
func (s *Switcher) SetInitial(name string, t *track.Track) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeName, s.active = name, t
}

// BeginSwitch opens a new pending rendition without disturbing the
// current active one. A pending switch already in progress is
// abandoned (its track closed) in favor of the new one.
func (s *Switcher) BeginSwitch(name string, t *track.Track) {
	s.mu.Lock()
	prevPending := s.pending
	s.pendingName, s.pending = name, t
	s.mu.Unlock()

	if prevPending != nil {
		prevPending.Close(nil)
	}
}

// Active returns the name and Track of the currently active rendition.
func (s *Switcher) Active() (string, *track.Track) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeName, s.active
}

// Pending returns the name and Track of the rendition awaiting commit,
// and whether one is outstanding.
func (s *Switcher) Pending() (string, *track.Track, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingName, s.pending, s.pending != nil
}

// ObservePendingWait reports the scheduler sleep duration that preceded
// a pending-track frame's presentation. If it is below the catch-up
// threshold, the switch commits: the old active track is closed, the
// pending track is promoted to active, and onCommit (if set) fires with
// the new active name. Returns true if a commit occurred.
func (s *Switcher) ObservePendingWait(slept time.Duration) bool {
	if slept >= catchUpThreshold {
		return false
	}

	s.mu.Lock()
	if s.pending == nil {
		s.mu.Unlock()
		return false
	}
	oldActive := s.active
	s.active, s.activeName = s.pending, s.pendingName
	s.pending, s.pendingName = nil, ""
	newName := s.activeName
	s.mu.Unlock()

	if oldActive != nil {
		oldActive.Close(nil)
	}
	if s.log != nil {
		s.log(newName)
	}
	return true
}
