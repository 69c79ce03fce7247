package auth

import "voxafi/internal/live"

// State tracks the signed-in session of a client and pushes every change to
// subscribers. A nil session means signed out.
type State struct {
	feed *live.Feed[*Session]
}

func NewState() *State {
	s := &State{feed: live.NewFeed[*Session]()}
	s.feed.Publish(nil)
	return s
}

// Current returns the active session or nil.
func (s *State) Current() *Session {
	v, _ := s.feed.Latest()
	return v
}

func (s *State) Set(sess Session) {
	s.feed.Publish(&sess)
}

func (s *State) Clear() {
	s.feed.Publish(nil)
}

// Subscribe delivers the current session and every later change.
func (s *State) Subscribe(fn func(*Session)) (cancel func()) {
	return s.feed.Subscribe(fn)
}

func (s *State) Close() {
	s.feed.Close()
}
