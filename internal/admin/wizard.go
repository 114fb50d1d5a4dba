package admin

import "sync"

// Step is the wizard position within a flow.
type Step int

const (
	StepDate Step = iota
	StepTitle
	StepDescription
	StepImage
	StepMap
	StepTestMessage
)

// SkipSentinel is the reserved input meaning "leave this optional field unset".
const SkipSentinel = "/skip"

// session accumulates one operator's flow state. Sessions live only between
// flow start and completion; they are never persisted. There is no idle
// timeout: restarting a flow from the menu replaces a stale session.
type session struct {
	step        Step
	date        string
	title       string
	description string
	image       string
	mapURL      string
}

// sessions is the per-operator state map. Keys are operator ids, so flows of
// different operators never interfere.
type sessions struct {
	mu sync.Mutex
	m  map[int64]*session
}

func newSessions() *sessions {
	return &sessions{m: map[int64]*session{}}
}

// begin starts a fresh session at step, replacing any active one.
func (s *sessions) begin(operator int64, step Step) *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := &session{step: step}
	s.m[operator] = sess
	return sess
}

func (s *sessions) get(operator int64) (*session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.m[operator]
	return sess, ok
}

func (s *sessions) clear(operator int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, operator)
}
