package lobby

import (
	"errors"
	"fmt"

	"github.com/DoyleJ11/arena-server/internal/engine"
	"github.com/DoyleJ11/arena-server/internal/types"
)

var ErrSessionNotFound = errors.New("session not found")
var ErrNoRosterSelected = errors.New("no roster selected")
var ErrAlreadyInBattle = errors.New("session is already in a battle")

// Session is the server-side state of one connected client.
type Session struct {
	ID       string
	Roster   []*engine.Unit
	InBattle bool

	outbox chan<- types.ServerMessage
	kicked chan struct{}
}

// Registry tracks every session and its queue membership. Not safe for
// concurrent use; the Lobby goroutine owns it.
type Registry struct {
	table    *engine.Archetypes
	sessions map[string]*Session
	queue    *MatchQueue
	nextID   int
}

func NewRegistry(table *engine.Archetypes) *Registry {
	return &Registry{
		table:    table,
		sessions: make(map[string]*Session),
		queue:    NewMatchQueue(16),
	}
}

// Register creates a session with an empty roster. Ids are never reused.
func (r *Registry) Register(outbox chan<- types.ServerMessage) *Session {
	r.nextID++
	s := &Session{
		ID:     fmt.Sprintf("client_%d", r.nextID),
		outbox: outbox,
		kicked: make(chan struct{}),
	}
	r.sessions[s.ID] = s
	return s
}

func (r *Registry) Get(id string) (*Session, bool) {
	s, ok := r.sessions[id]
	return s, ok
}

// SelectRoster replaces the session's roster with fresh units. Queue
// membership is left alone.
func (r *Registry) SelectRoster(id string, names []string) (*Session, error) {
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	roster, err := r.table.NewRoster(names)
	if err != nil {
		return nil, err
	}
	s.Roster = roster
	return s, nil
}

// MarkReady queues the session. Queuing twice is a no-op.
func (r *Registry) MarkReady(id string) error {
	s, ok := r.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	if len(s.Roster) == 0 {
		return ErrNoRosterSelected
	}
	if s.InBattle {
		return ErrAlreadyInBattle
	}
	r.queue.Enqueue(id)
	return nil
}

// Remove deletes the session and its queue entry. It reports whether the
// session existed.
func (r *Registry) Remove(id string) (*Session, bool) {
	s, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	delete(r.sessions, id)
	r.queue.Remove(id)
	return s, true
}

// NextPair dequeues the two oldest ready sessions.
func (r *Registry) NextPair() (*Session, *Session, bool) {
	a, b, ok := r.queue.TryDequeuePair()
	if !ok {
		return nil, nil, false
	}
	return r.sessions[a], r.sessions[b], true
}

func (r *Registry) Len() int { return len(r.sessions) }

func (r *Registry) Queue() *MatchQueue { return r.queue }
