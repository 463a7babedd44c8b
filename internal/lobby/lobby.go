package lobby

import (
	"context"
	"errors"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/DoyleJ11/arena-server/internal/engine"
	"github.com/DoyleJ11/arena-server/internal/metrics"
	"github.com/DoyleJ11/arena-server/internal/types"
)

var ErrLobbyClosed = errors.New("lobby closed")

type Msg interface{ isLobbyMsg() }

type Join struct {
	Outbox chan<- types.ServerMessage // must be buffered; the lobby never blocks on it
	Reply  chan Ticket
}

func (Join) isLobbyMsg() {}

// Ticket is what a connection gets back from Join. Kicked is closed when
// the lobby drops the session on its own (slow client, aborted battle,
// shutdown).
type Ticket struct {
	ID     string
	Kicked <-chan struct{}
}

type Leave struct {
	ID   string
	Done chan struct{}
}

func (Leave) isLobbyMsg() {}

type SelectTeam struct {
	ID    string
	Names []string
	Reply chan error
}

func (SelectTeam) isLobbyMsg() {}

type Ready struct {
	ID    string
	Reply chan error
}

func (Ready) isLobbyMsg() {}

type BattleFinished struct {
	Match  Match
	Record engine.Record
}

func (BattleFinished) isLobbyMsg() {}

type BattleAborted struct {
	Match Match
	Err   error
}

func (BattleAborted) isLobbyMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isLobbyMsg() {}

type Shutdown struct{}

func (Shutdown) isLobbyMsg() {}

// Side is one participant of a match. Roster belongs to the battle until
// the lobby receives the outcome.
type Side struct {
	SessionID string
	Roster    []*engine.Unit
}

type Match struct {
	ID    string
	Team1 Side
	Team2 Side
}

type View struct {
	NumClients int
	Queued     []string
	InBattle   int
}

// Lobby owns the session registry and match queue. Every mutation runs on
// its goroutine, in inbox order.
type Lobby struct {
	inbox    chan Msg
	matches  chan Match
	registry *Registry
	table    *engine.Archetypes
	log      *zap.Logger
	metrics  *metrics.Metrics
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewLobby(parent context.Context, table *engine.Archetypes, logger *zap.Logger, m *metrics.Metrics) *Lobby {
	ctx, cancel := context.WithCancel(parent)

	l := &Lobby{
		inbox:    make(chan Msg, 64),
		matches:  make(chan Match, 64),
		registry: NewRegistry(table),
		table:    table,
		log:      logger.Named("lobby"),
		metrics:  m,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	go l.loop()
	return l
}

func (l *Lobby) loop() {
	defer close(l.done)
	for {
		select {
		case <-l.ctx.Done():
			l.shutdown()
			return

		case m := <-l.inbox:
			switch msg := m.(type) {
			case Join:
				s := l.registry.Register(msg.Outbox)
				l.log.Info("session registered", zap.String("session_id", s.ID))
				msg.Reply <- Ticket{ID: s.ID, Kicked: s.kicked}
				l.deliver(s, types.NewWelcome(s.ID, l.table.List()))

			case Leave:
				if s, ok := l.registry.Remove(msg.ID); ok {
					l.log.Info("session removed", zap.String("session_id", msg.ID))
					close(s.kicked)
				}
				close(msg.Done)

			case SelectTeam:
				msg.Reply <- l.selectTeam(msg.ID, msg.Names)

			case Ready:
				msg.Reply <- l.ready(msg.ID)

			case BattleFinished:
				l.finish(msg.Match, msg.Record)

			case BattleAborted:
				l.abort(msg.Match, msg.Err)

			case GetState:
				msg.Reply <- l.view()

			case Shutdown:
				l.shutdown()
				return
			}
			l.observe()
		}
	}
}

func (l *Lobby) selectTeam(id string, names []string) error {
	s, err := l.registry.SelectRoster(id, names)
	if err != nil {
		l.reject(id, err)
		return err
	}
	l.log.Debug("roster selected", zap.String("session_id", id), zap.Strings("roster", names))
	l.deliver(s, types.NewTeamConfirmed(names, engine.SnapshotTeam(s.Roster)))
	return nil
}

func (l *Lobby) ready(id string) error {
	if err := l.registry.MarkReady(id); err != nil {
		l.reject(id, err)
		return err
	}
	if s, ok := l.registry.Get(id); ok {
		l.deliver(s, types.NewWaiting(l.registry.Queue().Len()))
	}
	l.pair()
	return nil
}

func (l *Lobby) pair() {
	for {
		a, b, ok := l.registry.NextPair()
		if !ok {
			return
		}
		if a == nil || b == nil {
			// The queue and the session map disagree. Keep whoever is still registered.
			l.log.Error("queued session missing from registry")
			for _, s := range []*Session{a, b} {
				if s != nil {
					l.registry.Queue().Enqueue(s.ID)
				}
			}
			return
		}
		l.start(a, b)
	}
}

func (l *Lobby) start(a, b *Session) {
	m := Match{
		ID:    uuid.Must(uuid.NewV4()).String(),
		Team1: Side{SessionID: a.ID, Roster: a.Roster},
		Team2: Side{SessionID: b.ID, Roster: b.Roster},
	}
	a.InBattle, b.InBattle = true, true

	engine.ResetTeam(a.Roster)
	engine.ResetTeam(b.Roster)
	aTeam, bTeam := engine.SnapshotTeam(a.Roster), engine.SnapshotTeam(b.Roster)

	l.log.Info("battle starting",
		zap.String("battle_id", m.ID),
		zap.String("team1", a.ID),
		zap.String("team2", b.ID),
	)
	l.deliver(a, types.NewBattleStart(b.ID, aTeam, bTeam))
	l.deliver(b, types.NewBattleStart(a.ID, bTeam, aTeam))

	select {
	case l.matches <- m:
	case <-l.ctx.Done():
	}
}

func (l *Lobby) finish(m Match, rec engine.Record) {
	l.log.Info("battle finished",
		zap.String("battle_id", m.ID),
		zap.String("team1", m.Team1.SessionID),
		zap.String("team2", m.Team2.SessionID),
		zap.Stringer("winner", rec.Winner),
		zap.Int("rounds", rec.Rounds),
	)
	for _, p := range []struct {
		id   string
		side engine.Winner
	}{
		{m.Team1.SessionID, engine.Team1},
		{m.Team2.SessionID, engine.Team2},
	} {
		s, ok := l.registry.Get(p.id)
		if !ok {
			l.log.Warn("participant left before result", zap.String("battle_id", m.ID), zap.String("session_id", p.id))
			continue
		}
		s.InBattle = false
		l.deliver(s, types.NewBattleResult(rec, p.side))
	}
}

func (l *Lobby) abort(m Match, cause error) {
	l.log.Error("battle aborted", zap.String("battle_id", m.ID), zap.Error(cause))
	for _, id := range []string{m.Team1.SessionID, m.Team2.SessionID} {
		s, ok := l.registry.Get(id)
		if !ok {
			continue
		}
		s.InBattle = false
		select {
		case s.outbox <- types.NewError("Battle aborted due to a server error"):
		default:
		}
		l.drop(s, "battle aborted")
	}
}

// reject reports a validation failure to the session, if it still exists.
func (l *Lobby) reject(id string, err error) {
	s, ok := l.registry.Get(id)
	if !ok {
		return
	}
	l.log.Debug("request rejected", zap.String("session_id", id), zap.Error(err))
	l.metrics.ProtocolErrors.WithLabelValues("validation").Inc()
	l.deliver(s, types.NewError(ClientMessage(err)))
}

// deliver never blocks. A client whose outbox is full is dropped.
func (l *Lobby) deliver(s *Session, msg types.ServerMessage) {
	select {
	case s.outbox <- msg:
	default:
		l.metrics.DroppedClients.Inc()
		l.drop(s, "outbox full")
	}
}

func (l *Lobby) drop(s *Session, reason string) {
	if _, ok := l.registry.Remove(s.ID); !ok {
		return
	}
	l.log.Warn("session dropped", zap.String("session_id", s.ID), zap.String("reason", reason))
	close(s.kicked)
}

func (l *Lobby) shutdown() {
	for _, s := range l.registry.sessions {
		l.registry.Remove(s.ID)
		close(s.kicked)
	}
	l.observe()
	l.cancel()
}

func (l *Lobby) view() View {
	inBattle := 0
	for _, s := range l.registry.sessions {
		if s.InBattle {
			inBattle++
		}
	}
	return View{
		NumClients: l.registry.Len(),
		Queued:     l.registry.Queue().Snapshot(),
		InBattle:   inBattle,
	}
}

func (l *Lobby) observe() {
	l.metrics.Sessions.Set(float64(l.registry.Len()))
	l.metrics.QueueDepth.Set(float64(l.registry.Queue().Len()))
}

// ClientMessage turns a lobby or engine error into the text sent to the player.
func ClientMessage(err error) string {
	var unknown *engine.UnknownArchetypeError
	switch {
	case errors.Is(err, engine.ErrInvalidRosterSize):
		return "You must pick exactly 4 units!"
	case errors.As(err, &unknown):
		return "Unit does not exist: " + unknown.Name
	case errors.Is(err, ErrNoRosterSelected):
		return "You have not selected a team yet!"
	case errors.Is(err, ErrAlreadyInBattle):
		return "You are already in a battle!"
	default:
		return "Request failed"
	}
}

// Expose the inbox so tests or the hub can send messages.
func (l *Lobby) Inbox() chan<- Msg { return l.inbox }

// Matches yields every pairing the lobby makes, in order.
func (l *Lobby) Matches() <-chan Match { return l.matches }

// Done is closed once the lobby goroutine has exited.
func (l *Lobby) Done() <-chan struct{} { return l.done }

func (l *Lobby) Join(ctx context.Context, outbox chan<- types.ServerMessage) (Ticket, error) {
	reply := make(chan Ticket, 1)
	if err := l.send(ctx, Join{Outbox: outbox, Reply: reply}); err != nil {
		return Ticket{}, err
	}
	select {
	case t := <-reply:
		return t, nil
	case <-l.done:
		return Ticket{}, ErrLobbyClosed
	}
}

// Leave removes the session and returns once the lobby has processed it,
// so no pairing made afterwards can include it.
func (l *Lobby) Leave(id string) {
	done := make(chan struct{})
	if err := l.send(context.Background(), Leave{ID: id, Done: done}); err != nil {
		return
	}
	select {
	case <-done:
	case <-l.done:
	}
}

func (l *Lobby) SelectTeam(ctx context.Context, id string, names []string) error {
	reply := make(chan error, 1)
	if err := l.send(ctx, SelectTeam{ID: id, Names: names, Reply: reply}); err != nil {
		return err
	}
	return l.await(ctx, reply)
}

func (l *Lobby) Ready(ctx context.Context, id string) error {
	reply := make(chan error, 1)
	if err := l.send(ctx, Ready{ID: id, Reply: reply}); err != nil {
		return err
	}
	return l.await(ctx, reply)
}

func (l *Lobby) State(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if err := l.send(ctx, GetState{Reply: reply}); err != nil {
		return View{}, err
	}
	select {
	case v := <-reply:
		return v, nil
	case <-ctx.Done():
		return View{}, ctx.Err()
	case <-l.done:
		return View{}, ErrLobbyClosed
	}
}

// Finish hands a battle outcome back to the lobby.
func (l *Lobby) Finish(ctx context.Context, m Match, rec engine.Record) error {
	return l.send(ctx, BattleFinished{Match: m, Record: rec})
}

func (l *Lobby) Abort(ctx context.Context, m Match, cause error) error {
	return l.send(ctx, BattleAborted{Match: m, Err: cause})
}

func (l *Lobby) send(ctx context.Context, m Msg) error {
	select {
	case l.inbox <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return ErrLobbyClosed
	}
}

func (l *Lobby) await(ctx context.Context, reply <-chan error) error {
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return ErrLobbyClosed
	}
}
