package hub

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/DoyleJ11/arena-server/internal/engine"
	"github.com/DoyleJ11/arena-server/internal/lobby"
	"github.com/DoyleJ11/arena-server/internal/metrics"
)

var ErrBattlePanicked = errors.New("battle simulation panicked")

// simulate is swapped out by tests.
var simulate = engine.Simulate

type HubMsg interface{ isHubMsg() }

type ShutdownHub struct {
	Done chan struct{} // closed once every running battle has returned
}

func (ShutdownHub) isHubMsg() {}

type Stats struct {
	Running   int64
	Completed int64
	Aborted   int64
}

// Hub takes pairings from the lobby and simulates each one on its own
// goroutine. Outcomes go back to the lobby, which delivers them.
type Hub struct {
	inbox   chan HubMsg
	lobby   *lobby.Lobby
	log     *zap.Logger
	metrics *metrics.Metrics
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	wg      sync.WaitGroup

	running   atomic.Int64
	completed atomic.Int64
	aborted   atomic.Int64
}

func NewHub(parent context.Context, lb *lobby.Lobby, logger *zap.Logger, m *metrics.Metrics) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:   make(chan HubMsg, 8),
		lobby:   lb,
		log:     logger.Named("hub"),
		metrics: m,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

// Done is closed once the hub has stopped and no battle is running.
func (h *Hub) Done() <-chan struct{} { return h.done }

// Stats is safe to call from any goroutine.
func (h *Hub) Stats() Stats {
	return Stats{
		Running:   h.running.Load(),
		Completed: h.completed.Load(),
		Aborted:   h.aborted.Load(),
	}
}

func (h *Hub) loop() {
	defer close(h.done)
	for {
		select {
		case <-h.ctx.Done():
			h.wg.Wait()
			return

		case m := <-h.lobby.Matches():
			h.wg.Add(1)
			go h.fight(m)

		case msg := <-h.inbox:
			switch msg := msg.(type) {
			case ShutdownHub:
				h.cancel()
				h.wg.Wait()
				close(msg.Done)
				return
			}
		}
	}
}

func (h *Hub) fight(m lobby.Match) {
	defer h.wg.Done()

	h.running.Inc()
	h.metrics.ActiveBattles.Inc()
	defer func() {
		h.running.Dec()
		h.metrics.ActiveBattles.Dec()
	}()

	rec, err := run(m)
	if err != nil {
		h.aborted.Inc()
		h.log.Error("battle failed", zap.String("battle_id", m.ID), zap.Error(err))
		if err := h.lobby.Abort(h.ctx, m, err); err != nil {
			h.log.Warn("could not report aborted battle", zap.String("battle_id", m.ID), zap.Error(err))
		}
		return
	}

	h.completed.Inc()
	h.metrics.Battles.WithLabelValues(rec.Winner.String()).Inc()
	h.metrics.BattleRounds.Observe(float64(rec.Rounds))

	if err := h.lobby.Finish(h.ctx, m, rec); err != nil {
		h.log.Warn("could not report battle result", zap.String("battle_id", m.ID), zap.Error(err))
	}
}

func run(m lobby.Match) (rec engine.Record, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrBattlePanicked, r)
		}
	}()
	return simulate(m.Team1.Roster, m.Team2.Roster), nil
}
