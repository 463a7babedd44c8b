package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/DoyleJ11/arena-server/internal/engine"
	"github.com/DoyleJ11/arena-server/internal/hub"
	"github.com/DoyleJ11/arena-server/internal/lobby"
	"github.com/DoyleJ11/arena-server/internal/metrics"
)

type harness struct {
	addr  string
	lobby *lobby.Lobby
}

func startServer(t *testing.T) harness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	logger := zaptest.NewLogger(t)
	m := metrics.New(prometheus.NewRegistry())

	lb := lobby.NewLobby(ctx, engine.DefaultArchetypes(), logger, m)
	h := hub.NewHub(ctx, lb, logger, m)
	srv := New(lb, logger, m, Options{})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ctx, ln) }()

	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-errCh)
		<-h.Done()
		<-lb.Done()
	})
	return harness{addr: ln.Addr().String(), lobby: lb}
}

type testClient struct {
	t    *testing.T
	conn net.Conn
	sc   *bufio.Scanner
}

func dial(t *testing.T, addr string) *testClient {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &testClient{t: t, conn: conn, sc: bufio.NewScanner(conn)}
}

func (c *testClient) send(raw string) {
	c.t.Helper()
	_, err := c.conn.Write([]byte(raw + "\n"))
	require.NoError(c.t, err)
}

// recv reads one record, keeping the raw fields for byte comparisons.
func (c *testClient) recv() map[string]json.RawMessage {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.True(c.t, c.sc.Scan(), "read: %v", c.sc.Err())
	var m map[string]json.RawMessage
	require.NoError(c.t, json.Unmarshal(c.sc.Bytes(), &m))
	return m
}

func (c *testClient) expect(kind string) map[string]json.RawMessage {
	c.t.Helper()
	m := c.recv()
	require.Equal(c.t, `"`+kind+`"`, string(m["type"]), "record: %v", stringify(m))
	return m
}

func str(t *testing.T, raw json.RawMessage) string {
	t.Helper()
	var s string
	require.NoError(t, json.Unmarshal(raw, &s))
	return s
}

func stringify(m map[string]json.RawMessage) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = string(v)
	}
	return out
}

func TestServer_ErrorsKeepConnectionOpen(t *testing.T) {
	h := startServer(t)
	c := dial(t, h.addr)

	w := c.expect("welcome")
	var table []engine.Archetype
	require.NoError(t, json.Unmarshal(w["champions"], &table))
	assert.Equal(t, engine.DefaultArchetypes().List(), table)

	c.send(`not json`)
	assert.Equal(t, "Invalid message format", str(t, c.expect("error")["message"]))

	c.send(`{"type":"dance"}`)
	assert.Equal(t, "Unknown message type: dance", str(t, c.expect("error")["message"]))

	c.send(`{"type":"select_team","team":["Tank"],"extra":1}`)
	assert.Equal(t, "Invalid message format", str(t, c.expect("error")["message"]))

	c.send(`{"type":"ready_to_battle"}`)
	assert.Equal(t, "You have not selected a team yet!", str(t, c.expect("error")["message"]))

	c.send(`{"type":"select_team","team":["Tank","Mage","Archer","Knight","Wizard"]}`)
	assert.Equal(t, "You must pick exactly 4 units!", str(t, c.expect("error")["message"]))

	c.send(`{"type":"select_team","team":["Tank","Mage","Archer","Knight"]}`)
	tc := c.expect("team_confirmed")
	var team []engine.UnitSnapshot
	require.NoError(t, json.Unmarshal(tc["team"], &team))
	require.Len(t, team, 4)
	for _, u := range team {
		assert.Equal(t, u.MaxHealth, u.Health)
	}
}

func TestServer_OversizedRecordKeepsConnectionOpen(t *testing.T) {
	h := startServer(t)
	c := dial(t, h.addr)
	c.expect("welcome")

	c.send(`{"type":"select_team","team":["` + strings.Repeat("A", 70*1024) + `"]}`)
	assert.Equal(t, "Invalid message format", str(t, c.expect("error")["message"]))

	c.send(`{"type":"ready_to_battle"}`)
	assert.Equal(t, "You have not selected a team yet!", str(t, c.expect("error")["message"]))

	c.send(`{"type":"select_team","team":["Tank","Mage","Archer","Knight"]}`)
	c.expect("team_confirmed")
}

func TestServer_BattleResultsAreSymmetric(t *testing.T) {
	h := startServer(t)
	a, b := dial(t, h.addr), dial(t, h.addr)
	a.expect("welcome")
	b.expect("welcome")

	a.send(`{"type":"select_team","team":["Tank","Warrior","Mage","Archer"]}`)
	a.expect("team_confirmed")
	b.send(`{"type":"select_team","team":["Assassin","Healer","Knight","Wizard"]}`)
	b.expect("team_confirmed")

	a.send(`{"type":"ready_to_battle"}`)
	assert.Equal(t, "Waiting for an opponent... (1/2)", str(t, a.expect("waiting")["message"]))
	b.send(`{"type":"ready_to_battle"}`)
	b.expect("waiting")

	sa := a.expect("battle_start")
	sb := b.expect("battle_start")
	assert.JSONEq(t, string(sa["your_team"]), string(sb["enemy_team"]))
	assert.JSONEq(t, string(sa["enemy_team"]), string(sb["your_team"]))

	ra := a.expect("battle_result")
	rb := b.expect("battle_result")

	assert.Equal(t, `1`, string(ra["winner"]))
	assert.Equal(t, string(ra["winner"]), string(rb["winner"]))
	assert.Equal(t, "win", str(t, ra["your_result"]))
	assert.Equal(t, "lose", str(t, rb["your_result"]))
	assert.Equal(t, string(ra["battle_log"]), string(rb["battle_log"]), "logs must be byte-identical")
	assert.JSONEq(t, string(ra["your_team_final"]), string(rb["enemy_team_final"]))
	assert.JSONEq(t, string(ra["enemy_team_final"]), string(rb["your_team_final"]))

	// Roster persists; queuing again works without re-selecting.
	a.send(`{"type":"ready_to_battle"}`)
	a.expect("waiting")
}

func TestServer_DisconnectLeavesQueue(t *testing.T) {
	h := startServer(t)
	ctx := context.Background()

	a := dial(t, h.addr)
	a.expect("welcome")
	a.send(`{"type":"select_team","team":["Tank","Tank","Tank","Tank"]}`)
	a.expect("team_confirmed")
	a.send(`{"type":"ready_to_battle"}`)
	a.expect("waiting")
	require.NoError(t, a.conn.Close())

	require.Eventually(t, func() bool {
		v, err := h.lobby.State(ctx)
		return err == nil && v.NumClients == 0 && len(v.Queued) == 0
	}, 2*time.Second, 10*time.Millisecond)

	b := dial(t, h.addr)
	b.expect("welcome")
	c := dial(t, h.addr)
	c.expect("welcome")
	for _, cl := range []*testClient{b, c} {
		cl.send(`{"type":"select_team","team":["Knight","Knight","Mage","Mage"]}`)
		cl.expect("team_confirmed")
	}

	b.send(`{"type":"ready_to_battle"}`)
	assert.Equal(t, "Waiting for an opponent... (1/2)", str(t, b.expect("waiting")["message"]))
	c.send(`{"type":"ready_to_battle"}`)
	c.expect("waiting")

	assert.Equal(t, "Battle started! Opponent: client_3", str(t, b.expect("battle_start")["message"]))
	assert.Equal(t, "Battle started! Opponent: client_2", str(t, c.expect("battle_start")["message"]))
	b.expect("battle_result")
	c.expect("battle_result")
}
