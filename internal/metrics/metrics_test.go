package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestNew_RegistersAll(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Battles.WithLabelValues("team1").Inc()
	m.ProtocolErrors.WithLabelValues("decode").Inc()
	m.BattleRounds.Observe(3)

	n, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	require.Equal(t, 8, n)
	require.Equal(t, float64(1), testutil.ToFloat64(m.Battles.WithLabelValues("team1")))
}

func TestNew_TwiceOnSameRegistryPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	require.Panics(t, func() { New(reg) })
}
