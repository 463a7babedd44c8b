package lobby

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s%d", prefix, i+1)
	}
	return out
}

func enqueueAll(t *testing.T, q *MatchQueue, ids ...string) {
	t.Helper()
	for _, id := range ids {
		require.True(t, q.Enqueue(id), "enqueue %s", id)
	}
}

func pair(t *testing.T, q *MatchQueue, wantA, wantB string) {
	t.Helper()
	a, b, ok := q.TryDequeuePair()
	require.True(t, ok)
	assert.Equal(t, wantA, a)
	assert.Equal(t, wantB, b)
}

func TestMatchQueue(t *testing.T) {
	cases := []struct {
		name string
		run  func(t *testing.T) *MatchQueue
		want []string
	}{
		{
			name: "grows past initial capacity",
			run: func(t *testing.T) *MatchQueue {
				q := NewMatchQueue(16)
				enqueueAll(t, q, ids("c", 40)...)
				return q
			},
			want: ids("c", 40),
		},
		{
			name: "wraps around",
			run: func(t *testing.T) *MatchQueue {
				q := NewMatchQueue(4)
				enqueueAll(t, q, "a", "b", "c")
				pair(t, q, "a", "b")
				enqueueAll(t, q, "d", "e", "f")
				return q
			},
			want: []string{"c", "d", "e", "f"},
		},
		{
			name: "grows while wrapped",
			run: func(t *testing.T) *MatchQueue {
				q := NewMatchQueue(4)
				enqueueAll(t, q, "a", "b", "c")
				pair(t, q, "a", "b")
				enqueueAll(t, q, "d", "e", "f", "g", "h")
				return q
			},
			want: []string{"c", "d", "e", "f", "g", "h"},
		},
		{
			name: "remove from middle after wraparound",
			run: func(t *testing.T) *MatchQueue {
				q := NewMatchQueue(4)
				enqueueAll(t, q, "a", "b", "c", "d")
				pair(t, q, "a", "b")
				enqueueAll(t, q, "e", "f")
				q.Remove("d")
				q.Remove("missing")
				enqueueAll(t, q, "g")
				return q
			},
			want: []string{"c", "e", "f", "g"},
		},
		{
			name: "dedupes enqueue",
			run: func(t *testing.T) *MatchQueue {
				q := NewMatchQueue(2)
				enqueueAll(t, q, "a", "b")
				assert.False(t, q.Enqueue("a"))
				pair(t, q, "a", "b")
				enqueueAll(t, q, "a")
				assert.False(t, q.Enqueue("a"))
				return q
			},
			want: []string{"a"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			q := tc.run(t)
			assert.Equal(t, tc.want, q.Snapshot())
			assert.Equal(t, len(tc.want), q.Len())
			for _, id := range tc.want {
				assert.True(t, q.Contains(id), "contains %s", id)
			}

			// Drain in pairs to check FIFO order survives growth and removal.
			var drained []string
			for {
				a, b, ok := q.TryDequeuePair()
				if !ok {
					break
				}
				drained = append(drained, a, b)
			}
			drained = append(drained, q.Snapshot()...)
			assert.Equal(t, tc.want, drained)
		})
	}
}

func TestMatchQueue_RemovedIDCanRequeue(t *testing.T) {
	q := NewMatchQueue(4)
	enqueueAll(t, q, "a", "b")
	q.Remove("a")
	assert.False(t, q.Contains("a"))
	enqueueAll(t, q, "a")
	assert.Equal(t, []string{"b", "a"}, q.Snapshot())
}
