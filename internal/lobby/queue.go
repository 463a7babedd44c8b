package lobby

// MatchQueue is a FIFO of session ids waiting for an opponent, backed by a
// growable ring buffer. An id is present at most once. Not safe for
// concurrent use; the Lobby goroutine owns it.
type MatchQueue struct {
	data    []string
	head    int
	tail    int
	size    int
	members map[string]struct{}
}

func NewMatchQueue(capacity int) *MatchQueue {
	if capacity < 2 {
		capacity = 2
	}
	return &MatchQueue{
		data:    make([]string, capacity),
		members: make(map[string]struct{}),
	}
}

func (q *MatchQueue) Len() int { return q.size }

func (q *MatchQueue) Contains(id string) bool {
	_, ok := q.members[id]
	return ok
}

// Enqueue appends id unless it is already queued. It reports whether id was added.
func (q *MatchQueue) Enqueue(id string) bool {
	if q.Contains(id) {
		return false
	}
	if q.size == len(q.data) {
		q.resize(len(q.data) * 2)
	}
	q.data[q.tail] = id
	q.tail = (q.tail + 1) % len(q.data)
	q.size++
	q.members[id] = struct{}{}
	return true
}

// TryDequeuePair removes and returns the two oldest ids, in arrival order.
func (q *MatchQueue) TryDequeuePair() (string, string, bool) {
	if q.size < 2 {
		return "", "", false
	}
	a := q.pop()
	b := q.pop()
	return a, b, true
}

// Remove drops id from the queue. Unknown ids are ignored.
func (q *MatchQueue) Remove(id string) {
	if !q.Contains(id) {
		return
	}
	kept := make([]string, 0, len(q.data))
	for _, v := range q.Snapshot() {
		if v != id {
			kept = append(kept, v)
		}
	}
	delete(q.members, id)

	for i := range q.data {
		q.data[i] = ""
	}
	copy(q.data, kept)
	q.head = 0
	q.size = len(kept)
	q.tail = q.size % len(q.data)
}

// Snapshot returns the queued ids, oldest first.
func (q *MatchQueue) Snapshot() []string {
	out := make([]string, q.size)
	for i := 0; i < q.size; i++ {
		out[i] = q.data[(q.head+i)%len(q.data)]
	}
	return out
}

func (q *MatchQueue) pop() string {
	v := q.data[q.head]
	q.data[q.head] = ""
	q.head = (q.head + 1) % len(q.data)
	q.size--
	delete(q.members, v)
	return v
}

func (q *MatchQueue) resize(capacity int) {
	nd := make([]string, capacity)
	copy(nd, q.Snapshot())
	q.data = nd
	q.head = 0
	q.tail = q.size
}
