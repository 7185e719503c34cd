package engine

import (
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-addon/internal/messages"
)

// pendingTable correlates outbound requests with gateway responses.
//
// Each registered request gets a monotonically increasing id and an expiry
// timer. Exactly one of resolve, expire, fail or cancel settles an entry;
// the others become no-ops for that id. Callbacks run outside the table
// lock.
type pendingTable struct {
	timeout time.Duration

	mu      sync.Mutex
	next    int64
	entries map[int64]*pendingEntry
}

type pendingEntry struct {
	done  func(resp *messages.GatewayResponse, err error)
	timer *time.Timer
}

func newPendingTable(timeout time.Duration) *pendingTable {
	return &pendingTable{
		timeout: timeout,
		entries: make(map[int64]*pendingEntry),
	}
}

// register allocates an id for a request and arms its expiry timer.
func (t *pendingTable) register(done func(*messages.GatewayResponse, error)) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.next++
	id := t.next
	entry := &pendingEntry{done: done}
	entry.timer = time.AfterFunc(t.timeout, func() { t.expire(id) })
	t.entries[id] = entry
	return id
}

// resolve settles an entry with the gateway's response. Returns false when
// the id is unknown (already settled, or never registered).
func (t *pendingTable) resolve(id int64, resp *messages.GatewayResponse) bool {
	entry := t.take(id)
	if entry == nil {
		return false
	}
	entry.done(resp, nil)
	return true
}

// expire settles an entry with ErrRequestTimeout.
func (t *pendingTable) expire(id int64) {
	entry := t.take(id)
	if entry == nil {
		return
	}
	entry.done(nil, ErrRequestTimeout)
}

// cancel removes an entry without invoking its callback. Used when the
// request never made it onto the wire.
func (t *pendingTable) cancel(id int64) {
	t.take(id)
}

// failAll settles every outstanding entry with the given error. Used on
// connection loss and when draining begins.
func (t *pendingTable) failAll(err error) {
	t.mu.Lock()
	entries := t.entries
	t.entries = make(map[int64]*pendingEntry)
	t.mu.Unlock()

	for _, entry := range entries {
		entry.timer.Stop()
		entry.done(nil, err)
	}
}

// size reports the number of outstanding entries.
func (t *pendingTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// take removes and returns an entry, stopping its timer. Returns nil when
// the id is not outstanding.
func (t *pendingTable) take(id int64) *pendingEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.entries[id]
	if !ok {
		return nil
	}
	delete(t.entries, id)
	entry.timer.Stop()
	return entry
}
