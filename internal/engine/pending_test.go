package engine

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-addon/internal/messages"
)

func TestPendingTable_ResolveInvokesCallback(t *testing.T) {
	table := newPendingTable(time.Minute)

	var got *messages.GatewayResponse
	id := table.register(func(resp *messages.GatewayResponse, err error) {
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		got = resp
	})
	if id != 1 {
		t.Errorf("first id = %d, want 1", id)
	}

	resp := &messages.GatewayResponse{Success: true}
	if !table.resolve(id, resp) {
		t.Fatal("resolve() = false for known id")
	}
	if got != resp {
		t.Error("callback did not receive the response")
	}
	if table.size() != 0 {
		t.Errorf("size() = %d after resolve, want 0", table.size())
	}
}

func TestPendingTable_IDsMonotonic(t *testing.T) {
	table := newPendingTable(time.Minute)
	noop := func(*messages.GatewayResponse, error) {}

	var prev int64
	for i := 0; i < 100; i++ {
		id := table.register(noop)
		if id <= prev {
			t.Fatalf("id %d not greater than previous %d", id, prev)
		}
		prev = id
	}
}

func TestPendingTable_ResolveUnknownID(t *testing.T) {
	table := newPendingTable(time.Minute)
	if table.resolve(42, &messages.GatewayResponse{}) {
		t.Error("resolve() = true for unknown id")
	}
}

func TestPendingTable_Expiry(t *testing.T) {
	table := newPendingTable(20 * time.Millisecond)

	errCh := make(chan error, 1)
	table.register(func(resp *messages.GatewayResponse, err error) {
		errCh <- err
	})

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrRequestTimeout) {
			t.Errorf("callback error = %v, want ErrRequestTimeout", err)
		}
	case <-time.After(time.Second):
		t.Fatal("expiry callback never fired")
	}
	if table.size() != 0 {
		t.Errorf("size() = %d after expiry, want 0", table.size())
	}
}

func TestPendingTable_ResolveAfterExpiryIsNoop(t *testing.T) {
	table := newPendingTable(10 * time.Millisecond)

	var mu sync.Mutex
	calls := 0
	id := table.register(func(*messages.GatewayResponse, error) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	time.Sleep(50 * time.Millisecond)
	if table.resolve(id, &messages.GatewayResponse{}) {
		t.Error("resolve() = true after expiry")
	}

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Errorf("callback invoked %d times, want exactly 1", calls)
	}
}

func TestPendingTable_CancelSkipsCallback(t *testing.T) {
	table := newPendingTable(10 * time.Millisecond)

	called := make(chan struct{}, 1)
	id := table.register(func(*messages.GatewayResponse, error) {
		called <- struct{}{}
	})
	table.cancel(id)

	select {
	case <-called:
		t.Error("cancelled entry invoked its callback")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPendingTable_FailAll(t *testing.T) {
	table := newPendingTable(time.Minute)

	errs := make(chan error, 3)
	for i := 0; i < 3; i++ {
		table.register(func(resp *messages.GatewayResponse, err error) {
			errs <- err
		})
	}

	table.failAll(ErrConnectionLost)
	if table.size() != 0 {
		t.Errorf("size() = %d after failAll, want 0", table.size())
	}
	for i := 0; i < 3; i++ {
		select {
		case err := <-errs:
			if !errors.Is(err, ErrConnectionLost) {
				t.Errorf("callback error = %v, want ErrConnectionLost", err)
			}
		case <-time.After(time.Second):
			t.Fatal("failAll did not settle every entry")
		}
	}
}
