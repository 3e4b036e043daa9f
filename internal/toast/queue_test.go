package toast

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"focusfriends/backend/internal/model"
)

func TestSixthToastEvictsOldest(t *testing.T) {
	q := NewQueue(clockwork.NewFakeClock(), DefaultTTL, DefaultLimit, nil)
	defer q.Close()

	var first model.Toast
	for i := 0; i < 6; i++ {
		added := q.Add(model.Toast{Icon: "✋", SenderName: fmt.Sprintf("user%d", i), Message: "hi"})
		if i == 0 {
			first = added
		}
	}

	items := q.List()
	if len(items) != 5 {
		t.Fatalf("len = %d, want 5", len(items))
	}
	for _, item := range items {
		if item.ID == first.ID {
			t.Fatal("oldest toast should have been evicted")
		}
	}
	if items[0].SenderName != "user1" || items[4].SenderName != "user5" {
		t.Fatalf("order = %s..%s, want user1..user5", items[0].SenderName, items[4].SenderName)
	}
}

func TestToastExpiresAfterTTL(t *testing.T) {
	clock := clockwork.NewFakeClock()
	var mu sync.Mutex
	changes := 0
	q := NewQueue(clock, DefaultTTL, DefaultLimit, func([]model.Toast) {
		mu.Lock()
		changes++
		mu.Unlock()
	})
	defer q.Close()

	q.Add(model.Toast{Message: "one"})
	clock.Advance(3999 * time.Millisecond)
	if len(q.List()) != 1 {
		t.Fatal("toast removed before its TTL")
	}

	clock.Advance(time.Millisecond)
	deadline := time.Now().Add(2 * time.Second)
	for len(q.List()) != 0 {
		if time.Now().After(deadline) {
			t.Fatal("toast not removed after TTL")
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if changes != 2 {
		t.Fatalf("changes = %d, want add and removal", changes)
	}
}

func TestDismissIsIdempotentAndStopsTimer(t *testing.T) {
	clock := clockwork.NewFakeClock()
	q := NewQueue(clock, DefaultTTL, DefaultLimit, nil)
	defer q.Close()

	a := q.Add(model.Toast{Message: "a"})
	q.Add(model.Toast{Message: "b"})

	q.Dismiss(a.ID)
	q.Dismiss(a.ID)
	q.Dismiss("unknown")

	items := q.List()
	if len(items) != 1 || items[0].Message != "b" {
		t.Fatalf("items = %+v, want only b", items)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("pending removal timer missing: %v", err)
	}
}

func TestClearAll(t *testing.T) {
	q := NewQueue(clockwork.NewFakeClock(), DefaultTTL, DefaultLimit, nil)
	defer q.Close()
	q.Add(model.Toast{Message: "a"})
	q.Add(model.Toast{Message: "b"})

	q.ClearAll()
	if len(q.List()) != 0 {
		t.Fatal("ClearAll should empty the queue")
	}
}

func TestAddAfterCloseIsIgnored(t *testing.T) {
	q := NewQueue(clockwork.NewFakeClock(), DefaultTTL, DefaultLimit, nil)
	q.Close()
	q.Add(model.Toast{Message: "late"})
	if len(q.List()) != 0 {
		t.Fatal("closed queue should ignore Add")
	}
}
