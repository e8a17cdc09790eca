package memory

import (
	"testing"
	"time"

	"github.com/agroguard/agroguard/pkg/models"
)

func TestPutAndGet(t *testing.T) {
	c := New(10, 0)

	c.Put("k1", models.Result{"response": "hello"})

	got, ok := c.Get("k1")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got["response"] != "hello" {
		t.Errorf("unexpected result: %v", got)
	}

	// Miss for different key
	if _, ok := c.Get("k2"); ok {
		t.Error("expected cache miss for different key")
	}
}

func TestPutKeepsFirstValue(t *testing.T) {
	c := New(10, 0)

	c.Put("k", models.Result{"response": "first"})
	c.Put("k", models.Result{"response": "second"})

	got, _ := c.Get("k")
	if got["response"] != "first" {
		t.Errorf("entry was refreshed: %v", got)
	}
}

func TestReturnedValuesAreCopies(t *testing.T) {
	c := New(10, 0)
	c.Put("k", models.Result{"recommendations": []string{"dry"}})

	got, _ := c.Get("k")
	got["recommendations"].([]string)[0] = "mutated"
	got["extra"] = true

	again, _ := c.Get("k")
	if again["recommendations"].([]string)[0] != "dry" {
		t.Error("stored list was mutated through a returned value")
	}
	if _, ok := again["extra"]; ok {
		t.Error("stored map was mutated through a returned value")
	}
}

func TestSizeBound(t *testing.T) {
	c := New(2, 0)
	c.Put("a", models.Result{"response": "a"})
	c.Put("b", models.Result{"response": "b"})
	c.Get("a") // a becomes most recent
	c.Put("c", models.Result{"response": "c"})

	if c.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", c.Len())
	}
	if _, ok := c.Peek("b"); ok {
		t.Error("expected least recently used entry to be evicted")
	}
	if _, ok := c.Peek("a"); !ok {
		t.Error("expected recently used entry to survive")
	}
}

func TestTTLExpiration(t *testing.T) {
	c := New(10, 5*time.Millisecond)
	c.Put("k", models.Result{"response": "x"})

	time.Sleep(20 * time.Millisecond)

	if _, ok := c.Get("k"); ok {
		t.Error("expected cache miss after TTL expiration")
	}
}

func TestStats(t *testing.T) {
	c := New(10, 0)

	c.Put("h1", models.Result{"response": "x"})
	c.Get("h1") // hit
	c.Get("h2") // miss
	c.Get("h1") // hit

	stats := c.Stats()
	if stats.Entries != 1 {
		t.Errorf("expected 1 entry, got %d", stats.Entries)
	}
	if stats.Hits != 2 {
		t.Errorf("expected 2 hits, got %d", stats.Hits)
	}
	if stats.Misses != 1 {
		t.Errorf("expected 1 miss, got %d", stats.Misses)
	}
}

func TestPeekDoesNotCount(t *testing.T) {
	c := New(10, 0)
	c.Put("k", models.Result{"response": "x"})

	e, ok := c.Peek("k")
	if !ok || e.Key != "k" || e.CreatedAt.IsZero() {
		t.Fatalf("unexpected peek result: %+v %v", e, ok)
	}
	if s := c.Stats(); s.Hits != 0 || s.Misses != 0 {
		t.Errorf("peek changed counters: %+v", s)
	}
}

func TestClear(t *testing.T) {
	c := New(10, 0)
	c.Put("a", models.Result{"response": "a"})
	c.Put("b", models.Result{"response": "b"})

	c.Clear()

	if c.Len() != 0 {
		t.Errorf("expected empty cache after clear, got %d", c.Len())
	}
}
