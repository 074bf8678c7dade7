package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ferro-labs/semcache/normalize"
	"github.com/ferro-labs/semcache/providers"
)

func chatReq(content string) *normalize.Request {
	return &normalize.Request{
		Modality: normalize.ModalityChat,
		Model:    "gpt-4o",
		Messages: []providers.Message{{Role: "user", Content: content}},
	}
}

func TestMemory_ImplementsBackend(_ *testing.T) {
	var _ Backend = (*Memory)(nil)
}

func TestMemory_StoreAndLookup(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(10, time.Minute)

	if err := c.Store(ctx, chatReq("hi"), Record{Text: "hello", Type: TypeString}); err != nil {
		t.Fatalf("Store: %v", err)
	}
	got, ok, err := c.Lookup(ctx, chatReq("hi"))
	if err != nil || !ok {
		t.Fatalf("expected cache hit, got ok=%v err=%v", ok, err)
	}
	if got.Text != "hello" || got.Type != TypeString {
		t.Errorf("unexpected record %+v", got)
	}
}

func TestMemory_Miss(t *testing.T) {
	c := NewMemory(10, time.Minute)
	_, ok, err := c.Lookup(context.Background(), chatReq("missing"))
	if ok || err != nil {
		t.Errorf("expected clean miss, got ok=%v err=%v", ok, err)
	}
}

func TestMemory_TTLExpiration(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(10, 10*time.Millisecond)
	_ = c.Store(ctx, chatReq("hi"), Record{Text: "hello"})

	time.Sleep(20 * time.Millisecond)
	if _, ok, _ := c.Lookup(ctx, chatReq("hi")); ok {
		t.Error("expected cache miss after TTL")
	}
}

func TestMemory_LRUEviction(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(2, time.Minute)
	_ = c.Store(ctx, chatReq("a"), Record{Text: "a"})
	_ = c.Store(ctx, chatReq("b"), Record{Text: "b"})
	_, _, _ = c.Lookup(ctx, chatReq("a")) // "b" is now least recently used
	_ = c.Store(ctx, chatReq("c"), Record{Text: "c"})

	if _, ok, _ := c.Lookup(ctx, chatReq("a")); !ok {
		t.Error("expected 'a' to be present (recently accessed)")
	}
	if _, ok, _ := c.Lookup(ctx, chatReq("b")); ok {
		t.Error("expected 'b' to be evicted (LRU)")
	}
	if _, ok, _ := c.Lookup(ctx, chatReq("c")); !ok {
		t.Error("expected 'c' to be present")
	}
}

func TestMemory_StatsAndClear(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(10, 0)
	_ = c.Store(ctx, chatReq("a"), Record{Text: "a"})
	_, _, _ = c.Lookup(ctx, chatReq("a"))
	_, _, _ = c.Lookup(ctx, chatReq("b"))

	stats, err := c.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Entries != 1 || stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}

	if err := c.Clear(ctx, true); err != nil {
		t.Fatalf("Clear(expired): %v", err)
	}
	if c.Len() != 1 {
		t.Errorf("entry without TTL must survive an expired-only clear, len=%d", c.Len())
	}
	if err := c.Clear(ctx, false); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if c.Len() != 0 {
		t.Errorf("expected empty cache, len=%d", c.Len())
	}
}

func TestMemory_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(100, time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			req := chatReq(string(rune('a' + n%26)))
			_ = c.Store(ctx, req, Record{Text: "x"})
			_, _, _ = c.Lookup(ctx, req)
		}(i)
	}
	wg.Wait()
	if c.Len() > 26 {
		t.Errorf("expected at most 26 distinct keys, got %d", c.Len())
	}
}
