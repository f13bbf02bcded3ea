package kv

import (
	"testing"
	"time"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	ms := NewMemoryStore()

	if _, ok := ms.Get("missing"); ok {
		t.Error("Get() on absent key should report false")
	}

	if err := ms.Set("cache", "value"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if value, ok := ms.Get("cache"); !ok || value != "value" {
		t.Errorf("Get() = %q, %v", value, ok)
	}

	if err := ms.Delete("cache"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := ms.Get("cache"); ok {
		t.Error("Get() after Delete should report false")
	}
}

func TestMemoryStoreWatch(t *testing.T) {
	ms := NewMemoryStore()

	fired := make(chan struct{}, 8)
	stop, err := ms.Watch("cache", func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	})
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}

	ms.Set("cache", "value")
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("watch callback never fired")
	}

	stop()
	ms.Set("cache", "another")
	// Drain anything already in flight, then make sure nothing new lands.
	time.Sleep(50 * time.Millisecond)
	for len(fired) > 0 {
		<-fired
	}
	time.Sleep(50 * time.Millisecond)
	if len(fired) != 0 {
		t.Error("watch fired after stop")
	}
}
