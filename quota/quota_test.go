package quota

import (
	"sync"
	"testing"
)

// ---------------------------------------------------------------------------
// Manager basics
// ---------------------------------------------------------------------------

func TestNewManager_Empty(t *testing.T) {
	m := NewManager()
	// No configs; Acquire/Release should always succeed.
	if !m.Acquire("any.type") {
		t.Fatal("expected Acquire to succeed for unconfigured type")
	}
	m.Release("any.type")
}

func TestNewManager_WithConfig(t *testing.T) {
	m := NewManager(Config{
		TypeName:       "email.send",
		MaxConcurrency: 2,
	})
	if m.ActiveCount("email.send") != 0 {
		t.Fatal("expected 0 active tasks initially")
	}
}

// ---------------------------------------------------------------------------
// Concurrency limits
// ---------------------------------------------------------------------------

func TestManager_MaxConcurrency(t *testing.T) {
	m := NewManager(Config{
		TypeName:       "email.send",
		MaxConcurrency: 2,
	})

	if !m.Acquire("email.send") {
		t.Fatal("first Acquire should succeed")
	}
	if !m.Acquire("email.send") {
		t.Fatal("second Acquire should succeed")
	}
	// Third should be blocked.
	if m.Acquire("email.send") {
		t.Fatal("third Acquire should fail (max concurrency 2)")
	}

	// Release one slot.
	m.Release("email.send")
	if !m.Acquire("email.send") {
		t.Fatal("Acquire should succeed after Release")
	}
}

func TestManager_AcquireRelease_ActiveCount(t *testing.T) {
	m := NewManager(Config{
		TypeName:       "q",
		MaxConcurrency: 5,
	})

	for i := range 3 {
		if !m.Acquire("q") {
			t.Fatalf("Acquire %d should succeed", i)
		}
	}
	if m.ActiveCount("q") != 3 {
		t.Fatalf("expected 3 active, got %d", m.ActiveCount("q"))
	}

	m.Release("q")
	m.Release("q")
	if m.ActiveCount("q") != 1 {
		t.Fatalf("expected 1 active, got %d", m.ActiveCount("q"))
	}
}

func TestManager_ReleaseNeverNegative(t *testing.T) {
	m := NewManager(Config{TypeName: "q", MaxConcurrency: 1})
	m.Release("q")
	m.Release("q")
	if m.ActiveCount("q") != 0 {
		t.Fatalf("expected 0 active, got %d", m.ActiveCount("q"))
	}
}

// ---------------------------------------------------------------------------
// Rate limits
// ---------------------------------------------------------------------------

func TestManager_RateLimit(t *testing.T) {
	// 1 task/sec with burst 2: two immediate acquires pass, third fails.
	m := NewManager(Config{
		TypeName:  "email.send",
		RateLimit: 1,
		RateBurst: 2,
	})

	if !m.Acquire("email.send") {
		t.Fatal("first Acquire should pass (burst)")
	}
	if !m.Acquire("email.send") {
		t.Fatal("second Acquire should pass (burst)")
	}
	if m.Acquire("email.send") {
		t.Fatal("third Acquire should be rate limited")
	}
}

func TestManager_RateBurstDefaults(t *testing.T) {
	m := NewManager(Config{
		TypeName:  "q",
		RateLimit: 0.001, // effectively one token then nothing
	})
	if !m.Acquire("q") {
		t.Fatal("first Acquire should pass")
	}
	if m.Acquire("q") {
		t.Fatal("second Acquire should be rate limited (burst defaults to 1)")
	}
}

// ---------------------------------------------------------------------------
// Dynamic reconfiguration
// ---------------------------------------------------------------------------

func TestManager_SetConfigPreservesActive(t *testing.T) {
	m := NewManager(Config{TypeName: "q", MaxConcurrency: 5})
	m.Acquire("q")
	m.Acquire("q")

	m.SetConfig(Config{TypeName: "q", MaxConcurrency: 2})
	if m.ActiveCount("q") != 2 {
		t.Fatalf("expected 2 active after reconfigure, got %d", m.ActiveCount("q"))
	}
	// At the new cap already.
	if m.Acquire("q") {
		t.Fatal("Acquire should fail at new lower cap")
	}
}

func TestManager_ConcurrentAccess(t *testing.T) {
	m := NewManager(Config{TypeName: "q", MaxConcurrency: 10})

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if m.Acquire("q") {
				m.Release("q")
			}
		}()
	}
	wg.Wait()

	if m.ActiveCount("q") != 0 {
		t.Fatalf("expected 0 active after all released, got %d", m.ActiveCount("q"))
	}
}
