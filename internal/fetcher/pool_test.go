package fetcher

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/go-rod/rod"
)

func TestPagePoolReusesTabs(t *testing.T) {
	released := 0
	pool := newPagePool(1, func(*rod.Page) { released++ })

	tab := &rod.Page{}
	pool.put(tab)

	got, ok := pool.get()
	if !ok {
		t.Fatal("pool reported closed")
	}
	if got != tab {
		t.Fatal("expected the pooled tab back")
	}
	if released != 0 {
		t.Errorf("no tab should be released yet, got %d", released)
	}

	// Full pool releases the extra tab.
	pool.put(tab)
	pool.put(&rod.Page{})
	if released != 1 {
		t.Errorf("expected 1 release for the overflow tab, got %d", released)
	}
}

func TestPagePoolPutAfterCloseReleases(t *testing.T) {
	released := 0
	pool := newPagePool(2, func(*rod.Page) { released++ })

	pool.put(&rod.Page{})
	pool.close()
	if released != 1 {
		t.Fatalf("close must drain the pooled tab, released %d", released)
	}

	pool.put(&rod.Page{})
	if released != 2 {
		t.Errorf("a tab returned after close must be released, got %d", released)
	}

	if _, ok := pool.get(); ok {
		t.Error("get must report closed")
	}

	pool.close()
	if released != 2 {
		t.Errorf("second close must be a no-op, got %d", released)
	}
}

func TestPagePoolConcurrentPutAndClose(t *testing.T) {
	var released atomic.Int64
	pool := newPagePool(1, func(*rod.Page) { released.Add(1) })

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pool.put(&rod.Page{})
		}()
	}
	pool.close()
	wg.Wait()

	// Every tab ends up released exactly once, whether it was drained
	// by close, rejected by a full pool, or returned after close.
	if got := released.Load(); got != 8 {
		t.Errorf("expected 8 releases, got %d", got)
	}
}
