package infra

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestChanPool_RejectsWhenFullAndContextEnds(t *testing.T) {
	p := NewChanPool(1)

	release, ok := p.Acquire(context.Background())
	if !ok {
		t.Fatalf("expected first acquire to succeed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, ok := p.Acquire(ctx); ok {
		t.Fatalf("expected second acquire to time out")
	}

	release()
	if _, ok := p.Acquire(context.Background()); !ok {
		t.Fatalf("expected acquire after release to succeed")
	}
}

func TestKeyedPool_SerializesSameKey(t *testing.T) {
	p := NewKeyedPool()

	release, ok := p.Acquire(context.Background(), "u1")
	if !ok {
		t.Fatalf("expected acquire to succeed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, ok := p.Acquire(ctx, "u1"); ok {
		t.Fatalf("expected same key to wait")
	}

	// outra chave não espera
	other, ok := p.Acquire(context.Background(), "u2")
	if !ok {
		t.Fatalf("expected different key to be independent")
	}
	other()
	release()

	if p.Len() != 0 {
		t.Fatalf("expected idle slots to be removed, got %d", p.Len())
	}
}

func TestKeyedPool_ReleaseIsIdempotent(t *testing.T) {
	p := NewKeyedPool()
	release, _ := p.Acquire(context.Background(), "u1")
	release()
	release()

	if _, ok := p.Acquire(context.Background(), "u1"); !ok {
		t.Fatalf("expected acquire to succeed")
	}
}

func TestKeyedPool_MutualExclusionUnderLoad(t *testing.T) {
	p := NewKeyedPool()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, ok := p.Acquire(context.Background(), "u1")
			if !ok {
				t.Errorf("acquire failed")
				return
			}
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Fatalf("expected at most one holder, saw %d", maxSeen)
	}
}
