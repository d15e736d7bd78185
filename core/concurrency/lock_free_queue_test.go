package concurrency

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
)

func TestLockFreeQueueFIFO(t *testing.T) {
	q := NewLockFreeQueue[int](8)
	for i := 0; i < 5; i++ {
		if !q.Enqueue(i) {
			t.Fatalf("enqueue %d rejected", i)
		}
	}
	for i := 0; i < 5; i++ {
		v, ok := q.Dequeue()
		if !ok || v != i {
			t.Fatalf("dequeue = %d,%v want %d", v, ok, i)
		}
	}
	if _, ok := q.Dequeue(); ok {
		t.Fatal("dequeue on empty queue succeeded")
	}
}

func TestLockFreeQueueFullRejects(t *testing.T) {
	q := NewLockFreeQueue[int](4)
	accepted := 0
	for i := 0; i < 16; i++ {
		if q.Enqueue(i) {
			accepted++
		}
	}
	if accepted != 4 {
		t.Fatalf("accepted = %d, want capacity 4", accepted)
	}
	// Draining frees the cells again.
	q.Dequeue()
	if !q.Enqueue(99) {
		t.Fatal("enqueue after dequeue rejected")
	}
}

func TestLockFreeQueueMPMC(t *testing.T) {
	q := NewLockFreeQueue[int](1024)
	const producers, perProducer = 8, 5000

	var sent, received int64
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(pid int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				v := pid*perProducer + i + 1
				for !q.Enqueue(v) {
					runtime.Gosched()
				}
				atomic.AddInt64(&sent, int64(v))
			}
		}(p)
	}

	var count int64
	total := int64(producers * perProducer)
	var cwg sync.WaitGroup
	for c := 0; c < 4; c++ {
		cwg.Add(1)
		go func() {
			defer cwg.Done()
			for atomic.LoadInt64(&count) < total {
				if v, ok := q.Dequeue(); ok {
					atomic.AddInt64(&received, int64(v))
					atomic.AddInt64(&count, 1)
				} else {
					runtime.Gosched()
				}
			}
		}()
	}

	wg.Wait()
	cwg.Wait()
	if sent != received {
		t.Fatalf("checksum mismatch: sent %d received %d", sent, received)
	}
}
