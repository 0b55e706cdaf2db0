package comm

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestFaultInjectorDisabled(t *testing.T) {
	injector := NewFaultInjector(false)

	for i := 0; i < 10; i++ {
		if injector.ShouldDropFirstRequest() {
			t.Fatalf("disabled injector should never fire")
		}
	}

	if injector.Tripped() {
		t.Fatalf("disabled injector should not trip")
	}
}

func TestFaultInjectorSingleShot(t *testing.T) {
	injector := NewFaultInjector(true)

	fired := uint64(0)

	n := 50
	wg := sync.WaitGroup{}
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if injector.ShouldDropFirstRequest() {
				atomic.AddUint64(&fired, 1)
			}
		}()
	}
	wg.Wait()

	if fired != 1 {
		t.Fatalf("injector should fire exactly once, fired %d times", fired)
	}
	if !injector.Tripped() {
		t.Fatalf("injector should report tripped")
	}

	// later requests pass through
	if injector.ShouldDropFirstRequest() {
		t.Fatalf("injector should not fire twice")
	}
}
