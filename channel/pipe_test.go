package channel

import (
	"sync"
	"testing"
	"time"
)

func TestPipeDelivery(t *testing.T) {
	a, b := Pipe()
	defer a.Close()

	got := make(chan string, 1)
	b.On("hello", func(payload []byte) {
		got <- string(payload)
	})

	if err := a.Send("hello", []byte("world")); err != nil {
		t.Fatal(err)
	}

	select {
	case v := <-got:
		if v != "world" {
			t.Fatalf("expect 'world', got %q", v)
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestPipeOrdering(t *testing.T) {
	a, b := Pipe()
	defer a.Close()

	var mu sync.Mutex
	var order []string
	done := make(chan struct{})
	b.On("seq", func(payload []byte) {
		mu.Lock()
		order = append(order, string(payload))
		if len(order) == 50 {
			close(done)
		}
		mu.Unlock()
	})

	for i := 0; i < 50; i++ {
		if err := a.Send("seq", []byte{byte('0' + i%10)}); err != nil {
			t.Fatal(err)
		}
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("not all events delivered")
	}

	mu.Lock()
	defer mu.Unlock()
	for i, v := range order {
		if v != string(byte('0'+i%10)) {
			t.Fatalf("delivery out of order at %d: %q", i, v)
		}
	}
}

func TestPipeOnce(t *testing.T) {
	a, b := Pipe()
	defer a.Close()

	calls := make(chan struct{}, 4)
	b.Once("evt", func(payload []byte) {
		calls <- struct{}{}
	})

	a.Send("evt", nil)
	a.Send("evt", nil)

	select {
	case <-calls:
	case <-time.After(time.Second):
		t.Fatal("one-shot handler never ran")
	}
	select {
	case <-calls:
		t.Fatal("one-shot handler ran twice")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPipeCancelSubscription(t *testing.T) {
	a, b := Pipe()
	defer a.Close()

	calls := make(chan struct{}, 4)
	cancel := b.On("evt", func(payload []byte) {
		calls <- struct{}{}
	})
	cancel()

	a.Send("evt", nil)

	select {
	case <-calls:
		t.Fatal("cancelled handler ran")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPipeDisconnect(t *testing.T) {
	a, b := Pipe()

	var wg sync.WaitGroup
	wg.Add(2)
	fired := 0
	var mu sync.Mutex
	count := func() {
		mu.Lock()
		fired++
		mu.Unlock()
		wg.Done()
	}
	a.OnDisconnect(count)
	b.OnDisconnect(count)
	// Registering twice on the same end must also fire only once per handler.
	b.OnDisconnect(func() {})

	a.Close()

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disconnect handlers did not run on both ends")
	}

	// A second Close must not fire disconnect again.
	a.Close()
	b.Close()
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if fired != 2 {
		t.Fatalf("disconnect fired %d times, want 2", fired)
	}

	if err := a.Send("evt", nil); err != ErrClosed {
		t.Fatalf("expect ErrClosed after close, got %v", err)
	}
}
