package looper

import (
	"sync"
	"testing"
	"time"
)

func TestPostRunsInOrder(t *testing.T) {
	l := New("test")
	l.Start()

	var (
		mu  sync.Mutex
		got []int
	)
	for i := 0; i < 10; i++ {
		i := i
		if !l.Post(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		}) {
			t.Fatalf("post %d refused", i)
		}
	}
	l.QuitSafely()

	if len(got) != 10 {
		t.Fatalf("expected 10 tasks to run, got %d", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("task %d ran at position %d", v, i)
		}
	}
}

func TestQuitSafelyDrainsQueuedTasks(t *testing.T) {
	l := New("drain")
	l.Start()

	release := make(chan struct{})
	ran := make(chan int, 3)
	l.Post(func() {
		<-release
		ran <- 1
	})
	l.Post(func() { ran <- 2 })
	l.Post(func() { ran <- 3 })

	quit := make(chan struct{})
	go func() {
		l.QuitSafely()
		close(quit)
	}()

	select {
	case <-quit:
		t.Fatal("QuitSafely returned while a task was still blocked")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	<-quit

	if len(ran) != 3 {
		t.Fatalf("expected all 3 queued tasks to run, got %d", len(ran))
	}
}

func TestPostAfterQuitIsRefused(t *testing.T) {
	l := New("refuse")
	if l.Post(func() {}) {
		t.Fatal("post on a looper that never started should be refused")
	}
	l.Start()
	l.QuitSafely()
	if l.Post(func() {}) {
		t.Fatal("post after QuitSafely should be refused")
	}
	if l.Running() {
		t.Fatal("looper should not report running after quit")
	}
}

func TestRestart(t *testing.T) {
	l := New("restart")
	l.Start()
	l.QuitSafely()
	l.Start()
	defer l.QuitSafely()

	done := make(chan struct{})
	if !l.Post(func() { close(done) }) {
		t.Fatal("post after restart refused")
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task did not run after restart")
	}
}

func TestPanicDoesNotKillLooper(t *testing.T) {
	l := New("panic")
	l.Start()
	defer l.QuitSafely()

	l.Post(func() { panic("boom") })
	done := make(chan struct{})
	l.Post(func() { close(done) })
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("looper died after a panicking task")
	}
}
