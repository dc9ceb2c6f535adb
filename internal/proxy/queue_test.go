package proxy

import (
	"testing"
	"time"
)

func TestQueueRunsJobsInOrder(t *testing.T) {
	q := newQueue()
	defer q.stop()

	var order []int
	done := make(chan struct{})
	for i := 0; i < 5; i++ {
		i := i
		last := i == 4
		ok := q.submit(func() {
			order = append(order, i)
			if last {
				close(done)
			}
		})
		if !ok {
			t.Fatalf("submit %d rejected", i)
		}
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for jobs to run")
	}

	for i, v := range order {
		if v != i {
			t.Fatalf("order = %v, want strictly increasing", order)
		}
	}
}

func TestQueueRejectsAfterStop(t *testing.T) {
	q := newQueue()
	q.stop()

	ok := q.submit(func() { t.Fatal("job should not run after stop") })
	if ok {
		t.Fatal("submit should have been rejected after stop")
	}
}

func TestQueueStopIsIdempotent(t *testing.T) {
	q := newQueue()
	q.stop()
	q.stop()
}
