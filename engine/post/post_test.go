package post

import "testing"

func TestPost(t *testing.T) {
	var a int
	Post(func() {
		a = 1
	})
	Tick()
	if a != 1 {
		t.Errorf("t should be 1")
	}
}

func TestQueuePostInCallback(t *testing.T) {
	q := NewQueue()
	var order []int
	q.Post(func() {
		order = append(order, 1)
		q.Post(func() {
			order = append(order, 3)
		})
	})
	q.Post(func() {
		panic("isolated")
	})
	q.Post(func() {
		order = append(order, 2)
	})
	q.Tick()
	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("wrong order: %v", order)
	}
	if q.Len() != 0 {
		t.Errorf("queue should be empty")
	}
}
