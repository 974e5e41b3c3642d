package post

import (
	"sync"

	"github.com/xiaonanln/gwrepl/engine/gwutils"
)

// PostCallback is the type of functions to be posted
type PostCallback func()

// Queue holds callbacks to be executed later on the logic goroutine
//
// Post might be called from other goroutines, so a lock protects the callbacks.
type Queue struct {
	lock      sync.Mutex
	callbacks []PostCallback
}

// NewQueue creates an empty Queue
func NewQueue() *Queue {
	return &Queue{}
}

// Post a callback which will be executed at the next Tick
func (q *Queue) Post(f PostCallback) {
	q.lock.Lock()
	q.callbacks = append(q.callbacks, f)
	q.lock.Unlock()
}

// Len returns the number of callbacks waiting
func (q *Queue) Len() int {
	q.lock.Lock()
	n := len(q.callbacks)
	q.lock.Unlock()
	return n
}

// Tick runs all posted callbacks, including callbacks posted by them
func (q *Queue) Tick() {
	for { // loop until there is no callbacks posted anymore
		q.lock.Lock()
		if len(q.callbacks) == 0 {
			q.lock.Unlock()
			break
		}
		// switch callbacks in locked section
		callbacksCopy := q.callbacks
		q.callbacks = make([]PostCallback, 0, len(callbacksCopy))
		q.lock.Unlock()

		for _, f := range callbacksCopy {
			gwutils.RunPanicless(f)
		}
	}
}

var defaultQueue = NewQueue()

// Post a callback to the default queue
func Post(f PostCallback) {
	defaultQueue.Post(f)
}

// Tick is called by the main logic routine to run all functions posted to the default queue
func Tick() {
	defaultQueue.Tick()
}
