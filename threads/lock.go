package threads

import (
	"sync"
	"sync/atomic"
)

// machineLock decides which goroutine may touch a machine's registers.
// Holding the token owns the machine; holder names the worker that owns
// it, nil meaning the main goroutine or nobody.
type machineLock struct {
	token  chan struct{}
	holder atomic.Pointer[Worker]

	// depth counts nested pauses by the main goroutine. Main-only.
	depth int

	mu     sync.Mutex
	park   bool
	resume chan struct{}
}

func newMachineLock() *machineLock {
	return &machineLock{token: make(chan struct{}, 1)}
}

func (l *machineLock) acquire(w *Worker) {
	l.token <- struct{}{}
	l.holder.Store(w)
}

func (l *machineLock) release() {
	l.holder.Store(nil)
	<-l.token
}

// requestPark asks interruptible workers to stop at their next safepoint.
func (l *machineLock) requestPark() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.park {
		l.park = true
		l.resume = make(chan struct{})
	}
}

// parkRequested returns the channel a parking worker waits on, or nil.
func (l *machineLock) parkRequested() chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.park {
		return nil
	}
	return l.resume
}

func (l *machineLock) clearPark() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.park {
		l.park = false
		close(l.resume)
	}
}
