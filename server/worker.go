package server

import (
	"errors"
	"fmt"
	"sync"

	"github.com/chazu/jsvm/engine"
)

// workRequest represents a unit of work to be executed on the engine goroutine.
type workRequest struct {
	fn   func(*engine.Engine) interface{}
	done chan workResult
}

// workResult holds the return value from an engine operation.
type workResult struct {
	value interface{}
	err   error
}

// Worker serializes all access to one engine through a single goroutine.
// The pipeline is single-threaded; every handler must go through the
// worker to avoid data races on the string pool and VM.
type Worker struct {
	engine   *engine.Engine
	requests chan workRequest
	quit     chan struct{}
	stopOnce sync.Once
	stopped  chan struct{}
}

// NewWorker creates a Worker and starts the processing goroutine.
func NewWorker(e *engine.Engine) *Worker {
	w := &Worker{
		engine:   e,
		requests: make(chan workRequest, 64),
		quit:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go w.loop()
	return w
}

// loop processes requests sequentially on a dedicated goroutine.
func (w *Worker) loop() {
	defer close(w.stopped)
	for {
		select {
		case req := <-w.requests:
			req.done <- w.execute(req.fn)
		case <-w.quit:
			return
		}
	}
}

// execute runs a function on the engine, recovering from panics.
func (w *Worker) execute(fn func(*engine.Engine) interface{}) workResult {
	var result workResult
	func() {
		defer func() {
			if r := recover(); r != nil {
				result.err = fmt.Errorf("engine panic: %v", r)
			}
		}()
		result.value = fn(w.engine)
	}()
	return result
}

// ErrWorkerStopped is returned by Do after Stop.
var ErrWorkerStopped = errors.New("server: worker stopped")

// Do submits a function for execution on the engine goroutine and blocks
// until it completes. Returns the result and any error (including panics).
func (w *Worker) Do(fn func(*engine.Engine) interface{}) (interface{}, error) {
	req := workRequest{
		fn:   fn,
		done: make(chan workResult, 1),
	}
	select {
	case w.requests <- req:
	case <-w.stopped:
		return nil, ErrWorkerStopped
	}
	select {
	case result := <-req.done:
		return result.value, result.err
	case <-w.stopped:
		return nil, ErrWorkerStopped
	}
}

// Stop shuts down the worker goroutine and waits for it to exit. Calling
// Stop twice is a no-op.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.quit) })
	<-w.stopped
}
