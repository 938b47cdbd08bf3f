package server

import (
	"fmt"
	"sync"

	"github.com/chain/txvm/errors"

	"github.com/chazu/uvm/pkg/bytecode"
)

// ErrWorkerStopped is returned by Do once the worker has been stopped.
var ErrWorkerStopped = errors.New("engine worker stopped")

// engineRequest represents a unit of work to be executed on the engine goroutine.
type engineRequest struct {
	fn   func(*bytecode.Engine) interface{}
	done chan engineResult
}

// engineResult holds the return value from an engine operation.
type engineResult struct {
	value interface{}
	err   error
}

// EngineWorker serializes all engine access through a single goroutine.
// An Engine is not safe for concurrent use and LSP handlers may run in
// parallel, so every trial run goes through the worker.
type EngineWorker struct {
	engine   *bytecode.Engine
	requests chan engineRequest
	quit     chan struct{}
	stopOnce sync.Once
}

// NewEngineWorker creates an EngineWorker and starts the processing goroutine.
func NewEngineWorker(e *bytecode.Engine) *EngineWorker {
	w := &EngineWorker{
		engine:   e,
		requests: make(chan engineRequest, 64),
		quit:     make(chan struct{}),
	}
	go w.loop()
	return w
}

// loop processes requests sequentially on a dedicated goroutine.
func (w *EngineWorker) loop() {
	for {
		select {
		case req := <-w.requests:
			if w.Stopped() {
				return
			}
			req.done <- w.execute(req.fn)
		case <-w.quit:
			return
		}
	}
}

// execute runs a function on the engine, recovering from panics.
func (w *EngineWorker) execute(fn func(*bytecode.Engine) interface{}) engineResult {
	var result engineResult
	func() {
		defer func() {
			if r := recover(); r != nil {
				result.err = errors.New(fmt.Sprintf("engine panic: %v", r))
			}
		}()
		result.value = fn(w.engine)
	}()
	return result
}

// Do submits a function for execution on the engine goroutine and blocks
// until it completes. Returns the result and any error (including panics).
// After Stop, Do returns ErrWorkerStopped without touching the engine.
func (w *EngineWorker) Do(fn func(*bytecode.Engine) interface{}) (interface{}, error) {
	if w.Stopped() {
		return nil, ErrWorkerStopped
	}
	req := engineRequest{
		fn:   fn,
		done: make(chan engineResult, 1),
	}
	select {
	case w.requests <- req:
	case <-w.quit:
		return nil, ErrWorkerStopped
	}
	select {
	case result := <-req.done:
		return result.value, result.err
	case <-w.quit:
		return nil, ErrWorkerStopped
	}
}

// TrialRun loads p into the engine and runs it for at most limit
// instructions. It returns the run fault, or ErrWorkerStopped. Reaching
// the limit is not a fault.
func (w *EngineWorker) TrialRun(p *bytecode.Program, limit int) error {
	result, err := w.Do(func(e *bytecode.Engine) interface{} {
		if err := e.Load(p); err != nil {
			return err
		}
		_, err := e.Run(limit)
		return err
	})
	if err != nil {
		return err
	}
	runErr, _ := result.(error)
	return runErr
}

// Stopped reports whether Stop has been called.
func (w *EngineWorker) Stopped() bool {
	select {
	case <-w.quit:
		return true
	default:
		return false
	}
}

// Stop shuts down the worker goroutine. It is safe to call more than once.
func (w *EngineWorker) Stop() {
	w.stopOnce.Do(func() { close(w.quit) })
}
