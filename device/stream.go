package device

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/rtnn/internal/resource"
)

// Task is a unit of work executed in stream order.
type Task func(ctx context.Context) error

type streamItem struct {
	ctx     context.Context
	task    Task
	cleanup func()
	done    chan struct{}
}

// Stream executes tasks strictly in the order they were enqueued, on its own
// goroutine. The first failing task makes the stream sticky: later tasks are
// skipped and every Synchronize reports the error.
type Stream struct {
	id     int
	rc     *resource.Controller
	workCh chan streamItem
	wg     sync.WaitGroup

	mu     sync.Mutex
	err    error
	closed atomic.Bool
}

func newStream(id int, rc *resource.Controller) *Stream {
	s := &Stream{
		id:     id,
		rc:     rc,
		workCh: make(chan streamItem, 64),
	}
	s.wg.Add(1)
	go s.worker()
	return s
}

// ID returns the stream id.
func (s *Stream) ID() int {
	return s.id
}

func (s *Stream) worker() {
	defer s.wg.Done()

	for item := range s.workCh {
		if item.done != nil {
			close(item.done)
			continue
		}
		if item.cleanup != nil {
			item.cleanup()
			continue
		}
		if s.Err() != nil {
			continue
		}
		if err := s.run(item); err != nil {
			s.setErr(err)
		}
	}
}

func (s *Stream) run(item streamItem) error {
	if err := item.ctx.Err(); err != nil {
		return err
	}
	if err := s.rc.AcquireStream(item.ctx); err != nil {
		return err
	}
	defer s.rc.ReleaseStream()
	return item.task(item.ctx)
}

func (s *Stream) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

// Err returns the sticky error, if any.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Enqueue appends task to the stream and returns without waiting.
func (s *Stream) Enqueue(ctx context.Context, task Task) error {
	if s.closed.Load() {
		return ErrStreamClosed
	}
	select {
	case s.workCh <- streamItem{ctx: ctx, task: task}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Finally enqueues fn to run in stream order even after a task has failed.
// It is used to release buffers that in-flight tasks still reference.
func (s *Stream) Finally(fn func()) error {
	if s.closed.Load() {
		fn()
		return ErrStreamClosed
	}
	s.workCh <- streamItem{cleanup: fn}
	return nil
}

// Synchronize blocks until every task enqueued so far has finished and
// returns the sticky error.
func (s *Stream) Synchronize() error {
	if s.closed.Load() {
		return s.Err()
	}
	done := make(chan struct{})
	s.workCh <- streamItem{done: done}
	<-done
	return s.Err()
}

// Close drains the stream and stops its worker. It is idempotent.
func (s *Stream) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return s.Err()
	}
	close(s.workCh)
	s.wg.Wait()
	return s.Err()
}

// SynchronizeAll is the global barrier over a set of streams.
func SynchronizeAll(streams ...*Stream) error {
	var errs []error
	for _, s := range streams {
		if s == nil {
			continue
		}
		if err := s.Synchronize(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
