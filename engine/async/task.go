package async

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/cnutils"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/common"
)

// Task is the pending result of an asynchronous operation.
//
// A task resolves exactly once, either with a value or with an error. Later Complete, Fail or
// Cancel calls are ignored and report false.
type Task[T any] struct {
	lock      sync.Mutex
	done      chan struct{}
	value     T
	err       error
	listeners []func(T, error)
}

// NewTask creates an unresolved task
func NewTask[T any]() *Task[T] {
	return &Task[T]{done: make(chan struct{})}
}

// CompletedTask creates a task resolved with the value
func CompletedTask[T any](value T) *Task[T] {
	t := NewTask[T]()
	t.Complete(value)
	return t
}

// FailedTask creates a task resolved with the error
func FailedTask[T any](err error) *Task[T] {
	t := NewTask[T]()
	t.Fail(err)
	return t
}

// Complete resolves the task with the value
func (t *Task[T]) Complete(value T) bool {
	return t.resolve(value, nil)
}

// Fail resolves the task with the error
func (t *Task[T]) Fail(err error) bool {
	var zero T
	if err == nil {
		err = errors.New("task failed without error")
	}
	return t.resolve(zero, err)
}

// Cancel resolves the task with common.ErrCancelled
func (t *Task[T]) Cancel() bool {
	return t.Fail(common.ErrCancelled)
}

func (t *Task[T]) resolve(value T, err error) bool {
	t.lock.Lock()
	select {
	case <-t.done:
		t.lock.Unlock()
		return false
	default:
	}
	t.value, t.err = value, err
	listeners := t.listeners
	t.listeners = nil
	close(t.done)
	t.lock.Unlock()

	for _, l := range listeners {
		l := l
		cnutils.RunPanicless(func() { l(value, err) })
	}
	return true
}

// OnComplete registers a callback which runs once the task is resolved.
// If the task is already resolved the callback runs immediately on the calling goroutine.
func (t *Task[T]) OnComplete(cb func(T, error)) {
	t.lock.Lock()
	select {
	case <-t.done:
		t.lock.Unlock()
		cb(t.value, t.err)
		return
	default:
	}
	t.listeners = append(t.listeners, cb)
	t.lock.Unlock()
}

// Done returns a channel closed when the task is resolved
func (t *Task[T]) Done() <-chan struct{} {
	return t.done
}

// IsDone returns if the task is resolved
func (t *Task[T]) IsDone() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Result returns the value and error of a resolved task, or common.ErrTimeout if it is not resolved yet
func (t *Task[T]) Result() (T, error) {
	if !t.IsDone() {
		var zero T
		return zero, common.ErrTimeout
	}
	return t.value, t.err
}

// GetErr waits up to timeout for the task. If the task is not resolved in time it is failed with
// common.ErrTimeout, so a result arriving later is dropped.
func (t *Task[T]) GetErr(timeout time.Duration) (T, error) {
	select {
	case <-t.done:
		return t.value, t.err
	default:
	}
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case <-t.done:
			return t.value, t.err
		case <-timer.C:
		}
	}
	t.resolve(*new(T), errors.Wrapf(common.ErrTimeout, "no result in %s", timeout))
	return t.value, t.err
}

// Get waits up to timeout for the task and returns def if it failed or is not resolved in time.
// Like GetErr it fails an unresolved task on timeout.
func (t *Task[T]) Get(timeout time.Duration, def T) T {
	v, err := t.GetErr(timeout)
	if err != nil {
		return def
	}
	return v
}

// Await waits until the task is resolved or ctx is done
func (t *Task[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-t.done:
		return t.value, t.err
	case <-ctx.Done():
		var zero T
		if ctx.Err() == context.DeadlineExceeded {
			return zero, errors.Wrap(common.ErrTimeout, ctx.Err().Error())
		}
		return zero, errors.Wrap(common.ErrCancelled, ctx.Err().Error())
	}
}

// Map creates a task resolved with f applied to the value of t
func Map[T any, R any](t *Task[T], f func(T) (R, error)) *Task[R] {
	res := NewTask[R]()
	t.OnComplete(func(v T, err error) {
		if err != nil {
			res.Fail(err)
			return
		}
		r, err := f(v)
		if err != nil {
			res.Fail(err)
			return
		}
		res.Complete(r)
	})
	return res
}
