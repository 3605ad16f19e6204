// Package loop provides the single cooperative event loop that owns all
// widget state.
//
// Every mutation of a widget runs as a task on its loop. Asynchronous work
// (network calls, hit tests) runs on its own goroutine and posts its result
// back as a task, so state is never touched concurrently and no locking is
// needed beyond the task queue itself.
package loop

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// FrameInterval is the display frame period used by RequestFrame.
const FrameInterval = 16 * time.Millisecond

// ErrClosed is returned by Do once the loop has been closed.
var ErrClosed = errors.New("event loop closed")

// Loop schedules work on a single logical thread.
type Loop interface {
	// Post enqueues fn to run on the loop. Safe from any goroutine.
	Post(fn func())
	// AfterFunc runs fn on the loop after d. The returned cancel prevents
	// fn from running if it has not started yet.
	AfterFunc(d time.Duration, fn func()) (cancel func())
	// RequestFrame runs fn on the loop at the next display frame.
	RequestFrame(fn func()) (cancel func())
}

// EventLoop is the production Loop backed by one goroutine.
type EventLoop struct {
	mu     sync.Mutex
	queue  []func()
	wake   chan struct{}
	quit   chan struct{}
	done   chan struct{}
	closed atomic.Bool
	once   sync.Once
}

// New starts an event loop.
func New() *EventLoop {
	l := &EventLoop{
		wake: make(chan struct{}, 1),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *EventLoop) run() {
	defer close(l.done)
	for {
		select {
		case <-l.quit:
			return
		case <-l.wake:
		}
		for {
			l.mu.Lock()
			if len(l.queue) == 0 {
				l.mu.Unlock()
				break
			}
			fn := l.queue[0]
			l.queue[0] = nil
			l.queue = l.queue[1:]
			l.mu.Unlock()

			select {
			case <-l.quit:
				return
			default:
			}
			fn()
		}
	}
}

// Post enqueues fn. Tasks posted after Close are dropped.
func (l *EventLoop) Post(fn func()) {
	if l.closed.Load() {
		return
	}
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Do runs fn on the loop and waits for it to finish.
// It must not be called from the loop goroutine.
func (l *EventLoop) Do(fn func()) error {
	if l.closed.Load() {
		return ErrClosed
	}
	finished := make(chan struct{})
	l.Post(func() {
		defer close(finished)
		fn()
	})
	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrClosed
	}
}

// AfterFunc implements Loop.
func (l *EventLoop) AfterFunc(d time.Duration, fn func()) func() {
	var cancelled atomic.Bool
	t := time.AfterFunc(d, func() {
		l.Post(func() {
			if !cancelled.Load() {
				fn()
			}
		})
	})
	return func() {
		cancelled.Store(true)
		t.Stop()
	}
}

// RequestFrame implements Loop.
func (l *EventLoop) RequestFrame(fn func()) func() {
	return l.AfterFunc(FrameInterval, fn)
}

// Close stops the loop. Pending tasks are discarded.
func (l *EventLoop) Close() {
	l.once.Do(func() {
		l.closed.Store(true)
		close(l.quit)
	})
	<-l.done
}
