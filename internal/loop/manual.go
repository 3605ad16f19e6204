package loop

import (
	"sort"
	"sync"
	"time"
)

// Manual is a Loop driven explicitly by its owner. Tasks posted from any
// goroutine are queued until RunNext or Drain; timers fire on Advance and
// frames on Frame. Tests use it to step the widget deterministically.
type Manual struct {
	tasks chan func()

	mu     sync.Mutex
	now    time.Duration
	seq    int
	timers []*manualTimer
	frames []*manualTimer
}

type manualTimer struct {
	due       time.Duration
	seq       int
	fn        func()
	cancelled bool
}

// NewManual returns an empty manual loop.
func NewManual() *Manual {
	return &Manual{tasks: make(chan func(), 1024)}
}

// Post implements Loop.
func (m *Manual) Post(fn func()) {
	m.tasks <- fn
}

// AfterFunc implements Loop on the virtual clock.
func (m *Manual) AfterFunc(d time.Duration, fn func()) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &manualTimer{due: m.now + d, seq: m.seq, fn: fn}
	m.timers = append(m.timers, t)
	return func() {
		m.mu.Lock()
		t.cancelled = true
		m.mu.Unlock()
	}
}

// RequestFrame implements Loop.
func (m *Manual) RequestFrame(fn func()) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &manualTimer{fn: fn}
	m.frames = append(m.frames, t)
	return func() {
		m.mu.Lock()
		t.cancelled = true
		m.mu.Unlock()
	}
}

// RunNext waits up to timeout for one posted task and runs it.
func (m *Manual) RunNext(timeout time.Duration) bool {
	select {
	case fn := <-m.tasks:
		fn()
		return true
	case <-time.After(timeout):
		return false
	}
}

// Drain runs every task already queued, including tasks they post.
func (m *Manual) Drain() int {
	n := 0
	for {
		select {
		case fn := <-m.tasks:
			fn()
			n++
		default:
			return n
		}
	}
}

// Advance moves the virtual clock forward and fires due timers in order.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now += d
	var due, rest []*manualTimer
	for _, t := range m.timers {
		if t.due <= m.now {
			due = append(due, t)
		} else {
			rest = append(rest, t)
		}
	}
	m.timers = rest
	m.mu.Unlock()

	sort.Slice(due, func(i, j int) bool {
		if due[i].due != due[j].due {
			return due[i].due < due[j].due
		}
		return due[i].seq < due[j].seq
	})
	for _, t := range due {
		m.mu.Lock()
		cancelled := t.cancelled
		m.mu.Unlock()
		if !cancelled {
			t.fn()
		}
	}
}

// Frame runs the callbacks requested before this call and reports how many ran.
func (m *Manual) Frame() int {
	m.mu.Lock()
	frames := m.frames
	m.frames = nil
	m.mu.Unlock()

	n := 0
	for _, t := range frames {
		m.mu.Lock()
		cancelled := t.cancelled
		m.mu.Unlock()
		if !cancelled {
			t.fn()
			n++
		}
	}
	return n
}

// PendingFrames reports frame callbacks that are requested and not cancelled.
func (m *Manual) PendingFrames() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.frames {
		if !t.cancelled {
			n++
		}
	}
	return n
}

// PendingTimers reports timers that have not fired and are not cancelled.
func (m *Manual) PendingTimers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.timers {
		if !t.cancelled {
			n++
		}
	}
	return n
}
