package visualizer

import (
	"sync"
	"sync/atomic"
	"time"
)

const DefaultRefreshInterval = time.Second / 60

type Tick struct {
	Seq  uint64
	Time time.Time
}

// Loop emits ticks at a fixed interval. A tick is dropped rather than
// queued when the previous one has not been consumed, and no ticks are
// emitted while paused.
type Loop struct {
	interval time.Duration
	ticks    chan Tick

	paused  atomic.Bool
	dropped atomic.Uint64

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
}

func NewLoop(interval time.Duration) *Loop {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	return &Loop{
		interval: interval,
		ticks:    make(chan Tick, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (l *Loop) Start() {
	l.startOnce.Do(func() { go l.run() })
}

func (l *Loop) Ticks() <-chan Tick { return l.ticks }

func (l *Loop) Pause()  { l.paused.Store(true) }
func (l *Loop) Resume() { l.paused.Store(false) }

func (l *Loop) Paused() bool { return l.paused.Load() }

// Dropped counts ticks skipped because the consumer was behind.
func (l *Loop) Dropped() uint64 { return l.dropped.Load() }

func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		close(l.stop)
		l.startOnce.Do(func() { close(l.done) })
	})
	<-l.done
}

func (l *Loop) run() {
	defer close(l.done)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	var seq uint64
	for {
		select {
		case <-l.stop:
			return
		case now := <-ticker.C:
			if l.paused.Load() {
				continue
			}
			seq++
			select {
			case l.ticks <- Tick{Seq: seq, Time: now}:
			default:
				l.dropped.Add(1)
			}
		}
	}
}
