package events

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/tech-arch1tect/authkit/services/logging"
)

type Handler func(event Event)

// Dispatcher fans events out to handlers from a single drain goroutine.
// Publish never blocks: when the buffer is full the event is dropped and
// counted, because domain events are advisory and must not slow down the
// request path.
type Dispatcher struct {
	ch        chan Event
	done      chan struct{}
	wg        sync.WaitGroup
	handlers  []Handler
	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
	logger    *logging.Service
}

func NewDispatcher(bufferSize int, logger *logging.Service, handlers ...Handler) *Dispatcher {
	if bufferSize <= 0 {
		bufferSize = 64
	}

	d := &Dispatcher{
		ch:       make(chan Event, bufferSize),
		done:     make(chan struct{}),
		handlers: handlers,
		logger:   logger,
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case event := <-d.ch:
			d.deliver(event)
		case <-d.done:
			// drain whatever was queued before Close
			for {
				select {
				case event := <-d.ch:
					d.deliver(event)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(event Event) {
	for _, handler := range d.handlers {
		handler(event)
	}
}

func (d *Dispatcher) Publish(event Event) {
	if d == nil || d.closed.Load() {
		return
	}

	select {
	case d.ch <- event:
	case <-d.done:
	default:
		d.dropped.Add(1)
		d.logger.Warn("event dropped, dispatcher buffer full",
			zap.String("event", event.Name()),
			zap.Uint64("total_dropped", d.dropped.Load()))
	}
}

func (d *Dispatcher) Dropped() uint64 {
	return d.dropped.Load()
}

// Close stops accepting events, delivers what is queued, and waits for the
// drain goroutine to finish.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}
