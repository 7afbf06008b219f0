package inproc

import (
	"errors"
	"fmt"
	"sync"

	"webswarm/internal/domain"
)

var ErrSubscriberQueueFull = errors.New("subscriber queue is full")

// Bus fans progress events out to every subscriber without blocking the
// publisher.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string]chan domain.Event
	buffer int
}

func New(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 64
	}
	return &Bus{
		subs:   make(map[string]chan domain.Event),
		buffer: buffer,
	}
}

func (b *Bus) Subscribe(name string) <-chan domain.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subs[name]; ok {
		return ch
	}
	ch := make(chan domain.Event, b.buffer)
	b.subs[name] = ch
	return ch
}

func (b *Bus) Unsubscribe(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.subs[name]
	if !ok {
		return
	}
	delete(b.subs, name)
	close(ch)
}

func (b *Bus) Publish(evt domain.Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var errs []error
	for name, ch := range b.subs {
		select {
		case ch <- evt:
		default:
			errs = append(errs, fmt.Errorf("%w: %s", ErrSubscriberQueueFull, name))
		}
	}
	return errors.Join(errs...)
}
