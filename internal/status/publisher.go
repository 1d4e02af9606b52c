// internal/status/publisher.go
package status

import (
	"sort"
	"sync"
)

// Publisher holds the current snapshot per device and fans snapshots out
// to subscribers. Publish never blocks the caller.
type Publisher struct {
	mu     sync.RWMutex
	latest map[string]Snapshot
	subs   map[int]chan Snapshot
	nextID int
}

func NewPublisher() *Publisher {
	return &Publisher{
		latest: make(map[string]Snapshot),
		subs:   make(map[int]chan Snapshot),
	}
}

// Publish replaces the device's current snapshot with a private copy of s.
func (p *Publisher) Publish(s Snapshot) {
	s = s.Clone()

	p.mu.Lock()
	p.latest[s.Device] = s
	p.mu.Unlock()

	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, ch := range p.subs {
		offer(ch, s)
	}
}

// offer is a latest-wins send: when the channel is full the oldest
// element is dropped to make room.
func offer(ch chan Snapshot, s Snapshot) {
	select {
	case ch <- s:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- s:
	default:
	}
}

// Latest returns the current snapshot of a device.
func (p *Publisher) Latest(device string) (Snapshot, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.latest[device]
	return s, ok
}

// All returns the current snapshots ordered by device name.
func (p *Publisher) All() []Snapshot {
	p.mu.RLock()
	out := make([]Snapshot, 0, len(p.latest))
	for _, s := range p.latest {
		out = append(out, s)
	}
	p.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Device < out[j].Device })
	return out
}

// Remove discards the snapshot of a device that left the fleet.
func (p *Publisher) Remove(device string) {
	p.mu.Lock()
	delete(p.latest, device)
	p.mu.Unlock()
}

// Subscribe returns a channel receiving every published snapshot
// (latest-wins when the reader falls behind) and a cancel func that
// closes it.
func (p *Publisher) Subscribe(buffer int) (<-chan Snapshot, func()) {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	ch := make(chan Snapshot, buffer)

	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.subs[id] = ch
	p.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, id)
			close(ch)
			p.mu.Unlock()
		})
	}
}
