// internal/status/publisher_test.go
package status

import (
	"sync"
	"testing"

	"github.com/tamzrod/modbus-fleetmon/internal/alarm"
)

func snap(device string, cycle uint64) Snapshot {
	return Snapshot{
		Device: device,
		Cycle:  cycle,
		Health: HealthOK,
		Metrics: []MetricState{
			{Name: "turbo_temp", Value: 1000, Band: alarm.Normal, Known: true, Lit: true},
		},
	}
}

func TestPublish_ReplacesAndIsolates(t *testing.T) {
	p := NewPublisher()

	working := snap("23001", 1)
	p.Publish(working)

	// The poller keeps mutating its working set; the published copy must not move.
	working.Metrics[0].Value = 9999

	got, ok := p.Latest("23001")
	if !ok {
		t.Fatalf("snapshot missing")
	}
	if got.Metrics[0].Value != 1000 {
		t.Fatalf("published snapshot shares memory with the poller")
	}

	p.Publish(snap("23001", 2))
	got, _ = p.Latest("23001")
	if got.Cycle != 2 {
		t.Fatalf("expected cycle 2 to replace cycle 1, got %d", got.Cycle)
	}
}

func TestAll_OrderedAndRemove(t *testing.T) {
	p := NewPublisher()
	p.Publish(snap("b", 1))
	p.Publish(snap("a", 1))

	all := p.All()
	if len(all) != 2 || all[0].Device != "a" || all[1].Device != "b" {
		t.Fatalf("unexpected order %+v", all)
	}

	p.Remove("a")
	if _, ok := p.Latest("a"); ok {
		t.Fatalf("removed device still present")
	}
}

func TestSubscribe_SlowReaderNeverBlocks(t *testing.T) {
	p := NewPublisher()
	ch, cancel := p.Subscribe(2)
	defer cancel()

	// Nobody reads; Publish must still return.
	for i := uint64(1); i <= 10; i++ {
		p.Publish(snap("23001", i))
	}

	var last uint64
	for len(ch) > 0 {
		last = (<-ch).Cycle
	}
	if last != 10 {
		t.Fatalf("latest-wins: expected cycle 10 last, got %d", last)
	}
}

func TestSubscribe_CancelCloses(t *testing.T) {
	p := NewPublisher()
	ch, cancel := p.Subscribe(1)
	cancel()
	cancel()

	if _, ok := <-ch; ok {
		t.Fatalf("expected closed channel")
	}
	p.Publish(snap("23001", 1)) // must not panic on a cancelled subscriber
}

func TestPublish_Concurrent(t *testing.T) {
	p := NewPublisher()
	ch, cancel := p.Subscribe(4)
	defer cancel()

	var wg sync.WaitGroup
	for _, d := range []string{"a", "b", "c", "d"} {
		wg.Add(1)
		go func(device string) {
			defer wg.Done()
			for i := uint64(1); i <= 100; i++ {
				p.Publish(snap(device, i))
			}
		}(d)
	}
	wg.Wait()

	for len(ch) > 0 {
		<-ch
	}
	if len(p.All()) != 4 {
		t.Fatalf("expected 4 devices")
	}
	for _, s := range p.All() {
		if s.Cycle != 100 {
			t.Fatalf("device %s stuck at cycle %d", s.Device, s.Cycle)
		}
	}
}

func TestEncodeDecode_Bands(t *testing.T) {
	s := snap("23001", 3)
	s.Metrics[0].Band = alarm.Fault

	b, err := Encode(s)
	if err != nil {
		t.Fatalf("Encode err=%v", err)
	}
	got, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode err=%v", err)
	}
	if got.Metrics[0].Band != alarm.Fault || got.Health != HealthOK {
		t.Fatalf("band/health lost in wire form: %+v", got)
	}
}
