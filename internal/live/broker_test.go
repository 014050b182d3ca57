package live

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"nexus-backend/internal/models"
)

func makeEvent(group int64, typ, kind, id string) models.LiveEvent {
	return models.LiveEvent{Type: typ, Kind: kind, ID: id, GroupID: group}
}

func TestDispatchReachesAllGroupSubscribers(t *testing.T) {
	b := NewBroker()

	ch1, cancel1 := b.Subscribe(7)
	defer cancel1()
	ch2, cancel2 := b.Subscribe(7)
	defer cancel2()
	other, cancelOther := b.Subscribe(8)
	defer cancelOther()

	b.Dispatch(makeEvent(7, models.EventCreate, models.KindMaterial, "material-1"))

	for name, ch := range map[string]<-chan models.LiveEvent{"first": ch1, "second": ch2} {
		select {
		case ev := <-ch:
			if ev.ID != "material-1" {
				t.Errorf("%s subscriber: got event %q, want material-1", name, ev.ID)
			}
		default:
			t.Fatalf("%s subscriber received nothing", name)
		}
	}

	select {
	case ev := <-other:
		t.Fatalf("group 8 subscriber must not see group 7 events, got %q", ev.ID)
	default:
	}
}

func TestPerIdentifierOrderPreserved(t *testing.T) {
	b := NewBroker()

	ch, cancel := b.Subscribe(1)
	defer cancel()

	b.Dispatch(makeEvent(1, models.EventCreate, models.KindDocument, "42"))
	b.Dispatch(makeEvent(1, models.EventDelete, models.KindDocument, "42"))

	first := <-ch
	second := <-ch
	if first.Type != models.EventCreate || second.Type != models.EventDelete {
		t.Fatalf("events for one identifier must arrive in publish order, got %s then %s", first.Type, second.Type)
	}
}

func TestSlowSubscriberDroppedNotBlocked(t *testing.T) {
	b := NewBroker()

	slow, _ := b.Subscribe(1)
	healthy, cancelHealthy := b.Subscribe(1)
	defer cancelHealthy()

	// Overflow the slow subscriber's buffer without draining it.
	for i := 0; i <= subscriberBuffer; i++ {
		b.Dispatch(makeEvent(1, models.EventCreate, models.KindMaterial, "material-1"))
		// Keep the healthy subscriber drained so only the slow one backs up.
		select {
		case <-healthy:
		default:
		}
	}

	// The slow channel must have been closed rather than stalling Dispatch.
	drained := 0
	for range slow {
		drained++
		if drained > subscriberBuffer {
			t.Fatalf("slow subscriber channel was never closed")
		}
	}

	b.Dispatch(makeEvent(1, models.EventCreate, models.KindMaterial, "material-2"))
	select {
	case ev := <-healthy:
		if ev.ID != "material-2" {
			t.Errorf("healthy subscriber got %q, want material-2", ev.ID)
		}
	default:
		t.Fatalf("healthy subscriber must keep receiving after the slow one is dropped")
	}
}

func TestDispatchRacingCancelNeverSendsOnClosedChannel(t *testing.T) {
	b := NewBroker()

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				b.Dispatch(makeEvent(9, models.EventCreate, models.KindMaterial, "material-1"))
			}
		}
	}()

	// Churn subscribers while the dispatcher runs; a send landing on a
	// channel closed by cancel would panic the dispatch goroutine.
	for i := 0; i < 5000; i++ {
		_, cancel := b.Subscribe(9)
		cancel()
	}

	close(stop)
	wg.Wait()
}

func TestCancelIsIdempotent(t *testing.T) {
	b := NewBroker()

	_, cancel := b.Subscribe(3)
	cancel()
	cancel() // second call must not panic on a closed channel

	b.Dispatch(makeEvent(3, models.EventCreate, models.KindEvent, "event-9"))
}

func TestPublisherWithoutRedisDispatchesLocally(t *testing.T) {
	b := NewBroker()
	p := NewPublisher(b, nil)

	ch, cancel := b.Subscribe(2)
	defer cancel()

	ev := makeEvent(2, models.EventDelete, models.KindEvent, "event-5")
	if err := p.Publish(context.Background(), ev); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	select {
	case got := <-ch:
		if got.ID != "event-5" || got.Type != models.EventDelete {
			t.Errorf("got %+v, want delete of event-5", got)
		}
	default:
		t.Fatalf("subscriber received nothing from local publish")
	}
}

func TestEventEnvelopeShape(t *testing.T) {
	ev := models.LiveEvent{
		Type:    models.EventCreate,
		Kind:    models.KindMaterial,
		ID:      "material-12",
		GroupID: 4,
		Payload: json.RawMessage(`{"title":"Week 3 notes"}`),
	}

	raw, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if decoded["type"] != "create" || decoded["kind"] != "material" || decoded["id"] != "material-12" {
		t.Errorf("unexpected envelope: %s", raw)
	}
}
