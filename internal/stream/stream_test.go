package stream

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	"jurix.app/internal/session"
)

func TestBrokerFanOut(t *testing.T) {
	b := NewBroker()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := b.Subscribe(ctx)
	second := b.Subscribe(ctx)
	if b.Subscribers() != 2 {
		t.Fatalf("Subscribers() = %d, want 2", b.Subscribers())
	}

	evt := session.Revocation{TenantID: "ten-1", UserID: "usr-1", Reason: session.ReasonVersionMismatch}
	b.Publish(evt)

	for name, ch := range map[string]<-chan session.Revocation{"first": first, "second": second} {
		select {
		case got := <-ch:
			if got != evt {
				t.Fatalf("%s received %+v, want %+v", name, got, evt)
			}
		case <-time.After(time.Second):
			t.Fatalf("%s subscriber received nothing", name)
		}
	}
}

func TestBrokerDropsOnSlowSubscriber(t *testing.T) {
	b := NewBroker()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fast := b.Subscribe(ctx)
	slowCtx, slowCancel := context.WithCancel(context.Background())
	defer slowCancel()
	b.Subscribe(slowCtx) // never drained

	// Overflow the slow subscriber's buffer; Publish must not block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 64; i++ {
			b.Publish(session.Revocation{TenantID: "ten-1", Reason: session.ReasonUserDisabled})
		}
		close(done)
	}()
	go func() {
		for range fast {
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
}

func TestBrokerUnsubscribeOnContextEnd(t *testing.T) {
	b := NewBroker()
	ctx, cancel := context.WithCancel(context.Background())
	ch := b.Subscribe(ctx)
	cancel()

	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				if b.Subscribers() != 0 {
					t.Fatalf("Subscribers() = %d after unsubscribe", b.Subscribers())
				}
				return
			}
		case <-deadline:
			t.Fatal("channel not closed after context cancel")
		}
	}
}

func TestRedisBridgeDeliversPeerEvents(t *testing.T) {
	srv := miniredis.RunT(t)
	clientA := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	clientB := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	defer clientA.Close()
	defer clientB.Close()

	brokerA := NewBroker()
	brokerB := NewBroker()
	bridgeA, err := NewRedisBridge(clientA, brokerA)
	if err != nil {
		t.Fatalf("NewRedisBridge: %v", err)
	}
	bridgeB, err := NewRedisBridge(clientB, brokerB)
	if err != nil {
		t.Fatalf("NewRedisBridge: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go bridgeA.Run(ctx)
	go bridgeB.Run(ctx)

	subB := brokerB.Subscribe(ctx)
	// Give both subscriptions time to attach before publishing.
	time.Sleep(50 * time.Millisecond)

	evt := session.Revocation{TenantID: "ten-1", UserID: "usr-9", Reason: session.ReasonUserDisabled}
	bridgeA.Publish(ctx, evt)

	select {
	case got := <-subB:
		if got != evt {
			t.Fatalf("peer received %+v, want %+v", got, evt)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event did not cross the bridge")
	}
}

func TestRedisBridgeSkipsOwnEvents(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	defer client.Close()

	broker := NewBroker()
	bridge, err := NewRedisBridge(client, broker)
	if err != nil {
		t.Fatalf("NewRedisBridge: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go bridge.Run(ctx)

	sub := broker.Subscribe(ctx)
	time.Sleep(50 * time.Millisecond)

	bridge.Publish(ctx, session.Revocation{TenantID: "ten-1", Reason: session.ReasonVersionMismatch})

	// Exactly one local delivery; the echoed Redis copy must be dropped.
	select {
	case <-sub:
	case <-time.After(time.Second):
		t.Fatal("local delivery missing")
	}
	select {
	case evt := <-sub:
		t.Fatalf("own event redelivered from redis: %+v", evt)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestRedisBridgeDegradesWhenRedisDown(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	defer client.Close()

	broker := NewBroker()
	bridge, err := NewRedisBridge(client, broker)
	if err != nil {
		t.Fatalf("NewRedisBridge: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub := broker.Subscribe(ctx)

	srv.Close()
	bridge.Publish(ctx, session.Revocation{TenantID: "ten-1", Reason: session.ReasonUserDisabled})

	select {
	case <-sub:
	case <-time.After(time.Second):
		t.Fatal("local delivery must survive a redis outage")
	}
}
