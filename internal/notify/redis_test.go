package notify

import (
	"encoding/json"
	"testing"
)

func newTestBridge(t *testing.T) (*RedisBridge, *Fanout) {
	t.Helper()
	fanout := NewFanout(nil)
	t.Cleanup(fanout.Close)
	// No Redis client: Publish and handlePayload never touch it.
	return NewRedisBridge(nil, "call-relay:notifications", "instance-a", fanout, nil), fanout
}

func remotePayload(t *testing.T, instanceID string, n Notification) string {
	t.Helper()
	raw, err := json.Marshal(bridgeEnvelope{InstanceID: instanceID, Notification: n})
	if err != nil {
		t.Fatal(err)
	}
	return string(raw)
}

func TestBridgePublish_DeliversLocallyAndQueues(t *testing.T) {
	bridge, fanout := newTestBridge(t)
	ch, cancel := fanout.Subscribe()
	defer cancel()

	bridge.Publish(Notification{Kind: KindEnded, CallID: "C1"})

	got := <-ch
	if got.Kind != KindEnded || got.CallID != "C1" {
		t.Fatalf("unexpected local notification: %+v", got)
	}

	select {
	case payload := <-bridge.queue:
		var env bridgeEnvelope
		if err := json.Unmarshal(payload, &env); err != nil {
			t.Fatalf("decoding queued payload: %v", err)
		}
		if env.InstanceID != "instance-a" || env.CallID != "C1" {
			t.Fatalf("unexpected queued envelope: %+v", env)
		}
	default:
		t.Fatal("nothing queued for republish")
	}
}

func TestBridgePublish_FullQueueNeverBlocks(t *testing.T) {
	bridge, _ := newTestBridge(t)

	// Nothing drains the queue here; once it fills, publishes must keep
	// returning and keep delivering locally.
	for i := 0; i < republishQueueSize+10; i++ {
		bridge.Publish(Notification{Kind: KindActive, CallID: "C1"})
	}
	if len(bridge.queue) != republishQueueSize {
		t.Fatalf("queue length = %d, want %d", len(bridge.queue), republishQueueSize)
	}
}

func TestBridgeHandlePayload_InjectsRemoteNotifications(t *testing.T) {
	bridge, fanout := newTestBridge(t)
	ch, cancel := fanout.Subscribe()
	defer cancel()

	bridge.handlePayload(remotePayload(t, "instance-b", Notification{
		Kind:   KindIncoming,
		CallID: "C2",
		From:   "+1555",
		To:     "+1777",
	}))

	got := <-ch
	if got.Kind != KindIncoming || got.CallID != "C2" || got.From != "+1555" {
		t.Fatalf("remote notification not injected: %+v", got)
	}
}

func TestBridgeHandlePayload_SkipsOwnInstance(t *testing.T) {
	bridge, fanout := newTestBridge(t)
	ch, cancel := fanout.Subscribe()
	defer cancel()

	bridge.handlePayload(remotePayload(t, "instance-a", Notification{Kind: KindEnded, CallID: "C1"}))

	select {
	case got := <-ch:
		t.Fatalf("own-instance message must not loop back, got %+v", got)
	default:
	}
}

func TestBridgeHandlePayload_IgnoresMalformedPayload(t *testing.T) {
	bridge, fanout := newTestBridge(t)
	ch, cancel := fanout.Subscribe()
	defer cancel()

	bridge.handlePayload(`{"instance_id":`)

	select {
	case got := <-ch:
		t.Fatalf("malformed payload must be dropped, got %+v", got)
	default:
	}
}
