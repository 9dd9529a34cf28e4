package mqtt

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/brindlewood/oneshot/internal/config"
)

func TestNew_DoesNotConnect(t *testing.T) {
	cfg := config.MQTTConfig{Broker: "mqtt://localhost:1883", DeviceName: "test-device"}
	p := New(cfg, nil)
	if p.cm != nil {
		t.Error("New() should not establish a connection manager")
	}
}

func TestPublisher_AvailabilityTopic(t *testing.T) {
	cfg := config.MQTTConfig{Broker: "mqtt://localhost:1883", DeviceName: "garage-sensor"}
	p := New(cfg, nil)

	got := p.AvailabilityTopic()
	want := "garage-sensor/availability"
	if got != want {
		t.Errorf("AvailabilityTopic() = %q, want %q", got, want)
	}
}

func TestPublisher_Publish_BeforeStart(t *testing.T) {
	cfg := config.MQTTConfig{Broker: "mqtt://localhost:1883", DeviceName: "test-device"}
	p := New(cfg, nil)

	err := p.Publish(context.Background(), "some/topic", []byte("x"), 0, false)
	if err == nil {
		t.Fatal("Publish before Start should error")
	}
}

func TestPublisher_AwaitConnection_BeforeStart(t *testing.T) {
	cfg := config.MQTTConfig{Broker: "mqtt://localhost:1883", DeviceName: "test-device"}
	p := New(cfg, nil)

	err := p.AwaitConnection(context.Background())
	if err == nil {
		t.Fatal("AwaitConnection before Start should error")
	}
}

func TestPublisher_Stop_BeforeStart(t *testing.T) {
	cfg := config.MQTTConfig{Broker: "mqtt://localhost:1883", DeviceName: "test-device"}
	p := New(cfg, nil)

	if err := p.Stop(context.Background()); err != nil {
		t.Errorf("Stop before Start should be a no-op, got error: %v", err)
	}
}

func TestPublisher_Ready_ContextCancel(t *testing.T) {
	cfg := config.MQTTConfig{Broker: "mqtt://localhost:1883", DeviceName: "test-device"}
	p := New(cfg, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := p.Ready(ctx)
	if err == nil {
		t.Fatal("Ready should not return nil before signalReady has been called")
	}
}

func TestPublisher_Ready_SignaledByConnect(t *testing.T) {
	cfg := config.MQTTConfig{Broker: "mqtt://localhost:1883", DeviceName: "test-device"}
	p := New(cfg, nil)

	done := make(chan error, 1)
	go func() {
		done <- p.Ready(context.Background())
	}()

	p.signalReady()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Ready() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Ready did not return after signalReady")
	}
}

func TestPublisher_Ready_SignaledOnlyOnce(t *testing.T) {
	cfg := config.MQTTConfig{Broker: "mqtt://localhost:1883", DeviceName: "test-device"}
	p := New(cfg, nil)

	p.signalReady()
	p.signalReady() // must not panic (second Send on the same oneshot.Sender)

	err := p.Ready(context.Background())
	if err != nil {
		t.Fatalf("Ready() error = %v", err)
	}
}

func TestPublisher_SetMessageHandler(t *testing.T) {
	cfg := config.MQTTConfig{
		Broker:     "mqtt://localhost:1883",
		DeviceName: "test-device",
		Subscriptions: []config.MQTTSubscription{
			{Topic: "foo/bar"},
		},
	}
	p := New(cfg, nil)

	var called bool
	var gotTopic string
	var gotPayload []byte
	p.SetMessageHandler(func(topic string, payload []byte) {
		called = true
		gotTopic = topic
		gotPayload = payload
	})

	if p.handler == nil {
		t.Fatal("handler should be set after SetMessageHandler")
	}

	p.handler("test/topic", []byte("hello"))
	if !called {
		t.Error("custom handler was not called")
	}
	if gotTopic != "test/topic" {
		t.Errorf("topic = %q, want %q", gotTopic, "test/topic")
	}
	if string(gotPayload) != "hello" {
		t.Errorf("payload = %q, want %q", gotPayload, "hello")
	}
}

func TestPublisher_Start_InvalidBrokerURL(t *testing.T) {
	cfg := config.MQTTConfig{Broker: "://not-a-url", DeviceName: "test-device"}
	p := New(cfg, nil)

	err := p.Start(context.Background())
	if err == nil {
		t.Fatal("Start with an invalid broker URL should error")
	}
}

func TestPublisher_ClientID(t *testing.T) {
	cfg := config.MQTTConfig{Broker: "mqtt://localhost:1883", DeviceName: "test-device"}
	p := New(cfg, nil)

	if got := p.clientID(); got != "test-device" {
		t.Errorf("clientID() with no instance ID = %q, want %q", got, "test-device")
	}

	p.SetInstanceID("abc123")
	if got := p.clientID(); got != "test-device-abc123" {
		t.Errorf("clientID() with instance ID = %q, want %q", got, "test-device-abc123")
	}
}

func TestLoadOrCreateInstanceID_CreatesFile(t *testing.T) {
	dir := t.TempDir()

	id, err := LoadOrCreateInstanceID(dir)
	if err != nil {
		t.Fatalf("LoadOrCreateInstanceID() error = %v", err)
	}
	if id == "" {
		t.Fatal("LoadOrCreateInstanceID() returned empty string")
	}

	data, err := os.ReadFile(filepath.Join(dir, "instance_id"))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if got := strings.TrimSpace(string(data)); got != id {
		t.Errorf("file content = %q, want %q", got, id)
	}
}

func TestLoadOrCreateInstanceID_ReturnsExisting(t *testing.T) {
	dir := t.TempDir()

	first, err := LoadOrCreateInstanceID(dir)
	if err != nil {
		t.Fatalf("first call error = %v", err)
	}

	second, err := LoadOrCreateInstanceID(dir)
	if err != nil {
		t.Fatalf("second call error = %v", err)
	}
	if second != first {
		t.Errorf("second = %q, want %q (should be stable)", second, first)
	}
}

func TestLoadOrCreateInstanceID_UUIDFormat(t *testing.T) {
	dir := t.TempDir()

	id, err := LoadOrCreateInstanceID(dir)
	if err != nil {
		t.Fatalf("LoadOrCreateInstanceID() error = %v", err)
	}

	parts := strings.Split(id, "-")
	if len(parts) != 5 {
		t.Errorf("id %q does not look like a UUID (expected 5 dash-separated parts)", id)
	}
}
