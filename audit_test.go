package identity

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"
)

func newAuditedEngine(t *testing.T, sink AuditSink) *Engine {
	t.Helper()

	engine, err := New().
		WithConfig(testConfig()).
		WithAccountStore(newMockAccountStore()).
		WithEmailDispatcher(&recordingDispatcher{}).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return engine
}

func TestAuditEventsReachSink(t *testing.T) {
	sink := NewChannelSink(16)
	engine := newAuditedEngine(t, sink)

	ctx := WithClientIP(context.Background(), "203.0.113.7")
	_, _ = engine.Login(ctx, "ghost", "wrong-password")

	select {
	case event := <-sink.Events():
		if event.EventType != auditEventLoginFailure {
			t.Fatalf("unexpected event type %q", event.EventType)
		}
		if event.Success {
			t.Fatal("login failure must audit as unsuccessful")
		}
		if event.IP != "203.0.113.7" {
			t.Fatalf("client IP not captured, got %q", event.IP)
		}
		if event.Metadata["identifier"] != "ghost" {
			t.Fatalf("unexpected metadata %v", event.Metadata)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("audit event never arrived")
	}
}

func TestAuditCloseDrainsBuffer(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)
	engine := newAuditedEngine(t, sink)

	ctx := context.Background()
	if _, err := engine.Register(ctx, testRegisterRequest("alice", "alice@example.com")); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	engine.Close()

	out := buf.String()
	if !strings.Contains(out, auditEventRegisterSuccess) {
		t.Fatalf("expected %q in drained output, got %q", auditEventRegisterSuccess, out)
	}
	if engine.AuditDropped() != 0 {
		t.Fatalf("expected no dropped events, got %d", engine.AuditDropped())
	}
}

func TestDisabledAuditIsSilent(t *testing.T) {
	engine := newTestEngine(t, newMockAccountStore(), &recordingDispatcher{})

	// No sink configured: operations still work and nothing panics.
	_, _ = engine.Login(context.Background(), "ghost", "wrong-password")
	if engine.AuditDropped() != 0 {
		t.Fatal("disabled audit cannot drop events")
	}
}
