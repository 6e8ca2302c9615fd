package message

import "testing"

func TestMessageIDRoundTrip(t *testing.T) {
	id := NewMessageID()
	parsed, err := ParseMessageID(id.String())
	if err != nil {
		t.Fatalf("ParseMessageID: %v", err)
	}
	if parsed != id {
		t.Fatalf("round trip mismatch: got %s, want %s", parsed, id)
	}
}

func TestMessageIDZero(t *testing.T) {
	var id MessageID
	if !id.IsZero() {
		t.Fatal("zero-value MessageID should report IsZero")
	}
	if NewMessageID().IsZero() {
		t.Fatal("fresh MessageID should not be zero")
	}
}

func TestCommandWithCorrelationIdentity(t *testing.T) {
	cmd := NewCommand("do-thing", nil)
	same := cmd.WithCorrelation("", "")
	if same != Message(cmd) {
		t.Fatal("WithCorrelation with empty ids should return the same reference")
	}
}

func TestCommandWithCorrelationCopies(t *testing.T) {
	cmd := NewCommand("do-thing", nil)
	next := cmd.WithCorrelation("corr-1", "cause-1")
	if next == Message(cmd) {
		t.Fatal("WithCorrelation with non-empty ids should return a distinct copy")
	}
	if next.CorrelationID() != "corr-1" || next.CausationID() != "cause-1" {
		t.Fatalf("correlation not propagated: got %q/%q", next.CorrelationID(), next.CausationID())
	}
	if cmd.CorrelationID() != "" {
		t.Fatal("original command must remain unmodified")
	}
}

func TestQueryKindAndCorrelation(t *testing.T) {
	q := NewQuery[int]("get-count", nil)
	if q.Kind() != KindQuery {
		t.Fatalf("expected KindQuery, got %v", q.Kind())
	}
	next := q.WithCorrelation("corr-2", "cause-2")
	if next.CorrelationID() != "corr-2" {
		t.Fatal("query correlation not propagated")
	}
}

func TestEventKind(t *testing.T) {
	e := NewEvent("thing-happened", nil)
	if e.Kind() != KindEvent {
		t.Fatalf("expected KindEvent, got %v", e.Kind())
	}
}

func TestTransportEnvelopeWithHeaderImmutable(t *testing.T) {
	base := TransportEnvelope{MessageType: "orders.placed"}
	next := base.WithHeader("x-trace", "abc")
	if _, ok := base.Header("x-trace"); ok {
		t.Fatal("base envelope must not be mutated")
	}
	v, ok := next.Header("x-trace")
	if !ok || v != "abc" {
		t.Fatalf("expected header to be set on copy, got %q, %v", v, ok)
	}
}

func TestErrorKindOf(t *testing.T) {
	err := NewError(ErrorKindTransient, "queue", "backpressure", nil)
	if KindOf(err) != ErrorKindTransient {
		t.Fatalf("expected transient kind, got %v", KindOf(err))
	}
	if !IsRetryable(err) {
		t.Fatal("transient errors should be retryable")
	}
	perm := NewError(ErrorKindPermanent, "queue", "bad payload", nil)
	if IsRetryable(perm) {
		t.Fatal("permanent errors should not be retryable")
	}
}
