package tracecontext

import (
	"testing"

	"go.opentelemetry.io/otel/trace"
)

func mustTraceID(t *testing.T, hex string) trace.TraceID {
	t.Helper()
	id, err := trace.TraceIDFromHex(hex)
	if err != nil {
		t.Fatalf("invalid test trace id: %v", err)
	}
	return id
}

func mustSpanID(t *testing.T, hex string) trace.SpanID {
	t.Helper()
	id, err := trace.SpanIDFromHex(hex)
	if err != nil {
		t.Fatalf("invalid test span id: %v", err)
	}
	return id
}

func TestRoundTripPreservesFields(t *testing.T) {
	tp := TraceParent{
		TraceID: mustTraceID(t, "4bf92f3577b34da6a3ce929d0e0e4736"),
		SpanID:  mustSpanID(t, "00f067aa0ba902b7"),
		Flags:   1,
	}

	header := Encode(tp)
	got, ok := Decode(header)
	if !ok {
		t.Fatalf("expected Decode to succeed for %q", header)
	}
	if got != tp {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, tp)
	}
}

func TestDecodeRejectsWrongVersion(t *testing.T) {
	if _, ok := Decode("01-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"); ok {
		t.Fatal("expected non-00 version to be rejected")
	}
}

func TestDecodeRejectsWrongLengths(t *testing.T) {
	cases := []string{
		"00-short-00f067aa0ba902b7-01",
		"00-4bf92f3577b34da6a3ce929d0e0e4736-short-01",
		"00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-1",
		"00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7",
	}
	for _, c := range cases {
		if _, ok := Decode(c); ok {
			t.Fatalf("expected %q to be rejected", c)
		}
	}
}

func TestDecodeRejectsInvalidHex(t *testing.T) {
	if _, ok := Decode("00-zzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz-00f067aa0ba902b7-01"); ok {
		t.Fatal("expected non-hex trace id to be rejected")
	}
}

func TestDecodeRejectsAllZeroIDs(t *testing.T) {
	if _, ok := Decode("00-00000000000000000000000000000000-00f067aa0ba902b7-01"); ok {
		t.Fatal("expected all-zero trace id to be invalid")
	}
	if _, ok := Decode("00-4bf92f3577b34da6a3ce929d0e0e4736-0000000000000000-01"); ok {
		t.Fatal("expected all-zero span id to be invalid")
	}
}
