// Package tracecontext encodes and decodes the W3C traceparent header
// (§4.12): "00-<32-hex trace-id>-<16-hex span-id>-<2-hex flags>".
package tracecontext

import (
	"encoding/hex"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

const version = "00"

// TraceParent is the decoded form of a traceparent header.
type TraceParent struct {
	TraceID trace.TraceID
	SpanID  trace.SpanID
	Flags   trace.TraceFlags
}

// Encode renders tp as "00-<trace-id>-<span-id>-<flags>".
func Encode(tp TraceParent) string {
	return fmt.Sprintf("%s-%s-%s-%02x", version, tp.TraceID, tp.SpanID, byte(tp.Flags))
}

// Decode parses a traceparent header. Any deviation from the exact format —
// wrong version, wrong field lengths, invalid hex — yields the zero
// TraceParent and ok=false; per §4.12 this is never an error, just an
// absent parent.
func Decode(header string) (TraceParent, bool) {
	parts := strings.Split(header, "-")
	if len(parts) != 4 {
		return TraceParent{}, false
	}
	if parts[0] != version {
		return TraceParent{}, false
	}
	if len(parts[1]) != 32 || len(parts[2]) != 16 || len(parts[3]) != 2 {
		return TraceParent{}, false
	}

	traceID, err := trace.TraceIDFromHex(parts[1])
	if err != nil || !traceID.IsValid() {
		return TraceParent{}, false
	}
	spanID, err := trace.SpanIDFromHex(parts[2])
	if err != nil || !spanID.IsValid() {
		return TraceParent{}, false
	}
	flagBytes, err := hex.DecodeString(parts[3])
	if err != nil || len(flagBytes) != 1 {
		return TraceParent{}, false
	}

	return TraceParent{TraceID: traceID, SpanID: spanID, Flags: trace.TraceFlags(flagBytes[0])}, true
}
