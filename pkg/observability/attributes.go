package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/b0ase/path402/pkg/domain"
)

// Span attributes for engine operations.
var (
	AttrAgentID   = attribute.Key("path402.agent.id")
	AttrAddress   = attribute.Key("path402.address")
	AttrPrice     = attribute.Key("path402.price")
	AttrOutcome   = attribute.Key("path402.outcome")
	AttrTool      = attribute.Key("path402.tool")
	AttrErrorKind = attribute.Key("path402.error.kind")
)

// AgentOperation creates attributes for an operation by agent on address.
func AgentOperation(agentID, address string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{AttrAgentID.String(agentID)}
	if address != "" {
		attrs = append(attrs, AttrAddress.String(address))
	}
	return attrs
}

// errorKind prefers the domain kind and falls back to the Go type.
func errorKind(err error) string {
	if k := domain.KindOf(err); k != "" {
		return string(k)
	}
	return fmt.Sprintf("%T", err)
}

// AddSpanEvent adds an event to the current span.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
