// Package observability provides OpenTelemetry tracing and Prometheus metrics
// for the path402 engine.
//
// # Tracing
//
// The Provider exports spans and RED metrics over OTLP gRPC when enabled:
//
//	p, err := observability.New(ctx, &observability.Config{Enabled: true, OTLPEndpoint: "otel-collector:4317"})
//	defer p.Shutdown(ctx)
//
//	ctx, done := p.TrackOperation(ctx, "path402.acquire", observability.AgentOperation(agent, addr)...)
//	defer func() { done(err) }()
//
// A disabled Provider still hands out no-op tracers, so callers never branch.
//
// # Metrics
//
// Business counters live on a private Prometheus registry:
//
//	m := observability.NewMetrics()
//	mux.Handle("/metrics", m.Handler())
//	m.RecordAcquisition(observability.OutcomeAcquired, price)
package observability
