// Package telemetry provides observability instrumentation for statecraft.
//
// It integrates structured logging (zerolog), distributed tracing
// (OpenTelemetry), metrics (Prometheus), and event publishing into one
// unified handle threaded through a context.Context.
//
// # Usage
//
// Initialize telemetry at application startup:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceName = "statecraft"
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
//	ctx = tel.WithContext(ctx)
//
// # Structured logging
//
//	logger := tel.Logger.NewComponentLogger("executor")
//	logger = logger.WithRunID("run-123").WithResourceID("file:/etc/app.conf")
//	logger.Info("applying plan")
//	logger.WithError(err).Error("apply failed")
//
// Log levels: trace, debug, info, warn, error, fatal.
//
// # Tracing
//
//	ctx, span := tel.Tracer.Start(ctx, "operation.name")
//	defer span.End()
//	telemetry.RecordError(span, err)
//
// Supported exporters: otlp, stdout, none.
//
// # Metrics
//
//	tel.Metrics.RecordApplyStarted()
//	tel.Metrics.RecordApplyCompleted("succeeded", duration)
//	tel.Metrics.RecordResourceOperation("apply", "file", "succeeded", duration)
//
// Metrics are exposed via HTTP at /metrics (default :9090).
//
// # Events
//
//	tel.Events.PublishRunStarted(runID, user)
//	tel.Events.PublishDriftDetected(resourceID, driftCount)
//	tel.Events.Subscribe(func(event telemetry.Event) {
//	    fmt.Printf("%s: %s\n", event.Type, event.Message)
//	}, telemetry.FilterByLevel("warning"))
//
// # Context helpers
//
//	ctx = telemetry.WithRunContext(ctx, runID, user)
//	defer telemetry.EndRunContext(ctx, runID, status, err)
//
//	ctx = telemetry.WithResourceOperationContext(ctx, resourceID, "apply")
//	defer telemetry.EndResourceOperationContext(ctx, resourceID, "apply", resourceType, status, err)
package telemetry
