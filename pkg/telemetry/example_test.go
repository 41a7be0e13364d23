package telemetry_test

import (
	"context"
	"fmt"
	"time"

	"github.com/statecraft/statecraft/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// Example_basicSetup demonstrates basic telemetry setup.
func Example_basicSetup() {
	cfg := telemetry.DefaultConfig()
	cfg.ServiceName = "statecraft"
	cfg.ServiceVersion = "1.0.0"

	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		panic(err)
	}
	defer tel.Shutdown(context.Background())

	if err := tel.StartMetricsServer(); err != nil {
		panic(err)
	}

	ctx := tel.WithContext(context.Background())

	logger := telemetry.FromContext(ctx)
	logger.Info("executor started")

	// Output can vary, so we don't specify output for this example
}

// Example_structuredLogging demonstrates structured logging features.
func Example_structuredLogging() {
	cfg := telemetry.DevelopmentConfig()
	cfg.Logging.Output = "stdout"

	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	logger := tel.Logger.NewComponentLogger("executor")
	logger = logger.WithFields(map[string]interface{}{
		"run_id":      "run-123",
		"resource_id": "file:/etc/app.conf",
	})

	logger.Debug("starting apply")
	logger.Info("resource created")
	logger.Warn("resource drift detected")

	err := fmt.Errorf("network timeout")
	logger.WithError(err).Error("failed to connect to remote host")

	// Output varies, no output specified
}

// Example_distributedTracing demonstrates distributed tracing usage.
func Example_distributedTracing() {
	cfg := telemetry.DevelopmentConfig()
	cfg.Tracing.Exporter = "stdout"

	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	ctx := tel.WithContext(context.Background())

	ctx, span := tel.Tracer.Start(ctx, "apply")
	defer span.End()

	span.SetAttributes(
		attribute.String("run.id", "run-789"),
		attribute.Int("resources", 5),
	)
	span.AddEvent("validation.complete")

	_, childSpan := tel.Tracer.Start(ctx, "apply_resource")
	defer childSpan.End()

	childSpan.SetAttributes(
		attribute.String("resource.id", "file:/etc/app.conf"),
		attribute.String("operation", "create"),
	)

	time.Sleep(10 * time.Millisecond)
	telemetry.RecordSuccess(childSpan)

	// Output varies, no output specified
}

// Example_metricsCollection demonstrates metrics collection.
func Example_metricsCollection() {
	cfg := telemetry.DefaultConfig()
	cfg.Metrics.Enabled = true

	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	tel.Metrics.RecordApplyStarted()

	start := time.Now()
	time.Sleep(50 * time.Millisecond)
	duration := time.Since(start)

	tel.Metrics.RecordApplyCompleted("succeeded", duration)
	tel.Metrics.RecordResourceOperation("create", "pkg", "succeeded", 25*time.Millisecond)
	tel.Metrics.RecordError("transient")
	tel.Metrics.SetResourcesManaged("pkg", 10)
	tel.Metrics.SetResourcesManaged("service", 5)

	fmt.Println("metrics recorded successfully")
	// Output: metrics recorded successfully
}

// Example_eventPublishing demonstrates event publishing and subscription.
func Example_eventPublishing() {
	cfg := telemetry.DefaultConfig()
	cfg.Events.Enabled = true
	cfg.Events.EnableAsync = false

	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	tel.Events.Subscribe(func(event telemetry.Event) {
		fmt.Printf("event: %s - %s\n", event.Type, event.Message)
	}, nil)

	tel.Events.PublishRunStarted("run-123", "user@example.com")
	tel.Events.PublishResourceStateChanged("file:/etc/app.conf", "absent", "present")

	// Output varies due to async nature, no output specified
}

// Example_runInstrumentation demonstrates instrumenting a complete run.
func Example_runInstrumentation() {
	cfg := telemetry.DevelopmentConfig()
	cfg.Logging.Output = "stderr"
	cfg.Tracing.Enabled = false
	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	ctx := tel.WithContext(context.Background())

	runID := "run-123"
	ctx = telemetry.WithRunContext(ctx, runID, "admin@example.com")

	executeResource(ctx, "file:/etc/app.conf")

	telemetry.EndRunContext(ctx, runID, "succeeded", nil)

	fmt.Println("run instrumentation complete")
	// Output: run instrumentation complete
}

func executeResource(ctx context.Context, resourceID string) {
	ctx = telemetry.WithResourceOperationContext(ctx, resourceID, "create")

	logger := telemetry.FromContext(ctx)
	logger.Info("applying resource")

	time.Sleep(10 * time.Millisecond)

	telemetry.EndResourceOperationContext(ctx, resourceID, "create", "file", "succeeded", nil)
}

// Example_instrumentedOperation demonstrates using the InstrumentedContext helper.
func Example_instrumentedOperation() {
	cfg := telemetry.DevelopmentConfig()
	cfg.Logging.Output = "stderr"
	cfg.Tracing.Enabled = false
	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	ctx := tel.WithContext(context.Background())

	ic := telemetry.StartOperation(ctx, "validate_plan",
		attribute.String("script", "webserver"),
	)
	defer ic.End(nil)

	ic.Logger.Info("validating plan")
	time.Sleep(5 * time.Millisecond)
	ic.Logger.Debug("validation complete")

	fmt.Println("operation instrumentation complete")
	// Output: operation instrumentation complete
}

// Example_eventFiltering demonstrates event filtering.
func Example_eventFiltering() {
	cfg := telemetry.DefaultConfig()
	cfg.Events.Enabled = true
	cfg.Events.EnableAsync = false

	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	tel.Events.Subscribe(func(event telemetry.Event) {
		fmt.Printf("important event: %s\n", event.Type)
	}, telemetry.FilterByLevel(telemetry.EventLevelWarning))

	tel.Events.Subscribe(func(event telemetry.Event) {
		fmt.Printf("drift event: %s\n", event.Message)
	}, telemetry.FilterByType("drift.detected"))

	tel.Events.PublishRunStarted("run-123", "user")
	tel.Events.PublishDriftDetected("pkg:nginx", 3)
	tel.Events.PublishRunFailed("run-123", "error")

	// Output varies, no output specified
}

// Example_productionConfiguration demonstrates production-ready configuration.
func Example_productionConfiguration() {
	cfg := telemetry.ProductionConfig()

	cfg.ServiceName = "statecraft"
	cfg.ServiceVersion = "1.2.3"
	cfg.Environment = "production"

	cfg.Tracing.Exporter = "otlp"
	cfg.Tracing.Endpoint = "otel-collector.monitoring.svc.cluster.local:4317"
	cfg.Tracing.SamplingRate = 0.1
	cfg.Tracing.Insecure = false

	cfg.Metrics.ListenAddress = ":9090"
	cfg.Metrics.Namespace = "statecraft"

	cfg.Events.BufferSize = 10000
	cfg.Events.FlushInterval = 5 * time.Second

	if err := cfg.Validate(); err != nil {
		panic(err)
	}

	fmt.Println("production configuration validated")
	// Output: production configuration validated
}

// Example_errorRecording demonstrates error recording with proper classification.
func Example_errorRecording() {
	cfg := telemetry.DevelopmentConfig()
	cfg.Logging.Output = "stderr"
	cfg.Tracing.Enabled = false
	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	ctx := tel.WithContext(context.Background())

	ctx, span := tel.Tracer.Start(ctx, "risky_operation")
	defer span.End()

	err := fmt.Errorf("connection timeout")

	telemetry.RecordError(span, err)
	tel.Metrics.RecordError("transient")

	logger := telemetry.FromContext(ctx)
	logger.WithError(err).Error("operation failed")

	fmt.Println("error recording complete")
	// Output: error recording complete
}

// Example_multipleComponents demonstrates telemetry in a multi-component system.
func Example_multipleComponents() {
	cfg := telemetry.DevelopmentConfig()
	cfg.Logging.Output = "stderr"
	cfg.Tracing.Enabled = false
	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	executorLogger := tel.Logger.NewComponentLogger("executor")
	driftLogger := tel.Logger.NewComponentLogger("drift")
	policyLogger := tel.Logger.NewComponentLogger("policy")

	executorLogger.Info("executor initialized")
	driftLogger.Info("running drift check")
	policyLogger.Info("evaluating policies")

	fmt.Println("multi-component logging complete")
	// Output: multi-component logging complete
}
