// Package telemetry sets up OpenTelemetry tracing and metrics export.
//
// New installs global tracer and meter providers exporting over OTLP
// (grpc or http/protobuf). When telemetry is disabled, or a provider fails
// to start, the instance stays usable and hands out the global no-op
// providers; Health reports the first failure.
//
//	tel, err := telemetry.New(ctx, telemetry.FromSettings(cfg.Telemetry, version))
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
// An api key, when set, is sent as a bearer authorization header.
//
// Tests use NewTestTelemetry, which records spans and metrics in memory.
package telemetry
