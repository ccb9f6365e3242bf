// Package logging builds the process zap logger.
//
// # Overview
//
// The logger adds to plain Zap:
//   - A Trace level (-2, below Debug)
//   - Optional export through the OpenTelemetry log bridge
//   - Request and trace correlation fields from context
//   - Redaction of sensitive field names and value patterns
//   - Optional sampling below error level
//
// # Usage
//
//	cfg, err := logging.FromConfig(appCfg.Logging, "raglab", appCfg.Telemetry.Enabled)
//	if err != nil {
//	    return err
//	}
//	logger, err := logging.NewLogger(cfg, tel.LoggerProvider())
//	if err != nil {
//	    return err
//	}
//	defer logging.Sync(logger)
//
// Handlers log through the request-scoped logger:
//
//	logging.FromContext(ctx).Info("document ingested", zap.Int("chunks", n))
//
// which carries request.id and, when a span is active, trace_id and span_id.
package logging
