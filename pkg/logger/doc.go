// Package logger builds *slog.Logger instances for the gateway and provides
// attribute helpers so that auth, billing and provisioning events share the
// same keys.
//
// New applies functional options on top of production defaults (JSON, INFO)
// and wraps the resulting handler with a ContextExtractor decorator, which
// lets request-scoped values such as the request id be attached to every
// record without threading them through call sites:
//
//	log := logger.New(
//		logger.WithEnvironment(cfg.Env, "launchkit"),
//		logger.WithContextExtractors(requestid.LoggerExtractor()),
//	)
//	log.WarnContext(ctx, "auth status resolution failed",
//		logger.Component("gate"),
//		logger.RouteKind(string(kind)),
//		logger.Error(err),
//	)
package logger
