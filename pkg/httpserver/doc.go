// Package httpserver wraps net/http with graceful shutdown and health
// probes for the notifyhub binary.
//
// Run blocks until the context is cancelled or the process receives an
// interrupt or TERM signal, then drains in-flight requests within the
// shutdown timeout. Startup failures wrap ErrStart and shutdown failures
// wrap ErrShutdown so callers can tell them apart with errors.Is.
//
//	srv := httpserver.NewFromConfig(cfg, httpserver.WithLogger(log))
//	if err := srv.Run(ctx, router); err != nil {
//		log.Error("server stopped", logger.Error(err))
//	}
package httpserver
