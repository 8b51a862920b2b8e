// Package logger provides an slog factory with environment-driven
// configuration and attribute helpers shared by the notification pipeline.
//
// All packages in this module log through *slog.Logger instances produced
// here, so structured keys stay consistent across the dispatcher, the live
// layer, and the channel adapters:
//
//	log := logger.New(
//		logger.WithFormat(logger.FormatText),
//		logger.WithService("notifyhub"),
//	)
//	log.Info("delivery finished",
//		logger.NotificationID(id),
//		logger.Channel(channel),
//	)
package logger
