// Package logger provides a configured slog.Logger factory with JSON and
// text formats, static attributes and context-based attribute injection.
//
// The engine and its adapters accept any *slog.Logger; this package is
// the recommended way to build one:
//
//	log := logger.New(
//		logger.WithProduction("notifications"),
//		logger.WithContextValue("request_id", requestIDKey),
//	)
//	logger.SetAsDefault(log)
//
// Attr helpers keep field names consistent across components:
//
//	log.Info("delivery failed",
//		logger.NotificationID(n.ID),
//		logger.ChannelName("email"),
//		logger.Error(err),
//	)
package logger
