package logger

import (
	"log/slog"
	"strconv"
)

// Group creates a slog group attribute from the provided attributes.
func Group(name string, attrs ...slog.Attr) slog.Attr {
	return slog.Attr{Key: name, Value: slog.GroupValue(attrs...)}
}

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// Errors groups multiple non-nil errors under the key "errors".
// If all errors are nil, it returns an empty Attr.
func Errors(errs ...error) slog.Attr {
	as := make([]slog.Attr, 0, len(errs))
	for i, err := range errs {
		if err != nil {
			as = append(as, slog.Any(strconv.Itoa(i), err))
		}
	}
	if len(as) == 0 {
		return slog.Attr{}
	}
	return slog.Attr{Key: "errors", Value: slog.GroupValue(as...)}
}

// NotificationID records a notification identifier under "notification_id".
func NotificationID(id string) slog.Attr {
	return slog.String("notification_id", id)
}

// UserID records the owning user under "user_id".
// If id is nil, it returns an empty Attr.
func UserID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("user_id", id)
}

// ChannelName records a delivery channel under "channel".
func ChannelName(ch string) slog.Attr {
	return slog.String("channel", ch)
}

// QueueID records a queue lane under "queue".
func QueueID(id string) slog.Attr {
	return slog.String("queue", id)
}

// BatchID records a batch identifier under "batch_id".
func BatchID(id string) slog.Attr {
	return slog.String("batch_id", id)
}

// EventKind records a lifecycle event kind under "event".
func EventKind(kind string) slog.Attr {
	return slog.String("event", kind)
}

// RetryCount records the retry count under "retry_count".
func RetryCount(count int) slog.Attr {
	return slog.Int("retry_count", count)
}

// Duration records a duration under "duration".
func Duration(d any) slog.Attr {
	return slog.Any("duration", d)
}

// Component records the component name under "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}
