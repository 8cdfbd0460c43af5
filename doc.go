// Package notifykit provides a notification delivery and lifecycle
// engine: creation with middleware filtering, priority queue delivery
// with retries, smart batching, per-user preferences, templates,
// engagement analytics and a typed lifecycle event bus.
//
// The engine is constructed explicitly and passed by handle; there is no
// package-level singleton:
//
//	engine, err := notifykit.New(notifykit.DefaultConfig(),
//		notifykit.WithProvider(&notifykit.DevProvider{}),
//	)
//	if err != nil {
//		return err
//	}
//	if err := engine.Start(ctx); err != nil {
//		return err
//	}
//	defer engine.Close()
//
//	n, err := engine.Create(ctx, notifykit.Notification{
//		Type:     notifykit.TypeSecurity,
//		Priority: notifykit.PriorityHigh,
//		Title:    "New login",
//		Message:  "A new device signed in to your account.",
//		UserID:   userID,
//		Channels: []notifykit.Channel{notifykit.ChannelToast, notifykit.ChannelEmail},
//	})
//
// Lifecycle transitions move strictly forward along
// pending -> delivered -> read -> acknowledged; dismissed, expired and
// failed are absorbing terminal states. Ownership-scoped operations
// (MarkAsRead, Acknowledge, Dismiss) return booleans rather than errors:
// a missing record or a foreign owner is an expected condition.
//
// Smart batching rolls similar notifications for one user into a single
// summary record. The first notification of a kind is delivered directly
// and only later similar ones open a batch, so three similar creates in
// quick succession yield one direct notification plus a rollup covering
// the remaining two rather than a single rollup of all three.
//
// Storage is pluggable through the Store interface. The in-memory store
// is the default; the redisstore and pgstore subpackages provide durable
// adapters, and the providers subpackages cover the email, SMS and
// webhook channels. Subscribe to lifecycle events to drive UI updates:
//
//	sub := engine.On(notifykit.EventCreated, func(e notifykit.Event) {
//		push(e.Notification)
//	})
//	defer engine.Off(notifykit.EventCreated, sub)
package notifykit
