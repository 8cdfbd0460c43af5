package notifykit

import "errors"

// Common errors
var (
	// ErrNotFound is returned by Store implementations when no record
	// matches the requested ID.
	ErrNotFound = errors.New("notification not found")

	// ErrStoreNil is returned when a nil store is provided to a constructor.
	ErrStoreNil = errors.New("store cannot be nil")

	// ErrInvalidConfig is returned when engine configuration fails validation.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrNoQueues is returned when the engine is constructed without any
	// queue definitions. The engine is unusable without its queues.
	ErrNoQueues = errors.New("no queues configured")

	// ErrQueueNotFound is returned when routing resolves to an unknown queue.
	ErrQueueNotFound = errors.New("queue not found")

	// ErrEngineClosed is returned from mutating calls after Close.
	ErrEngineClosed = errors.New("engine is closed")

	// ErrTemplateNotFound is returned when rendering an unregistered template.
	ErrTemplateNotFound = errors.New("template not found")

	// ErrProviderNil is returned when registering a nil delivery provider.
	ErrProviderNil = errors.New("provider cannot be nil")

	// ErrDeliveryFailed is returned by the delivery routine when every
	// attempted channel failed for a notification.
	ErrDeliveryFailed = errors.New("delivery failed for all channels")

	// ErrInvalidBackoff is returned when a retry policy names an unknown
	// backoff strategy.
	ErrInvalidBackoff = errors.New("unknown backoff strategy")
)
