// Package eventstream defines a generic publish/subscribe seam for realtime
// fan-out. Delivery is best-effort and at-most-once: a subscriber whose
// buffer is full misses the event rather than back-pressuring the publisher.
package eventstream

import "context"

// TopicFilter decides whether a subscriber receives events for a topic.
type TopicFilter[Topic any] func(Topic) bool

// Event pairs a topic with one published payload.
type Event[Topic any, Payload any] struct {
	Topic   Topic
	Payload Payload
}

// SyncStreamer is the streaming contract handed to producers and consumers.
type SyncStreamer[Topic any, Payload any] interface {
	// Subscribe returns a read-only channel of events matching the filter.
	// The channel is closed when ctx is cancelled or the streamer shuts down.
	Subscribe(ctx context.Context, filter TopicFilter[Topic]) (<-chan Event[Topic, Payload], error)

	// Publish sends payloads to every active subscriber whose filter accepts
	// the topic. Non-blocking; events are dropped for slow subscribers.
	Publish(topic Topic, payloads ...Payload)

	// Shutdown closes all subscriber channels and rejects new subscriptions.
	Shutdown()
}
