// Package notify provides engine.Sink implementations: an in-process bus, a log
// sink, an in-memory recorder, a signed receipt writer, and fan-out.
package notify

import (
	"fmt"

	evbus "github.com/asaskevich/EventBus"

	"github.com/cloudx-io/englishauction/engine"
)

// TopicAll receives every notification regardless of kind.
const TopicAll = "auction:*"

// Topic returns the bus topic for a notification kind.
func Topic(kind engine.NotificationKind) string {
	return "auction:" + string(kind)
}

// Bus publishes notifications on an EventBus, once on the topic of their kind and
// once on TopicAll. Synchronous handlers run inside the engine's exclusive section
// and must not call back into the engine.
type Bus struct {
	bus evbus.Bus
}

func NewBus() *Bus {
	return &Bus{bus: evbus.New()}
}

// Publish implements engine.Sink.
func (b *Bus) Publish(n engine.Notification) {
	b.bus.Publish(Topic(n.Kind), n)
	b.bus.Publish(TopicAll, n)
}

// Subscribe registers fn for notifications of kind.
func (b *Bus) Subscribe(kind engine.NotificationKind, fn func(engine.Notification)) error {
	if err := b.bus.Subscribe(Topic(kind), fn); err != nil {
		return fmt.Errorf("subscribe %s: %w", kind, err)
	}
	return nil
}

// SubscribeAll registers fn for every notification.
func (b *Bus) SubscribeAll(fn func(engine.Notification)) error {
	if err := b.bus.Subscribe(TopicAll, fn); err != nil {
		return fmt.Errorf("subscribe all: %w", err)
	}
	return nil
}

// SubscribeAsync registers fn on its own goroutine. Notifications are delivered to
// fn one at a time in publish order.
func (b *Bus) SubscribeAsync(kind engine.NotificationKind, fn func(engine.Notification)) error {
	if err := b.bus.SubscribeAsync(Topic(kind), fn, true); err != nil {
		return fmt.Errorf("subscribe async %s: %w", kind, err)
	}
	return nil
}

// Unsubscribe removes fn from the topic of kind. fn must be the same function value
// that was subscribed.
func (b *Bus) Unsubscribe(kind engine.NotificationKind, fn func(engine.Notification)) error {
	if err := b.bus.Unsubscribe(Topic(kind), fn); err != nil {
		return fmt.Errorf("unsubscribe %s: %w", kind, err)
	}
	return nil
}

// Wait blocks until every asynchronous handler has drained.
func (b *Bus) Wait() {
	b.bus.WaitAsync()
}
