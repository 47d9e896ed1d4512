package notify

import "github.com/cloudx-io/englishauction/engine"

// Fanout publishes each notification to every sink in order.
type Fanout []engine.Sink

func (f Fanout) Publish(n engine.Notification) {
	for _, sink := range f {
		if sink != nil {
			sink.Publish(n)
		}
	}
}
