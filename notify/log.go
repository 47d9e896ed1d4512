package notify

import (
	"github.com/rs/zerolog"

	"github.com/cloudx-io/englishauction/engine"
)

// LogSink writes one structured log line per notification.
type LogSink struct {
	log zerolog.Logger
}

func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{log: logger.With().Str("component", "notifications").Logger()}
}

func (s *LogSink) Publish(n engine.Notification) {
	event := s.log.Info()
	if n.Kind == engine.EmergencyDrained || n.Kind == engine.AuctionForceEnded {
		event = s.log.Warn()
	}
	event = event.
		Str("auction_id", n.AuctionID).
		Uint64("sequence", n.Sequence).
		Str("kind", string(n.Kind)).
		Str("subject", string(n.Subject)).
		Str("amount", n.Amount.Dec()).
		Time("at", n.At)
	if n.Kind == engine.RefundIssuedWithFee {
		event = event.Str("fee", n.Fee.Dec())
	}
	event.Msg("notification")
}
