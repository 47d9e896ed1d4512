package notify

import (
	"encoding/json"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"github.com/cloudx-io/englishauction/auctionapi"
	"github.com/cloudx-io/englishauction/engine"
)

// ReceiptSigner signs a notification.
type ReceiptSigner interface {
	SignReceipt(n engine.Notification) (auctionapi.COSE, error)
}

// ReceiptWriter signs every notification and appends it to w as one JSON line.
// Sink errors cannot reach the engine, so failures are logged and counted.
type ReceiptWriter struct {
	mu       sync.Mutex
	signer   ReceiptSigner
	enc      *json.Encoder
	log      zerolog.Logger
	failures int
}

func NewReceiptWriter(w io.Writer, signer ReceiptSigner, logger zerolog.Logger) *ReceiptWriter {
	return &ReceiptWriter{
		signer: signer,
		enc:    json.NewEncoder(w),
		log:    logger.With().Str("component", "receipts").Logger(),
	}
}

func (rw *ReceiptWriter) Publish(n engine.Notification) {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	receipt, err := rw.signer.SignReceipt(n)
	if err != nil {
		rw.failures++
		rw.log.Error().Err(err).Uint64("sequence", n.Sequence).Msg("failed to sign receipt")
		return
	}

	record := auctionapi.ReceiptRecord{
		Sequence: n.Sequence,
		Kind:     string(n.Kind),
		Receipt:  receipt.EncodeBase64(),
	}
	if err := rw.enc.Encode(record); err != nil {
		rw.failures++
		rw.log.Error().Err(err).Uint64("sequence", n.Sequence).Msg("failed to write receipt")
	}
}

// Failures returns how many notifications could not be signed or written.
func (rw *ReceiptWriter) Failures() int {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	return rw.failures
}
