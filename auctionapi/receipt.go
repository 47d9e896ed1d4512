package auctionapi

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/cloudx-io/englishauction/engine"
)

// Receipt is the signed form of one notification. Amounts are decimal strings and
// At is Unix nanoseconds so the encoding is independent of time zones.
type Receipt struct {
	AuctionID string `cbor:"1,keyasint" json:"auction_id"`
	Sequence  uint64 `cbor:"2,keyasint" json:"sequence"`
	Kind      string `cbor:"3,keyasint" json:"kind"`
	Subject   string `cbor:"4,keyasint,omitempty" json:"subject,omitempty"`
	Amount    string `cbor:"5,keyasint" json:"amount"`
	Fee       string `cbor:"6,keyasint,omitempty" json:"fee,omitempty"`
	At        int64  `cbor:"7,keyasint" json:"at"`
}

// NewReceipt converts a notification into its receipt.
func NewReceipt(n engine.Notification) Receipt {
	r := Receipt{
		AuctionID: n.AuctionID,
		Sequence:  n.Sequence,
		Kind:      string(n.Kind),
		Subject:   string(n.Subject),
		Amount:    FormatAmount(&n.Amount),
		At:        n.At.UnixNano(),
	}
	if n.Kind == engine.RefundIssuedWithFee {
		r.Fee = FormatAmount(&n.Fee)
	}
	return r
}

var receiptEncMode = func() cbor.EncMode {
	mode, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("receipt cbor mode: %v", err))
	}
	return mode
}()

// EncodeReceipt returns the deterministic CBOR encoding of r.
func EncodeReceipt(r Receipt) ([]byte, error) {
	data, err := receiptEncMode.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode receipt: %w", err)
	}
	return data, nil
}

// DecodeReceipt parses a CBOR receipt payload.
func DecodeReceipt(data []byte) (Receipt, error) {
	var r Receipt
	if err := cbor.Unmarshal(data, &r); err != nil {
		return Receipt{}, fmt.Errorf("decode receipt: %w", err)
	}
	if r.AuctionID == "" || r.Kind == "" || r.Sequence == 0 {
		return Receipt{}, fmt.Errorf("decode receipt: missing auction id, kind or sequence")
	}
	return r, nil
}

// ReceiptRecord is one line of a receipt stream.
type ReceiptRecord struct {
	Sequence uint64     `json:"sequence"`
	Kind     string     `json:"kind"`
	Receipt  COSEBase64 `json:"receipt_cose_base64"`
}
