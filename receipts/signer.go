package receipts

import (
	"crypto/rand"
	"fmt"

	"github.com/veraison/go-cose"

	"github.com/cloudx-io/englishauction/auctionapi"
	"github.com/cloudx-io/englishauction/engine"
)

// ContentType is set in the protected header of every receipt.
const ContentType = "application/vnd.englishauction.receipt+cbor"

// Signer turns notifications into tagged COSE_Sign1 messages signed with ES256.
type Signer struct {
	km     *KeyManager
	signer cose.Signer
}

func NewSigner(km *KeyManager) (*Signer, error) {
	if km == nil {
		return nil, fmt.Errorf("key manager is nil")
	}
	signer, err := cose.NewSigner(cose.AlgorithmES256, km.privateKey)
	if err != nil {
		return nil, fmt.Errorf("create signer: %w", err)
	}
	return &Signer{km: km, signer: signer}, nil
}

// KeyManager returns the key manager the signer was built from.
func (s *Signer) KeyManager() *KeyManager {
	return s.km
}

// SignReceipt encodes n as a receipt and signs it.
func (s *Signer) SignReceipt(n engine.Notification) (auctionapi.COSE, error) {
	payload, err := auctionapi.EncodeReceipt(auctionapi.NewReceipt(n))
	if err != nil {
		return nil, err
	}

	msg := cose.NewSign1Message()
	msg.Headers.Protected.SetAlgorithm(cose.AlgorithmES256)
	msg.Headers.Protected[cose.HeaderLabelContentType] = ContentType
	msg.Payload = payload

	if err := msg.Sign(rand.Reader, nil, s.signer); err != nil {
		return nil, fmt.Errorf("sign receipt %d: %w", n.Sequence, err)
	}

	data, err := msg.MarshalCBOR()
	if err != nil {
		return nil, fmt.Errorf("marshal receipt %d: %w", n.Sequence, err)
	}
	return auctionapi.COSE(data), nil
}
