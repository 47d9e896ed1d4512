package auctionapi

import (
	"encoding/base64"
	"fmt"
)

// COSE holds raw COSE_Sign1 bytes: a signed receipt or an attestation document.
type COSE []byte

// COSEBase64 is the standard base64 encoding of COSE bytes used on the wire.
type COSEBase64 string

// EncodeBase64 encodes the raw bytes for JSON transport.
func (c COSE) EncodeBase64() COSEBase64 {
	return COSEBase64(base64.StdEncoding.EncodeToString(c))
}

// Decode returns the raw COSE bytes.
func (c COSEBase64) Decode() (COSE, error) {
	if c == "" {
		return nil, fmt.Errorf("empty COSE payload")
	}
	data, err := base64.StdEncoding.DecodeString(string(c))
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	return COSE(data), nil
}

func (c COSEBase64) String() string {
	return string(c)
}
