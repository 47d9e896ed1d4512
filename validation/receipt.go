package validation

import (
	"bufio"
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"

	"github.com/veraison/go-cose"

	"github.com/cloudx-io/englishauction/auctionapi"
	"github.com/cloudx-io/englishauction/receipts"
)

// ParsePublicKeyPEM parses a PKIX PEM encoded ECDSA public key.
func ParsePublicKeyPEM(publicKeyPEM string) (*ecdsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(publicKeyPEM))
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in public key")
	}

	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}

	ecdsaKey, ok := key.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is not ECDSA")
	}
	return ecdsaKey, nil
}

// VerifyReceipt checks a base64 receipt against a PEM public key.
func VerifyReceipt(receipt auctionapi.COSEBase64, publicKeyPEM string) (*ReceiptValidationResult, error) {
	publicKey, err := ParsePublicKeyPEM(publicKeyPEM)
	if err != nil {
		return nil, err
	}

	coseBytes, err := receipt.Decode()
	if err != nil {
		return nil, fmt.Errorf("decode receipt: %w", err)
	}

	return verifyReceipt(coseBytes, publicKey)
}

func verifyReceipt(coseBytes auctionapi.COSE, publicKey *ecdsa.PublicKey) (*ReceiptValidationResult, error) {
	var msg cose.Sign1Message
	if err := msg.UnmarshalCBOR(coseBytes); err != nil {
		return nil, fmt.Errorf("parse COSE_Sign1: %w", err)
	}

	result := &ReceiptValidationResult{ValidationDetails: []string{}}

	if contentType, _ := msg.Headers.Protected[cose.HeaderLabelContentType].(string); contentType == receipts.ContentType {
		result.ContentTypeValid = true
	} else {
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Unexpected content type %q", contentType))
	}

	verifier, err := cose.NewVerifier(cose.AlgorithmES256, publicKey)
	if err != nil {
		return nil, fmt.Errorf("create verifier: %w", err)
	}

	if err := msg.Verify(nil, verifier); err != nil {
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("COSE signature verification failed: %v", err))
	} else {
		result.SignatureValid = true
		result.ValidationDetails = append(result.ValidationDetails, "COSE signature verified")
	}

	decoded, err := auctionapi.DecodeReceipt(msg.Payload)
	if err != nil {
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Receipt payload invalid: %v", err))
		return result, nil
	}
	result.Receipt = &decoded

	return result, nil
}

// VerifyReceiptStream checks a JSON lines stream of receipt records: every receipt
// must verify, belong to one auction, and carry sequences increasing by one.
func VerifyReceiptStream(r io.Reader, publicKeyPEM string) (*StreamValidationResult, error) {
	publicKey, err := ParsePublicKeyPEM(publicKeyPEM)
	if err != nil {
		return nil, err
	}

	result := &StreamValidationResult{SequenceValid: true, ValidationDetails: []string{}}
	addDetail := func(format string, args ...any) {
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf(format, args...))
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}

		var record auctionapi.ReceiptRecord
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			return nil, fmt.Errorf("line %d: parse record: %w", line, err)
		}
		coseBytes, err := record.Receipt.Decode()
		if err != nil {
			return nil, fmt.Errorf("line %d: decode receipt: %w", line, err)
		}

		result.Receipts++
		receiptResult, err := verifyReceipt(coseBytes, publicKey)
		if err != nil {
			addDetail("line %d: %v", line, err)
			result.SequenceValid = false
			continue
		}
		if !receiptResult.IsValid() {
			addDetail("line %d: receipt %d failed verification", line, record.Sequence)
			continue
		}
		result.ValidReceipts++

		receipt := receiptResult.Receipt
		if receipt.Sequence != record.Sequence || receipt.Kind != record.Kind {
			addDetail("line %d: record header does not match signed receipt", line)
			result.SequenceValid = false
		}
		if result.AuctionID == "" {
			result.AuctionID = receipt.AuctionID
		} else if receipt.AuctionID != result.AuctionID {
			addDetail("line %d: receipt for auction %s in stream for %s", line, receipt.AuctionID, result.AuctionID)
			result.SequenceValid = false
		}
		if receipt.Sequence != result.LastSequence+1 {
			addDetail("line %d: sequence %d follows %d", line, receipt.Sequence, result.LastSequence)
			result.SequenceValid = false
		}
		result.LastSequence = receipt.Sequence
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read receipt stream: %w", err)
	}

	if result.Receipts == 0 {
		addDetail("Stream contains no receipts")
	}
	return result, nil
}
