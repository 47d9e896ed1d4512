package validation

import (
	"github.com/cloudx-io/englishauction/auctionapi"
)

// BaseValidationResult contains the checks common to every attestation.
type BaseValidationResult struct {
	PCRsValid         bool
	CertificateValid  bool
	SignatureValid    bool
	ValidationDetails []string
}

// StateValidationResult contains the results for a state attestation.
type StateValidationResult struct {
	BaseValidationResult
	DigestMatch bool
	UserData    *auctionapi.StateAttestationUserData
}

// IsValid returns true if all state attestation checks passed.
func (r *StateValidationResult) IsValid() bool {
	return r.PCRsValid && r.CertificateValid && r.SignatureValid && r.DigestMatch
}

// ReceiptValidationResult contains the results for one signed receipt.
type ReceiptValidationResult struct {
	SignatureValid    bool
	ContentTypeValid  bool
	Receipt           *auctionapi.Receipt
	ValidationDetails []string
}

// IsValid returns true if the receipt signature and content type checked out.
func (r *ReceiptValidationResult) IsValid() bool {
	return r.SignatureValid && r.ContentTypeValid && r.Receipt != nil
}

// StreamValidationResult summarizes a receipt stream.
type StreamValidationResult struct {
	Receipts          int
	ValidReceipts     int
	SequenceValid     bool
	AuctionID         string
	LastSequence      uint64
	ValidationDetails []string
}

// IsValid returns true if every receipt verified and sequences were contiguous.
func (r *StreamValidationResult) IsValid() bool {
	return r.Receipts > 0 && r.Receipts == r.ValidReceipts && r.SequenceValid
}

// PCRSet represents a known-good set of PCR measurements.
type PCRSet struct {
	PCR0       string `json:"pcr0"`
	PCR1       string `json:"pcr1"`
	PCR2       string `json:"pcr2"`
	CommitHash string `json:"commit_hash"`
}

// PCRConfig represents the PCR configuration file structure.
type PCRConfig struct {
	PCRSets []PCRSet `json:"pcr_sets"`
}
