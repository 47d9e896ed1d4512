package auctionapi

import (
	"time"
)

// StateAttestationUserData is embedded in the Nitro attestation produced for the
// attest request. It binds the bid history digest and the accounting totals at the
// moment of attestation.
type StateAttestationUserData struct {
	AuctionID      string    `json:"auction_id"`
	Status         string    `json:"status"`
	Deadline       time.Time `json:"deadline"`
	BidCount       int       `json:"bid_count"`
	HistoryDigest  string    `json:"history_digest"`
	HighestBid     string    `json:"highest_bid,omitempty"`
	LedgerTotal    string    `json:"ledger_total"`
	CommissionPool string    `json:"commission_pool"`
	Balance        string    `json:"balance"`
	RequestNonce   string    `json:"request_nonce,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// AttestationDoc is the parsed, wire-friendly view of a Nitro attestation document.
type AttestationDoc struct {
	ModuleID        string            `json:"module_id"`
	Timestamp       time.Time         `json:"timestamp"`
	DigestAlgorithm string            `json:"digest"`
	PCRs            map[uint64]string `json:"pcrs"`
	Certificate     string            `json:"certificate"`
	CABundle        []string          `json:"cabundle"`
	Nonce           string            `json:"nonce"`
}

// StateAttestationDoc is an attestation document together with its decoded user data.
type StateAttestationDoc struct {
	AttestationDoc
	UserData *StateAttestationUserData `json:"user_data"`
}
