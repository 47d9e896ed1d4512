// Package attest binds the engine's state to an AWS Nitro attestation document.
package attest

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	enclave "github.com/edgebitio/nitro-enclaves-sdk-go"
	"github.com/rs/zerolog"

	"github.com/cloudx-io/englishauction/auctionapi"
	"github.com/cloudx-io/englishauction/engine"
)

// EnclaveAttester produces attestation documents. The handle returned by
// enclave.GetOrInitializeHandle satisfies it inside an enclave.
type EnclaveAttester interface {
	Attest(options enclave.AttestationOptions) ([]byte, error)
}

// NitroAttester opens the Nitro Secure Module. It fails outside an enclave.
func NitroAttester() (EnclaveAttester, error) {
	handle, err := enclave.GetOrInitializeHandle()
	if err != nil {
		return nil, fmt.Errorf("NSM not available: %w", err)
	}
	return handle, nil
}

// StateUserData builds the user data embedded in a state attestation.
func StateUserData(s engine.Snapshot, requestNonce string, now time.Time) auctionapi.StateAttestationUserData {
	userData := auctionapi.StateAttestationUserData{
		AuctionID:      s.AuctionID,
		Status:         s.Status.String(),
		Deadline:       s.Deadline,
		BidCount:       s.BidCount,
		HistoryDigest:  s.HistoryDigest,
		LedgerTotal:    auctionapi.FormatAmount(s.LedgerTotal),
		CommissionPool: auctionapi.FormatAmount(s.CommissionPool),
		Balance:        auctionapi.FormatAmount(s.Balance),
		RequestNonce:   requestNonce,
		Timestamp:      now,
	}
	if s.HighestBid != nil {
		userData.HighestBid = auctionapi.FormatAmount(&s.HighestBid.Amount)
	}
	return userData
}

// GenerateStateAttestation asks attester for a document embedding userData.
func GenerateStateAttestation(attester EnclaveAttester, userData auctionapi.StateAttestationUserData, logger zerolog.Logger) (auctionapi.COSE, error) {
	if attester == nil {
		return nil, fmt.Errorf("enclave attester is nil")
	}

	userDataBytes, err := json.Marshal(userData)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal user data: %w", err)
	}

	randomNonce, err := generateNonce()
	if err != nil {
		return nil, fmt.Errorf("failed to generate attestation nonce: %w", err)
	}

	attestationCBOR, err := attester.Attest(enclave.AttestationOptions{
		UserData: userDataBytes,
		Nonce:    []byte(randomNonce),
	})
	if err != nil {
		logger.Error().Err(err).Msg("NSM attestation failed")
		return nil, fmt.Errorf("NSM attestation failed: %w", err)
	}

	logger.Info().
		Str("auction_id", userData.AuctionID).
		Str("history_digest", userData.HistoryDigest).
		Int("bytes", len(attestationCBOR)).
		Msg("state attestation generated")

	return auctionapi.COSE(attestationCBOR), nil
}

func generateNonce() (string, error) {
	randomBytes := make([]byte, 32)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("entropy generation failed: %w", err)
	}
	return hex.EncodeToString(randomBytes), nil
}
