package validation

import (
	"crypto/x509"
	"fmt"

	"github.com/cloudx-io/englishauction/auctionapi"
	"github.com/cloudx-io/englishauction/auctionapi/parsing"
)

// StateAttestationOptions configures ValidateStateAttestation.
type StateAttestationOptions struct {
	// KnownPCRs are the accepted enclave measurements.
	KnownPCRs []PCRSet
	// Roots anchors the certificate chain; nil means the AWS Nitro root.
	Roots *x509.CertPool
	// ExpectedDigest, when set, must equal the attested history digest.
	ExpectedDigest string
}

// ValidateStateAttestation checks the PCRs, certificate chain and signature of a
// state attestation and compares its history digest with the expected one.
func ValidateStateAttestation(attestation auctionapi.COSEBase64, opts StateAttestationOptions) (*StateValidationResult, error) {
	coseBytes, err := attestation.Decode()
	if err != nil {
		return nil, fmt.Errorf("decode COSE bytes: %w", err)
	}

	doc, err := parsing.ParseStateAttestation(attestation)
	if err != nil {
		return nil, fmt.Errorf("parse attestation document: %w", err)
	}

	roots := opts.Roots
	if roots == nil {
		roots, err = NitroRoots()
		if err != nil {
			return nil, err
		}
	}

	result := &StateValidationResult{
		BaseValidationResult: BaseValidationResult{ValidationDetails: []string{}},
		UserData:             doc.UserData,
	}
	addDetail := func(format string, args ...any) {
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf(format, args...))
	}

	pcrMatch, matchedSet := ValidatePCRs(doc.PCRs, opts.KnownPCRs)
	result.PCRsValid = pcrMatch
	if pcrMatch {
		addDetail("PCR measurements valid (set #%d, commit: %s)", matchedSet, opts.KnownPCRs[matchedSet].CommitHash)
	} else {
		addDetail("PCR0: %s (no match)", doc.PCRs[0])
		addDetail("PCR1: %s (no match)", doc.PCRs[1])
		addDetail("PCR2: %s (no match)", doc.PCRs[2])
	}

	switch {
	case doc.Certificate == "":
		addDetail("Missing certificate")
	case len(doc.CABundle) == 0:
		addDetail("Missing CA bundle")
	default:
		if err := ValidateCertificateChain(doc.Certificate, doc.CABundle, doc.Timestamp, roots); err != nil {
			addDetail("Certificate chain validation failed: %v", err)
		} else {
			result.CertificateValid = true
			addDetail("Certificate chain verified")
		}
	}

	if err := VerifyCOSESignature(coseBytes, doc.Certificate); err != nil {
		addDetail("COSE signature verification failed: %v", err)
	} else {
		result.SignatureValid = true
		addDetail("COSE signature verified")
	}

	switch {
	case opts.ExpectedDigest == "":
		result.DigestMatch = true
		addDetail("History digest not checked")
	case doc.UserData.HistoryDigest == opts.ExpectedDigest:
		result.DigestMatch = true
		addDetail("History digest matches")
	default:
		addDetail("History digest mismatch: attested %s, expected %s", doc.UserData.HistoryDigest, opts.ExpectedDigest)
	}

	return result, nil
}
