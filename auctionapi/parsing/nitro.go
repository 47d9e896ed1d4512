package parsing

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/cloudx-io/englishauction/auctionapi"
)

// NitroAttestationDocument is the raw CBOR payload of an AWS Nitro attestation.
type NitroAttestationDocument struct {
	ModuleID    string            `cbor:"module_id"`
	Digest      string            `cbor:"digest"`
	Timestamp   uint64            `cbor:"timestamp"`
	PCRs        map[uint64][]byte `cbor:"pcrs"`
	Certificate []byte            `cbor:"certificate"`
	CABundle    [][]byte          `cbor:"cabundle"`
	PublicKey   []byte            `cbor:"public_key"`
	UserData    []byte            `cbor:"user_data"`
	Nonce       []byte            `cbor:"nonce"`
}

// FormatPCR formats PCR bytes as hex.
func FormatPCR(pcrData []byte) string {
	if len(pcrData) == 0 {
		return ""
	}
	return fmt.Sprintf("%x", pcrData)
}

func encodeCertificateBundle(bundle [][]byte) []string {
	result := make([]string, len(bundle))
	for i, cert := range bundle {
		result[i] = base64.StdEncoding.EncodeToString(cert)
	}
	return result
}

// ParseAttestationDoc decodes the attestation document carried in coseBytes and
// returns it along with the raw user data.
func ParseAttestationDoc(coseBytes auctionapi.COSE) (*auctionapi.AttestationDoc, []byte, error) {
	payload, err := ExtractCOSEPayload(coseBytes)
	if err != nil {
		return nil, nil, err
	}

	var raw NitroAttestationDocument
	if err := cbor.Unmarshal(payload, &raw); err != nil {
		return nil, nil, fmt.Errorf("parse attestation document: %w", err)
	}

	pcrs := make(map[uint64]string, len(raw.PCRs))
	for index, value := range raw.PCRs {
		if formatted := FormatPCR(value); formatted != "" {
			pcrs[index] = formatted
		}
	}

	doc := &auctionapi.AttestationDoc{
		ModuleID:        raw.ModuleID,
		Timestamp:       time.UnixMilli(int64(raw.Timestamp)).UTC(),
		DigestAlgorithm: raw.Digest,
		PCRs:            pcrs,
		Certificate:     base64.StdEncoding.EncodeToString(raw.Certificate),
		CABundle:        encodeCertificateBundle(raw.CABundle),
		Nonce:           string(raw.Nonce),
	}
	return doc, raw.UserData, nil
}

// ParseStateAttestation decodes a base64 attestation and its state user data.
func ParseStateAttestation(coseB64 auctionapi.COSEBase64) (*auctionapi.StateAttestationDoc, error) {
	coseBytes, err := coseB64.Decode()
	if err != nil {
		return nil, fmt.Errorf("decode attestation: %w", err)
	}

	doc, userDataBytes, err := ParseAttestationDoc(coseBytes)
	if err != nil {
		return nil, err
	}

	var userData auctionapi.StateAttestationUserData
	if err := json.Unmarshal(userDataBytes, &userData); err != nil {
		return nil, fmt.Errorf("parse state user data: %w", err)
	}

	return &auctionapi.StateAttestationDoc{
		AttestationDoc: *doc,
		UserData:       &userData,
	}, nil
}
