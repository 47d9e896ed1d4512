// Command receipt-validator checks signed auction receipts and state attestations
// produced by auctiond.
//
// Exit codes: 0 validation passed, 1 validation failed, 2 invalid input or runtime
// error.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cloudx-io/englishauction/auctionapi"
	"github.com/cloudx-io/englishauction/validation"
)

// errValidationFailed maps to exit code 1.
var errValidationFailed = errors.New("validation failed")

var (
	publicKeyPath string
	outputFormat  string
	pcrPath       string
	expectDigest  string
)

var rootCmd = &cobra.Command{
	Use:   "receipt-validator",
	Short: "Validate auction receipts and state attestations",
	Long: `Validates the COSE-signed receipts auctiond writes for every notification,
and the Nitro attestations it returns for the attest request.

This CLI is an example. For programmatic use, import:
  github.com/cloudx-io/englishauction/validation`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var receiptCmd = &cobra.Command{
	Use:   "receipt <record.json>",
	Short: "Validate one receipt record",
	Example: `  receipt-validator receipt record.json --public-key receipts.pem
  receipt-validator receipt record.json --public-key receipts.pem --format json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		publicKey, err := readPublicKey(publicKeyPath)
		if err != nil {
			return err
		}
		record, err := readReceiptRecord(args[0])
		if err != nil {
			return err
		}
		result, err := validation.VerifyReceipt(record.Receipt, publicKey)
		if err != nil {
			return fmt.Errorf("validation error: %w", err)
		}

		out := cmd.OutOrStdout()
		if outputFormat == "json" {
			if err := writeJSON(out, map[string]any{
				"valid":              result.IsValid(),
				"signature_valid":    result.SignatureValid,
				"content_type_valid": result.ContentTypeValid,
				"receipt":            result.Receipt,
				"details":            result.ValidationDetails,
			}); err != nil {
				return err
			}
		} else {
			fmt.Fprintln(out, "Auction Receipt Validator")
			fmt.Fprintln(out, "=========================")
			if r := result.Receipt; r != nil {
				fmt.Fprintf(out, "  Auction:  %s\n", r.AuctionID)
				fmt.Fprintf(out, "  Sequence: %d\n", r.Sequence)
				fmt.Fprintf(out, "  Kind:     %s\n", r.Kind)
				fmt.Fprintf(out, "  Subject:  %s\n", r.Subject)
				fmt.Fprintf(out, "  Amount:   %s\n", r.Amount)
				if r.Fee != "" {
					fmt.Fprintf(out, "  Fee:      %s\n", r.Fee)
				}
			}
			fmt.Fprintln(out)
			fmt.Fprintf(out, "  Signature Valid:    %v\n", result.SignatureValid)
			fmt.Fprintf(out, "  Content Type Valid: %v\n", result.ContentTypeValid)
			writeDetails(out, result.ValidationDetails)
			writeVerdict(out, result.IsValid())
		}

		if !result.IsValid() {
			return errValidationFailed
		}
		return nil
	},
}

var streamCmd = &cobra.Command{
	Use:     "stream <receipts.jsonl>",
	Short:   "Validate a receipt stream end to end",
	Example: `  receipt-validator stream receipts.jsonl --public-key receipts.pem`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		publicKey, err := readPublicKey(publicKeyPath)
		if err != nil {
			return err
		}
		file, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open stream: %w", err)
		}
		defer file.Close()

		result, err := validation.VerifyReceiptStream(file, publicKey)
		if err != nil {
			return fmt.Errorf("validation error: %w", err)
		}

		out := cmd.OutOrStdout()
		if outputFormat == "json" {
			if err := writeJSON(out, map[string]any{
				"valid":          result.IsValid(),
				"auction_id":     result.AuctionID,
				"receipts":       result.Receipts,
				"valid_receipts": result.ValidReceipts,
				"sequence_valid": result.SequenceValid,
				"last_sequence":  result.LastSequence,
				"details":        result.ValidationDetails,
			}); err != nil {
				return err
			}
		} else {
			fmt.Fprintln(out, "Auction Receipt Stream Validator")
			fmt.Fprintln(out, "================================")
			fmt.Fprintf(out, "  Auction:        %s\n", result.AuctionID)
			fmt.Fprintf(out, "  Receipts:       %d\n", result.Receipts)
			fmt.Fprintf(out, "  Valid Receipts: %d\n", result.ValidReceipts)
			fmt.Fprintf(out, "  Sequence Valid: %v\n", result.SequenceValid)
			fmt.Fprintf(out, "  Last Sequence:  %d\n", result.LastSequence)
			writeDetails(out, result.ValidationDetails)
			writeVerdict(out, result.IsValid())
		}

		if !result.IsValid() {
			return errValidationFailed
		}
		return nil
	},
}

var stateCmd = &cobra.Command{
	Use:   "state <attest_response.json>",
	Short: "Validate a state attestation returned by the attest request",
	Example: `  receipt-validator state attest.json --pcrs pcrs.json
  receipt-validator state attest.json --pcrs pcrs.json --digest 9f2c...`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if pcrPath == "" {
			return fmt.Errorf("--pcrs is required")
		}
		knownPCRs, err := validation.LoadPCRsFromFile(pcrPath)
		if err != nil {
			return err
		}

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read file: %w", err)
		}
		var resp auctionapi.AttestResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			return fmt.Errorf("failed to parse JSON: %w", err)
		}
		if resp.Attestation == "" {
			return fmt.Errorf("missing attestation_cose_base64 field in attest response")
		}

		result, err := validation.ValidateStateAttestation(resp.Attestation, validation.StateAttestationOptions{
			KnownPCRs:      knownPCRs,
			ExpectedDigest: expectDigest,
		})
		if err != nil {
			return fmt.Errorf("validation error: %w", err)
		}

		out := cmd.OutOrStdout()
		if outputFormat == "json" {
			if err := writeJSON(out, map[string]any{
				"valid":             result.IsValid(),
				"pcrs_valid":        result.PCRsValid,
				"certificate_valid": result.CertificateValid,
				"signature_valid":   result.SignatureValid,
				"digest_match":      result.DigestMatch,
				"user_data":         result.UserData,
				"details":           result.ValidationDetails,
			}); err != nil {
				return err
			}
		} else {
			fmt.Fprintln(out, "Auction State Attestation Validator")
			fmt.Fprintln(out, "===================================")
			if ud := result.UserData; ud != nil {
				fmt.Fprintf(out, "  Auction:        %s\n", ud.AuctionID)
				fmt.Fprintf(out, "  Status:         %s\n", ud.Status)
				fmt.Fprintf(out, "  Bids:           %d\n", ud.BidCount)
				fmt.Fprintf(out, "  History Digest: %s\n", ud.HistoryDigest)
			}
			fmt.Fprintln(out)
			fmt.Fprintf(out, "  PCRs Valid:        %v\n", result.PCRsValid)
			fmt.Fprintf(out, "  Certificate Valid: %v\n", result.CertificateValid)
			fmt.Fprintf(out, "  Signature Valid:   %v\n", result.SignatureValid)
			fmt.Fprintf(out, "  Digest Match:      %v\n", result.DigestMatch)
			writeDetails(out, result.ValidationDetails)
			writeVerdict(out, result.IsValid())
		}

		if !result.IsValid() {
			return errValidationFailed
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "text", "Output format: text or json")
	for _, cmd := range []*cobra.Command{receiptCmd, streamCmd} {
		cmd.Flags().StringVar(&publicKeyPath, "public-key", "", "Path to the receipt signing public key PEM (required)")
		_ = cmd.MarkFlagRequired("public-key")
	}
	stateCmd.Flags().StringVar(&pcrPath, "pcrs", "", "Path to the known PCR sets JSON (required)")
	stateCmd.Flags().StringVar(&expectDigest, "digest", "", "Expected bid history digest")
	rootCmd.AddCommand(receiptCmd, streamCmd, stateCmd)
}

func readReceiptRecord(path string) (*auctionapi.ReceiptRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var record auctionapi.ReceiptRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	if record.Receipt == "" {
		return nil, fmt.Errorf("missing receipt_cose_base64 field in receipt record")
	}
	return &record, nil
}

func readPublicKey(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read public key: %w", err)
	}
	return string(data), nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeDetails(w io.Writer, details []string) {
	if len(details) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Details:")
	for _, d := range details {
		fmt.Fprintf(w, "  - %s\n", d)
	}
}

func writeVerdict(w io.Writer, valid bool) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, strings.Repeat("=", 25))
	if valid {
		fmt.Fprintln(w, "VALIDATION: ✓ PASSED")
	} else {
		fmt.Fprintln(w, "VALIDATION: ✗ FAILED")
	}
}

// exitCode maps a command error to the documented exit codes.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errValidationFailed):
		return 1
	default:
		return 2
	}
}

func main() {
	err := rootCmd.ExecuteContext(context.Background())
	if err != nil && !errors.Is(err, errValidationFailed) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(exitCode(err))
}
