// Package report defines the endorsed attestation report artifact and its
// offline verification. The artifact is the only thing that crosses the
// trust boundary between the enclave and a relying party; everything here is
// a pure function of the artifact bytes, an injected trust root and an
// injected clock reading.
package report

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"tee-ra/sgx"

	"github.com/ethereum/go-ethereum/common"
	"github.com/xeipuuv/gojsonschema"
)

// SupportedReportVersion is the attestation report version this code
// understands; reports at any other version are rejected.
const SupportedReportVersion = 4

// enclaveKeyAddressLen is how many report-data bytes carry the address of
// the attested enclave key.
const enclaveKeyAddressLen = 20

// EndorsedAttestationReport is the final trust artifact: the verification
// report body exactly as signed, plus the service's signature and signing
// certificate. Byte fields round-trip through JSON as base64.
type EndorsedAttestationReport struct {
	AVR         string `json:"avr"`
	Signature   []byte `json:"signature"`
	SigningCert []byte `json:"signing_cert"`
}

// AttestationVerificationReport is the parsed JSON body of an endorsed
// report.
type AttestationVerificationReport struct {
	ID                    string   `json:"id"`
	Timestamp             string   `json:"timestamp"`
	Version               int64    `json:"version"`
	ISVEnclaveQuoteStatus string   `json:"isvEnclaveQuoteStatus"`
	ISVEnclaveQuoteBody   string   `json:"isvEnclaveQuoteBody"`
	RevocationReason      *int64   `json:"revocationReason,omitempty"`
	PSEManifestStatus     *int64   `json:"pseManifestStatus,omitempty"`
	PSEManifestHash       *string  `json:"pseManifestHash,omitempty"`
	PlatformInfoBlob      *string  `json:"platformInfoBlob,omitempty"`
	Nonce                 *string  `json:"nonce,omitempty"`
	EPIDPseudonym         []byte   `json:"epidPseudonym,omitempty"`
	AdvisoryURL           string   `json:"advisoryURL,omitempty"`
	AdvisoryIDs           []string `json:"advisoryIDs,omitempty"`
}

// avrSchema pins the structure of the report body before field access.
const avrSchema = `{
	"type": "object",
	"required": ["id", "timestamp", "version", "isvEnclaveQuoteStatus", "isvEnclaveQuoteBody"],
	"properties": {
		"id": {"type": "string"},
		"timestamp": {"type": "string"},
		"version": {"type": "integer"},
		"isvEnclaveQuoteStatus": {"type": "string"},
		"isvEnclaveQuoteBody": {"type": "string"},
		"revocationReason": {"type": "integer"},
		"advisoryURL": {"type": "string"},
		"advisoryIDs": {"type": "array", "items": {"type": "string"}}
	}
}`

var (
	avrSchemaOnce     sync.Once
	avrSchemaCompiled *gojsonschema.Schema
	avrSchemaErr      error
)

func compiledAVRSchema() (*gojsonschema.Schema, error) {
	avrSchemaOnce.Do(func() {
		avrSchemaCompiled, avrSchemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(avrSchema))
	})
	return avrSchemaCompiled, avrSchemaErr
}

// GetAVR validates and parses the endorsed report body. This does not
// authenticate anything; call Verifier.Verify first.
func (r *EndorsedAttestationReport) GetAVR() (*AttestationVerificationReport, error) {
	schema, err := compiledAVRSchema()
	if err != nil {
		return nil, fmt.Errorf("failed to compile report schema: %v", err)
	}
	result, err := schema.Validate(gojsonschema.NewStringLoader(r.AVR))
	if err != nil {
		return nil, fmt.Errorf("attestation report is not valid JSON: %v", err)
	}
	if !result.Valid() {
		return nil, fmt.Errorf("attestation report failed schema validation: %v", result.Errors())
	}

	var avr AttestationVerificationReport
	if err := json.Unmarshal([]byte(r.AVR), &avr); err != nil {
		return nil, fmt.Errorf("failed to parse attestation report: %v", err)
	}
	return &avr, nil
}

// ParseQuote decodes the quote embedded in the report. The report version
// must match SupportedReportVersion; the timestamp is normalized to UTC.
func (avr *AttestationVerificationReport) ParseQuote() (*Quote, error) {
	if avr.Version != SupportedReportVersion {
		return nil, fmt.Errorf("unexpected attestation report version: expected %d, got %d",
			SupportedReportVersion, avr.Version)
	}

	// Timestamps arrive without a zone designator and with optional
	// fractional seconds; they are defined to be UTC.
	attestationTime, err := time.ParseInLocation("2006-01-02T15:04:05.999999999", avr.Timestamp, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("failed to parse report timestamp %q: %v", avr.Timestamp, err)
	}

	quoteBody, err := base64.StdEncoding.DecodeString(avr.ISVEnclaveQuoteBody)
	if err != nil {
		return nil, fmt.Errorf("quote body is not valid base64: %v", err)
	}
	raw, err := sgx.DecodeQuote(quoteBody)
	if err != nil {
		return nil, err
	}

	return &Quote{
		Raw:             *raw,
		Status:          avr.ISVEnclaveQuoteStatus,
		AttestationTime: attestationTime,
	}, nil
}

// Quote is the decoded platform quote plus the verifier-side metadata taken
// from the endorsing report. It is derived strictly from the report and is
// never independently trusted.
type Quote struct {
	Raw             sgx.Quote
	Status          string
	AttestationTime time.Time
}

// GetEnclaveKeyAddress extracts the address the enclave committed into the
// quote's report data at generation time.
func (q *Quote) GetEnclaveKeyAddress() (common.Address, error) {
	return addressFromReportData(q.Raw.ReportBody.ReportData[:])
}

func addressFromReportData(data []byte) (common.Address, error) {
	if len(data) < enclaveKeyAddressLen {
		return common.Address{}, fmt.Errorf("unexpected report data length: %d", len(data))
	}
	return common.BytesToAddress(data[:enclaveKeyAddressLen]), nil
}
