package sgx

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Sizes and limits fixed by the EPID attestation protocol.
const (
	ReportDataSize = 64
	MeasurementLen = 32
	SpidLen        = 16
	NonceLen       = 16
	GroupIDLen     = 4

	// QuoteBodyLen is the length of the quote without the EPID signature
	// tail; this is the exact slice the attestation service echoes back in
	// the isvEnclaveQuoteBody field.
	QuoteBodyLen = 432

	// MaxQuoteLen bounds the quote buffer handed to the quoting enclave.
	MaxQuoteLen = 2048
)

// QuoteSignType selects linkable or unlinkable EPID signatures.
type QuoteSignType uint16

const (
	UnlinkableQuote QuoteSignType = 0
	LinkableQuote   QuoteSignType = 1
)

// Spid is the service provider ID registered with the attestation service.
type Spid [SpidLen]byte

// QuoteNonce is the fresh anti-replay nonce for one quoting round.
type QuoteNonce [NonceLen]byte

// EPIDGroupID identifies the platform's EPID signature group (little-endian).
type EPIDGroupID [GroupIDLen]byte

// Uint32 returns the group ID as the number the service endpoints expect.
func (g EPIDGroupID) Uint32() uint32 {
	return binary.LittleEndian.Uint32(g[:])
}

// Measurement is an enclave measurement (MRENCLAVE / MRSIGNER).
type Measurement [MeasurementLen]byte

// ReportData is the 64-byte caller data field bound into reports and quotes.
type ReportData [ReportDataSize]byte

// Attributes are the enclave attribute flags and extended feature mask.
type Attributes struct {
	Flags uint64
	Xfrm  uint64
}

// TargetInfo describes the enclave a report should be targeted at, as
// returned by quote initialization.
type TargetInfo struct {
	MREnclave  Measurement
	Attributes Attributes
	Reserved1  [2]byte
	ConfigSVN  uint16
	MiscSelect uint32
	Reserved2  [8]byte
	ConfigID   [64]byte
	Reserved3  [384]byte
}

// ReportBody is the 384-byte body shared by reports and quotes.
type ReportBody struct {
	CPUSVN       [16]byte
	MiscSelect   uint32
	Reserved1    [12]byte
	ISVExtProdID [16]byte
	Attributes   Attributes
	MREnclave    Measurement
	Reserved2    [32]byte
	MRSigner     Measurement
	Reserved3    [32]byte
	ConfigID     [64]byte
	ISVProdID    uint16
	ISVSVN       uint16
	ConfigSVN    uint16
	Reserved4    [42]byte
	ISVFamilyID  [16]byte
	ReportData   ReportData
}

// Report is a locally-verifiable report produced by the platform.
type Report struct {
	Body  ReportBody
	KeyID [32]byte
	MAC   [16]byte
}

// Quote is the fixed-layout prefix of an EPID quote. The signature tail that
// follows on freshly generated quotes is stripped by the attestation service
// before the body is endorsed, so it is not part of this structure.
type Quote struct {
	Version     uint16
	SignType    uint16
	EPIDGroupID EPIDGroupID
	QESVN       uint16
	PCESVN      uint16
	XEID        uint32
	Basename    [32]byte
	ReportBody  ReportBody
}

// DecodeQuote parses the 432-byte quote body. Longer input is accepted and
// the tail (signature length + EPID signature) ignored.
func DecodeQuote(raw []byte) (*Quote, error) {
	if len(raw) < QuoteBodyLen {
		return nil, fmt.Errorf("quote body too short: got %d bytes, want at least %d", len(raw), QuoteBodyLen)
	}
	var q Quote
	if err := binary.Read(bytes.NewReader(raw[:QuoteBodyLen]), binary.LittleEndian, &q); err != nil {
		return nil, fmt.Errorf("failed to decode quote body: %v", err)
	}
	return &q, nil
}

// EncodeQuote serializes the quote body followed by a zero signature length,
// which is the shape an unrevoked simulated quoting enclave emits.
func EncodeQuote(q *Quote) ([]byte, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, q); err != nil {
		return nil, fmt.Errorf("failed to encode quote body: %v", err)
	}
	if err := binary.Write(&buf, binary.LittleEndian, uint32(0)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
