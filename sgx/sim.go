package sgx

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
)

// SimProvider is a deterministic software quote provider. It reproduces the
// contract of the hardware quoting path closely enough for the generation
// protocol's checks to be exercised for real: the self-check report carries
// SHA256(nonce || quote) in its report data and mirrors the quoting
// enclave's identity from InitQuote.
//
// The fault-injection fields let tests break individual links of that
// contract; all of them default to the honest behavior.
type SimProvider struct {
	// Identity of the simulated application enclave.
	MREnclave  Measurement
	MRSigner   Measurement
	Attributes Attributes

	// Identity of the simulated quoting enclave, as exposed via target info.
	QEIdentity Measurement

	GroupID EPIDGroupID

	// Fault injection for tests.
	TamperQuote    func([]byte) []byte // mutates the quote after the self-check digest is computed
	SkewNonce      bool                // self-check digest computed over a mutated nonce
	SkewQEIdentity bool                // self-check report carries a different measurement than target info
	FailInitQuote  bool
	FailGetQuote   bool
	FailVerify     bool
}

// NewSimProvider returns a provider with a fixed, recognizable identity.
func NewSimProvider() *SimProvider {
	p := &SimProvider{
		Attributes: Attributes{Flags: 0x04, Xfrm: 0x03},
		GroupID:    EPIDGroupID{0x0b, 0x00, 0x00, 0x00},
	}
	copy(p.MREnclave[:], bytes.Repeat([]byte{0xa1}, MeasurementLen))
	copy(p.MRSigner[:], bytes.Repeat([]byte{0xb2}, MeasurementLen))
	copy(p.QEIdentity[:], bytes.Repeat([]byte{0xc3}, MeasurementLen))
	return p
}

func (p *SimProvider) InitQuote() (TargetInfo, EPIDGroupID, error) {
	if p.FailInitQuote {
		return TargetInfo{}, EPIDGroupID{}, fmt.Errorf("simulated quote initialization failure")
	}
	ti := TargetInfo{
		MREnclave:  p.QEIdentity,
		Attributes: p.Attributes,
	}
	return ti, p.GroupID, nil
}

func (p *SimProvider) CreateReport(ti TargetInfo, data ReportData) (Report, error) {
	var r Report
	r.Body = ReportBody{
		MiscSelect: ti.MiscSelect,
		Attributes: p.Attributes,
		MREnclave:  p.MREnclave,
		MRSigner:   p.MRSigner,
		ReportData: data,
	}
	r.MAC = p.mac(&r.Body)
	return r, nil
}

func (p *SimProvider) GetQuote(sigrl []byte, report Report, signType QuoteSignType, spid Spid, nonce QuoteNonce) ([]byte, Report, error) {
	if p.FailGetQuote {
		return nil, Report{}, fmt.Errorf("simulated quoting enclave failure")
	}

	q := Quote{
		Version:     2,
		SignType:    uint16(signType),
		EPIDGroupID: p.GroupID,
		ReportBody:  report.Body,
	}
	quote, err := EncodeQuote(&q)
	if err != nil {
		return nil, Report{}, err
	}
	if len(quote) > MaxQuoteLen {
		return nil, Report{}, fmt.Errorf("quote exceeds %d byte buffer", MaxQuoteLen)
	}

	// Self-check report targeted back at the calling enclave, with the
	// anti-replay digest in the lower 32 bytes of its report data.
	if p.SkewNonce {
		nonce[0] ^= 0x01
	}
	digest := sha256.Sum256(append(append([]byte{}, nonce[:]...), quote...))
	var selfCheck Report
	selfCheck.Body = ReportBody{
		Attributes: p.Attributes,
		MREnclave:  p.QEIdentity,
	}
	if p.SkewQEIdentity {
		selfCheck.Body.MREnclave[0] ^= 0xff
	}
	copy(selfCheck.Body.ReportData[:32], digest[:])
	selfCheck.MAC = p.mac(&selfCheck.Body)

	if p.TamperQuote != nil {
		quote = p.TamperQuote(quote)
	}
	return quote, selfCheck, nil
}

func (p *SimProvider) VerifyReport(report Report) error {
	if p.FailVerify {
		return fmt.Errorf("simulated report verification failure")
	}
	want := p.mac(&report.Body)
	if !hmac.Equal(want[:], report.MAC[:]) {
		return fmt.Errorf("report MAC mismatch")
	}
	return nil
}

// mac stands in for the hardware report key. Keyed on the provider identity
// so reports from differently-configured providers do not cross-verify.
func (p *SimProvider) mac(body *ReportBody) [16]byte {
	h := hmac.New(sha256.New, p.QEIdentity[:])
	h.Write(body.ReportData[:])
	h.Write(body.MREnclave[:])
	h.Write(body.MRSigner[:])
	var mac [16]byte
	copy(mac[:], h.Sum(nil))
	return mac
}
